// Package medagents runs the five-stage MedAgents consultation for one
// question: expert gathering, analysis proposition, report summarization,
// collaborative consultation and decision making.
package medagents

import (
	"context"

	"github.com/sells-group/medrag-cli/internal/llm"
	"github.com/sells-group/medrag-cli/internal/model"
)

// Stage tags attached to every model call.
const (
	StageQuestionDomain   = "S1_question_domain"
	StageOptionsDomain    = "S1_options_domain"
	StageQuestionAnalysis = "S2_question_analysis"
	StageOptionsAnalysis  = "S2_options_analysis"
	StageSynthReport      = "S3_synth_report"
	StageVote             = "S4_vote"
	StageAdvice           = "S4_advice"
	StageRevision         = "S4_revision"
	StageFinal            = "S5_final"
)

// Per-stage completion budgets.
const (
	domainMaxTokens   = 50
	analysisMaxTokens = 300
	reportMaxTokens   = 2500
	voteMaxTokens     = 30
	adviceMaxTokens   = 500
)

// DefaultMaxAttemptVote is the default number of consultation rounds.
const DefaultMaxAttemptVote = 3

// Caller sends one model call and returns its text, or llm.ErrorOutput.
type Caller interface {
	Call(ctx context.Context, c llm.Call) string
}

// Input is one prepared question.
type Input struct {
	QID        int
	RealQID    int
	Question   string
	Options    model.Options
	GoldAnswer string

	// Evidence is appended to the stage-2 prompts when non-empty.
	Evidence string
}

// Pipeline runs the consultation against a Caller.
type Pipeline struct {
	caller         Caller
	maxAttemptVote int
}

// New creates a Pipeline. maxAttemptVote <= 0 uses DefaultMaxAttemptVote.
func New(caller Caller, maxAttemptVote int) *Pipeline {
	if maxAttemptVote <= 0 {
		maxAttemptVote = DefaultMaxAttemptVote
	}
	return &Pipeline{caller: caller, maxAttemptVote: maxAttemptVote}
}

// Decode runs all five stages for in. Model failures never abort the
// pipeline; each stage substitutes its fallback for llm.ErrorOutput.
func (p *Pipeline) Decode(ctx context.Context, in Input) *model.Prediction {
	options := in.Options.String()
	meta := llm.Meta{QID: in.QID, RealQID: in.RealQID}
	call := func(stage string, m llm.Meta, system, user string, maxTokens int) string {
		return p.caller.Call(ctx, llm.Call{
			Stage:     stage,
			Meta:      m,
			System:    system,
			User:      user,
			MaxTokens: maxTokens,
		})
	}
	withDomain := func(d string) llm.Meta {
		m := meta
		m.Domain = d
		return m
	}

	// Stage 1: expert gathering.
	sys, usr := questionDomainsPrompt(in.Question)
	raw := call(StageQuestionDomain, meta, sys, usr, domainMaxTokens)
	if raw == llm.ErrorOutput {
		raw = fallbackDomains(NumQuestionDomains)
	}
	questionDomains := ParseDomains(raw)

	sys, usr = optionsDomainsPrompt(in.Question, options)
	raw = call(StageOptionsDomain, meta, sys, usr, domainMaxTokens)
	if raw == llm.ErrorOutput {
		raw = fallbackDomains(NumOptionDomains)
	}
	optionDomains := ParseDomains(raw)

	// Stage 2: analysis proposition.
	rawQA := make([]string, 0, len(questionDomains))
	for _, d := range questionDomains {
		sys, usr := questionAnalysisPrompt(in.Question, d, in.Evidence)
		rawQA = append(rawQA, call(StageQuestionAnalysis, withDomain(d), sys, usr, analysisMaxTokens))
	}
	questionAnalyses := cleanAnalyses(rawQA, questionDomains, "question")

	rawOA := make([]string, 0, len(optionDomains))
	for _, d := range optionDomains {
		sys, usr := optionsAnalysisPrompt(in.Question, options, d, questionAnalyses, in.Evidence)
		rawOA = append(rawOA, call(StageOptionsAnalysis, withDomain(d), sys, usr, analysisMaxTokens))
	}
	optionAnalyses := cleanAnalyses(rawOA, optionDomains, "option")

	// Stage 3: report summarization.
	sys, usr = synthesizedReportPrompt(
		reportsText(questionAnalyses, "Question", in.Question),
		reportsText(optionAnalyses, "Options", options),
	)
	synReport := CleanSynReport(in.Question, options, call(StageSynthReport, meta, sys, usr, reportMaxTokens))

	// Stage 4: collaborative consultation.
	allDomains := append(append([]string{}, questionDomains...), optionDomains...)
	synRepoHistory := []string{synReport}
	voteHistory := []map[string]string{}
	revisionHistory := []map[string]string{}

	hasNo := true
	for round := 1; round <= p.maxAttemptVote && hasNo; round++ {
		opinions := newOrdered()
		advice := newOrdered()
		hasNo = false
		for _, d := range allDomains {
			m := withDomain(d)
			m.Round = round
			voter, prompt := consensusPrompt(d, synReport)
			vote := ParseVote(call(StageVote, m, voter, prompt, voteMaxTokens))
			opinions.Set(d, vote)
			if vote == "no" {
				advice.Set(d, call(StageAdvice, m, voter, consensusOpinionPrompt(d, synReport), adviceMaxTokens))
				hasNo = true
			}
		}
		if hasNo {
			m := meta
			m.Round = round
			revised := call(StageRevision, m, "", revisionPrompt(synReport, advice), reportMaxTokens)
			synReport = CleanSynReport(in.Question, options, revised)
			revisionHistory = append(revisionHistory, advice.Map())
			synRepoHistory = append(synRepoHistory, synReport)
		}
		voteHistory = append(voteHistory, opinions.Map())
	}

	// Stage 5: decision making.
	output := call(StageFinal, meta, "", finalAnswerPrompt(synReport), reportMaxTokens)

	return &model.Prediction{
		Question:         in.Question,
		Options:          in.Options,
		PredAnswer:       ParseFinalAnswer(output),
		GoldAnswer:       in.GoldAnswer,
		QuestionDomains:  questionDomains,
		OptionDomains:    optionDomains,
		QuestionAnalyses: questionAnalyses.Map(),
		OptionAnalyses:   optionAnalyses.Map(),
		SynReport:        synReport,
		VoteHistory:      voteHistory,
		RevisionHistory:  revisionHistory,
		SynRepoHistory:   synRepoHistory,
		RawOutput:        output,
	}
}
