package evidence

import (
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/medrag-cli/internal/model"
)

// VerifyConfig controls an alignment check between a dataset and an
// evidence cache.
type VerifyConfig struct {
	// Limit caps the rows checked; -1 checks every dataset row.
	Limit                   int
	RequireNonEmptyEvidence bool
	CheckQuestionText       bool
	MinQuestionRatio        float64
	ReportTop               int
}

// DefaultVerifyConfig checks every row with a 0.92 similarity floor.
func DefaultVerifyConfig() VerifyConfig {
	return VerifyConfig{Limit: -1, MinQuestionRatio: 0.92, ReportTop: 10}
}

// Mismatch is a row whose dataset question differs from the evidence
// record's QUESTION: text.
type Mismatch struct {
	Idx              int     `json:"idx"`
	Ratio            float64 `json:"ratio"`
	DatasetQuestion  string  `json:"dataset_question"`
	EvidenceQuestion string  `json:"evidence_question_extracted"`
}

// VerifySummary is the JSON report printed by the verify command.
type VerifySummary struct {
	DatasetJSONL         string     `json:"dataset_jsonl"`
	EvidenceJSON         string     `json:"evidence_json"`
	DatasetN             int        `json:"dataset_n"`
	EvidenceN            int        `json:"evidence_n"`
	CheckedN             int        `json:"checked_n"`
	LengthMatch          bool       `json:"length_match"`
	MissingRecordCount   int        `json:"missing_evidence_record_count"`
	EmptyEvidenceCount   int        `json:"empty_evidence_count"`
	MissingQuestionCount *int       `json:"missing_question_text_count"`
	MismatchCount        *int       `json:"question_mismatch_count"`
	MismatchMinRatio     *float64   `json:"question_mismatch_min_ratio"`
	MismatchSamples      []Mismatch `json:"question_mismatch_samples"`
	OK                   bool       `json:"ok"`
}

var (
	reExtractQuestion = regexp.MustCompile(`(?is)QUESTION:\s*(.*?)(?:\nOption\s*[A-E]\s*:|\nOptions?\s*:|\z)`)
	reNonAlnum        = regexp.MustCompile(`[^a-z0-9]+`)
	quoteReplacer     = strings.NewReplacer("’", "'", "“", `"`, "”", `"`, "°", " degrees ")
)

// ExtractQuestion returns the text after "QUESTION:" in an evidence
// instances.input, up to the first option line.
func ExtractQuestion(input string) string {
	m := reExtractQuestion.FindStringSubmatch(input)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(m[1]), `"`))
}

// NormText canonicalizes question text for fuzzy comparison: NFKC,
// lowercase, punctuation to spaces, whitespace collapsed.
func NormText(s string) string {
	s = strings.ToLower(strings.TrimSpace(norm.NFKC.String(s)))
	s = quoteReplacer.Replace(s)
	s = reNonAlnum.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// SimilarityRatio is the Ratcliff/Obershelp ratio of a and b compared
// character by character.
func SimilarityRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	return difflib.NewMatcher(splitChars(a), splitChars(b)).Ratio()
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// VerifyAlignment checks that evidence record i belongs to dataset row i.
func VerifyAlignment(questions []model.Question, recs []*model.EvidenceRecord, cfg VerifyConfig) VerifySummary {
	dsN, evN := len(questions), len(recs)
	limit := dsN
	if cfg.Limit >= 0 && cfg.Limit < dsN {
		limit = cfg.Limit
	}

	sum := VerifySummary{
		DatasetN:    dsN,
		EvidenceN:   evN,
		CheckedN:    limit,
		LengthMatch: dsN == evN,
	}

	missingQuestion := 0
	var mismatches []Mismatch

	for idx := range limit {
		if idx >= evN || recs[idx].Empty() {
			sum.MissingRecordCount++
			continue
		}
		rec := recs[idx]

		if !hasNonBlank(rec.Snippets()) {
			sum.EmptyEvidenceCount++
		}

		if !cfg.CheckQuestionText {
			continue
		}
		dsQ := questions[idx].Question
		evQ := ExtractQuestion(rec.InstanceInput())
		if strings.TrimSpace(dsQ) == "" || strings.TrimSpace(evQ) == "" {
			missingQuestion++
			continue
		}
		ratio := SimilarityRatio(NormText(dsQ), NormText(evQ))
		if ratio < cfg.MinQuestionRatio {
			mismatches = append(mismatches, Mismatch{
				Idx:              idx,
				Ratio:            ratio,
				DatasetQuestion:  dsQ,
				EvidenceQuestion: evQ,
			})
		}
	}

	sort.SliceStable(mismatches, func(i, j int) bool { return mismatches[i].Ratio < mismatches[j].Ratio })

	okEvidence := !cfg.RequireNonEmptyEvidence || sum.EmptyEvidenceCount == 0
	okQuestion := true
	if cfg.CheckQuestionText {
		count := len(mismatches)
		sum.MissingQuestionCount = &missingQuestion
		sum.MismatchCount = &count

		top := mismatches[:min(max(cfg.ReportTop, 0), len(mismatches))]
		sum.MismatchSamples = make([]Mismatch, 0, len(top))
		for _, m := range top {
			m.Ratio = round4(m.Ratio)
			sum.MismatchSamples = append(sum.MismatchSamples, m)
		}
		if len(top) > 0 {
			r := top[0].Ratio
			sum.MismatchMinRatio = &r
		}
		okQuestion = count == 0 && missingQuestion == 0
	}

	sum.OK = sum.LengthMatch && sum.MissingRecordCount == 0 && okEvidence && okQuestion
	return sum
}

func hasNonBlank(snips []string) bool {
	for _, s := range snips {
		if strings.TrimSpace(s) != "" {
			return true
		}
	}
	return false
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}
