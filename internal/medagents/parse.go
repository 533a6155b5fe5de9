package medagents

import (
	"regexp"
	"strings"

	"github.com/sells-group/medrag-cli/internal/llm"
)

// ordered is an insertion-ordered string map. Re-setting a key keeps its
// first position and replaces the value, so duplicate expert domains
// collapse the same way in prompts and in recorded output.
type ordered struct {
	keys []string
	m    map[string]string
}

func newOrdered() *ordered {
	return &ordered{m: make(map[string]string)}
}

func (o *ordered) Set(k, v string) {
	if _, ok := o.m[k]; !ok {
		o.keys = append(o.keys, k)
	}
	o.m[k] = v
}

func (o *ordered) Get(k string) string { return o.m[k] }
func (o *ordered) Keys() []string      { return o.keys }

// Map returns a copy as a plain map.
func (o *ordered) Map() map[string]string {
	out := make(map[string]string, len(o.m))
	for k, v := range o.m {
		out[k] = v
	}
	return out
}

// ParseDomains extracts "A | B | C" from the text after the last colon.
func ParseDomains(raw string) []string {
	parts := strings.Split(raw, ":")
	return strings.Split(strings.TrimSpace(parts[len(parts)-1]), " | ")
}

func cleanAnalyses(raw, domains []string, kind string) *ordered {
	out := newOrdered()
	for i, a := range raw {
		if i >= len(domains) {
			break
		}
		if a == llm.ErrorOutput {
			a = "There is no analysis for this " + kind + "."
		}
		out.Set(domains[i], a)
	}
	return out
}

var (
	keyKnowledgeRe  = regexp.MustCompile(`(?is)key\s*knowledge\s*:\s*(.*?)(?:\n\s*total\s*analysis\s*:|$)`)
	totalAnalysisRe = regexp.MustCompile(`(?is)total\s*analysis\s*:\s*(.*)$`)
	voteRe          = regexp.MustCompile(`yes|no`)
	choiceRe        = regexp.MustCompile(`[A-E]`)
)

// CleanSynReport rebuilds a synthesized report from model output, keeping
// the "Key Knowledge" and "Total Analysis" sections when present and
// falling back to the raw text when they are not.
func CleanSynReport(question, options, raw string) string {
	var key, total string
	if raw == llm.ErrorOutput {
		total = "There is no synthesized report."
	} else {
		if m := keyKnowledgeRe.FindStringSubmatch(raw); m != nil {
			key = strings.TrimSpace(m[1])
		}
		if m := totalAnalysisRe.FindStringSubmatch(raw); m != nil {
			total = strings.TrimSpace(m[1])
		} else {
			total = strings.TrimSpace(raw)
		}
	}

	var b strings.Builder
	b.WriteString("Question: " + question + " \n")
	b.WriteString("Options: " + options + " \n")
	if key != "" {
		b.WriteString("Key Knowledge: " + key + " \n")
	}
	b.WriteString("Total Analysis: " + total + " \n")
	return b.String()
}

// ParseVote returns the first "yes" or "no" in the output, lowercased.
// Output with neither counts as agreement.
func ParseVote(raw string) string {
	if m := voteRe.FindString(strings.ToLower(raw)); m != "" {
		return m
	}
	return "yes"
}

// ParseFinalAnswer returns the first choice letter after the last colon, or
// "" when there is none. A failed call yields no answer; upstream MedAgents
// output cleansing reads "ERROR." as choice E.
func ParseFinalAnswer(output string) string {
	if output == llm.ErrorOutput {
		return ""
	}
	parts := strings.Split(output, ":")
	return choiceRe.FindString(parts[len(parts)-1])
}
