// Package evidence formats, filters and audits pre-retrieved evidence
// snippets before they are injected into prompts.
package evidence

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/sells-group/medrag-cli/internal/model"
)

// Pattern is a named regular expression matching QA-formatted text
// ("Option A:", "Answer:", ...) that signals the snippet was lifted from a
// question bank rather than a reference source.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
	// Runtime patterns are applied when formatting prompt context and during
	// spot checks. The offline filter and audit use every pattern.
	Runtime bool
}

// Expr returns the pattern source without its leading flag group, so
// "(?i)\bAnswer\s*:" reports as "\bAnswer\s*:".
func (p Pattern) Expr() string {
	src := p.Re.String()
	if strings.HasPrefix(src, "(?") {
		if end := strings.IndexByte(src, ')'); end > 0 && !strings.ContainsRune(src[:end], ':') {
			return src[end+1:]
		}
	}
	return src
}

// Patterns lists every QA artifact pattern in match-priority order.
var Patterns = []Pattern{
	{Name: "option_label", Re: regexp.MustCompile(`(?i)\bOption\s*[A-E]\s*:`), Runtime: true},
	{Name: "options_header", Re: regexp.MustCompile(`(?i)\bOptions?\s*:`), Runtime: true},
	{Name: "answer_header", Re: regexp.MustCompile(`(?i)\bAnswer\s*:`), Runtime: true},
	{Name: "correct_answer_header", Re: regexp.MustCompile(`(?i)\bCorrect\s*answer\s*:`), Runtime: true},
	{Name: "explanation_header", Re: regexp.MustCompile(`(?i)\bExplanation\s*:`), Runtime: true},
	{Name: "paren_choice", Re: regexp.MustCompile(`\([A-E]\)`), Runtime: true},
	{Name: "choice_line", Re: regexp.MustCompile(`(?im)^\s*[A-E]\s*[\.\)]\s+`)},
}

// ArtifactHits returns the names of every pattern matching s. With
// runtimeOnly only runtime patterns are consulted.
func ArtifactHits(s string, runtimeOnly bool) []string {
	var hits []string
	for _, p := range Patterns {
		if runtimeOnly && !p.Runtime {
			continue
		}
		if p.Re.MatchString(s) {
			hits = append(hits, p.Name)
		}
	}
	return hits
}

func hasArtifact(s string, runtimeOnly bool) bool {
	for _, p := range Patterns {
		if runtimeOnly && !p.Runtime {
			continue
		}
		if p.Re.MatchString(s) {
			return true
		}
	}
	return false
}

// normWS trims s and collapses every whitespace run to a single space.
func normWS(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// runeLen counts characters rather than bytes.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// minTextChars is the shortest answer or option text that counts as
// leaked when found verbatim inside a snippet.
const minTextChars = 8

// optionTexts returns the normalized option texts long enough to be
// meaningful leakage signals, lowercased.
func optionTexts(q model.Question) []string {
	var out []string
	for _, t := range q.Options.Texts() {
		t = normWS(t)
		if runeLen(t) >= minTextChars {
			out = append(out, strings.ToLower(t))
		}
	}
	return out
}

// goldText returns the normalized lowercase gold answer, or "" when it is
// too short to be a useful signal.
func goldText(q model.Question) string {
	g := normWS(q.Answer)
	if runeLen(g) < minTextChars {
		return ""
	}
	return strings.ToLower(g)
}

// topK truncates snippets to the first k when k > 0.
func topK(snips []string, k int) []string {
	if k > 0 && len(snips) > k {
		return snips[:k]
	}
	return snips
}
