package evidence

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
)

// Leakage filter modes.
const (
	ModeArtifactOnly = "artifact_only"
	ModeStrict       = "strict"
)

// Drop reasons beyond the artifact pattern names.
const (
	ReasonGoldAnswer = "contains_gold_answer_text"
	ReasonOption     = "contains_option_text"
	ReasonTooShort   = "too_short"
)

// FilterConfig controls the offline leakage filter.
type FilterConfig struct {
	Mode         string
	MinSnipChars int
	// TopK limits the snippets considered per record when > 0.
	TopK int
	// Disabled copies snippets through unchanged (TopK still applies).
	Disabled bool
}

// DefaultFilterConfig returns the artifact_only filter with an 80 character
// floor and no TopK limit.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{Mode: ModeArtifactOnly, MinSnipChars: 80, TopK: -1}
}

// Validate rejects unknown modes.
func (c FilterConfig) Validate() error {
	switch c.Mode {
	case ModeArtifactOnly, ModeStrict:
		return nil
	default:
		return eris.Errorf("evidence: unknown filter mode %q (want artifact_only or strict)", c.Mode)
	}
}

// ReasonCount is one entry of the drop reason histogram.
type ReasonCount struct {
	Reason string `json:"reason" yaml:"reason"`
	Count  int    `json:"count" yaml:"count"`
}

// FilterStats summarizes a filter pass.
type FilterStats struct {
	Records int            `json:"records"`
	Kept    int            `json:"kept_snips"`
	Dropped int            `json:"dropped_snips"`
	Reasons map[string]int `json:"drop_reasons"`
}

// TopReasons returns the drop reasons most common first, ties by name.
func (s FilterStats) TopReasons() []ReasonCount {
	out := make([]ReasonCount, 0, len(s.Reasons))
	for r, n := range s.Reasons {
		out = append(out, ReasonCount{Reason: r, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Reason < out[j].Reason
	})
	return out
}

// LeakReasons lists why snippet s should not be shown for question q. An
// empty result means the snippet is clean.
func LeakReasons(s string, q model.Question, cfg FilterConfig) []string {
	reasons := ArtifactHits(s, false)

	if cfg.Mode == ModeStrict {
		lower := strings.ToLower(s)
		if g := goldText(q); g != "" && strings.Contains(lower, g) {
			reasons = append(reasons, ReasonGoldAnswer)
		}
		for _, opt := range optionTexts(q) {
			if strings.Contains(lower, opt) {
				reasons = append(reasons, ReasonOption)
				break
			}
		}
	}

	if runeLen(normWS(s)) < cfg.MinSnipChars {
		reasons = append(reasons, ReasonTooShort)
	}
	return reasons
}

// Filter removes leaky snippets from every record aligned with a dataset
// row. It processes min(len(questions), len(recs)) records and returns
// copies; the input records are not modified.
func Filter(questions []model.Question, recs []*model.EvidenceRecord, cfg FilterConfig) ([]*model.EvidenceRecord, FilterStats) {
	n := min(len(questions), len(recs))

	stats := FilterStats{Records: n, Reasons: make(map[string]int)}
	out := make([]*model.EvidenceRecord, 0, n)

	for i := range n {
		rec := recs[i].Clone()
		snips := topK(rec.Snippets(), cfg.TopK)

		kept := make([]string, 0, len(snips))
		for _, s := range snips {
			if cfg.Disabled {
				kept = append(kept, s)
				continue
			}
			reasons := LeakReasons(s, questions[i], cfg)
			if len(reasons) == 0 {
				kept = append(kept, s)
				continue
			}
			stats.Dropped++
			seen := make(map[string]bool, len(reasons))
			for _, r := range reasons {
				if !seen[r] {
					seen[r] = true
					stats.Reasons[r]++
				}
			}
		}
		stats.Kept += len(kept)

		rec.SetSnippets(kept)
		out = append(out, rec)
	}
	return out, stats
}
