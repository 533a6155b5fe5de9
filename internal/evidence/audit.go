package evidence

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
)

// Audit signal names.
const (
	SignalArtifact   = "artifact"
	SignalGoldAnswer = "gold_answer_text"
	SignalAnyOption  = "any_option_text"
)

// Signals lists the audit signals in report order.
var Signals = []string{SignalArtifact, SignalGoldAnswer, SignalAnyOption}

// AuditConfig controls a leakage audit.
type AuditConfig struct {
	TopK        int
	MaxExamples int
	// Indices restricts the audit when non-nil, typically to the idx values
	// of a run output. Nil audits the full overlap.
	Indices []int
}

// DefaultAuditConfig checks the first five snippets and keeps five examples.
func DefaultAuditConfig() AuditConfig {
	return AuditConfig{TopK: 5, MaxExamples: 5}
}

// SignalStats is the per-signal part of an audit report.
type SignalStats struct {
	Count    int     `json:"count" yaml:"count"`
	Rate     float64 `json:"rate" yaml:"rate"`
	Examples []int   `json:"examples" yaml:"examples"`
}

// AuditReport summarizes how often evidence leaks answer material.
type AuditReport struct {
	DatasetN  int                    `json:"dataset_n" yaml:"dataset_n"`
	EvidenceN int                    `json:"evidence_n" yaml:"evidence_n"`
	Scope     string                 `json:"scope" yaml:"scope"`
	ScopeN    int                    `json:"scope_n" yaml:"scope_n"`
	N         int                    `json:"n" yaml:"n"`
	TopK      int                    `json:"topk" yaml:"topk"`
	Signals   map[string]SignalStats `json:"signals" yaml:"signals"`

	// InstanceInputWarning is set when the first audited record's
	// instances.input carries QA artifacts. That field must never be
	// injected.
	InstanceInputWarning bool     `json:"instances_input_warning" yaml:"instances_input_warning"`
	InstanceInputHits    []string `json:"instances_input_hits,omitempty" yaml:"instances_input_hits,omitempty"`
}

// ErrNoIndices is returned when a predictions file yields no integer idx.
var ErrNoIndices = eris.New("no integer 'idx' found in predictions")

// PredictionIndices extracts the sorted, deduplicated integer idx values of
// raw prediction rows. Rows without an integer idx are ignored.
func PredictionIndices(rows []map[string]any) ([]int, error) {
	seen := make(map[int]bool)
	var idxs []int
	for _, row := range rows {
		f, ok := row["idx"].(float64)
		if !ok || f != float64(int(f)) {
			continue
		}
		i := int(f)
		if !seen[i] {
			seen[i] = true
			idxs = append(idxs, i)
		}
	}
	if len(idxs) == 0 {
		return nil, ErrNoIndices
	}
	sort.Ints(idxs)
	return idxs, nil
}

// Audit measures artifact, gold answer and option text leakage in the first
// TopK snippets of each record in scope. Out-of-range indices are skipped.
func Audit(questions []model.Question, recs []*model.EvidenceRecord, cfg AuditConfig) AuditReport {
	idxs := cfg.Indices
	scope := "pred_jsonl"
	if idxs == nil {
		scope = "full_overlap"
		n := min(len(questions), len(recs))
		idxs = make([]int, n)
		for i := range n {
			idxs[i] = i
		}
	}

	counts := make(map[string]int, len(Signals))
	examples := make(map[string][]int, len(Signals))
	for _, s := range Signals {
		examples[s] = []int{}
	}
	hit := func(sig string, idx int) {
		counts[sig]++
		if len(examples[sig]) < cfg.MaxExamples {
			examples[sig] = append(examples[sig], idx)
		}
	}

	rep := AuditReport{
		DatasetN:  len(questions),
		EvidenceN: len(recs),
		Scope:     scope,
		ScopeN:    len(idxs),
		TopK:      cfg.TopK,
	}

	for _, idx := range idxs {
		if idx < 0 || idx >= len(questions) || idx >= len(recs) {
			continue
		}
		rep.N++

		artifact, gold, opt := leakSignals(topK(recs[idx].Snippets(), cfg.TopK), questions[idx])
		if artifact {
			hit(SignalArtifact, idx)
		}
		if gold {
			hit(SignalGoldAnswer, idx)
		}
		if opt {
			hit(SignalAnyOption, idx)
		}
	}

	rep.Signals = make(map[string]SignalStats, len(Signals))
	for _, s := range Signals {
		st := SignalStats{Count: counts[s], Examples: examples[s]}
		if rep.N > 0 {
			st.Rate = float64(counts[s]) / float64(rep.N)
		}
		rep.Signals[s] = st
	}

	if len(idxs) > 0 && idxs[0] >= 0 && idxs[0] < len(recs) {
		if in := recs[idxs[0]].InstanceInput(); in != "" {
			if hits := ArtifactHits(in, false); len(hits) > 0 {
				sort.Strings(hits)
				rep.InstanceInputWarning = true
				rep.InstanceInputHits = hits
			}
		}
	}
	return rep
}

func leakSignals(snips []string, q model.Question) (artifact, gold, opt bool) {
	g := goldText(q)
	opts := optionTexts(q)

	for _, s := range snips {
		if hasArtifact(s, false) {
			artifact = true
		}
		lower := strings.ToLower(s)
		if g != "" && strings.Contains(lower, g) {
			gold = true
		}
		if !opt {
			for _, o := range opts {
				if strings.Contains(lower, o) {
					opt = true
					break
				}
			}
		}
	}
	return artifact, gold, opt
}
