package store

import (
	"sort"

	"github.com/sells-group/medrag-cli/internal/model"
)

// RunStats aggregates ledger entries.
type RunStats struct {
	Runs             int                     `json:"runs"`
	ByStatus         map[model.RunStatus]int `json:"by_status"`
	ByMode           map[model.RunMode]int   `json:"by_mode"`
	Records          int                     `json:"records"`
	Calls            int64                   `json:"calls"`
	FailedCalls      int64                   `json:"failed_calls"`
	TotalTokens      int64                   `json:"total_tokens"`
	EstimatedCostUSD float64                 `json:"estimated_cost_usd"`
	Labels           []string                `json:"labels"`
}

// Aggregate totals the summaries of runs. Runs without a summary count
// toward status and mode only.
func Aggregate(runs []model.Run) RunStats {
	st := RunStats{
		ByStatus: make(map[model.RunStatus]int),
		ByMode:   make(map[model.RunMode]int),
		Labels:   []string{},
	}
	seen := make(map[string]bool)
	for _, r := range runs {
		st.Runs++
		st.ByStatus[r.Status]++
		st.ByMode[r.Spec.Mode]++
		if r.Spec.Label != "" && !seen[r.Spec.Label] {
			seen[r.Spec.Label] = true
			st.Labels = append(st.Labels, r.Spec.Label)
		}
		if r.Summary == nil {
			continue
		}
		st.Records += r.Summary.Records
		st.Calls += r.Summary.Calls
		st.FailedCalls += r.Summary.FailedCalls
		st.TotalTokens += r.Summary.TotalTokens
		st.EstimatedCostUSD += r.Summary.EstimatedCostUSD
	}
	sort.Strings(st.Labels)
	return st
}
