// Package monitoring summarizes recent ledger activity and raises alerts
// when run failures, model call failures or spend cross thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
	"github.com/sells-group/medrag-cli/internal/store"
)

// collectLimit bounds how many ledger rows one snapshot reads.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of recent runs.
type MetricsSnapshot struct {
	RunsTotal    int     `json:"runs_total"`
	RunsComplete int     `json:"runs_complete"`
	RunsFailed   int     `json:"runs_failed"`
	RunsRunning  int     `json:"runs_running"`
	RunFailRate  float64 `json:"run_fail_rate"`

	Records      int     `json:"records"`
	Calls        int64   `json:"calls"`
	FailedCalls  int64   `json:"failed_calls"`
	CallFailRate float64 `json:"call_fail_rate"`
	TotalTokens  int64   `json:"total_tokens"`
	CostUSD      float64 `json:"cost_usd"`

	// AvgCallsPerRecord is the mean number of model calls per question.
	AvgCallsPerRecord float64 `json:"avg_calls_per_record"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// RunLister is the part of store.Store the collector reads.
type RunLister interface {
	ListRuns(ctx context.Context, filter store.RunFilter) ([]model.Run, error)
}

// Collector gathers metrics from the run ledger.
type Collector struct {
	store RunLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st RunLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. A lookback of
// zero or less covers the whole ledger.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}

	runs, err := c.store.ListRuns(ctx, store.RunFilter{Limit: collectLimit})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list runs")
	}

	cutoff := now.Add(-time.Duration(lookbackHours) * time.Hour)
	for _, r := range runs {
		if lookbackHours > 0 && r.CreatedAt.Before(cutoff) {
			continue
		}
		snap.RunsTotal++
		switch r.Status {
		case model.RunStatusComplete:
			snap.RunsComplete++
		case model.RunStatusFailed:
			snap.RunsFailed++
		case model.RunStatusRunning:
			snap.RunsRunning++
		}
		if r.Summary == nil {
			continue
		}
		snap.Records += r.Summary.Records
		snap.Calls += r.Summary.Calls
		snap.FailedCalls += r.Summary.FailedCalls
		snap.TotalTokens += r.Summary.TotalTokens
		snap.CostUSD += r.Summary.EstimatedCostUSD
	}

	if finished := snap.RunsComplete + snap.RunsFailed; finished > 0 {
		snap.RunFailRate = float64(snap.RunsFailed) / float64(finished)
	}
	if snap.Calls > 0 {
		snap.CallFailRate = float64(snap.FailedCalls) / float64(snap.Calls)
	}
	if snap.Records > 0 {
		snap.AvgCallsPerRecord = float64(snap.Calls) / float64(snap.Records)
	}
	return snap, nil
}
