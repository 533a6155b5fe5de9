package monitoring

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medrag-cli/internal/model"
	"github.com/sells-group/medrag-cli/internal/store"
)

type fakeLister struct {
	runs []model.Run
	err  error
}

func (f *fakeLister) ListRuns(_ context.Context, filter store.RunFilter) ([]model.Run, error) {
	if f.err != nil {
		return nil, f.err
	}
	if filter.Status == "" {
		return f.runs, nil
	}
	var out []model.Run
	for _, r := range f.runs {
		if r.Status == filter.Status {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestCollector_EmptyStore(t *testing.T) {
	c := NewCollector(&fakeLister{})

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 0, snap.RunsTotal)
	assert.Equal(t, 0.0, snap.RunFailRate)
	assert.Equal(t, 0.0, snap.CostUSD)
	assert.Equal(t, 24, snap.LookbackHours)
	assert.False(t, snap.CollectedAt.IsZero())
}

func TestCollector_RunMetrics(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	st := &fakeLister{runs: []model.Run{
		{ID: "1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1 * time.Hour),
			Summary: &model.RunSummary{Records: 10, Calls: 150, FailedCalls: 3, TotalTokens: 50000, EstimatedCostUSD: 1.5}},
		{ID: "2", Status: model.RunStatusComplete, CreatedAt: now.Add(-2 * time.Hour),
			Summary: &model.RunSummary{Records: 10, Calls: 130, TotalTokens: 40000, EstimatedCostUSD: 2.0}},
		{ID: "3", Status: model.RunStatusFailed, CreatedAt: now.Add(-3 * time.Hour),
			Summary: &model.RunSummary{Records: 2, Calls: 20, FailedCalls: 20}},
		{ID: "4", Status: model.RunStatusRunning, CreatedAt: now.Add(-30 * time.Minute)},
		// Outside the lookback window.
		{ID: "5", Status: model.RunStatusFailed, CreatedAt: now.Add(-48 * time.Hour),
			Summary: &model.RunSummary{Calls: 1000, EstimatedCostUSD: 99}},
	}}
	c := NewCollector(st)
	c.now = func() time.Time { return now }

	snap, err := c.Collect(context.Background(), 24)
	require.NoError(t, err)

	assert.Equal(t, 4, snap.RunsTotal)
	assert.Equal(t, 2, snap.RunsComplete)
	assert.Equal(t, 1, snap.RunsFailed)
	assert.Equal(t, 1, snap.RunsRunning)
	assert.InDelta(t, 1.0/3.0, snap.RunFailRate, 1e-9)
	assert.Equal(t, 22, snap.Records)
	assert.Equal(t, int64(300), snap.Calls)
	assert.Equal(t, int64(23), snap.FailedCalls)
	assert.InDelta(t, 23.0/300.0, snap.CallFailRate, 1e-9)
	assert.InDelta(t, 3.5, snap.CostUSD, 1e-9)
	assert.InDelta(t, 300.0/22.0, snap.AvgCallsPerRecord, 1e-9)
}

func TestCollector_NoLookbackCoversEverything(t *testing.T) {
	now := time.Now().UTC()
	st := &fakeLister{runs: []model.Run{
		{ID: "1", Status: model.RunStatusComplete, CreatedAt: now.Add(-1000 * time.Hour)},
	}}

	snap, err := NewCollector(st).Collect(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsTotal)
}

func TestCollector_ListError(t *testing.T) {
	_, err := NewCollector(&fakeLister{err: errors.New("db down")}).Collect(context.Background(), 24)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring: list runs")
}

func TestCollector_SQLiteLedger(t *testing.T) {
	ctx := context.Background()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	run, err := st.CreateRun(ctx, model.RunSpec{Label: "chatgpt", Dataset: "MedQA", Mode: model.RunModeBaseline})
	require.NoError(t, err)
	require.NoError(t, st.CompleteRun(ctx, run.ID, &model.RunSummary{Records: 5, Calls: 70, EstimatedCostUSD: 0.2}))

	snap, err := NewCollector(st).Collect(ctx, 24)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.RunsComplete)
	assert.Equal(t, int64(70), snap.Calls)
}
