package runner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medrag-cli/internal/config"
	"github.com/sells-group/medrag-cli/internal/dataset"
	"github.com/sells-group/medrag-cli/internal/llm"
	"github.com/sells-group/medrag-cli/internal/medagents"
	"github.com/sells-group/medrag-cli/internal/model"
	"github.com/sells-group/medrag-cli/internal/store"
)

// fakeHandler answers every stage with a fixed reply and remembers the
// stage-2 prompts it saw per question.
type fakeHandler struct {
	mu       sync.Mutex
	calls    int64
	prompts  map[int][]string
	delay    func(qid int) time.Duration
	cancelAt int
	cancel   context.CancelFunc
}

func newFakeHandler() *fakeHandler {
	return &fakeHandler{prompts: make(map[int][]string), cancelAt: -1}
}

func (f *fakeHandler) Call(ctx context.Context, c llm.Call) string {
	if f.delay != nil && c.Stage == medagents.StageQuestionDomain {
		time.Sleep(f.delay(c.Meta.QID))
	}
	f.mu.Lock()
	f.calls++
	if c.Stage == medagents.StageQuestionAnalysis {
		f.prompts[c.Meta.QID] = append(f.prompts[c.Meta.QID], c.User)
	}
	f.mu.Unlock()
	if f.cancel != nil && c.Meta.QID == f.cancelAt {
		f.cancel()
	}

	switch c.Stage {
	case medagents.StageQuestionDomain, medagents.StageOptionsDomain:
		return "Medical Field: Hematology"
	case medagents.StageVote:
		return "yes"
	case medagents.StageFinal:
		return "Option: A"
	default:
		return "analysis"
	}
}

func (f *fakeHandler) Stats() llm.Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return llm.Stats{Calls: f.calls, PromptTokens: 10 * f.calls, TotalTokens: 12 * f.calls}
}

func (f *fakeHandler) EstimatedCost() float64 { return 0.5 }

const sampleSplit = `{"question":"Which drug prevents clots","options":{"A":"Heparin","B":"Insulin"},"answer":"Heparin","answer_idx":"A","meta_info":"step1"}
{"question":"What lowers glucose?","options":{"A":"Insulin","B":"Heparin"},"answer":"Insulin","answer_idx":"A","meta_info":"step2&3"}
{"question":"Which vitamin is fat soluble.","options":{"A":"D","B":"C"},"answer":"D","answer_idx":"A"}
`

func writeSplit(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.jsonl"), []byte(content), 0o644))
	return dir
}

func testOptions(t *testing.T) Options {
	t.Helper()
	opts := DefaultOptions()
	opts.DatasetDir = writeSplit(t, sampleSplit)
	opts.OutputDir = t.TempDir()
	opts.EndPos = -1
	opts.Provider = "openai"
	opts.Model = "gpt-4o-mini"
	return opts
}

func readOutput(t *testing.T, path string) []model.Prediction {
	t.Helper()
	preds, err := dataset.LoadPredictions(path)
	require.NoError(t, err)
	return preds
}

func TestRun_NonStringMetaInfoPassesThrough(t *testing.T) {
	opts := testOptions(t)
	opts.DatasetDir = writeSplit(t,
		`{"question":"Q1?","options":{"A":"x","B":"y"},"answer":"x","answer_idx":"A","meta_info":"step1"}`+"\n"+
			`{"question":"Q2?","options":{"A":"x","B":"y"},"answer":"x","answer_idx":"A","meta_info":{"subject":"Anatomy"}}`+"\n"+
			`{"question":"Q3?","options":{"A":"x","B":"y"},"answer":"x","answer_idx":"A","meta_info":7}`+"\n"+
			`{"question":"Q4?","options":{"A":"x","B":"y"},"answer":"x","answer_idx":"A","meta_info":null}`+"\n")
	out := filepath.Join(opts.OutputDir, "meta.jsonl")

	_, err := New(newFakeHandler(), nil).Run(context.Background(), opts, out)
	require.NoError(t, err)

	preds := readOutput(t, out)
	require.Len(t, preds, 4)
	assert.Equal(t, "step1", preds[0].MetaKey())
	assert.JSONEq(t, `{"subject":"Anatomy"}`, string(preds[1].MetaInfo))
	assert.Equal(t, "all", preds[1].MetaKey())
	assert.Equal(t, "7", string(preds[2].MetaInfo))
	assert.Equal(t, "all", preds[2].MetaKey())
	assert.Empty(t, preds[3].MetaInfo)
}

func TestRun_Baseline(t *testing.T) {
	opts := testOptions(t)
	out := filepath.Join(opts.OutputDir, "baseline.jsonl")
	h := newFakeHandler()

	res, err := New(h, nil).Run(context.Background(), opts, out)
	require.NoError(t, err)

	preds := readOutput(t, out)
	require.Len(t, preds, 3)
	for i, p := range preds {
		assert.Equal(t, i, p.Idx)
		assert.Equal(t, "A", p.PredAnswer)
		assert.Equal(t, "A", p.GoldAnswer)
		assert.Nil(t, p.EvidenceEnabled)
		assert.Nil(t, p.EvidenceInjected)
	}
	assert.Equal(t, "Which drug prevents clots?", preds[0].Question)
	assert.Equal(t, "Which vitamin is fat soluble.", preds[2].Question)
	assert.Equal(t, "step2&3", preds[1].MetaKey())
	assert.Equal(t, "all", preds[2].MetaKey())

	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"step2&3"`)

	assert.Equal(t, 3, res.Summary.Records)
	assert.Equal(t, h.calls, res.Summary.Calls)
	assert.Equal(t, 12*h.calls, res.Summary.TotalTokens)
	assert.InDelta(t, 0.5, res.Summary.EstimatedCostUSD, 1e-9)
	assert.NotEmpty(t, res.RunID)
}

func TestRun_SliceAndClamp(t *testing.T) {
	opts := testOptions(t)
	opts.StartPos = 1
	opts.EndPos = 99
	out := filepath.Join(opts.OutputDir, "slice.jsonl")

	_, err := New(newFakeHandler(), nil).Run(context.Background(), opts, out)
	require.NoError(t, err)

	preds := readOutput(t, out)
	require.Len(t, preds, 2)
	assert.Equal(t, 1, preds[0].Idx)
	assert.Equal(t, 2, preds[1].Idx)
}

func TestRun_AppendsToExistingOutput(t *testing.T) {
	opts := testOptions(t)
	opts.EndPos = 1
	out := filepath.Join(opts.OutputDir, "append.jsonl")
	r := New(newFakeHandler(), nil)

	_, err := r.Run(context.Background(), opts, out)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), opts, out)
	require.NoError(t, err)

	assert.Len(t, readOutput(t, out), 2)
}

func TestRun_DryRun(t *testing.T) {
	opts := testOptions(t)
	opts.DryRun = true
	opts.EvidencePath = filepath.Join(t.TempDir(), "missing.json")
	out := filepath.Join(opts.OutputDir, "dry.jsonl")

	res, err := New(nil, nil).Run(context.Background(), opts, out)
	require.NoError(t, err)

	preds := readOutput(t, out)
	require.Len(t, preds, 3)
	for _, p := range preds {
		assert.Equal(t, DryRunOutput, p.RawOutput)
		assert.Equal(t, "", p.PredAnswer)
		assert.Empty(t, p.MetaInfo)
		assert.Nil(t, p.EvidenceEnabled)
	}
	assert.Zero(t, res.Summary.Calls)
}

func TestRun_RequiresHandler(t *testing.T) {
	opts := testOptions(t)
	_, err := New(nil, nil).Run(context.Background(), opts, filepath.Join(opts.OutputDir, "x.jsonl"))
	require.Error(t, err)
}

func TestRun_MissingEvidence(t *testing.T) {
	opts := testOptions(t)
	opts.EvidencePath = filepath.Join(t.TempDir(), "nope.json")

	_, err := New(newFakeHandler(), nil).Run(context.Background(), opts, filepath.Join(opts.OutputDir, "x.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Evidence file not found: "+opts.EvidencePath)
	assert.Contains(t, err.Error(), "Point --evidence_json to an existing file")
}

func TestRun_EvidenceInjection(t *testing.T) {
	opts := testOptions(t)
	evPath := filepath.Join(t.TempDir(), "evidence.json")
	long := strings.Repeat("heparin inhibits thrombin and prevents clot formation. ", 3)
	require.NoError(t, dataset.WriteEvidence(evPath, []*model.EvidenceRecord{
		model.NewEvidenceRecord([]string{long}),
		model.NewEvidenceRecord([]string{"too short"}),
	}))
	opts.EvidencePath = evPath
	opts.LogEvidence = true
	out := filepath.Join(opts.OutputDir, "rag.jsonl")
	h := newFakeHandler()

	res, err := New(h, nil).Run(context.Background(), opts, out)
	require.NoError(t, err)

	preds := readOutput(t, out)
	require.Len(t, preds, 3)

	require.NotNil(t, preds[0].EvidenceInjected)
	assert.True(t, *preds[0].EvidenceInjected)
	assert.True(t, *preds[0].EvidenceEnabled)
	assert.Equal(t, evPath, preds[0].EvidenceJSON)
	assert.Equal(t, 5, preds[0].EvidenceParams.TopK)
	assert.True(t, strings.HasPrefix(*preds[0].EvidenceUsed, "[E1] "))
	assert.Equal(t, *preds[0].EvidenceCandidate, *preds[0].EvidenceUsed)

	// Short snippets are dropped and a missing record means no evidence.
	for _, i := range []int{1, 2} {
		assert.False(t, *preds[i].EvidenceInjected)
		assert.True(t, *preds[i].EvidenceEnabled)
		assert.Equal(t, "", *preds[i].EvidenceUsed)
	}

	require.NotEmpty(t, h.prompts[0])
	assert.Contains(t, h.prompts[0][0], "Evidence:\n[E1] ")
	assert.NotContains(t, h.prompts[1][0], "Evidence:")
	assert.Equal(t, 1, res.Summary.EvidenceInjected)
}

func TestRun_EvidenceWithoutLogging(t *testing.T) {
	opts := testOptions(t)
	evPath := filepath.Join(t.TempDir(), "evidence.json")
	require.NoError(t, dataset.WriteEvidence(evPath, nil))
	opts.EvidencePath = evPath
	out := filepath.Join(opts.OutputDir, "rag.jsonl")

	_, err := New(newFakeHandler(), nil).Run(context.Background(), opts, out)
	require.NoError(t, err)

	preds := readOutput(t, out)
	require.Len(t, preds, 3)
	assert.NotNil(t, preds[0].EvidenceEnabled)
	assert.Empty(t, preds[0].EvidenceJSON)
	assert.Nil(t, preds[0].EvidenceUsed)
	assert.Nil(t, preds[0].EvidenceParams)
}

func TestRun_ConcurrentWritesInOrder(t *testing.T) {
	opts := testOptions(t)
	opts.Concurrency = 3
	out := filepath.Join(opts.OutputDir, "conc.jsonl")
	h := newFakeHandler()
	// Later questions finish first.
	h.delay = func(qid int) time.Duration { return time.Duration(3-qid) * 20 * time.Millisecond }

	_, err := New(h, nil).Run(context.Background(), opts, out)
	require.NoError(t, err)

	preds := readOutput(t, out)
	require.Len(t, preds, 3)
	for i, p := range preds {
		assert.Equal(t, i, p.Idx)
	}
}

func TestRun_LedgerComplete(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(ctx, config.StoreConfig{Driver: store.DriverSQLite, DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	opts := testOptions(t)
	opts.Tag = "smoke"
	out := filepath.Join(opts.OutputDir, "ledger.jsonl")
	res, err := New(newFakeHandler(), st).Run(ctx, opts, out)
	require.NoError(t, err)

	run, err := st.GetRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, model.RunModeBaseline, run.Spec.Mode)
	assert.Equal(t, "smoke", run.Spec.Tag)
	assert.Equal(t, out, run.Spec.OutputPath)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 3, run.Summary.Records)
}

func TestRun_LedgerFailOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	st, err := store.Open(ctx, config.StoreConfig{Driver: store.DriverSQLite, DatabaseURL: filepath.Join(t.TempDir(), "runs.db")})
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck

	opts := testOptions(t)
	out := filepath.Join(opts.OutputDir, "cancel.jsonl")
	h := newFakeHandler()
	h.cancelAt = 1
	h.cancel = cancel

	_, err = New(h, st).Run(ctx, opts, out)
	require.Error(t, err)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, model.RunStatusFailed, runs[0].Status)
	assert.NotEmpty(t, runs[0].Error)

	// Question 0 finished before the cancel; nothing after it was written.
	assert.Len(t, readOutput(t, out), 1)
}

func TestRun_Validation(t *testing.T) {
	opts := testOptions(t)
	opts.Dataset = "BioASQ"
	_, err := New(newFakeHandler(), nil).Run(context.Background(), opts, filepath.Join(opts.OutputDir, "x.jsonl"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dataset_name=BioASQ")
}
