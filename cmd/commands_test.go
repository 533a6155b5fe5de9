package main

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medrag-cli/internal/dataset"
	"github.com/sells-group/medrag-cli/internal/llm"
	"github.com/sells-group/medrag-cli/internal/model"
)

const predLines = `{"idx":0,"pred_answer":"A","gold_answer":"A","meta_info":"step1","raw_output":"Option: A"}
{"idx":1,"pred_answer":"B","gold_answer":"A","meta_info":"step2&3","raw_output":"Option: B"}
{"idx":2,"pred_answer":"C","gold_answer":"C","meta_info":"step2&3","raw_output":"Option: C"}
`

const datasetLines = `{"question":"Which drug prevents clots?","options":{"A":"Heparin","B":"Insulin"},"answer":"Heparin","answer_idx":"A","meta_info":"step1"}
{"question":"What lowers glucose?","options":{"A":"Insulin","B":"Heparin"},"answer":"Insulin","answer_idx":"A","meta_info":"step2&3"}
`

func TestEvalCommand(t *testing.T) {
	dir := t.TempDir()
	pred := writeFile(t, dir, "pred.jsonl", predLines)

	out, err := execute(t, "eval", "--pred-file", pred)
	require.NoError(t, err)
	assert.Equal(t, "[overall] n=3 acc=0.6667\n[step1] n=1 acc=1.0000\n[step2&3] n=2 acc=0.5000\n", out)
}

func TestEvalCommand_CompareAndExport(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jsonl", predLines)
	b := writeFile(t, dir, "b.jsonl", strings.Replace(predLines, `"pred_answer":"B"`, `"pred_answer":"A"`, 1))
	xlsxPath := filepath.Join(dir, "scores.xlsx")

	out, err := execute(t, "eval", "--pred-file", a, "--compare", b, "--xlsx", xlsxPath)
	require.NoError(t, err)
	assert.Contains(t, out, "[file] "+b)
	assert.Contains(t, out, "only_b=1")
	assert.FileExists(t, xlsxPath)
}

func TestEvalCommand_RequiresPredFile(t *testing.T) {
	_, err := execute(t, "eval")
	require.Error(t, err)
}

func TestSubsetCommand_DryRun(t *testing.T) {
	dir := t.TempDir()
	in := writeFile(t, dir, "test.jsonl", datasetLines)

	out, err := execute(t, "subset", "--input-jsonl", in, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, `"output_jsonl":null`)
	assert.Contains(t, out, `"meta_value":"step2&3"`)
	assert.Contains(t, out, `"rows_kept":1`)
	assert.NoFileExists(t, filepath.Join(dir, "test.step2_3.jsonl"))
}

func TestRunCommand_DryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "test.jsonl", datasetLines)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "run", "--dry-run", "--dataset-dir", dir, "--output-dir", outDir, "--end-pos", "-1", "--run-tag", "smoke")
	require.NoError(t, err)

	path := strings.TrimSpace(out)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "chatgpt-smoke-s0-eall-"), path)
	preds, err := dataset.LoadPredictions(path)
	require.NoError(t, err)
	require.Len(t, preds, 2)
	assert.Equal(t, "DRY_RUN", preds[0].RawOutput)
	assert.FileExists(t, strings.TrimSuffix(path, ".jsonl")+".log")
}

func TestRunCommand_InvalidDataset(t *testing.T) {
	_, err := execute(t, "run", "--dry-run", "--dataset-name", "BioASQ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported dataset_name=BioASQ")
}

func writeEvidencePair(t *testing.T) (dir, ds, ev string) {
	t.Helper()
	dir = t.TempDir()
	ds = writeFile(t, dir, "test.jsonl", datasetLines)
	clean := strings.Repeat("Heparin potentiates antithrombin and is used for anticoagulation in many settings. ", 2)
	recs := []*model.EvidenceRecord{
		model.NewEvidenceRecord([]string{clean, "Answer: A"}),
		model.NewEvidenceRecord([]string{clean}),
	}
	ev = filepath.Join(dir, "evidence.json")
	require.NoError(t, dataset.WriteEvidence(ev, recs))
	return dir, ds, ev
}

func TestEvidenceFilterCommand(t *testing.T) {
	dir, ds, ev := writeEvidencePair(t)
	outPath := filepath.Join(dir, "filtered.json")

	out, err := execute(t, "evidence", "filter", "--dataset-jsonl", ds, "--evidence-json", ev, "--out-json", outPath)
	require.NoError(t, err)
	assert.Contains(t, out, "[done] wrote "+outPath)
	assert.Contains(t, out, "[stats] kept_snips=2 dropped_snips=1")
	assert.Contains(t, out, "  - answer_header: 1")

	recs, err := dataset.LoadEvidence(outPath)
	require.NoError(t, err)
	assert.Len(t, recs[0].Snippets(), 1)

	_, err = execute(t, "evidence", "filter", "--dataset-jsonl", ds, "--evidence-json", ev, "--out-json", outPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Pass --overwrite")
}

func TestEvidenceFilterCommand_WarnsOnceOnLengthMismatch(t *testing.T) {
	dir, ds, _ := writeEvidencePair(t)
	clean := strings.Repeat("Heparin potentiates antithrombin and is used for anticoagulation in many settings. ", 2)
	ev := filepath.Join(dir, "long.json")
	require.NoError(t, dataset.WriteEvidence(ev, []*model.EvidenceRecord{
		model.NewEvidenceRecord([]string{clean}),
		model.NewEvidenceRecord([]string{clean}),
		model.NewEvidenceRecord([]string{clean}),
	}))

	out, err := execute(t, "evidence", "filter", "--dataset-jsonl", ds, "--evidence-json", ev,
		"--out-json", filepath.Join(dir, "out.json"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "length mismatch"))
	assert.Contains(t, out, "[warn] length mismatch: dataset=2 evidence=3")
}

func TestEvidenceAuditCommand(t *testing.T) {
	dir, ds, ev := writeEvidencePair(t)
	pred := writeFile(t, dir, "pred.jsonl", `{"idx":1}`+"\n")
	report := filepath.Join(dir, "audit.yaml")

	out, err := execute(t, "evidence", "audit", "--dataset-jsonl", ds, "--evidence-json", ev, "--report", report)
	require.NoError(t, err)
	assert.Contains(t, out, "[scope] auditing full overlap n=2")
	assert.Contains(t, out, "artifact_rate=0.5000 (1/2)")
	assert.FileExists(t, report)

	out, err = execute(t, "evidence", "audit", "--dataset-jsonl", ds, "--evidence-json", ev, "--pred-jsonl", pred)
	require.NoError(t, err)
	assert.Contains(t, out, "[scope] auditing n=1 indices from pred_jsonl")
	assert.Contains(t, out, "artifact_rate=0.0000 (0/1)")
}

func TestEvidenceAuditCommand_RejectsNonPositiveTopK(t *testing.T) {
	_, ds, ev := writeEvidencePair(t)
	for _, k := range []string{"0", "-1"} {
		_, err := execute(t, "evidence", "audit", "--dataset-jsonl", ds, "--evidence-json", ev, "--topk", k)
		require.Error(t, err, k)
		assert.Contains(t, err.Error(), "--topk must be > 0")
	}
}

func TestEvidenceVerifyCommand(t *testing.T) {
	_, ds, ev := writeEvidencePair(t)

	out, err := execute(t, "evidence", "verify", "--dataset-jsonl", ds, "--evidence-json", ev)
	require.NoError(t, err)
	assert.Contains(t, out, `"ok": true`)

	// Question text is absent from these records, so the check fails.
	out, err = execute(t, "evidence", "verify", "--dataset-jsonl", ds, "--evidence-json", ev, "--check-question-text")
	require.Error(t, err)
	assert.Contains(t, out, `"missing_question_text_count": 2`)
	assert.Equal(t, 2, exitCode(err))
}

func TestEvidenceSpotCommand(t *testing.T) {
	_, ds, ev := writeEvidencePair(t)

	out, err := execute(t, "evidence", "spot", "--dataset-jsonl", ds, "--evidence-json", ev, "--indices", "0,5")
	require.NoError(t, err)
	assert.Contains(t, out, "[len] OK")
	assert.Contains(t, out, "[idx=0] question_in_evidence_input=FAIL")
	assert.Contains(t, out, "[idx=0] qa_artifacts_in_top5=YES (hits=1)")
	assert.Contains(t, out, "[idx=5] SKIP: out of range")
}

func TestCheckCommand_MissingCredentials(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("MEDRAG_OPENAI_KEY", "")
	t.Setenv("OPENAI_MODEL_NAME", "")
	t.Setenv("MEDRAG_OPENAI_MODEL", "")

	out, err := execute(t, "check", "--provider", "openai")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
	assert.Contains(t, out, "[fail] ")
	assert.Contains(t, out, "Missing OPENAI_API_KEY")
}

type stubProvider struct {
	resp *llm.ChatResponse
	err  error
	req  llm.ChatRequest
}

func (s *stubProvider) Name() string  { return "openai" }
func (s *stubProvider) Model() string { return "gpt-4o-mini" }
func (s *stubProvider) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.req = req
	return s.resp, s.err
}

func TestCheckProvider(t *testing.T) {
	p := &stubProvider{resp: &llm.ChatResponse{ID: "chatcmpl-1", Text: "K", HasContent: true}}
	var b strings.Builder

	code := checkProvider(context.Background(), &b, p)

	assert.Equal(t, 0, code)
	assert.Equal(t, "[ok] openai connection good\n  model=\"gpt-4o-mini\"\n  response_id=chatcmpl-1\n  sample=\"K\"\n", b.String())
	assert.Equal(t, 1, p.req.MaxTokens)
	assert.Equal(t, "You are a connectivity test.", p.req.System)
	assert.Equal(t, "Reply with one character.", p.req.User)
	assert.Zero(t, p.req.Temperature)
}

func TestCheckProvider_Failure(t *testing.T) {
	p := &stubProvider{err: errors.New("401 unauthorized")}
	var b strings.Builder

	code := checkProvider(context.Background(), &b, p)

	assert.Equal(t, 1, code)
	assert.Contains(t, b.String(), "[fail] openai chat call failed")
	assert.Contains(t, b.String(), "error=401 unauthorized")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 5))
	assert.Equal(t, "ab...", clip("abcd", 2))
	assert.Equal(t, "é...", clip("éé", 1))
}
