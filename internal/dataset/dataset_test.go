package dataset

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/medrag-cli/internal/model"
)

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadQuestions(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "test.jsonl",
		`{"question":"Q1","answer":"Heparin","options":{"A":"Heparin","B":"Aspirin"},"meta_info":"step1"}`+"\n\n"+
			`{"question":"Q2","answer":"yes","options":""}`+"\n")

	qs, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.Equal(t, "Q1", qs[0].Question)
	assert.Equal(t, `"step1"`, string(qs[0].MetaInfo))
	assert.Empty(t, qs[1].Options)
}

func TestLoadQuestions_ObjectMetaInfo(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "test.jsonl",
		`{"question":"Q1","answer":"a","options":{"A":"a"},"meta_info":"step1"}`+"\n"+
			`{"question":"Q2","answer":"a","options":{"A":"a"},"meta_info":{"subject":"Anatomy"}}`+"\n")

	qs, err := LoadQuestions(path)
	require.NoError(t, err)
	require.Len(t, qs, 2)
	assert.JSONEq(t, `{"subject":"Anatomy"}`, string(qs[1].MetaInfo))
}

func TestReadJSONL_InvalidLine(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "bad.jsonl", "{\"idx\":0}\n\n{not json}\n")

	_, err := ReadJSONL[map[string]any](path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JSONL at "+path+":3")
}

func TestReadJSONL_MissingFile(t *testing.T) {
	_, err := ReadJSONL[map[string]any](filepath.Join(t.TempDir(), "nope.jsonl"))
	require.Error(t, err)
}

func TestLoadPredictions(t *testing.T) {
	dir := t.TempDir()
	path := writeTestFile(t, dir, "out.jsonl",
		`{"idx":3,"pred_answer":"B","gold_answer":"B","meta_info":"step2&3","raw_output":"x"}`+"\n")

	preds, err := LoadPredictions(path)
	require.NoError(t, err)
	require.Len(t, preds, 1)
	assert.Equal(t, 3, preds[0].Idx)
	assert.Equal(t, "step2&3", preds[0].MetaKey())
}

func TestOpenSplit(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "MedQA", "test.jsonl"), OpenSplit(filepath.Join("data", "MedQA"), "test"))
}

func TestAppendJSONL(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.jsonl")

	w, err := AppendJSONL(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]string{"a": "<b>"}))
	require.NoError(t, w.Close())

	w, err = AppendJSONL(path)
	require.NoError(t, err)
	require.NoError(t, w.Write(map[string]int{"n": 2}))
	require.NoError(t, w.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "{\"a\":\"<b>\"}\n{\"n\":2}\n", string(data))
}

func TestDecodeEvidence(t *testing.T) {
	recs, err := DecodeEvidence(strings.NewReader(`[{"evidence":["a"]}, "junk", {"evidence":[]}]`))
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, []string{"a"}, recs[0].Snippets())
	assert.True(t, recs[1].Empty())
}

func TestDecodeEvidence_NotList(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{name: "object", in: `{"evidence":[]}`},
		{name: "empty", in: ``},
		{name: "string", in: `"x"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEvidence(strings.NewReader(tt.in))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "evidence JSON must be a list")
		})
	}
}

func TestWriteEvidence_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "filtered.json")

	rec := model.NewEvidenceRecord([]string{"café <b>"})
	require.NoError(t, WriteEvidence(path, []*model.EvidenceRecord{rec}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "[\n  {\n    \"evidence\": [\n      \"café <b>\"\n    ]\n  }\n]", string(data))

	loaded, err := LoadEvidence(path)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, []string{"café <b>"}, loaded[0].Snippets())
}

func TestDefaultSubsetPath(t *testing.T) {
	tests := []struct {
		in, meta, want string
	}{
		{in: filepath.Join("d", "test.jsonl"), meta: "step2&3", want: filepath.Join("d", "test.step2_3.jsonl")},
		{in: filepath.Join("d", "test.txt"), meta: "step1", want: filepath.Join("d", "test.txt.step1.jsonl")},
		{in: "dev.jsonl", meta: "a b", want: "dev.a_b.jsonl"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, DefaultSubsetPath(tt.in, tt.meta))
		})
	}
}

func TestSubset(t *testing.T) {
	dir := t.TempDir()
	in := writeTestFile(t, dir, "test.jsonl", strings.Join([]string{
		`{"question": "Q1", "meta_info": "step2&3"}`,
		`{"question":"Q2","meta_info":"step1"}`,
		``,
		`{broken`,
		`{"question":"Q3","meta_info":"step2&3","options":{"A":"x"}}`,
	}, "\n"))

	res, err := Subset(in, "", "", false)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Total)
	assert.Equal(t, 2, res.Kept)
	assert.Equal(t, 2, res.Dropped)
	assert.Equal(t, 1, res.BadJSON)
	require.NotNil(t, res.OutputJSONL)

	out := filepath.Join(dir, "test.step2_3.jsonl")
	assert.Equal(t, out, *res.OutputJSONL)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t,
		`{"question":"Q1","meta_info":"step2&3"}`+"\n"+
			`{"question":"Q3","meta_info":"step2&3","options":{"A":"x"}}`+"\n",
		string(data))
}

func TestSubset_DryRun(t *testing.T) {
	dir := t.TempDir()
	in := writeTestFile(t, dir, "test.jsonl", `{"meta_info":"step1"}`+"\n")
	out := filepath.Join(dir, "out.jsonl")

	res, err := Subset(in, out, "step1", true)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Kept)
	assert.Nil(t, res.OutputJSONL)
	_, err = os.Stat(out)
	assert.True(t, os.IsNotExist(err))

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"output_jsonl":null`)
}

func TestSubset_MissingInput(t *testing.T) {
	_, err := Subset(filepath.Join(t.TempDir(), "missing.jsonl"), "", "", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "input_jsonl not found")
}
