package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
)

// maxLineBytes bounds a single JSONL line. PubMedQA rows carry long contexts.
const maxLineBytes = 16 << 20

// ReadJSONL decodes every non-blank line of path into a T.
func ReadJSONL[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	var out []T
	err = scanLines(f, func(lineNo int, line []byte) error {
		var v T
		if err := json.Unmarshal(line, &v); err != nil {
			return eris.Wrapf(err, "invalid JSONL at %s:%d", path, lineNo)
		}
		out = append(out, v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LoadQuestions reads a dataset split.
func LoadQuestions(path string) ([]model.Question, error) {
	return ReadJSONL[model.Question](path)
}

// LoadPredictions reads a run output file.
func LoadPredictions(path string) ([]model.Prediction, error) {
	return ReadJSONL[model.Prediction](path)
}

// OpenSplit returns the JSONL path of a split inside a dataset directory.
func OpenSplit(dir, split string) string {
	return filepath.Join(dir, split+".jsonl")
}

// scanLines calls fn with each trimmed, non-blank line and its 1-based number.
func scanLines(r io.Reader, fn func(lineNo int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(lineNo, line); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return eris.Wrap(err, "dataset: scan lines")
	}
	return nil
}

// JSONLWriter appends JSON objects, one per line, without HTML escaping.
type JSONLWriter struct {
	f   *os.File
	enc *json.Encoder
}

// AppendJSONL opens path for appending, creating it and its parent
// directories as needed.
func AppendJSONL(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "dataset: create dir for %s", path)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open %s", path)
	}
	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	return &JSONLWriter{f: f, enc: enc}, nil
}

// Write encodes v as a single line and flushes it to disk.
func (w *JSONLWriter) Write(v any) error {
	if err := w.enc.Encode(v); err != nil {
		return eris.Wrap(err, "dataset: write jsonl record")
	}
	return nil
}

// Close closes the underlying file.
func (w *JSONLWriter) Close() error {
	return w.f.Close()
}
