package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// DefaultMetaValue is the MedQA meta_info value for USMLE Step 2&3 questions.
const DefaultMetaValue = "step2&3"

// SubsetResult summarizes a subset extraction.
type SubsetResult struct {
	InputJSONL  string  `json:"input_jsonl"`
	OutputJSONL *string `json:"output_jsonl"`
	MetaValue   string  `json:"meta_value"`
	Total       int     `json:"total_rows_seen"`
	Kept        int     `json:"rows_kept"`
	Dropped     int     `json:"rows_dropped"`
	BadJSON     int     `json:"bad_json_lines"`
}

// DefaultSubsetPath derives "<stem>.<slug>.jsonl" next to the input, where
// slug is metaValue with every non-alphanumeric rune replaced by "_".
func DefaultSubsetPath(in, metaValue string) string {
	slug := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, metaValue)

	dir, base := filepath.Split(in)
	if ext := filepath.Ext(base); ext == ".jsonl" {
		base = strings.TrimSuffix(base, ext)
	}
	return filepath.Join(dir, base+"."+slug+".jsonl")
}

// Subset copies rows of in whose meta_info equals metaValue to out.
// Malformed lines are counted and skipped. With dryRun nothing is written.
func Subset(in, out, metaValue string, dryRun bool) (*SubsetResult, error) {
	if metaValue == "" {
		metaValue = DefaultMetaValue
	}
	if out == "" {
		out = DefaultSubsetPath(in, metaValue)
	}

	src, err := os.Open(in)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Errorf("dataset: input_jsonl not found: %s", in)
		}
		return nil, eris.Wrapf(err, "dataset: open %s", in)
	}
	defer src.Close() //nolint:errcheck

	res := &SubsetResult{InputJSONL: in, MetaValue: metaValue}

	var w *bufio.Writer
	var dst *os.File
	if !dryRun {
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return nil, eris.Wrapf(err, "dataset: create dir for %s", out)
		}
		dst, err = os.Create(out)
		if err != nil {
			return nil, eris.Wrapf(err, "dataset: create %s", out)
		}
		defer dst.Close() //nolint:errcheck
		w = bufio.NewWriter(dst)
		res.OutputJSONL = &out
	}

	err = scanLines(src, func(_ int, line []byte) error {
		res.Total++
		var row struct {
			MetaInfo any `json:"meta_info"`
		}
		if err := json.Unmarshal(line, &row); err != nil {
			res.BadJSON++
			return nil
		}
		if s, ok := row.MetaInfo.(string); !ok || s != metaValue {
			return nil
		}
		res.Kept++
		if w == nil {
			return nil
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, line); err != nil {
			return eris.Wrap(err, "dataset: compact row")
		}
		buf.WriteByte('\n')
		if _, err := w.Write(buf.Bytes()); err != nil {
			return eris.Wrapf(err, "dataset: write %s", out)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if w != nil {
		if err := w.Flush(); err != nil {
			return nil, eris.Wrapf(err, "dataset: flush %s", out)
		}
	}
	res.Dropped = res.Total - res.Kept
	return res, nil
}
