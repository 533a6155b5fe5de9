package dataset

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
)

// ErrEvidenceNotList is returned when an evidence cache is not a JSON list.
var ErrEvidenceNotList = eris.New("evidence JSON must be a list")

// LoadEvidence reads an evidence cache. Element i corresponds to dataset
// row i, so non-object elements are kept as empty records.
func LoadEvidence(path string) ([]*model.EvidenceRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: open evidence %s", path)
	}
	defer f.Close() //nolint:errcheck

	recs, err := DecodeEvidence(f)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: load evidence %s", path)
	}
	return recs, nil
}

// DecodeEvidence streams a JSON list of evidence records from r.
func DecodeEvidence(r io.Reader) ([]*model.EvidenceRecord, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil, ErrEvidenceNotList
		}
		return nil, eris.Wrap(err, "dataset: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, ErrEvidenceNotList
	}

	var out []*model.EvidenceRecord
	for dec.More() {
		rec := &model.EvidenceRecord{}
		if err := dec.Decode(rec); err != nil {
			return nil, eris.Wrapf(err, "dataset: decode evidence element %d", len(out))
		}
		out = append(out, rec)
	}
	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, eris.Wrap(err, "dataset: read closing token")
	}
	return out, nil
}

// WriteEvidence writes records as a 2-space indented JSON list. Non-ASCII and
// HTML characters are written as-is.
func WriteEvidence(path string, recs []*model.EvidenceRecord) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrapf(err, "dataset: create dir for %s", path)
	}
	if recs == nil {
		recs = []*model.EvidenceRecord{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(recs); err != nil {
		return eris.Wrap(err, "dataset: encode evidence")
	}
	if err := os.WriteFile(path, bytes.TrimRight(buf.Bytes(), "\n"), 0o644); err != nil {
		return eris.Wrapf(err, "dataset: write evidence %s", path)
	}
	return nil
}
