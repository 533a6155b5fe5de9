// Package scoring computes answer accuracy over run output files.
package scoring

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/sells-group/medrag-cli/internal/dataset"
	"github.com/sells-group/medrag-cli/internal/model"
)

// Bucket is the accuracy of one group of records.
type Bucket struct {
	Key     string  `json:"key"`
	N       int     `json:"n"`
	Correct int     `json:"correct"`
	Acc     float64 `json:"acc"`
}

// Report holds overall accuracy and a per-meta_info breakdown sorted by key.
type Report struct {
	File    string   `json:"file,omitempty"`
	Overall Bucket   `json:"overall"`
	ByMeta  []Bucket `json:"by_meta"`
}

// IsCorrect reports whether pred matches gold exactly or contains it after
// trimming. An empty prediction or gold answer never counts; the upstream
// MedAgents eval script scores any non-empty prediction as correct when gold
// is empty, so accuracies can differ on rows without a gold answer.
func IsCorrect(pred, gold string) bool {
	pred = strings.TrimSpace(pred)
	gold = strings.TrimSpace(gold)
	if pred == "" || gold == "" {
		return false
	}
	return pred == gold || strings.Contains(pred, gold)
}

// Score computes accuracy over preds.
func Score(preds []model.Prediction) Report {
	overall := Bucket{Key: "overall"}
	byKey := make(map[string]*Bucket)

	for _, p := range preds {
		key := p.MetaKey()
		b, ok := byKey[key]
		if !ok {
			b = &Bucket{Key: key}
			byKey[key] = b
		}
		overall.N++
		b.N++
		if IsCorrect(p.PredAnswer, p.GoldAnswer) {
			overall.Correct++
			b.Correct++
		}
	}

	r := Report{Overall: finish(overall), ByMeta: make([]Bucket, 0, len(byKey))}
	for _, b := range byKey {
		r.ByMeta = append(r.ByMeta, finish(*b))
	}
	sort.Slice(r.ByMeta, func(i, j int) bool { return r.ByMeta[i].Key < r.ByMeta[j].Key })
	return r
}

func finish(b Bucket) Bucket {
	if b.N > 0 {
		b.Acc = float64(b.Correct) / float64(b.N)
	}
	return b
}

// ScoreFile loads a predictions JSONL file and scores it.
func ScoreFile(path string) (Report, []model.Prediction, error) {
	preds, err := dataset.LoadPredictions(path)
	if err != nil {
		return Report{}, nil, err
	}
	r := Score(preds)
	r.File = path
	return r, preds, nil
}

// WriteText prints "[overall] n=… acc=…" followed by one line per meta key.
func (r Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "[overall] n=%d acc=%.4f\n", r.Overall.N, r.Overall.Acc); err != nil {
		return err
	}
	for _, b := range r.ByMeta {
		if _, err := fmt.Fprintf(w, "[%s] n=%d acc=%.4f\n", b.Key, b.N, b.Acc); err != nil {
			return err
		}
	}
	return nil
}
