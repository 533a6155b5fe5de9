package scoring

import (
	"fmt"
	"io"

	"github.com/sells-group/medrag-cli/internal/model"
)

// Comparison pairs two runs over the question indices they share.
type Comparison struct {
	Shared    int     `json:"shared"`
	BothRight int     `json:"both_correct"`
	BothWrong int     `json:"both_wrong"`
	OnlyA     int     `json:"only_a_correct"`
	OnlyB     int     `json:"only_b_correct"`
	AccA      float64 `json:"acc_a"`
	AccB      float64 `json:"acc_b"`

	// Flipped lists indices where exactly one run was correct.
	GainedIdx []int `json:"gained_idx"`
	LostIdx   []int `json:"lost_idx"`
}

// Compare matches predictions by idx. For duplicate indices the last record
// of each run wins. A is usually the baseline and B the evidence run, so
// GainedIdx holds the questions B fixed.
func Compare(a, b []model.Prediction) Comparison {
	byIdx := make(map[int]bool, len(a))
	for _, p := range a {
		byIdx[p.Idx] = IsCorrect(p.PredAnswer, p.GoldAnswer)
	}
	bByIdx := make(map[int]bool, len(b))
	order := make([]int, 0, len(b))
	for _, p := range b {
		if _, seen := bByIdx[p.Idx]; !seen {
			order = append(order, p.Idx)
		}
		bByIdx[p.Idx] = IsCorrect(p.PredAnswer, p.GoldAnswer)
	}

	c := Comparison{GainedIdx: []int{}, LostIdx: []int{}}
	var rightA, rightB int
	for _, idx := range order {
		okA, shared := byIdx[idx]
		if !shared {
			continue
		}
		okB := bByIdx[idx]
		c.Shared++
		if okA {
			rightA++
		}
		if okB {
			rightB++
		}
		switch {
		case okA && okB:
			c.BothRight++
		case !okA && !okB:
			c.BothWrong++
		case okA:
			c.OnlyA++
			c.LostIdx = append(c.LostIdx, idx)
		default:
			c.OnlyB++
			c.GainedIdx = append(c.GainedIdx, idx)
		}
	}
	if c.Shared > 0 {
		c.AccA = float64(rightA) / float64(c.Shared)
		c.AccB = float64(rightB) / float64(c.Shared)
	}
	return c
}

// WriteText prints the comparison in the same style as Report.WriteText.
func (c Comparison) WriteText(w io.Writer) error {
	_, err := fmt.Fprintf(w,
		"[compare] shared=%d acc_a=%.4f acc_b=%.4f both=%d neither=%d only_a=%d only_b=%d\n",
		c.Shared, c.AccA, c.AccB, c.BothRight, c.BothWrong, c.OnlyA, c.OnlyB)
	return err
}
