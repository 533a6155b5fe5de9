package scoring

import (
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/medrag-cli/internal/model"
)

var predictionColumns = []string{"idx", "meta_info", "gold_answer", "pred_answer", "correct", "question"}

// ExportXLSX writes a workbook with a "summary" sheet (one row per bucket)
// and a "predictions" sheet (one row per record).
func ExportXLSX(path string, r Report, preds []model.Prediction) error {
	f := xlsx.NewFile()

	summary, err := f.AddSheet("summary")
	if err != nil {
		return eris.Wrap(err, "scoring: add summary sheet")
	}
	addStrings(summary.AddRow(), "group", "n", "correct", "acc")
	for _, b := range append([]Bucket{r.Overall}, r.ByMeta...) {
		row := summary.AddRow()
		row.AddCell().SetString(b.Key)
		row.AddCell().SetInt(b.N)
		row.AddCell().SetInt(b.Correct)
		row.AddCell().SetFloatWithFormat(b.Acc, "0.0000")
	}

	sheet, err := f.AddSheet("predictions")
	if err != nil {
		return eris.Wrap(err, "scoring: add predictions sheet")
	}
	addStrings(sheet.AddRow(), predictionColumns...)
	for _, p := range preds {
		row := sheet.AddRow()
		row.AddCell().SetInt(p.Idx)
		row.AddCell().SetString(p.MetaKey())
		row.AddCell().SetString(p.GoldAnswer)
		row.AddCell().SetString(p.PredAnswer)
		row.AddCell().SetBool(IsCorrect(p.PredAnswer, p.GoldAnswer))
		row.AddCell().SetString(p.Question)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return eris.Wrapf(err, "scoring: create dir %s", dir)
		}
	}
	return eris.Wrapf(f.Save(path), "scoring: save %s", path)
}

func addStrings(row *xlsx.Row, vals ...string) {
	for _, v := range vals {
		row.AddCell().SetString(v)
	}
}
