package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/medrag-cli/internal/scoring"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Score a run output file",
	Long:  "Prints overall accuracy and accuracy per meta_info value. With --compare, also reports per-question gains and losses against a second output.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		predFile, _ := cmd.Flags().GetString("pred-file")
		comparePath, _ := cmd.Flags().GetString("compare")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		out := cmd.OutOrStdout()

		rep, preds, err := scoring.ScoreFile(predFile)
		if err != nil {
			return err
		}
		if err := rep.WriteText(out); err != nil {
			return eris.Wrap(err, "eval: write report")
		}

		if xlsxPath != "" {
			if err := scoring.ExportXLSX(xlsxPath, rep, preds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "[done] wrote %s\n", xlsxPath)
		}

		if comparePath == "" {
			return nil
		}
		other, otherPreds, err := scoring.ScoreFile(comparePath)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "\n[file] %s\n", comparePath)
		if err := other.WriteText(out); err != nil {
			return eris.Wrap(err, "eval: write report")
		}
		return scoring.Compare(preds, otherPreds).WriteText(out)
	},
}

func init() {
	evalCmd.Flags().String("pred-file", "", "run output JSONL to score")
	evalCmd.Flags().String("compare", "", "second run output JSONL to compare against")
	evalCmd.Flags().String("xlsx", "", "also export the scored predictions to this .xlsx file")
	_ = evalCmd.MarkFlagRequired("pred-file")

	rootCmd.AddCommand(evalCmd)
}
