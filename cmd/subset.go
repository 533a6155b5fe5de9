package main

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/sells-group/medrag-cli/internal/dataset"
)

var subsetCmd = &cobra.Command{
	Use:   "subset",
	Short: "Keep dataset rows with a given meta_info value",
	RunE: func(cmd *cobra.Command, _ []string) error {
		in, _ := cmd.Flags().GetString("input-jsonl")
		out, _ := cmd.Flags().GetString("output-jsonl")
		meta, _ := cmd.Flags().GetString("meta-value")
		dry, _ := cmd.Flags().GetBool("dry-run")

		res, err := dataset.Subset(in, out, meta, dry)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		return enc.Encode(res)
	},
}

func init() {
	subsetCmd.Flags().String("input-jsonl", "vendor/med_agents/datasets/MedQA/test.jsonl", "dataset JSONL to read")
	subsetCmd.Flags().String("output-jsonl", "", "output path (defaults to <input>.<meta>.jsonl)")
	subsetCmd.Flags().String("meta-value", dataset.DefaultMetaValue, "keep rows whose meta_info equals this")
	subsetCmd.Flags().Bool("dry-run", false, "only print counts")

	rootCmd.AddCommand(subsetCmd)
}
