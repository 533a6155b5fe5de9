package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/medrag-cli/internal/config"
	"github.com/sells-group/medrag-cli/internal/evidence"
	"github.com/sells-group/medrag-cli/internal/llm"
	"github.com/sells-group/medrag-cli/internal/runner"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the MedAgents pipeline over a dataset slice",
	Long: "Runs the baseline pipeline, or the RAG variant when --evidence-json is given, " +
		"and appends one JSON record per question to a timestamped output file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		opts, err := runOptions(cmd)
		if err != nil {
			return err
		}
		if err := opts.Validate(); err != nil {
			return err
		}

		out := opts.OutputPath(time.Now())
		closeLog, err := config.InitRunLogger(cfg.Log, runner.LogPath(out))
		if err != nil {
			return eris.Wrap(err, "run: init run log")
		}
		defer closeLog()

		var h *llm.Handler
		var rh runner.Handler
		if !opts.DryRun {
			p, err := llm.Select(ctx, cfg, opts.Provider)
			if err != nil {
				return err
			}
			opts.Provider = p.Name()
			opts.Model = p.Model()
			h = llm.NewHandlerFromConfig(p, cfg)
			rh = h
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := runner.New(rh, st).Run(ctx, opts, out)
		if h != nil {
			h.LogSummary()
		}
		if err != nil {
			return err
		}

		zap.L().Info("wrote output", zap.String("path", res.OutputPath), zap.String("run_id", res.RunID))
		fmt.Fprintln(cmd.OutOrStdout(), res.OutputPath)
		return nil
	},
}

// runOptions merges flags over the run section of the config file.
func runOptions(cmd *cobra.Command) (runner.Options, error) {
	f := cmd.Flags()
	opts := runner.DefaultOptions()

	opts.Label, _ = f.GetString("model-name")
	opts.Tag, _ = f.GetString("run-tag")
	opts.Provider, _ = f.GetString("llm-provider")
	opts.Dataset, _ = f.GetString("dataset-name")
	opts.Split, _ = f.GetString("split")
	opts.StartPos, _ = f.GetInt("start-pos")
	opts.EndPos, _ = f.GetInt("end-pos")
	opts.MaxAttemptVote, _ = f.GetInt("max-attempt-vote")
	opts.DryRun, _ = f.GetBool("dry-run")
	opts.EvidencePath, _ = f.GetString("evidence-json")
	opts.LogEvidence, _ = f.GetBool("log-evidence")

	opts.DatasetDir = cfg.Run.DatasetDir
	if f.Changed("dataset-dir") || opts.DatasetDir == "" {
		opts.DatasetDir, _ = f.GetString("dataset-dir")
	}
	opts.OutputDir = cfg.Run.OutputDir
	if f.Changed("output-dir") || opts.OutputDir == "" {
		opts.OutputDir, _ = f.GetString("output-dir")
	}
	opts.Concurrency = cfg.Run.Concurrency
	if f.Changed("concurrency") || opts.Concurrency <= 0 {
		opts.Concurrency, _ = f.GetInt("concurrency")
	}

	ev := evidence.DefaultFormatConfig()
	ev.TopK, _ = f.GetInt("evidence-topk")
	ev.MaxChars, _ = f.GetInt("evidence-max-chars")
	ev.MinSnipChars, _ = f.GetInt("evidence-min-snip-chars")
	ev.FilterMode, _ = f.GetString("evidence-filter-mode")
	opts.Evidence = ev

	if opts.Concurrency < 1 {
		return opts, eris.Errorf("run: concurrency must be >= 1, got %d", opts.Concurrency)
	}
	return opts, nil
}

func init() {
	d := runner.DefaultOptions()
	ev := evidence.DefaultFormatConfig()

	f := runCmd.Flags()
	f.String("model-name", d.Label, "label used in the output file name")
	f.String("run-tag", "", "optional tag appended to the output file name")
	f.String("llm-provider", "", "LLM provider (openai, anthropic, gemini); defaults to llm.provider")
	f.String("dataset-name", d.Dataset, "MedQA, PubMedQA, MedMCQA, MedicationQA or MMLU*")
	f.String("dataset-dir", d.DatasetDir, "directory holding <split>.jsonl")
	f.String("split", "test", "dataset split file name without extension")
	f.Int("start-pos", d.StartPos, "first dataset index to run")
	f.Int("end-pos", d.EndPos, "end dataset index, exclusive; -1 means full dataset")
	f.String("output-dir", d.OutputDir, "directory for output JSONL and log files")
	f.Int("max-attempt-vote", d.MaxAttemptVote, "maximum consultation rounds")
	f.Bool("dry-run", false, "write stub records without calling the model")
	f.Int("concurrency", 1, "questions processed in parallel")
	f.String("evidence-json", "", "evidence cache JSON; enables the RAG variant")
	f.Int("evidence-topk", ev.TopK, "snippets considered per question")
	f.Int("evidence-max-chars", ev.MaxChars, "maximum characters of injected evidence")
	f.String("evidence-filter-mode", ev.FilterMode, "runtime snippet filter: off or artifact_only")
	f.Int("evidence-min-snip-chars", ev.MinSnipChars, "drop snippets shorter than this after normalization")
	f.Bool("log-evidence", false, "record evidence parameters and contexts in each output record")

	rootCmd.AddCommand(runCmd)
}
