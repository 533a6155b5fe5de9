package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/medrag-cli/internal/dataset"
	"github.com/sells-group/medrag-cli/internal/evidence"
	"github.com/sells-group/medrag-cli/internal/model"
)

const (
	defaultDatasetJSONL = "vendor/med_agents/datasets/MedQA/test.jsonl"
	defaultEvidenceJSON = "data/retrieved_med_qa_test.json"
)

var evidenceCmd = &cobra.Command{
	Use:   "evidence",
	Short: "Filter, audit and verify evidence caches",
	Long:  "Tools for checking that a pre-retrieved evidence cache is aligned with its dataset and does not leak answers.",
}

func loadPair(cmd *cobra.Command) ([]model.Question, []*model.EvidenceRecord, error) {
	dsPath, _ := cmd.Flags().GetString("dataset-jsonl")
	evPath, _ := cmd.Flags().GetString("evidence-json")
	questions, err := dataset.LoadQuestions(dsPath)
	if err != nil {
		return nil, nil, err
	}
	recs, err := dataset.LoadEvidence(evPath)
	if err != nil {
		return nil, nil, err
	}
	return questions, recs, nil
}

// -- evidence filter --

var evidenceFilterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Write a copy of an evidence cache with leaky snippets removed",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		outPath, _ := f.GetString("out-json")
		overwrite, _ := f.GetBool("overwrite")

		fc := evidence.DefaultFilterConfig()
		fc.Mode, _ = f.GetString("mode")
		fc.Disabled, _ = f.GetBool("disable-filter")
		fc.MinSnipChars, _ = f.GetInt("min-snip-chars")
		fc.TopK, _ = f.GetInt("topk")
		if err := fc.Validate(); err != nil {
			return err
		}

		if _, err := os.Stat(outPath); err == nil && !overwrite {
			return eris.Errorf("evidence filter: refusing to overwrite existing %s. Pass --overwrite.", outPath)
		}

		questions, recs, err := loadPair(cmd)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(questions) != len(recs) {
			fmt.Fprintf(w, "[warn] length mismatch: dataset=%d evidence=%d (filter will use min length)\n", len(questions), len(recs))
		}

		filtered, stats := evidence.Filter(questions, recs, fc)
		if err := dataset.WriteEvidence(outPath, filtered); err != nil {
			return err
		}
		fmt.Fprintf(w, "[done] wrote %s\n", outPath)
		writeFilterStats(w, fc, stats)
		return nil
	},
}

func writeFilterStats(w io.Writer, fc evidence.FilterConfig, s evidence.FilterStats) {
	mode := fc.Mode
	if fc.Disabled {
		mode = "disabled"
	}
	_, _ = fmt.Fprintf(w, "[mode] filter=%s\n", mode)
	_, _ = fmt.Fprintf(w, "[stats] kept_snips=%d dropped_snips=%d\n", s.Kept, s.Dropped)
	if top := s.TopReasons(); len(top) > 0 {
		_, _ = fmt.Fprintln(w, "[drop_reasons]")
		for _, rc := range top {
			_, _ = fmt.Fprintf(w, "  - %s: %d\n", rc.Reason, rc.Count)
		}
	}
}

// -- evidence audit --

var evidenceAuditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Measure answer leakage in an evidence cache",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		predPath, _ := f.GetString("pred-jsonl")
		reportPath, _ := f.GetString("report")

		ac := evidence.DefaultAuditConfig()
		ac.TopK, _ = f.GetInt("topk")
		ac.MaxExamples, _ = f.GetInt("max-examples")
		if ac.TopK <= 0 {
			return eris.Errorf("evidence audit: --topk must be > 0, got %d", ac.TopK)
		}

		questions, recs, err := loadPair(cmd)
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		if len(questions) != len(recs) {
			fmt.Fprintf(w, "[warn] length mismatch: dataset=%d evidence=%d (audit will use min length)\n", len(questions), len(recs))
		}

		if predPath != "" {
			rows, err := dataset.ReadJSONL[map[string]any](predPath)
			if err != nil {
				return err
			}
			idxs, err := evidence.PredictionIndices(rows)
			if err != nil {
				return eris.Wrapf(err, "evidence audit: %s", predPath)
			}
			ac.Indices = idxs
			fmt.Fprintf(w, "[scope] auditing n=%d indices from pred_jsonl\n", len(idxs))
		} else {
			fmt.Fprintf(w, "[scope] auditing full overlap n=%d\n", min(len(questions), len(recs)))
		}

		rep := evidence.Audit(questions, recs, ac)
		writeAuditReport(w, rep)

		if reportPath != "" {
			if err := evidence.WriteReport(reportPath, rep); err != nil {
				return err
			}
			fmt.Fprintf(w, "[done] wrote %s\n", reportPath)
		}
		return nil
	},
}

func writeAuditReport(w io.Writer, r evidence.AuditReport) {
	if r.N == 0 {
		_, _ = fmt.Fprintln(w, "[done] nothing to audit")
		return
	}
	_, _ = fmt.Fprintln(w, "[summary]")
	_, _ = fmt.Fprintf(w, "  n=%d topk=%d\n", r.N, r.TopK)
	for _, sig := range evidence.Signals {
		s := r.Signals[sig]
		_, _ = fmt.Fprintf(w, "  %s_rate=%.4f (%d/%d)\n", sig, s.Rate, s.Count, r.N)
	}
	_, _ = fmt.Fprintln(w, "[examples]")
	for _, sig := range evidence.Signals {
		_, _ = fmt.Fprintf(w, "  %s: %v\n", sig, r.Signals[sig].Examples)
	}
	if r.InstanceInputWarning {
		_, _ = fmt.Fprintln(w, "[warn] evidence.instances.input contains QA artifacts (expected for some dumps).")
		_, _ = fmt.Fprintln(w, "       Do NOT inject instances.input into prompts; only use evidence[].")
		_, _ = fmt.Fprintf(w, "       example_hits=%v\n", r.InstanceInputHits)
	}
}

// -- evidence verify --

var evidenceVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check that evidence record i belongs to dataset row i",
	Long:  "Prints a JSON summary and exits 2 when any alignment check fails.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		f := cmd.Flags()
		vc := evidence.DefaultVerifyConfig()
		vc.Limit, _ = f.GetInt("limit")
		vc.RequireNonEmptyEvidence, _ = f.GetBool("require-nonempty-evidence")
		vc.CheckQuestionText, _ = f.GetBool("check-question-text")
		vc.MinQuestionRatio, _ = f.GetFloat64("min-question-ratio")
		vc.ReportTop, _ = f.GetInt("report-top")

		questions, recs, err := loadPair(cmd)
		if err != nil {
			return err
		}
		sum := evidence.VerifyAlignment(questions, recs, vc)
		sum.DatasetJSONL, _ = f.GetString("dataset-jsonl")
		sum.EvidenceJSON, _ = f.GetString("evidence-json")

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetEscapeHTML(false)
		enc.SetIndent("", "  ")
		if err := enc.Encode(sum); err != nil {
			return eris.Wrap(err, "evidence verify: encode summary")
		}
		if !sum.OK {
			return &exitError{code: 2, msg: "evidence verify: alignment checks failed"}
		}
		return nil
	},
}

// -- evidence spot --

var evidenceSpotCmd = &cobra.Command{
	Use:   "spot",
	Short: "Spot-check alignment and artifacts at a few indices",
	RunE: func(cmd *cobra.Command, _ []string) error {
		raw, _ := cmd.Flags().GetString("indices")
		topk, _ := cmd.Flags().GetInt("evidence-topk-check")
		idxs, err := evidence.ParseIndices(raw)
		if err != nil {
			return err
		}
		questions, recs, err := loadPair(cmd)
		if err != nil {
			return err
		}
		writeSpotReport(cmd.OutOrStdout(), evidence.SpotCheck(questions, recs, idxs, topk))
		return nil
	},
}

func writeSpotReport(w io.Writer, r evidence.SpotReport) {
	_, _ = fmt.Fprintf(w, "[len] dataset=%d evidence=%d\n", r.DatasetN, r.EvidenceN)
	if r.LengthMatch {
		_, _ = fmt.Fprintln(w, "[len] OK")
	} else {
		_, _ = fmt.Fprintln(w, "[len] FAIL: dataset and evidence lengths differ")
	}
	for _, res := range r.Results {
		if res.OutOfRange {
			_, _ = fmt.Fprintf(w, "[idx=%d] SKIP: out of range\n", res.Idx)
			continue
		}
		status := "OK"
		if !res.QuestionOK {
			status = "FAIL"
		}
		_, _ = fmt.Fprintf(w, "[idx=%d] question_in_evidence_input=%s\n", res.Idx, status)
		if !res.QuestionOK {
			_, _ = fmt.Fprintf(w, "  dataset.question=%q\n", res.Question)
			_, _ = fmt.Fprintf(w, "  evidence.instances[0].input=%q\n", clip(res.Input, 400))
		}
		found := "NO"
		if res.HitCount > 0 {
			found = "YES"
		}
		_, _ = fmt.Fprintf(w, "[idx=%d] qa_artifacts_in_top%d=%s (hits=%d)\n", res.Idx, r.TopK, found, res.HitCount)
		for _, h := range res.Hits {
			_, _ = fmt.Fprintf(w, "  - snippet[%d] match=%q via /%s/\n", h.Snippet, h.Match, h.Pattern)
		}
	}
}

// clip truncates s to n runes, marking the cut with "...".
func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func init() {
	for _, c := range []*cobra.Command{evidenceFilterCmd, evidenceAuditCmd, evidenceVerifyCmd, evidenceSpotCmd} {
		c.Flags().String("dataset-jsonl", defaultDatasetJSONL, "dataset JSONL (row i is question i)")
		c.Flags().String("evidence-json", defaultEvidenceJSON, "evidence cache JSON list aligned by dataset index")
		evidenceCmd.AddCommand(c)
	}

	ff := evidenceFilterCmd.Flags()
	ff.String("out-json", "data/retrieved_med_qa_test.filtered.json", "filtered evidence cache to write")
	ff.String("mode", evidence.ModeArtifactOnly, "artifact_only or strict (also drops gold and option text)")
	ff.Bool("disable-filter", false, "copy snippets through unchanged; --topk still applies")
	ff.Int("min-snip-chars", 80, "drop snippets shorter than this after normalization")
	ff.Int("topk", -1, "only consider the first K snippets per record when > 0")
	ff.Bool("overwrite", false, "replace an existing --out-json")

	af := evidenceAuditCmd.Flags()
	af.String("pred-jsonl", "", "run output JSONL; audit only its idx values")
	af.Int("topk", 5, "check only the first K snippets per record")
	af.Int("max-examples", 5, "example indices kept per leak type")
	af.String("report", "", "also write the report to this .json or .yaml file")

	vf := evidenceVerifyCmd.Flags()
	vf.Int("limit", -1, "max dataset rows to check; -1 means all")
	vf.Bool("require-nonempty-evidence", false, "treat empty evidence lists as failures")
	vf.Bool("check-question-text", false, "compare dataset questions to instances.input QUESTION: text")
	vf.Float64("min-question-ratio", 0.92, "min similarity for aligned questions")
	vf.Int("report-top", 10, "mismatches included in the summary")

	sf := evidenceSpotCmd.Flags()
	sf.String("indices", evidence.DefaultSpotIndices, "comma-separated dataset indices")
	sf.Int("evidence-topk-check", 5, "snippets checked for QA artifacts")

	rootCmd.AddCommand(evidenceCmd)
}
