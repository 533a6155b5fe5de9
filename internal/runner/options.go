package runner

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/evidence"
	"github.com/sells-group/medrag-cli/internal/medagents"
	"github.com/sells-group/medrag-cli/internal/model"
)

// Supported dataset names. Any name containing "MMLU" is accepted as well.
const (
	DatasetMedQA        = "MedQA"
	DatasetPubMedQA     = "PubMedQA"
	DatasetMedMCQA      = "MedMCQA"
	DatasetMedicationQA = "MedicationQA"
)

const maxTagLen = 40

// Options configures a run.
type Options struct {
	// Label names the output file; it need not match the provider model.
	Label      string
	Tag        string
	Provider   string
	Model      string
	Dataset    string
	DatasetDir string
	Split      string
	StartPos   int
	EndPos     int // -1 means the whole dataset
	OutputDir  string

	MaxAttemptVote int
	DryRun         bool
	Concurrency    int

	// EvidencePath enables evidence injection when set (ignored in dry runs).
	EvidencePath string
	Evidence     evidence.FormatConfig
	LogEvidence  bool
}

// DefaultOptions returns the baseline defaults: chatgpt on MedQA test [0, 5).
func DefaultOptions() Options {
	return Options{
		Label:          "chatgpt",
		Dataset:        DatasetMedQA,
		DatasetDir:     "vendor/med_agents/datasets/MedQA/",
		Split:          "test",
		StartPos:       0,
		EndPos:         5,
		OutputDir:      "outputs/MedQA/",
		MaxAttemptVote: medagents.DefaultMaxAttemptVote,
		Concurrency:    1,
		Evidence:       evidence.DefaultFormatConfig(),
	}
}

// Validate checks the options before any file is touched.
func (o Options) Validate() error {
	if !SupportedDataset(o.Dataset) {
		return eris.Errorf("runner: unsupported dataset_name=%s", o.Dataset)
	}
	if o.StartPos < 0 {
		return eris.Errorf("runner: start_pos must be >= 0, got %d", o.StartPos)
	}
	if o.EndPos != -1 && o.EndPos < o.StartPos {
		return eris.Errorf("runner: end_pos %d is before start_pos %d", o.EndPos, o.StartPos)
	}
	if o.Label == "" {
		return eris.New("runner: model_name must not be empty")
	}
	if o.EvidencePath != "" {
		if err := o.Evidence.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Mode classifies the run for the ledger.
func (o Options) Mode() model.RunMode {
	switch {
	case o.DryRun:
		return model.RunModeDryRun
	case o.EvidencePath != "":
		return model.RunModeRAG
	default:
		return model.RunModeBaseline
	}
}

// SupportedDataset reports whether name is a dataset the runner can prepare.
func SupportedDataset(name string) bool {
	switch name {
	case DatasetMedQA, DatasetPubMedQA, DatasetMedMCQA, DatasetMedicationQA:
		return true
	}
	return strings.Contains(name, "MMLU")
}

// SafeTag keeps letters, digits, '-' and '_' and truncates to 40 runes.
func SafeTag(tag string) string {
	var b strings.Builder
	n := 0
	for _, r := range strings.TrimSpace(tag) {
		if n == maxTagLen {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' {
			b.WriteRune(r)
			n++
		}
	}
	return b.String()
}

// OutputPath returns <dir>/<label>[-<tag>]-s<start>-e<end|all>-<ts>.jsonl.
func (o Options) OutputPath(now time.Time) string {
	end := "all"
	if o.EndPos != -1 {
		end = fmt.Sprint(o.EndPos)
	}
	tag := ""
	if t := SafeTag(o.Tag); t != "" {
		tag = "-" + t
	}
	name := fmt.Sprintf("%s%s-s%d-e%s-%s.jsonl", o.Label, tag, o.StartPos, end, now.Format("20060102_150405"))
	return filepath.Join(o.OutputDir, name)
}

// LogPath returns the run log path that sits next to an output file.
func LogPath(outputPath string) string {
	return strings.TrimSuffix(outputPath, filepath.Ext(outputPath)) + ".log"
}

// Spec converts the options to a ledger entry.
func (o Options) Spec(outputPath string) model.RunSpec {
	spec := model.RunSpec{
		Label:      o.Label,
		Tag:        SafeTag(o.Tag),
		Provider:   o.Provider,
		Model:      o.Model,
		Dataset:    o.Dataset,
		Mode:       o.Mode(),
		StartPos:   o.StartPos,
		EndPos:     o.EndPos,
		OutputPath: outputPath,
	}
	if o.EvidencePath != "" && !o.DryRun {
		spec.EvidencePath = o.EvidencePath
		spec.Evidence = o.Evidence.Params()
	}
	return spec
}
