package evidence

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medrag-cli/internal/model"
)

// Filter modes understood by FormatContext.
const (
	FilterOff          = "off"
	FilterArtifactOnly = "artifact_only"
)

// FormatConfig controls how a record's snippets become prompt context.
type FormatConfig struct {
	TopK         int
	MaxChars     int
	MinSnipChars int
	FilterMode   string
}

// DefaultFormatConfig returns the injection policy used by RAG runs.
func DefaultFormatConfig() FormatConfig {
	return FormatConfig{TopK: 5, MaxChars: 2500, MinSnipChars: 80, FilterMode: FilterArtifactOnly}
}

// Params converts the config to its logged form.
func (c FormatConfig) Params() *model.EvidenceParams {
	return &model.EvidenceParams{
		TopK:         c.TopK,
		MaxChars:     c.MaxChars,
		MinSnipChars: c.MinSnipChars,
		FilterMode:   c.FilterMode,
	}
}

// Validate rejects unknown filter modes.
func (c FormatConfig) Validate() error {
	switch c.FilterMode {
	case FilterOff, FilterArtifactOnly:
		return nil
	default:
		return eris.Errorf("evidence: unknown filter mode %q (want off or artifact_only)", c.FilterMode)
	}
}

// FormatContext renders the usable snippets of rec as numbered lines
// "[E1] ...", "[E2] ...", capped at MaxChars. It returns "" when nothing
// survives.
func FormatContext(rec *model.EvidenceRecord, cfg FormatConfig) string {
	snips := topK(rec.Snippets(), cfg.TopK)

	kept := make([]string, 0, len(snips))
	for _, s := range snips {
		if shouldDrop(s, cfg) {
			continue
		}
		kept = append(kept, normWS(s))
	}
	if len(kept) == 0 {
		return ""
	}

	lines := make([]string, 0, len(kept))
	total := 0
	for i, s := range kept {
		line := fmt.Sprintf("[E%d] %s", i+1, s)
		n := runeLen(line) + 1
		if total+n > cfg.MaxChars {
			break
		}
		lines = append(lines, line)
		total += n
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func shouldDrop(s string, cfg FormatConfig) bool {
	if runeLen(normWS(s)) < cfg.MinSnipChars {
		return true
	}
	if cfg.FilterMode == FilterOff {
		return false
	}
	return hasArtifact(s, true)
}
