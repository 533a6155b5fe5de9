package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunMode distinguishes the baseline pipeline from the evidence-augmented one.
type RunMode string

const (
	RunModeBaseline RunMode = "baseline"
	RunModeRAG      RunMode = "rag"
	RunModeDryRun   RunMode = "dry_run"
)

// RunSpec describes what a run was asked to do.
type RunSpec struct {
	Label        string          `json:"label"`
	Tag          string          `json:"tag,omitempty"`
	Provider     string          `json:"provider"`
	Model        string          `json:"model,omitempty"`
	Dataset      string          `json:"dataset"`
	Mode         RunMode         `json:"mode"`
	StartPos     int             `json:"start_pos"`
	EndPos       int             `json:"end_pos"`
	OutputPath   string          `json:"output_path"`
	EvidencePath string          `json:"evidence_path,omitempty"`
	Evidence     *EvidenceParams `json:"evidence,omitempty"`
}

// RunSummary holds the final counters of a run.
type RunSummary struct {
	Records          int     `json:"records"`
	EvidenceInjected int     `json:"evidence_injected"`
	Calls            int64   `json:"calls"`
	FailedCalls      int64   `json:"failed_calls"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	TotalTokens      int64   `json:"total_tokens"`
	WallSeconds      float64 `json:"wall_seconds"`
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
}

// Run is a ledger entry for one invocation of the run command.
type Run struct {
	ID        string      `json:"id"`
	Spec      RunSpec     `json:"spec"`
	Status    RunStatus   `json:"status"`
	Summary   *RunSummary `json:"summary,omitempty"`
	Error     string      `json:"error,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
