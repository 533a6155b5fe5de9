package model

import "encoding/json"

// Prediction is one line of a run output JSONL file.
type Prediction struct {
	Idx              int                 `json:"idx"`
	Question         string              `json:"question"`
	Options          Options             `json:"options"`
	PredAnswer       string              `json:"pred_answer"`
	GoldAnswer       string              `json:"gold_answer"`
	MetaInfo         json.RawMessage     `json:"meta_info,omitempty"`
	QuestionDomains  []string            `json:"question_domains,omitempty"`
	OptionDomains    []string            `json:"option_domains,omitempty"`
	QuestionAnalyses map[string]string   `json:"question_analyses,omitempty"`
	OptionAnalyses   map[string]string   `json:"option_analyses,omitempty"`
	SynReport        string              `json:"syn_report,omitempty"`
	VoteHistory      []map[string]string `json:"vote_history,omitempty"`
	RevisionHistory  []map[string]string `json:"revision_history,omitempty"`
	SynRepoHistory   []string            `json:"syn_repo_history,omitempty"`
	RawOutput        string              `json:"raw_output"`

	EvidenceEnabled  *bool           `json:"evidence_enabled,omitempty"`
	EvidenceInjected *bool           `json:"evidence_injected,omitempty"`
	EvidenceJSON     string          `json:"evidence_json,omitempty"`
	EvidenceParams   *EvidenceParams `json:"evidence_params,omitempty"`

	// Candidate is what would be injected for this idx after filtering and
	// truncation; Used is what was actually injected.
	EvidenceCandidate *string `json:"evidence_candidate_context,omitempty"`
	EvidenceUsed      *string `json:"evidence_used_context,omitempty"`
}

// EvidenceParams records the injection policy used for a run.
type EvidenceParams struct {
	TopK         int    `json:"topk"`
	MaxChars     int    `json:"max_chars"`
	MinSnipChars int    `json:"min_snip_chars"`
	FilterMode   string `json:"filter_mode"`
}

// MetaKey returns meta_info when it is a JSON string, otherwise "all".
func (p Prediction) MetaKey() string {
	if len(p.MetaInfo) == 0 {
		return "all"
	}
	var s string
	if err := json.Unmarshal(p.MetaInfo, &s); err != nil {
		return "all"
	}
	return s
}
