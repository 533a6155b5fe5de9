package model

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"
)

// Question is one row of a MedQA-style dataset JSONL file.
type Question struct {
	Question  string  `json:"question"`
	Options   Options `json:"options"`
	Answer    string  `json:"answer"`
	AnswerIdx string  `json:"answer_idx"`
	Context   string  `json:"context,omitempty"`

	// MetaInfo is kept as raw JSON; some datasets carry objects or numbers
	// here and the value is re-emitted verbatim.
	MetaInfo json.RawMessage `json:"meta_info,omitempty"`
}

// HasMeta reports whether the row carries a non-null meta_info.
func (q Question) HasMeta() bool {
	m := bytes.TrimSpace(q.MetaInfo)
	return len(m) > 0 && !bytes.Equal(m, []byte("null"))
}

// Options maps a choice label ("A".."E") to its text. Datasets without
// choices encode options as "" or null; both decode to an empty set.
type Options map[string]string

// UnmarshalJSON accepts an object of label/text pairs, a string, or null.
func (o *Options) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '{' {
		*o = Options{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	out := make(Options, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	*o = out
	return nil
}

// Labels returns the option labels in sorted order.
func (o Options) Labels() []string {
	labels := make([]string, 0, len(o))
	for k := range o {
		labels = append(labels, k)
	}
	sort.Strings(labels)
	return labels
}

// Texts returns option texts ordered by label.
func (o Options) Texts() []string {
	labels := o.Labels()
	out := make([]string, 0, len(labels))
	for _, l := range labels {
		out = append(out, o[l])
	}
	return out
}

// String renders options for prompts as "(A) text (B) text".
func (o Options) String() string {
	var b strings.Builder
	for i, l := range o.Labels() {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("(" + l + ") " + o[l])
	}
	return b.String()
}
