package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// EvidenceRecord is one element of a Self-BioRAG-style evidence cache.
// Element i corresponds to dataset row i. Only the "evidence" list is ever
// injected into prompts; every other field is carried through untouched and
// re-emitted in its original key order.
type EvidenceRecord struct {
	fields []rawField
}

type rawField struct {
	Key   string
	Value json.RawMessage
}

// NewEvidenceRecord builds a record holding only an evidence list.
func NewEvidenceRecord(snippets []string) *EvidenceRecord {
	r := &EvidenceRecord{}
	r.SetSnippets(snippets)
	return r
}

// UnmarshalJSON decodes an object while preserving key order. Non-object
// values decode to an empty record so the slot (and dataset alignment) is
// kept.
func (r *EvidenceRecord) UnmarshalJSON(data []byte) error {
	r.fields = nil
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	if _, err := dec.Token(); err != nil {
		return eris.Wrap(err, "evidence: read object start")
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return eris.Wrap(err, "evidence: read key")
		}
		key, ok := tok.(string)
		if !ok {
			return eris.Errorf("evidence: unexpected key token %v", tok)
		}
		var val json.RawMessage
		if err := dec.Decode(&val); err != nil {
			return eris.Wrapf(err, "evidence: decode field %q", key)
		}
		r.set(key, val)
	}
	return nil
}

// MarshalJSON emits the fields in their original order.
func (r EvidenceRecord) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r.fields {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(f.Value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Empty reports whether the record has no fields at all.
func (r *EvidenceRecord) Empty() bool {
	return r == nil || len(r.fields) == 0
}

// Snippets returns the string elements of the "evidence" list. Non-string
// elements are skipped; a missing or non-list field yields nil.
func (r *EvidenceRecord) Snippets() []string {
	raw := r.get("evidence")
	if raw == nil {
		return nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err == nil {
			out = append(out, s)
		}
	}
	return out
}

// SetSnippets replaces the "evidence" list, appending the field if absent.
func (r *EvidenceRecord) SetSnippets(snippets []string) {
	if snippets == nil {
		snippets = []string{}
	}
	raw, _ := marshalNoEscape(snippets)
	r.set("evidence", raw)
}

// InstanceInput returns instances.input. Dumps differ: "instances" is an
// object in some and a list of objects in others (the first one is used).
func (r *EvidenceRecord) InstanceInput() string {
	raw := r.get("instances")
	if raw == nil {
		return ""
	}
	type instance struct {
		Input any `json:"input"`
	}
	var one instance
	if err := json.Unmarshal(raw, &one); err == nil {
		if s, ok := one.Input.(string); ok {
			return s
		}
		return ""
	}
	var many []json.RawMessage
	if err := json.Unmarshal(raw, &many); err != nil || len(many) == 0 {
		return ""
	}
	if err := json.Unmarshal(many[0], &one); err != nil {
		return ""
	}
	if s, ok := one.Input.(string); ok {
		return s
	}
	return ""
}

// Clone returns a shallow copy whose field list can be modified
// independently.
func (r *EvidenceRecord) Clone() *EvidenceRecord {
	if r == nil {
		return &EvidenceRecord{}
	}
	c := &EvidenceRecord{fields: make([]rawField, len(r.fields))}
	copy(c.fields, r.fields)
	return c
}

func (r *EvidenceRecord) get(key string) json.RawMessage {
	if r == nil {
		return nil
	}
	for _, f := range r.fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func (r *EvidenceRecord) set(key string, val json.RawMessage) {
	for i := range r.fields {
		if r.fields[i].Key == key {
			r.fields[i].Value = val
			return
		}
	}
	r.fields = append(r.fields, rawField{Key: key, Value: val})
}

func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
