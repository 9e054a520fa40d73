// Package models defines the domain types for the contract hub.
package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContractRecord is the persisted form of one extracted contract.
// Filename is the primary key.
type ContractRecord struct {
	Filename        string      `json:"filename"`
	DocumentType    string      `json:"document_type,omitempty"`
	Processed       string      `json:"processed,omitempty"`
	ContractData    Document    `json:"contract_data"`
	Confidence      *float64    `json:"confidence,omitempty"`
	ManuallyEdited  bool        `json:"manually_edited"`
	Edited          *EditStamp  `json:"edited,omitempty"`
	EditHistory     []EditEntry `json:"edit_history"`
	WhisePushed     bool        `json:"whise_pushed"`
	WhisePushedAt   *time.Time  `json:"whise_pushed_at,omitempty"`
	WhisePushManual bool        `json:"whise_push_manual"`
	PDFPath         string      `json:"pdf_path,omitempty"`
}

// EditStamp records the most recent manual edit.
type EditStamp struct {
	Timestamp time.Time `json:"timestamp"`
	Editor    string    `json:"editor"`
}

// EditEntry is one immutable audit record appended on every update.
type EditEntry struct {
	Timestamp time.Time              `json:"timestamp"`
	Editor    string                 `json:"editor"`
	Changes   map[string]FieldChange `json:"changes"`
}

// FieldChange holds the before and after value of a single dotted field path.
type FieldChange struct {
	From any `json:"from"`
	To   any `json:"to"`
}

// Clone returns a deep copy of the record. Edit entries are shared by value;
// their change maps are never mutated after being appended.
func (r *ContractRecord) Clone() *ContractRecord {
	out := *r
	out.ContractData = r.ContractData.Clone()
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	if r.Edited != nil {
		e := *r.Edited
		out.Edited = &e
	}
	if r.WhisePushedAt != nil {
		t := *r.WhisePushedAt
		out.WhisePushedAt = &t
	}
	out.EditHistory = append([]EditEntry(nil), r.EditHistory...)
	return &out
}

// DecodeRecord parses a persisted record. Numbers inside contract_data are
// kept as json.Number so that integers survive a round trip unchanged.
func DecodeRecord(data []byte) (*ContractRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rec ContractRecord
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("models: decode record: %w", err)
	}
	if rec.ContractData == nil {
		rec.ContractData = Document{}
	}
	return &rec, nil
}

// EncodeRecord serialises a record in its persisted form.
func EncodeRecord(rec *ContractRecord) ([]byte, error) {
	if rec.EditHistory == nil {
		rec.EditHistory = []EditEntry{}
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("models: encode record: %w", err)
	}
	return append(data, '\n'), nil
}

// Document is the nested contract_data tree: section name -> section object.
// Sections are expected to be JSON objects but are not required to be;
// accessors report absence instead of failing.
type Document map[string]any

// FieldPath addresses one field inside one section, e.g. financieel.huurprijs.
type FieldPath struct {
	Section string
	Field   string
}

// ParseFieldPath splits a dotted path at its first dot.
func ParseFieldPath(s string) (FieldPath, error) {
	section, field, ok := strings.Cut(s, ".")
	if !ok || section == "" || field == "" {
		return FieldPath{}, fmt.Errorf("models: invalid field path %q", s)
	}
	return FieldPath{Section: section, Field: field}, nil
}

// MustFieldPath is ParseFieldPath for compile-time constant paths.
func MustFieldPath(s string) FieldPath {
	p, err := ParseFieldPath(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p FieldPath) String() string {
	return p.Section + "." + p.Field
}

// Section returns the named section when it is a JSON object.
func (d Document) Section(name string) (map[string]any, bool) {
	raw, ok := d[name]
	if !ok {
		return nil, false
	}
	sec, ok := raw.(map[string]any)
	return sec, ok
}

// Lookup returns the value stored at p.
func (d Document) Lookup(p FieldPath) (any, bool) {
	sec, ok := d.Section(p.Section)
	if !ok {
		return nil, false
	}
	v, ok := sec[p.Field]
	return v, ok
}

// String returns the value at p as a trimmed, non-empty string.
func (d Document) String(p FieldPath) (string, bool) {
	v, ok := d.Lookup(p)
	if !ok || v == nil {
		return "", false
	}
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case json.Number:
		s = t.String()
	case float64, int, int64, bool:
		s = fmt.Sprint(t)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Set stores v at p, replacing a missing or non-object section with a new one.
func (d Document) Set(p FieldPath, v any) {
	sec, ok := d.Section(p.Section)
	if !ok {
		sec = map[string]any{}
		d[p.Section] = sec
	}
	sec[p.Field] = v
}

// Clone returns a deep copy of the document.
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	out := make(Document, len(d))
	for k, v := range d {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, vv := range t {
			m[k] = cloneValue(vv)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, vv := range t {
			s[i] = cloneValue(vv)
		}
		return s
	default:
		return v
	}
}
