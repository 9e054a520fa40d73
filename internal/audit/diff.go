// Package audit computes field-level diffs between contract documents and
// merges manual edits into stored records while keeping an append-only
// edit history.
//
// The diff walks exactly two levels (section, field). Values nested deeper
// are compared as opaque blobs through their canonical JSON encoding.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/projectvak/contracthub/internal/apperr"
	"github.com/projectvak/contracthub/internal/models"
)

// UnknownEditor is recorded when an update carries no editor identity.
const UnknownEditor = "unknown"

// Update is the body of a manual edit request.
type Update struct {
	ContractData models.Document `json:"contract_data"`
	Confidence   *float64        `json:"confidence,omitempty"`
	Filename     string          `json:"filename,omitempty"`
	DocumentType string          `json:"document_type,omitempty"`
	Processed    string          `json:"processed,omitempty"`
}

// Validate checks the update body.
func (u *Update) Validate() error {
	return validation.ValidateStruct(u,
		validation.Field(&u.ContractData, validation.Required),
		validation.Field(&u.Confidence, validation.Min(0.0), validation.Max(100.0)),
	)
}

// DecodeUpdate parses and validates an update body. Malformed input is
// reported as apperr.ErrInvalidUpdate.
func DecodeUpdate(data []byte) (*Update, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var u Update
	if err := dec.Decode(&u); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidUpdate, err)
	}
	if err := u.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidUpdate, err)
	}
	return &u, nil
}

// Diff compares every field of every object section present in updated
// against the same path in original. A section that is not an object in
// original counts as empty; one that is not an object in updated is skipped.
func Diff(original, updated models.Document) map[string]models.FieldChange {
	changes := map[string]models.FieldChange{}
	for name := range updated {
		updSec, ok := updated.Section(name)
		if !ok {
			continue
		}
		origSec, _ := original.Section(name)
		for field, to := range updSec {
			from := origSec[field]
			if equal(from, to) {
				continue
			}
			path := models.FieldPath{Section: name, Field: field}
			changes[path.String()] = models.FieldChange{From: from, To: to}
		}
	}
	return changes
}

// DiffAndMerge applies update on top of original and returns the merged
// record plus the edit entry that was appended to its history. original is
// not modified.
func DiffAndMerge(original *models.ContractRecord, update *Update, editor string, now time.Time) (*models.ContractRecord, models.EditEntry) {
	if editor == "" {
		editor = UnknownEditor
	}
	merged := original.Clone()
	if merged.ContractData == nil {
		merged.ContractData = models.Document{}
	}

	changes := Diff(original.ContractData, update.ContractData)

	overlay := update.ContractData.Clone()
	for name, sec := range overlay {
		merged.ContractData[name] = sec
	}
	if update.Confidence != nil {
		c := *update.Confidence
		merged.Confidence = &c
	}

	merged.Processed = firstNonEmpty(original.Processed, update.Processed, now.UTC().Format(time.RFC3339))
	merged.Filename = firstNonEmpty(original.Filename, update.Filename)
	merged.DocumentType = firstNonEmpty(original.DocumentType, update.DocumentType)

	// History stays ordered even when the clock steps backwards.
	ts := now.UTC()
	if n := len(merged.EditHistory); n > 0 && ts.Before(merged.EditHistory[n-1].Timestamp) {
		ts = merged.EditHistory[n-1].Timestamp
	}

	entry := models.EditEntry{Timestamp: ts, Editor: editor, Changes: changes}
	merged.ManuallyEdited = true
	merged.Edited = &models.EditStamp{Timestamp: ts, Editor: editor}
	merged.EditHistory = append(merged.EditHistory, entry)
	return merged, entry
}

// Apply writes the To value of every change into doc.
func Apply(doc models.Document, changes map[string]models.FieldChange) error {
	for raw, ch := range changes {
		p, err := models.ParseFieldPath(raw)
		if err != nil {
			return err
		}
		doc.Set(p, ch.To)
	}
	return nil
}

func equal(a, b any) bool {
	ca, errA := json.Marshal(a)
	cb, errB := json.Marshal(b)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(ca, cb)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
