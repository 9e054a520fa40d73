package audit

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectvak/contracthub/internal/apperr"
	"github.com/projectvak/contracthub/internal/models"
)

const originalJSON = `{
  "filename": "data_Meir_78_bus_3_20250125_123456.json",
  "document_type": "huurovereenkomst",
  "processed": "2025-01-25T12:34:56Z",
  "confidence": 82,
  "contract_data": {
    "pand": {"adres": "Meir 78 bus 3, 2000 Antwerpen", "type": "appartement", "kenmerken": {"lift": true, "verdieping": 3}},
    "financieel": {"huurprijs": 950, "waarborg": 1900},
    "partijen": {"verhuurder": {"naam": "Jan Peeters"}, "huurder": {"naam": "An Claes"}}
  },
  "edit_history": []
}`

func loadOriginal(t *testing.T) *models.ContractRecord {
	t.Helper()
	rec, err := models.DecodeRecord([]byte(originalJSON))
	require.NoError(t, err)
	return rec
}

func mustUpdate(t *testing.T, body string) *Update {
	t.Helper()
	u, err := DecodeUpdate([]byte(body))
	require.NoError(t, err)
	return u
}

// fullUpdate copies the original contract_data and lets fn mutate it.
func fullUpdate(t *testing.T, orig *models.ContractRecord, fn func(doc models.Document)) *Update {
	t.Helper()
	doc := orig.ContractData.Clone()
	fn(doc)
	body, err := json.Marshal(map[string]any{"contract_data": doc})
	require.NoError(t, err)
	return mustUpdate(t, string(body))
}

func TestDiff_SingleFieldChange(t *testing.T) {
	orig := loadOriginal(t)
	upd := fullUpdate(t, orig, func(doc models.Document) {
		doc.Set(models.MustFieldPath("financieel.huurprijs"), json.Number("1000"))
	})

	changes := Diff(orig.ContractData, upd.ContractData)
	require.Len(t, changes, 1)
	assert.Equal(t, models.FieldChange{From: json.Number("950"), To: json.Number("1000")}, changes["financieel.huurprijs"])
}

func TestDiff_NoChanges(t *testing.T) {
	orig := loadOriginal(t)
	upd := fullUpdate(t, orig, func(models.Document) {})
	assert.Empty(t, Diff(orig.ContractData, upd.ContractData))
}

func TestDiff_DeepValuesAreOpaque(t *testing.T) {
	orig := loadOriginal(t)
	upd := fullUpdate(t, orig, func(doc models.Document) {
		doc.Set(models.MustFieldPath("pand.kenmerken"), map[string]any{"lift": false, "verdieping": json.Number("3")})
	})

	changes := Diff(orig.ContractData, upd.ContractData)
	require.Len(t, changes, 1)
	ch, ok := changes["pand.kenmerken"]
	require.True(t, ok)
	assert.Equal(t, map[string]any{"lift": false, "verdieping": json.Number("3")}, ch.To)
}

func TestDiff_NewSectionAndField(t *testing.T) {
	orig := loadOriginal(t)
	upd := mustUpdate(t, `{"contract_data": {"periodes": {"ingangsdatum": "2025-02-01"}, "financieel": {"huurprijs": 950, "indexatie": true}}}`)

	changes := Diff(orig.ContractData, upd.ContractData)
	assert.Equal(t, map[string]models.FieldChange{
		"periodes.ingangsdatum": {From: nil, To: "2025-02-01"},
		"financieel.indexatie":  {From: nil, To: true},
	}, changes)
}

func TestDiff_NonObjectSections(t *testing.T) {
	orig := models.Document{"notities": "vrije tekst", "financieel": map[string]any{"huurprijs": json.Number("950")}}
	upd := models.Document{"notities": map[string]any{"regel": "x"}, "financieel": "kapot"}
	assert.Equal(t, map[string]models.FieldChange{
		"notities.regel": {From: nil, To: "x"},
	}, Diff(orig, upd))
}

func TestDiffAndMerge_ReplacedScalarSectionIsAudited(t *testing.T) {
	orig := &models.ContractRecord{
		Filename:     "a.json",
		ContractData: models.Document{"adres": "Meir 78"},
	}
	upd := &Update{ContractData: models.Document{"adres": map[string]any{"volledig": "Meir 80"}}}

	merged, entry := DiffAndMerge(orig, upd, "els@agency.be", time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC))

	got, ok := merged.ContractData.String(models.MustFieldPath("adres.volledig"))
	require.True(t, ok)
	assert.Equal(t, "Meir 80", got)
	assert.Equal(t, map[string]models.FieldChange{
		"adres.volledig": {From: nil, To: "Meir 80"},
	}, entry.Changes)
}

func TestDiffAndMerge_Bookkeeping(t *testing.T) {
	orig := loadOriginal(t)
	upd := mustUpdate(t, `{"contract_data": {"financieel": {"huurprijs": 1000, "waarborg": 1900}}, "filename": "other.json", "document_type": "x", "processed": "2030-01-01T00:00:00Z", "confidence": 99}`)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	merged, entry := DiffAndMerge(orig, upd, "els@agency.be", now)

	assert.Equal(t, "data_Meir_78_bus_3_20250125_123456.json", merged.Filename)
	assert.Equal(t, "huurovereenkomst", merged.DocumentType)
	assert.Equal(t, "2025-01-25T12:34:56Z", merged.Processed)
	require.NotNil(t, merged.Confidence)
	assert.Equal(t, 99.0, *merged.Confidence)
	assert.True(t, merged.ManuallyEdited)
	require.NotNil(t, merged.Edited)
	assert.Equal(t, "els@agency.be", merged.Edited.Editor)
	assert.Equal(t, now, merged.Edited.Timestamp)

	// Untouched sections survive the shallow merge.
	_, ok := merged.ContractData.Section("pand")
	assert.True(t, ok)

	require.Len(t, merged.EditHistory, 1)
	assert.Equal(t, entry, merged.EditHistory[0])
	assert.Equal(t, map[string]models.FieldChange{
		"financieel.huurprijs": {From: json.Number("950"), To: json.Number("1000")},
	}, entry.Changes)

	// The original is left alone.
	assert.False(t, orig.ManuallyEdited)
	assert.Empty(t, orig.EditHistory)
	v, _ := orig.ContractData.Lookup(models.MustFieldPath("financieel.huurprijs"))
	assert.Equal(t, json.Number("950"), v)
}

func TestDiffAndMerge_FallbackBookkeeping(t *testing.T) {
	orig := &models.ContractRecord{ContractData: models.Document{}}
	upd := mustUpdate(t, `{"contract_data": {"pand": {"adres": "Meir 1"}}, "filename": "data_Meir_1_20250101_000000.json", "document_type": "huur"}`)
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	merged, _ := DiffAndMerge(orig, upd, "", now)
	assert.Equal(t, "data_Meir_1_20250101_000000.json", merged.Filename)
	assert.Equal(t, "huur", merged.DocumentType)
	assert.Equal(t, "2025-03-01T10:00:00Z", merged.Processed)
	assert.Equal(t, UnknownEditor, merged.Edited.Editor)
}

func TestDiffAndMerge_EmptyDiffStillRecorded(t *testing.T) {
	orig := loadOriginal(t)
	upd := fullUpdate(t, orig, func(models.Document) {})

	merged, entry := DiffAndMerge(orig, upd, "bob", time.Now())
	assert.True(t, merged.ManuallyEdited)
	require.Len(t, merged.EditHistory, 1)
	assert.NotNil(t, entry.Changes)
	assert.Empty(t, entry.Changes)
}

func TestDiffAndMerge_HistoryAppendOnly(t *testing.T) {
	orig := loadOriginal(t)
	t1 := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	t0 := t1.Add(-time.Hour)

	first, _ := DiffAndMerge(orig, mustUpdate(t, `{"contract_data": {"financieel": {"huurprijs": 1000}}}`), "a", t1)
	second, entry := DiffAndMerge(first, mustUpdate(t, `{"contract_data": {"financieel": {"huurprijs": 1100}}}`), "b", t0)

	require.Len(t, second.EditHistory, 2)
	assert.Equal(t, first.EditHistory[0], second.EditHistory[0])
	assert.False(t, entry.Timestamp.Before(second.EditHistory[0].Timestamp), "history must stay ordered")
	assert.Equal(t, json.Number("1000"), entry.Changes["financieel.huurprijs"].From)
}

func TestApply_RoundTrip(t *testing.T) {
	orig := loadOriginal(t)
	upd := mustUpdate(t, `{"contract_data": {"financieel": {"huurprijs": 1000, "waarborg": 2000}, "periodes": {"einddatum": "2034-01-31"}}}`)
	merged, entry := DiffAndMerge(orig, upd, "x", time.Now())

	replay := orig.ContractData.Clone()
	require.NoError(t, Apply(replay, entry.Changes))
	for raw := range entry.Changes {
		p := models.MustFieldPath(raw)
		want, _ := merged.ContractData.Lookup(p)
		got, _ := replay.Lookup(p)
		assert.Equal(t, want, got, raw)
	}
}

func TestApply_InvalidPath(t *testing.T) {
	err := Apply(models.Document{}, map[string]models.FieldChange{"nodot": {To: 1}})
	assert.Error(t, err)
}

func TestDecodeUpdate_Invalid(t *testing.T) {
	cases := map[string]string{
		"malformed":          `{"contract_data": `,
		"missing data":       `{"confidence": 50}`,
		"confidence too big": `{"contract_data": {"a": {"b": 1}}, "confidence": 150}`,
		"negative":           `{"contract_data": {"a": {"b": 1}}, "confidence": -1}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := DecodeUpdate([]byte(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrInvalidUpdate))
		})
	}
}
