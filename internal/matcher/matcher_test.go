package matcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/normalize"
)

type query struct {
	key   string
	field models.SearchField
	limit int
}

// fakeIndex does case-insensitive substring matching over raw and
// normalized names/paths, like the SQLite index.
type fakeIndex struct {
	paths   []string
	failOn  map[string]bool
	queries []query
}

func (f *fakeIndex) Search(_ context.Context, q string, field models.SearchField, limit int) ([]models.IndexEntry, error) {
	f.queries = append(f.queries, query{q, field, limit})
	if f.failOn[q] {
		return nil, errors.New("index unavailable")
	}
	lq, kq := strings.ToLower(q), normalize.Normalize(q)
	var out []models.IndexEntry
	for _, p := range f.paths {
		hay := path.Base(p)
		if field == models.SearchByPath {
			hay = p
		}
		if strings.Contains(strings.ToLower(hay), lq) || strings.Contains(normalize.Normalize(hay), kq) {
			out = append(out, models.IndexEntry{Path: p, Name: path.Base(p)})
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) keys() []string {
	var out []string
	for _, q := range f.queries {
		if len(out) == 0 || out[len(out)-1] != q.key {
			out = append(out, q.key)
		}
	}
	return out
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func record(filename, address string) *models.ContractRecord {
	rec := &models.ContractRecord{Filename: filename, ContractData: models.Document{}}
	if address != "" {
		rec.ContractData.Set(models.MustFieldPath("pand.adres"), address)
	}
	return rec
}

func TestMatch_AddressTierWinsOverFirstToken(t *testing.T) {
	idx := &fakeIndex{paths: []string{
		"/Archief/Meir overzicht.pdf",
		"/Contracten/Meir 78 bus 3.pdf",
	}}
	m := New(idx, discard())

	res := m.Match(context.Background(), record("data_Meir_78_bus_3_20250125_123456.json", "Meir 78 bus 3"))
	require.True(t, res.Found())
	assert.Equal(t, "/Contracten/Meir 78 bus 3.pdf", res.Path)
	assert.Equal(t, TierAddress, res.Tier)
	assert.Equal(t, []string{"meir_78_bus_3"}, idx.keys(), "must stop at the first successful tier")
}

func TestMatch_FallsBackThroughTiers(t *testing.T) {
	idx := &fakeIndex{paths: []string{"/Scans/meir_78 huurcontract.pdf"}}
	m := New(idx, discard())

	res := m.Match(context.Background(), record("data_Meir_78_bus_3_20250125_123456.json", ""))
	require.True(t, res.Found())
	assert.Equal(t, TierSlugPrefix, res.Tier)
	assert.Equal(t, "meir_78", res.Key)
	assert.Equal(t, []string{"meir_78_bus_3", "meir_78"}, idx.keys())
}

func TestMatch_FirstTokenIsBroadest(t *testing.T) {
	idx := &fakeIndex{paths: []string{
		"/Scans/Meir algemeen.pdf",
		"/Scans/Meir 78 bus 3 - scan.docx",
	}}
	m := New(idx, discard(), WithLimit(5), WithBroadLimit(500))

	res := m.Match(context.Background(), record("data_Meir_78_bus_3_20250125_123456.json", ""))
	require.True(t, res.Found())
	assert.Equal(t, TierFirstToken, res.Tier)
	assert.Equal(t, "/Scans/Meir algemeen.pdf", res.Path)

	last := idx.queries[len(idx.queries)-1]
	assert.Equal(t, "meir", last.key)
	assert.Equal(t, 500, last.limit)
	assert.Equal(t, 5, idx.queries[0].limit)
}

func TestMatch_PrefersSpecificSlugWithinTier(t *testing.T) {
	idx := &fakeIndex{paths: []string{
		"/A/Meir 78 bus 1.pdf",
		"/B/Meir 78 bus 3.pdf",
	}}
	m := New(idx, discard())

	res := m.Match(context.Background(), record("data_Meir_78_bus_3_20250125_123456.json", "Meir 78"))
	require.True(t, res.Found())
	assert.Equal(t, TierAddress, res.Tier)
	assert.Equal(t, "/B/Meir 78 bus 3.pdf", res.Path)
}

func TestMatch_NonPDFIgnoredAndCaseInsensitiveSuffix(t *testing.T) {
	idx := &fakeIndex{paths: []string{"/x/Kerkstraat 5.docx", "/x/Kerkstraat 5.PDF"}}
	m := New(idx, discard())

	res := m.Match(context.Background(), record("data_Kerkstraat_5_20240101_000000.json", ""))
	require.True(t, res.Found())
	assert.Equal(t, "/x/Kerkstraat 5.PDF", res.Path)
}

func TestMatch_DeduplicatesNameAndPathResults(t *testing.T) {
	idx := &fakeIndex{paths: []string{"/Kerkstraat 5/Kerkstraat 5.pdf"}}
	m := New(idx, discard())

	pool := m.candidates(context.Background(), "kerkstraat_5", 10)
	assert.Len(t, pool, 1)
}

func TestMatch_QueryFailureDegradesToNextTier(t *testing.T) {
	idx := &fakeIndex{
		paths:  []string{"/x/Meir 78 bus 3.pdf"},
		failOn: map[string]bool{"meir_78_bus_3": true},
	}
	m := New(idx, discard())

	res := m.Match(context.Background(), record("data_Meir_78_bus_3_20250125_123456.json", ""))
	require.True(t, res.Found())
	assert.Equal(t, TierSlugPrefix, res.Tier)
}

func TestMatch_NoMatch(t *testing.T) {
	idx := &fakeIndex{failOn: map[string]bool{"meir": true}}
	m := New(idx, discard())

	res := m.Match(context.Background(), record("data_Meir_78_bus_3_20250125_123456.json", ""))
	assert.False(t, res.Found())
	assert.Equal(t, models.MatchResult{}, res)

	assert.False(t, m.Match(context.Background(), nil).Found())
	assert.False(t, m.Match(context.Background(), &models.ContractRecord{}).Found())
}

func TestMatch_SkipsDuplicateKeys(t *testing.T) {
	idx := &fakeIndex{}
	m := New(idx, discard())

	m.Match(context.Background(), record("data_Meir_20250101_000000.json", "Meir"))
	assert.Equal(t, []string{"meir"}, idx.keys())
}

func TestAddress(t *testing.T) {
	rec := &models.ContractRecord{ContractData: models.Document{"adres": "  Groenplaats 1 "}}
	assert.Equal(t, "Groenplaats 1", Address(rec))

	rec = record("x.json", "Meir 78")
	rec.ContractData.Set(models.MustFieldPath("property.address"), "ignored")
	assert.Equal(t, "Meir 78", Address(rec))

	assert.Equal(t, "", Address(&models.ContractRecord{}))
}

func TestIsPDF(t *testing.T) {
	assert.True(t, IsPDF("/a/b.PdF"))
	assert.False(t, IsPDF("/a/b.pdf.txt"))
}
