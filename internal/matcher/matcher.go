// Package matcher links a contract record to its source PDF in the
// document index using a tiered fallback search. The first tier that yields
// any PDF wins; tiers are never scored against each other.
package matcher

import (
	"context"
	"log/slog"
	"strings"

	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/normalize"
)

// Tier names reported in models.MatchResult.
const (
	TierAddress    = "address"
	TierSlug       = "slug"
	TierSlugPrefix = "slug_prefix"
	TierFirstToken = "first_token"
)

// Per-query result caps used when no option overrides them.
const (
	// DefaultLimit caps the address, slug and slug prefix tiers.
	DefaultLimit = 50
	// DefaultBroadLimit caps the first-token tier.
	DefaultBroadLimit = 200
)

// Searcher is the query capability the matcher needs from the document index.
type Searcher interface {
	Search(ctx context.Context, substring string, field models.SearchField, limit int) ([]models.IndexEntry, error)
}

// AddressPaths are the contract_data fields read, in order, for the
// contract's own address.
var AddressPaths = []models.FieldPath{
	models.MustFieldPath("pand.adres"),
	models.MustFieldPath("property.address"),
	models.MustFieldPath("adres.volledig"),
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithLimit sets the per-query result cap of the specific tiers.
func WithLimit(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.limit = n
		}
	}
}

// WithBroadLimit sets the per-query result cap of the first-token tier.
func WithBroadLimit(n int) Option {
	return func(m *Matcher) {
		if n > 0 {
			m.broadLimit = n
		}
	}
}

// Matcher resolves contracts to PDF paths.
type Matcher struct {
	idx        Searcher
	logger     *slog.Logger
	limit      int
	broadLimit int
}

// New creates a Matcher over idx.
func New(idx Searcher, logger *slog.Logger, opts ...Option) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Matcher{idx: idx, logger: logger, limit: DefaultLimit, broadLimit: DefaultBroadLimit}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type tier struct {
	name  string
	key   string
	limit int
}

// Match finds the PDF belonging to rec. Query failures degrade the
// affected tier to an empty result; Match itself never fails and returns
// a zero MatchResult when nothing is found.
func (m *Matcher) Match(ctx context.Context, rec *models.ContractRecord) models.MatchResult {
	if rec == nil {
		return models.MatchResult{}
	}
	address := normalize.Normalize(Address(rec))
	slug := normalize.SlugFromFilename(rec.Filename)

	broad := address
	if broad == "" {
		broad = slug
	}

	tiers := []tier{
		{TierAddress, address, m.limit},
		{TierSlug, slug, m.limit},
		{TierSlugPrefix, normalize.LeadingTokens(slug, 2), m.limit},
		{TierFirstToken, normalize.FirstToken(broad), m.broadLimit},
	}
	preferred := nonEmpty(slug, address)

	seen := make(map[string]struct{}, len(tiers))
	for _, t := range tiers {
		if t.key == "" {
			continue
		}
		if _, dup := seen[t.key]; dup {
			continue
		}
		seen[t.key] = struct{}{}

		pool := m.candidates(ctx, t.key, t.limit)
		if len(pool) == 0 {
			continue
		}
		pick := choose(pool, preferred)
		m.logger.Debug("matcher: matched",
			slog.String("filename", rec.Filename),
			slog.String("tier", t.name),
			slog.String("key", t.key),
			slog.String("path", pick.Path))
		return models.MatchResult{Path: pick.Path, Name: pick.Name, Tier: t.name, Key: t.key}
	}

	m.logger.Debug("matcher: no match", slog.String("filename", rec.Filename))
	return models.MatchResult{}
}

// candidates queries by name and by path, merges both result sets by path
// and keeps only PDFs.
func (m *Matcher) candidates(ctx context.Context, key string, limit int) []models.IndexEntry {
	var pool []models.IndexEntry
	seen := make(map[string]struct{})
	for _, field := range []models.SearchField{models.SearchByName, models.SearchByPath} {
		res, err := m.idx.Search(ctx, key, field, limit)
		if err != nil {
			m.logger.Warn("matcher: query failed",
				slog.String("key", key),
				slog.String("field", string(field)),
				slog.String("error", err.Error()))
			continue
		}
		for _, e := range res {
			if _, dup := seen[e.Path]; dup {
				continue
			}
			seen[e.Path] = struct{}{}
			if IsPDF(e.Path) {
				pool = append(pool, e)
			}
		}
	}
	return pool
}

// choose prefers an entry whose name or path carries one of the specific
// slugs, tried in order, else the first entry.
func choose(pool []models.IndexEntry, preferred []string) models.IndexEntry {
	for _, p := range preferred {
		for _, e := range pool {
			if strings.Contains(normalize.Normalize(e.Name), p) || strings.Contains(normalize.Normalize(e.Path), p) {
				return e
			}
		}
	}
	return pool[0]
}

// Address returns the contract's own address text, or "".
func Address(rec *models.ContractRecord) string {
	for _, p := range AddressPaths {
		if s, ok := rec.ContractData.String(p); ok {
			return s
		}
	}
	if s, ok := rec.ContractData["adres"].(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}

// IsPDF reports whether path has a .pdf extension, ignoring case.
func IsPDF(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".pdf")
}

func nonEmpty(vals ...string) []string {
	var out []string
	for _, v := range vals {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
