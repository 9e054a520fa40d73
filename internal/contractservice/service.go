// Package contractservice coordinates the contract store, the document
// index, the matcher and the push orchestrator for the API, MCP and CLI
// front ends.
package contractservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/projectvak/contracthub/internal/apperr"
	"github.com/projectvak/contracthub/internal/audit"
	"github.com/projectvak/contracthub/internal/contracts"
	"github.com/projectvak/contracthub/internal/index"
	"github.com/projectvak/contracthub/internal/matcher"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/normalize"
	"github.com/projectvak/contracthub/internal/push"
	"github.com/projectvak/contracthub/internal/sse"
	"github.com/projectvak/contracthub/internal/status"
)

// Notifier receives change events. *sse.Broker implements it.
type Notifier interface {
	Notify(kind string, data any)
}

// ContractDetail is a stored record with its derived status.
type ContractDetail struct {
	*models.ContractRecord
	Status   status.Status `json:"status"`
	Checksum string        `json:"checksum"`
}

// ContractSummary is a lightweight item in a list response.
type ContractSummary struct {
	Filename     string        `json:"filename"`
	DocumentType string        `json:"document_type,omitempty"`
	Address      string        `json:"address,omitempty"`
	Confidence   *float64      `json:"confidence,omitempty"`
	Status       status.Status `json:"status"`
	PDFPath      string        `json:"pdf_path,omitempty"`
	Processed    string        `json:"processed,omitempty"`
}

// UpdateResult is returned by Update.
type UpdateResult struct {
	Contract *ContractDetail  `json:"contract"`
	Entry    models.EditEntry `json:"edit_entry"`
}

// LinkResult is returned by LinkPDF. Linked is false when no PDF matched.
type LinkResult struct {
	Filename string             `json:"filename"`
	Linked   bool               `json:"linked"`
	Match    models.MatchResult `json:"match"`
}

// Property groups the contracts of one address.
type Property struct {
	Key       string                `json:"key"`
	Address   string                `json:"address,omitempty"`
	Status    status.Status         `json:"status"`
	Counts    map[status.Status]int `json:"counts"`
	Contracts []string              `json:"contracts"`
}

// Config holds the collaborators of a Service.
type Config struct {
	Store      contracts.Store
	Index      matcher.Searcher
	Matcher    *matcher.Matcher
	Pusher     *push.Orchestrator
	Thresholds status.Thresholds
	Notifier   Notifier
	Logger     *slog.Logger
	Now        func() time.Time
}

// Service implements the contract hub use cases.
type Service struct {
	store      contracts.Store
	idx        matcher.Searcher
	matcher    *matcher.Matcher
	pusher     *push.Orchestrator
	thresholds status.Thresholds
	notifier   Notifier
	logger     *slog.Logger
	now        func() time.Time
}

// New creates a Service.
func New(cfg Config) *Service {
	s := &Service{
		store:      cfg.Store,
		idx:        cfg.Index,
		matcher:    cfg.Matcher,
		pusher:     cfg.Pusher,
		thresholds: cfg.Thresholds,
		notifier:   cfg.Notifier,
		logger:     cfg.Logger,
		now:        cfg.Now,
	}
	if s.thresholds == (status.Thresholds{}) {
		s.thresholds = status.Default
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.matcher == nil && s.idx != nil {
		s.matcher = matcher.New(s.idx, s.logger)
	}
	return s
}

// Thresholds returns the status thresholds in use.
func (s *Service) Thresholds() status.Thresholds {
	return s.thresholds
}

func (s *Service) classify(r *models.ContractRecord) status.Status {
	return s.thresholds.Classify(r.Confidence, r.ManuallyEdited, r.WhisePushed)
}

func (s *Service) detail(snap *contracts.Snapshot) *ContractDetail {
	return &ContractDetail{ContractRecord: snap.Record, Status: s.classify(snap.Record), Checksum: snap.Checksum}
}

func (s *Service) notify(kind string, data any) {
	if s.notifier != nil {
		s.notifier.Notify(kind, data)
	}
}

// Get returns one contract with its status.
func (s *Service) Get(ctx context.Context, filename string) (*ContractDetail, error) {
	snap, err := s.store.Get(ctx, filename)
	if err != nil {
		return nil, err
	}
	return s.detail(snap), nil
}

// List returns all contracts, optionally only those with the given status.
func (s *Service) List(ctx context.Context, filter status.Status) ([]ContractSummary, error) {
	if filter != "" && !status.Valid(filter) {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidArgument, filter)
	}
	snaps, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]ContractSummary, 0, len(snaps))
	for _, snap := range snaps {
		r := snap.Record
		st := s.classify(r)
		if filter != "" && st != filter {
			continue
		}
		items = append(items, ContractSummary{
			Filename:     r.Filename,
			DocumentType: r.DocumentType,
			Address:      matcher.Address(r),
			Confidence:   r.Confidence,
			Status:       st,
			PDFPath:      r.PDFPath,
			Processed:    r.Processed,
		})
	}
	return items, nil
}

// Update merges a manual edit into the stored record and appends the audit
// entry. A non-empty ifMatch must equal the checksum the client last saw.
func (s *Service) Update(ctx context.Context, filename string, upd *audit.Update, editor, ifMatch string) (*UpdateResult, error) {
	if err := contracts.ValidateFilename(filename); err != nil {
		return nil, err
	}
	if upd == nil {
		return nil, fmt.Errorf("%w: empty body", apperr.ErrInvalidUpdate)
	}
	if err := upd.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidUpdate, err)
	}

	snap, err := s.store.Get(ctx, filename)
	if err != nil {
		return nil, err
	}
	if ifMatch != "" && ifMatch != snap.Checksum {
		return nil, fmt.Errorf("contractservice: update %s: %w", filename, apperr.ErrConflict)
	}

	merged, entry := audit.DiffAndMerge(snap.Record, upd, editor, s.now())
	sum, err := s.store.Update(ctx, filename, merged, snap.Checksum)
	if err != nil {
		return nil, err
	}

	s.logger.Info("contract updated",
		slog.String("filename", filename),
		slog.String("editor", entry.Editor),
		slog.Int("changes", len(entry.Changes)))
	s.notify(sse.ContractUpdated, map[string]any{"filename": filename, "changes": len(entry.Changes)})

	return &UpdateResult{
		Contract: s.detail(&contracts.Snapshot{Record: merged, Checksum: sum}),
		Entry:    entry,
	}, nil
}

// Match resolves the PDF of a contract without persisting anything.
func (s *Service) Match(ctx context.Context, filename string) (*LinkResult, error) {
	if s.matcher == nil {
		return nil, fmt.Errorf("contractservice: document index: %w", apperr.ErrNotConfigured)
	}
	snap, err := s.store.Get(ctx, filename)
	if err != nil {
		return nil, err
	}
	res := s.matcher.Match(ctx, snap.Record)
	return &LinkResult{Filename: filename, Linked: res.Found(), Match: res}, nil
}

// LinkPDF matches a contract to its PDF and stores the path on the record.
// No match is not an error.
func (s *Service) LinkPDF(ctx context.Context, filename string) (*LinkResult, error) {
	if s.matcher == nil {
		return nil, fmt.Errorf("contractservice: document index: %w", apperr.ErrNotConfigured)
	}
	for attempt := 0; ; attempt++ {
		snap, err := s.store.Get(ctx, filename)
		if err != nil {
			return nil, err
		}
		res := s.matcher.Match(ctx, snap.Record)
		out := &LinkResult{Filename: filename, Linked: res.Found(), Match: res}
		if !res.Found() || snap.Record.PDFPath == res.Path {
			return out, nil
		}

		rec := snap.Record.Clone()
		rec.PDFPath = res.Path
		_, err = s.store.Update(ctx, filename, rec, snap.Checksum)
		if errors.Is(err, apperr.ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, err
		}
		s.notify(sse.ContractLinked, map[string]string{"filename": filename, "pdf_path": res.Path, "tier": res.Tier})
		return out, nil
	}
}

// Sweep runs one push sweep.
func (s *Service) Sweep(ctx context.Context) (push.SweepResult, error) {
	if s.pusher == nil {
		return push.SweepResult{}, fmt.Errorf("contractservice: push: %w", apperr.ErrNotConfigured)
	}
	res, err := s.pusher.Sweep(ctx)
	for _, fn := range res.PushedFilenames {
		s.notify(sse.ContractPushed, map[string]any{"filename": fn, "manual": false})
	}
	return res, err
}

// ManualPush pushes one contract regardless of its confidence.
func (s *Service) ManualPush(ctx context.Context, filename string) (*push.Outcome, error) {
	if s.pusher == nil {
		return nil, fmt.Errorf("contractservice: push: %w", apperr.ErrNotConfigured)
	}
	out, err := s.pusher.ManualPush(ctx, filename)
	if err != nil {
		return nil, err
	}
	s.notify(sse.ContractPushed, map[string]any{"filename": filename, "manual": true})
	return out, nil
}

// Properties groups contracts by address and rolls their statuses up to
// the worst one.
func (s *Service) Properties(ctx context.Context) ([]Property, error) {
	snaps, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	groups := map[string]*Property{}
	members := map[string][]status.Status{}
	for _, snap := range snaps {
		r := snap.Record
		address := matcher.Address(r)
		key := normalize.Normalize(address)
		if key == "" {
			key = normalize.SlugFromFilename(r.Filename)
		}
		p, ok := groups[key]
		if !ok {
			p = &Property{Key: key, Address: address, Counts: map[status.Status]int{}}
			groups[key] = p
		}
		st := s.classify(r)
		p.Counts[st]++
		p.Contracts = append(p.Contracts, r.Filename)
		members[key] = append(members[key], st)
	}

	out := make([]Property, 0, len(groups))
	for key, p := range groups {
		p.Status = status.Aggregate(members[key])
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// SearchDocuments queries the document index. An empty field searches names.
func (s *Service) SearchDocuments(ctx context.Context, q string, field models.SearchField, limit int) ([]models.IndexEntry, error) {
	if s.idx == nil {
		return nil, fmt.Errorf("contractservice: document index: %w", apperr.ErrNotConfigured)
	}
	if field == "" {
		field = models.SearchByName
	}
	if field != models.SearchByName && field != models.SearchByPath {
		return nil, fmt.Errorf("%w: unknown field %q", apperr.ErrInvalidArgument, field)
	}
	if limit < 0 || limit > index.MaxSearchLimit {
		return nil, fmt.Errorf("%w: limit must be between 0 and %d", apperr.ErrInvalidArgument, index.MaxSearchLimit)
	}
	res, err := s.idx.Search(ctx, q, field, limit)
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = []models.IndexEntry{}
	}
	return res, nil
}
