// Package push sweeps ready contracts to the CRM and records the push flag
// on the contract store.
package push

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/projectvak/contracthub/internal/apperr"
	"github.com/projectvak/contracthub/internal/contracts"
	"github.com/projectvak/contracthub/internal/crm"
	"github.com/projectvak/contracthub/internal/models"
	"github.com/projectvak/contracthub/internal/status"
)

// DefaultSource tags pushes in the CRM metadata.
const DefaultSource = "contracthub"

// Target receives pushed contracts.
type Target interface {
	Push(ctx context.Context, p crm.Payload) (crm.Receipt, error)
}

// configurable is implemented by targets that can be present but unusable,
// such as a CRM client without a base URL.
type configurable interface {
	Configured() bool
}

// Failure describes one candidate the sweep could not push.
type Failure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// SweepResult summarises one sweep. Duplicates lists candidates that were
// pushed by this sweep while a concurrent writer flagged them first.
type SweepResult struct {
	PushedCount     int       `json:"pushed_count"`
	PushedFilenames []string  `json:"pushed_filenames"`
	Failed          []Failure `json:"failed,omitempty"`
	Duplicates      []string  `json:"duplicates,omitempty"`
}

// Outcome is the result of a single successful push.
type Outcome struct {
	Filename  string                 `json:"filename"`
	ReceiptID string                 `json:"receipt_id,omitempty"`
	PushedAt  time.Time              `json:"pushed_at"`
	Manual    bool                   `json:"manual"`
	Record    *models.ContractRecord `json:"-"`
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithThresholds overrides the status thresholds used to pick candidates.
func WithThresholds(t status.Thresholds) Option {
	return func(o *Orchestrator) { o.thresholds = t }
}

// WithSource sets the metadata.source tag.
func WithSource(s string) Option {
	return func(o *Orchestrator) {
		if s != "" {
			o.source = s
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator pushes contracts from a store to a target.
type Orchestrator struct {
	store      contracts.Store
	target     Target
	thresholds status.Thresholds
	source     string
	now        func() time.Time
	logger     *slog.Logger
}

// New creates an Orchestrator. target may be nil, in which case every
// operation fails with apperr.ErrNotConfigured.
func New(store contracts.Store, target Target, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		store:      store,
		target:     target,
		thresholds: status.Default,
		source:     DefaultSource,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *Orchestrator) ready() error {
	if o.target == nil {
		return fmt.Errorf("push: target: %w", apperr.ErrNotConfigured)
	}
	if c, ok := o.target.(configurable); ok && !c.Configured() {
		return fmt.Errorf("push: target: %w", apperr.ErrNotConfigured)
	}
	return nil
}

// Sweep pushes every contract currently classified parsed, one at a time.
// A failing candidate is logged and left untouched for the next sweep.
// Only a missing target or an unreadable store fails the whole sweep.
func (o *Orchestrator) Sweep(ctx context.Context) (SweepResult, error) {
	res := SweepResult{PushedFilenames: []string{}}
	if err := o.ready(); err != nil {
		return res, err
	}
	snaps, err := o.store.List(ctx)
	if err != nil {
		return res, fmt.Errorf("push: sweep: %w", err)
	}

	for _, snap := range snaps {
		rec := snap.Record
		if o.thresholds.Classify(rec.Confidence, rec.ManuallyEdited, rec.WhisePushed) != status.Parsed {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		receipt, err := o.target.Push(ctx, BuildPayload(rec, o.source))
		if err != nil {
			o.logger.Warn("push: candidate failed",
				slog.String("filename", rec.Filename),
				slog.String("error", err.Error()))
			res.Failed = append(res.Failed, Failure{Filename: rec.Filename, Error: err.Error()})
			continue
		}

		_, dup, err := o.markPushed(ctx, snap, false)
		switch {
		case err != nil:
			o.logger.Warn("push: flag write failed",
				slog.String("filename", rec.Filename),
				slog.String("receipt", receipt.ID),
				slog.String("error", err.Error()))
			res.Failed = append(res.Failed, Failure{Filename: rec.Filename, Error: err.Error()})
		case dup:
			o.logger.Warn("push: concurrent push detected",
				slog.String("filename", rec.Filename),
				slog.String("receipt", receipt.ID))
			res.Duplicates = append(res.Duplicates, rec.Filename)
		default:
			o.logger.Info("push: pushed",
				slog.String("filename", rec.Filename),
				slog.String("receipt", receipt.ID))
			res.PushedCount++
			res.PushedFilenames = append(res.PushedFilenames, rec.Filename)
		}
	}

	o.logger.Info("push: sweep done",
		slog.Int("pushed", res.PushedCount),
		slog.Int("failed", len(res.Failed)),
		slog.Int("duplicates", len(res.Duplicates)))
	return res, nil
}

// ManualPush pushes one contract regardless of its confidence and marks it
// as manually pushed.
func (o *Orchestrator) ManualPush(ctx context.Context, filename string) (*Outcome, error) {
	if err := contracts.ValidateFilename(filename); err != nil {
		return nil, err
	}
	if err := o.ready(); err != nil {
		return nil, err
	}
	snap, err := o.store.Get(ctx, filename)
	if err != nil {
		return nil, err
	}

	receipt, err := o.target.Push(ctx, BuildPayload(snap.Record, o.source))
	if err != nil {
		return nil, fmt.Errorf("push: %s: %w: %w", filename, apperr.ErrUpstream, err)
	}
	rec, _, err := o.markPushed(ctx, *snap, true)
	if err != nil {
		return nil, fmt.Errorf("push: %s: record flag: %w", filename, err)
	}
	o.logger.Info("push: manual push",
		slog.String("filename", filename),
		slog.String("receipt", receipt.ID))
	return &Outcome{
		Filename:  filename,
		ReceiptID: receipt.ID,
		PushedAt:  *rec.WhisePushedAt,
		Manual:    true,
		Record:    rec,
	}, nil
}

// markPushed sets the push flag with a compare-and-set against the
// snapshot. On conflict the record is re-read once: if someone else already
// flagged it, dup is true (sweeps only); otherwise the flag is re-applied on
// the fresh copy.
func (o *Orchestrator) markPushed(ctx context.Context, snap contracts.Snapshot, manual bool) (*models.ContractRecord, bool, error) {
	rec := o.flagged(snap.Record, manual)
	_, err := o.store.Update(ctx, rec.Filename, rec, snap.Checksum)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, apperr.ErrConflict) {
		return nil, false, err
	}

	fresh, err := o.store.Get(ctx, snap.Record.Filename)
	if err != nil {
		return nil, false, err
	}
	if fresh.Record.WhisePushed && !manual {
		return fresh.Record, true, nil
	}
	rec = o.flagged(fresh.Record, manual)
	if _, err := o.store.Update(ctx, rec.Filename, rec, fresh.Checksum); err != nil {
		return nil, false, err
	}
	return rec, false, nil
}

func (o *Orchestrator) flagged(orig *models.ContractRecord, manual bool) *models.ContractRecord {
	rec := orig.Clone()
	// The first successful push keeps its timestamp.
	if !orig.WhisePushed || orig.WhisePushedAt == nil {
		now := o.now().UTC()
		rec.WhisePushedAt = &now
	}
	rec.WhisePushed = true
	if manual {
		rec.WhisePushManual = true
	}
	return rec
}
