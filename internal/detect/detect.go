package detect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/baselinewatch/internal/ir"
)

// FingerprintStore is the part of the store the detector needs.
// *store.Store implements it.
type FingerprintStore interface {
	GetFingerprint(ctx context.Context, id string) (fingerprint string, ok bool, err error)
	SetFingerprint(ctx context.Context, id, fingerprint string) error
}

// Skipped is a candidate that could not be fingerprinted.
type Skipped struct {
	ID  string
	Err error
}

// Result is the outcome of one Detect call.
type Result struct {
	// Changed holds new or changed features in input order.
	Changed []ir.Feature
	// Skipped holds candidates whose record has no canonical encoding.
	// Their stored fingerprint, if any, is left as it was.
	Skipped []Skipped
	// Unchanged counts candidates whose fingerprint matched.
	Unchanged int
}

// Detector finds new or changed features against a FingerprintStore.
type Detector struct {
	store  FingerprintStore
	logger *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// New returns a Detector backed by s.
func New(s FingerprintStore, opts ...Option) *Detector {
	d := &Detector{
		store:  s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect returns the candidates that are new or whose record changed,
// recording each new fingerprint as soon as the change is found.
//
// The batch is validated first: an empty id returns ErrEmptyFeatureID
// and a repeated id returns a *DuplicateFeatureError, both before the
// store is touched.
//
// A store error stops processing. The returned Result then holds the
// changes already recorded, so the caller can still act on them.
func (d *Detector) Detect(ctx context.Context, candidates []ir.Feature) (*Result, error) {
	if err := validateBatch(candidates); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, f := range candidates {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		newFP, err := ir.Fingerprint(f.Record)
		if err != nil {
			if !errors.Is(err, ir.ErrSerialization) {
				return res, fmt.Errorf("detect %q: %w", f.ID, err)
			}
			d.logger.Warn("skipping feature that cannot be fingerprinted", "id", f.ID, "error", err)
			res.Skipped = append(res.Skipped, Skipped{ID: f.ID, Err: err})
			continue
		}

		oldFP, ok, err := d.store.GetFingerprint(ctx, f.ID)
		if err != nil {
			return res, fmt.Errorf("detect %q: %w", f.ID, err)
		}
		if ok && oldFP == newFP {
			res.Unchanged++
			continue
		}

		if err := d.store.SetFingerprint(ctx, f.ID, newFP); err != nil {
			return res, fmt.Errorf("detect %q: %w", f.ID, err)
		}
		res.Changed = append(res.Changed, f)
		d.logger.Debug("feature changed", "id", f.ID, "new", !ok, "fingerprint", newFP)
	}

	d.logger.Info("detection complete",
		"candidates", len(candidates),
		"changed", len(res.Changed),
		"unchanged", res.Unchanged,
		"skipped", len(res.Skipped))
	return res, nil
}

func validateBatch(candidates []ir.Feature) error {
	seen := make(map[string]int, len(candidates))
	for i, f := range candidates {
		if f.ID == "" {
			return fmt.Errorf("candidate %d: %w", i, ErrEmptyFeatureID)
		}
		if first, ok := seen[f.ID]; ok {
			return &DuplicateFeatureError{ID: f.ID, First: first, Second: i}
		}
		seen[f.ID] = i
	}
	return nil
}
