package migrate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roach88/baselinewatch/internal/store"
)

// Store is the part of the fingerprint store migrations run against.
// *store.Store implements it.
type Store interface {
	GetVersion(ctx context.Context) (int, bool, error)
	SetVersion(ctx context.Context, version int) error
	Reset(ctx context.Context) error

	GetFingerprint(ctx context.Context, id string) (string, bool, error)
	SetFingerprint(ctx context.Context, id, fingerprint string) error
	List(ctx context.Context, prefix store.Key) ([]store.Entry, error)
	DeletePrefix(ctx context.Context, prefix store.Key) (int64, error)
}

// Migration is one named, idempotent setup step.
type Migration struct {
	Name string
	Up   func(ctx context.Context, s Store) error
}

// MigrationError reports the migration that aborted Apply.
type MigrationError struct {
	Index int
	Name  string
	Err   error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration %d (%s): %v", e.Index+1, e.Name, e.Err)
}

func (e *MigrationError) Unwrap() error {
	return e.Err
}

// Runner applies an ordered list of migrations.
type Runner struct {
	migrations []Migration
	logger     *slog.Logger
}

// NewRunner creates a runner for migrations in the given order.
// A nil logger uses slog.Default().
func NewRunner(logger *slog.Logger, migrations ...Migration) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{migrations: migrations, logger: logger}
}

// Len returns the number of migrations, i.e. the version a fully migrated
// store reports.
func (r *Runner) Len() int {
	return len(r.migrations)
}

// Pending returns the migrations Apply would run, in order.
func (r *Runner) Pending(ctx context.Context, s Store) ([]Migration, error) {
	v, err := currentVersion(ctx, s)
	if err != nil {
		return nil, err
	}
	if v >= len(r.migrations) {
		return nil, nil
	}
	return r.migrations[v:], nil
}

// Apply runs every pending migration and then records the new version.
// It returns the number of migrations run.
//
// On error the version is left untouched and a *MigrationError is
// returned; detection must not run against the store.
func (r *Runner) Apply(ctx context.Context, s Store) (int, error) {
	v, err := currentVersion(ctx, s)
	if err != nil {
		return 0, err
	}

	total := len(r.migrations)
	if v > total {
		r.logger.Warn("store is newer than this binary", "version", v, "known", total)
		return 0, nil
	}
	if v == total {
		r.logger.Debug("no pending migrations", "version", v)
		return 0, nil
	}

	for i := v; i < total; i++ {
		m := r.migrations[i]
		r.logger.Info("applying migration", "index", i+1, "name", m.Name)
		if err := m.Up(ctx, s); err != nil {
			return i - v, &MigrationError{Index: i, Name: m.Name, Err: err}
		}
	}

	// Ordered after every write the migrations made.
	if err := s.SetVersion(ctx, total); err != nil {
		return total - v, fmt.Errorf("record version %d: %w", total, err)
	}

	r.logger.Info("migrations applied", "from", v, "to", total)
	return total - v, nil
}

// Reset clears every feature entry and the version counter, returning the
// store to the never-initialized state.
func Reset(ctx context.Context, s Store) error {
	if err := s.Reset(ctx); err != nil {
		return fmt.Errorf("reset store: %w", err)
	}
	return nil
}

func currentVersion(ctx context.Context, s Store) (int, error) {
	v, ok, err := s.GetVersion(ctx)
	if err != nil {
		return 0, fmt.Errorf("read version: %w", err)
	}
	if !ok {
		return 0, nil
	}
	return v, nil
}
