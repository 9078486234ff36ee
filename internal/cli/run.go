package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/baselinewatch/internal/catalog"
	"github.com/roach88/baselinewatch/internal/config"
	"github.com/roach88/baselinewatch/internal/detect"
	"github.com/roach88/baselinewatch/internal/metrics"
	"github.com/roach88/baselinewatch/internal/migrate"
	"github.com/roach88/baselinewatch/internal/publish"
	"github.com/roach88/baselinewatch/internal/runner"
	"github.com/roach88/baselinewatch/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Reset      bool
	DryRun     bool
	SourceKind string
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one fetch, detect and publish cycle",
		Long: `Run one cycle: apply pending migrations, fetch the catalog, record
new fingerprints, and post every new or changed feature in order.

A fresh store is seeded from the catalog by the migrations, so the first
run announces nothing. With --reset the store is cleared and the command
exits without fetching.

Exit codes:
  0 - Cycle finished, every change posted
  1 - Fetch, detection or publish failure
  2 - Command error (configuration, database)

Examples:
  baselinewatch run
  baselinewatch run --dry-run --source release
  baselinewatch run --reset --db /tmp/test.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCycle(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "clear the store and exit")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "log posts instead of publishing them")
	cmd.Flags().StringVar(&opts.SourceKind, "source", "", "catalog source (webstatus|release|rss, default $BASELINE_SOURCE)")

	return cmd
}

func runCycle(opts *RunOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.SourceKind != "" {
		cfg.Source = strings.ToLower(opts.SourceKind)
	}
	if opts.DryRun {
		cfg.DryRun = true
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose || cfg.Debug)
	out := formatter(opts.RootOptions, cmd)

	st, closeStore, err := openStore(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	if opts.Reset {
		if err := migrate.Reset(ctx, st); err != nil {
			return WrapExitError(ExitCommandError, "failed to reset store", err)
		}
		logger.Info("store reset", "db", cfg.DBPath)
		if out.JSON() {
			return out.Success(map[string]any{"reset": true, "db": cfg.DBPath})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Store reset: %s\n", mark(true), cfg.DBPath)
		return nil
	}

	r, err := newRunner(opts.RootOptions, cfg, st, metrics.New(prometheus.NewRegistry()), logger)
	if err != nil {
		return err
	}
	if err := applyMigrations(ctx, r.Source, st, logger); err != nil {
		return reportFailure(out, "E_MIGRATE", "migration failed", err)
	}

	sum, runErr := r.RunOnce(ctx)
	if err := writeSummary(out, sum, runErr); err != nil {
		return err
	}
	if runErr != nil {
		return WrapExitError(ExitFailure, "run failed", runErr)
	}
	return nil
}

// newRunner wires a runner from configuration.
func newRunner(opts *RootOptions, cfg *config.Config, st *store.Store, m *metrics.Metrics, logger *slog.Logger) (*runner.Runner, error) {
	src, err := opts.source(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &runner.Runner{
		Source:    src,
		Detector:  detect.New(st, detect.WithLogger(logger)),
		Publisher: opts.publisher(cfg, logger),
		Metrics:   m,
		Logger:    logger,
	}, nil
}

// errorCode maps a run error to a stable CLI error code.
func errorCode(err error) string {
	switch {
	case errors.Is(err, catalog.ErrUpstream):
		return "E_FETCH"
	case errors.Is(err, store.ErrStorageUnavailable):
		return "E_STORAGE"
	case errors.Is(err, publish.ErrPublish):
		return "E_PUBLISH"
	}
	return "E_DETECT"
}

// writeSummary prints a finished run.
func writeSummary(out *OutputFormatter, sum *runner.Summary, runErr error) error {
	if out.JSON() {
		resp := CLIResponse{Status: "ok", Data: sum, RunID: sum.RunID}
		if runErr != nil {
			resp.Status = "error"
			resp.Error = &CLIError{Code: errorCode(runErr), Message: runErr.Error()}
		}
		return out.encode(resp)
	}

	printSummary(out.Writer, sum)
	if runErr != nil {
		fmt.Fprintf(out.Writer, "%s [%s]: %v\n", failColor.Sprint("Error"), errorCode(runErr), runErr)
	}
	return nil
}

func printSummary(w io.Writer, sum *runner.Summary) {
	fmt.Fprintf(w, "Run %s (%s): fetched %d, changed %d, unchanged %d, published %d\n",
		sum.RunID, sum.Source, sum.Fetched, len(sum.Changed), sum.Unchanged, sum.Published)
	// A detection error stops the run before anything is posted.
	attempted := sum.Published+len(sum.Failed) == len(sum.Changed)
	for _, id := range sum.Changed {
		if !attempted || slices.Contains(sum.Failed, id) {
			fmt.Fprintf(w, "  %s %s (not posted)\n", mark(false), id)
			continue
		}
		fmt.Fprintf(w, "  %s %s\n", mark(true), id)
	}
	for _, id := range sum.Skipped {
		fmt.Fprintf(w, "  %s %s (skipped: no canonical form)\n", warnColor.Sprint("!"), id)
	}
}
