package cli

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/roach88/baselinewatch/internal/health"
	"github.com/roach88/baselinewatch/internal/metrics"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Schedule   string
	Addr       string
	RunNow     bool
	SourceKind string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run cycles on a cron schedule and expose /healthz and /metrics",
		Long: `Apply pending migrations, then run a cycle on every tick of the cron
schedule until interrupted. A tick that fires while the previous cycle is
still running is skipped.

/healthz reports the last run; /metrics exposes Prometheus collectors.

This process does not lock the database: run one instance per store.

Examples:
  baselinewatch serve
  baselinewatch serve --schedule "*/30 * * * *" --addr :9090 --now`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Schedule, "schedule", "", "cron schedule (default $BASELINE_SCHEDULE or hourly)")
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "health listen address (default $BASELINE_HEALTH_ADDR or :8080)")
	cmd.Flags().BoolVar(&opts.RunNow, "now", false, "run one cycle immediately instead of waiting for the first tick")
	cmd.Flags().StringVar(&opts.SourceKind, "source", "", "catalog source (webstatus|release|rss)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	if opts.Schedule != "" {
		cfg.Schedule = opts.Schedule
	}
	if opts.Addr != "" {
		cfg.HealthAddr = opts.Addr
	}
	if opts.SourceKind != "" {
		cfg.Source = opts.SourceKind
	}
	if err := cfg.Validate(); err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	sched, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("invalid schedule %q", cfg.Schedule), err)
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose || cfg.Debug)

	st, closeStore, err := openStore(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx, cancel := signalContext(cmd, logger)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	r, err := newRunner(opts.RootOptions, cfg, st, metrics.New(reg), logger)
	if err != nil {
		return err
	}
	if err := applyMigrations(ctx, r.Source, st, logger); err != nil {
		return WrapExitError(ExitFailure, "migration failed", err)
	}

	srv := health.New(reg, logger)
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError))
	job := cron.NewChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	).Then(cron.FuncJob(func() {
		sum, err := r.RunOnce(ctx)
		srv.Record(sum)
		if err != nil {
			logger.Warn("cycle finished with errors", "run_id", sum.RunID, "error", err)
		}
	}))

	c := cron.New(cron.WithLogger(cronLogger))
	c.Schedule(sched, job)
	c.Start()
	logger.Info("scheduler started", "schedule", cfg.Schedule, "source", r.Source.Name())

	var wg sync.WaitGroup
	if opts.RunNow {
		wg.Add(1)
		go func() {
			defer wg.Done()
			job.Run()
		}()
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Serving health on %s, schedule %q. Press Ctrl-C to stop.\n", cfg.HealthAddr, cfg.Schedule)
	serveErr := srv.ListenAndServe(ctx, cfg.HealthAddr)

	// Stop scheduling and wait for a cycle in flight before closing the store.
	cancel()
	<-c.Stop().Done()
	wg.Wait()

	if serveErr != nil {
		return WrapExitError(ExitCommandError, "health server failed", serveErr)
	}
	logger.Info("stopped gracefully")
	return nil
}
