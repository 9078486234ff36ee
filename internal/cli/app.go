package cli

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/baselinewatch/internal/catalog"
	"github.com/roach88/baselinewatch/internal/config"
	"github.com/roach88/baselinewatch/internal/publish"
	"github.com/roach88/baselinewatch/internal/store"
)

// loadConfig reads the environment and applies global flag overrides.
func loadConfig(opts *RootOptions) (*config.Config, error) {
	var files []string
	if opts.EnvFile != "" {
		files = append(files, opts.EnvFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load configuration", err)
	}
	if opts.Database != "" {
		cfg.DBPath = opts.Database
	}
	return cfg, nil
}

// newLogger returns a text logger on w. Debug level is enabled by
// --verbose or BASELINE_DEBUG.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openStore opens the database at path, creating it if needed.
func openStore(path string, logger *slog.Logger) (*store.Store, func(), error) {
	logger.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	closeFn := func() {
		if err := st.Close(); err != nil {
			logger.Error("error closing database", "error", err)
		}
	}
	return st, closeFn, nil
}

// formatter builds the OutputFormatter for cmd.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// source returns the catalog source, honoring the test override.
func (o *RootOptions) source(cfg *config.Config, logger *slog.Logger) (catalog.Source, error) {
	if o.Source != nil {
		return o.Source, nil
	}
	src, err := cfg.NewSource(logger)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid source", err)
	}
	return src, nil
}

// publisher returns the publisher, honoring the test override.
func (o *RootOptions) publisher(cfg *config.Config, logger *slog.Logger) publish.Publisher {
	if o.Publisher != nil {
		return o.Publisher
	}
	return cfg.NewPublisher(logger)
}

// signalContext returns a context cancelled on SIGINT/SIGTERM or when
// the command's own context ends.
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	// Use command's context if available (for testing), otherwise create one
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan) // Prevent signal handler leak
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
