package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/baselinewatch/internal/catalog"
	"github.com/roach88/baselinewatch/internal/migrate"
	"github.com/roach88/baselinewatch/internal/store"
)

// MigrateOptions holds flags for the migrate command.
type MigrateOptions struct {
	*RootOptions
	Pending bool
}

// MigrationReport is the JSON payload of the migrate command.
type MigrationReport struct {
	Version int      `json:"version"`
	Applied int      `json:"applied"`
	Pending []string `json:"pending,omitempty"`
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MigrateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending store migrations",
		Long: `Bring the store up to the current schema version.

Migrations run in order and the version is recorded only after all of
them succeed. Running the command again is a no-op. The seeding
migration fetches the configured catalog.

Examples:
  baselinewatch migrate
  baselinewatch migrate --pending`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Pending, "pending", false, "list pending migrations without applying them")

	return cmd
}

func runMigrate(opts *MigrateOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
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

	src, err := opts.source(cfg, logger)
	if err != nil {
		return err
	}
	runner := migrate.NewRunner(logger, migrate.Builtin(src, logger)...)

	report := MigrationReport{}
	if opts.Pending {
		pending, err := runner.Pending(ctx, st)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to read version", err)
		}
		report.Pending = []string{}
		for _, m := range pending {
			report.Pending = append(report.Pending, m.Name)
		}
	} else {
		n, err := runner.Apply(ctx, st)
		if err != nil {
			return reportFailure(out, "E_MIGRATE", "migration failed", err)
		}
		report.Applied = n
	}

	v, ok, err := st.GetVersion(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read version", err)
	}
	if !ok {
		v = 0
	}
	report.Version = v

	if out.JSON() {
		return out.Success(report)
	}
	w := cmd.OutOrStdout()
	if opts.Pending {
		if len(report.Pending) == 0 {
			fmt.Fprintf(w, "%s Store is up to date (version %d)\n", mark(true), v)
			return nil
		}
		fmt.Fprintf(w, "%d pending migration(s) at version %d:\n", len(report.Pending), v)
		for _, name := range report.Pending {
			fmt.Fprintf(w, "  - %s\n", name)
		}
		return nil
	}
	fmt.Fprintf(w, "%s Applied %d migration(s), store at version %d\n", mark(true), report.Applied, v)
	return nil
}

// applyMigrations runs the built-in migrations before a cycle.
// Detection must not run against a store that failed to migrate.
func applyMigrations(ctx context.Context, src catalog.Source, st *store.Store, logger *slog.Logger) error {
	_, err := migrate.NewRunner(logger, migrate.Builtin(src, logger)...).Apply(ctx, st)
	return err
}
