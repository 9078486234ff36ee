package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/baselinewatch/internal/migrate"
)

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every recorded feature and the schema version",
		Long: `Clear the store. The next run re-applies the migrations, which seed
the store from the catalog again.

Example:
  baselinewatch reset --db ./baselinewatch.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(rootOpts)
			if err != nil {
				return err
			}
			logger := newLogger(cmd.ErrOrStderr(), rootOpts.Verbose || cfg.Debug)

			st, closeStore, err := openStore(cfg.DBPath, logger)
			if err != nil {
				return err
			}
			defer closeStore()

			if err := migrate.Reset(cmd.Context(), st); err != nil {
				return WrapExitError(ExitCommandError, "failed to reset store", err)
			}
			logger.Info("store reset", "db", cfg.DBPath)

			out := formatter(rootOpts, cmd)
			if out.JSON() {
				return out.Success(map[string]any{"reset": true, "db": cfg.DBPath})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Store reset: %s\n", mark(true), cfg.DBPath)
			return nil
		},
	}
}
