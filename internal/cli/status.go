package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/baselinewatch/internal/store"
)

// StatusOptions holds flags for the status command.
type StatusOptions struct {
	*RootOptions
	List bool
}

// StoreStatus is the JSON payload of the status command.
type StoreStatus struct {
	DB          string               `json:"db"`
	Initialized bool                 `json:"initialized"`
	Version     int                  `json:"version"`
	Features    int                  `json:"features"`
	Entries     []store.FeatureEntry `json:"entries,omitempty"`
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StatusOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the store's schema version and recorded features",
		Long: `Show what the store holds: whether it was initialized, its schema
version and how many features have a recorded fingerprint.

Examples:
  baselinewatch status
  baselinewatch status --list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.List, "list", false, "list every recorded feature and its fingerprint")

	return cmd
}

func runStatus(opts *StatusOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return err
	}
	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose || cfg.Debug)

	st, closeStore, err := openStore(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := cmd.Context()
	version, ok, err := st.GetVersion(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read version", err)
	}
	features, err := st.ListFeatures(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list features", err)
	}

	status := StoreStatus{
		DB:          cfg.DBPath,
		Initialized: ok,
		Version:     version,
		Features:    len(features),
	}
	if opts.List {
		status.Entries = features
	}

	out := formatter(opts.RootOptions, cmd)
	if out.JSON() {
		return out.Success(status)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Database: %s\n", status.DB)
	if status.Initialized {
		fmt.Fprintf(w, "Version:  %s\n", okColor.Sprint(status.Version))
	} else {
		fmt.Fprintf(w, "Version:  %s\n", warnColor.Sprint("not initialized"))
	}
	fmt.Fprintf(w, "Features: %d\n", status.Features)
	for _, e := range status.Entries {
		fmt.Fprintf(w, "  %s  %s\n", shortFingerprint(e.Fingerprint), e.ID)
	}
	return nil
}

func shortFingerprint(fp string) string {
	if len(fp) > 12 {
		return fp[:12]
	}
	return fp
}
