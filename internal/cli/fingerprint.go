package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/baselinewatch/internal/ir"
)

// FingerprintResult is the JSON payload of the fingerprint command.
type FingerprintResult struct {
	Fingerprint string `json:"fingerprint"`
	Canonical   string `json:"canonical,omitempty"`
}

// NewFingerprintCommand creates the fingerprint command.
func NewFingerprintCommand(rootOpts *RootOptions) *cobra.Command {
	var showCanonical bool

	cmd := &cobra.Command{
		Use:   "fingerprint <record.json>",
		Short: "Print the fingerprint of a JSON record",
		Long: `Compute the fingerprint the detector would store for a record.
Use "-" to read the record from stdin.

Examples:
  baselinewatch fingerprint feature.json
  echo '{"name":"Grid"}' | baselinewatch fingerprint - --canonical`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read record", err)
			}

			record, err := ir.UnmarshalRecord(data)
			if err != nil {
				return WrapExitError(ExitFailure, "invalid record", err)
			}
			fp, err := ir.Fingerprint(record)
			if err != nil {
				return WrapExitError(ExitFailure, "record has no fingerprint", err)
			}

			res := FingerprintResult{Fingerprint: fp}
			if showCanonical {
				canonical, err := ir.MarshalCanonical(record)
				if err != nil {
					return WrapExitError(ExitFailure, "record has no canonical form", err)
				}
				res.Canonical = string(canonical)
			}

			out := formatter(rootOpts, cmd)
			if out.JSON() {
				return out.Success(res)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintln(w, res.Fingerprint)
			if res.Canonical != "" {
				fmt.Fprintln(w, res.Canonical)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showCanonical, "canonical", false, "also print the canonical JSON that is hashed")

	return cmd
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("file not found: %s", path)
	}
	return data, err
}
