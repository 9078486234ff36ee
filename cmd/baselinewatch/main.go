// Command baselinewatch announces web platform features as they reach
// Baseline.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/baselinewatch/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
