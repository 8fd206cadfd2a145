// TxSentinel CLI - Scores Ethereum transactions from the terminal
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	if err := newRootCmd(defaultScanner).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open scannerFactory) *cobra.Command {
	root := &cobra.Command{
		Use:           "txsentinel",
		Short:         "Risk scoring and intent classification for Ethereum transactions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("no-color", false, "disable colored output")
	root.PersistentFlags().Bool("json", false, "print JSON instead of text")

	root.AddCommand(newScoreCmd(), newScanCmd(open))
	return root
}
