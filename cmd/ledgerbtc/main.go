package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	rootCmd = &cobra.Command{
		Use:   "ledgerbtc",
		Short: "CLI for the Bitcoin app of Ledger devices",
		Long: "This CLI lets you export keys, register wallet policies and sign " +
			"PSBTs and messages with a Ledger device running the Bitcoin app",
		PersistentPreRunE: setup,
		SilenceUsage:      true,
		SilenceErrors:     true,
		Version:           formatVersion(),
	}
)

func init() {
	rootCmd.AddCommand(configCmd, versionCmd, fingerprintCmd, xpubCmd, walletCmd, signCmd)
}

func main() {
	if err := execute(os.Args[1:]); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

// execute runs the command for the given args and releases what setup
// opened, whether or not the command failed.
func execute(args []string) error {
	defer teardown()

	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func formatVersion() string {
	return fmt.Sprintf(
		"\nVersion: %s\nCommit: %s\nDate: %s", version, commit, date,
	)
}
