package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vulpemventures/ledger-bitcoin/internal/config"
)

var (
	configSetCmd = &cobra.Command{
		Use:   "set <key> <value>",
		Short: "edit single CLI config entry",
		Long: "this command lets you customize a single configuration entry of " +
			"the CLI, persisted in the datadir. Env vars prefixed with LEDGER_ " +
			"take precedence",
		Args: cobra.ExactArgs(2),
		RunE: configSet,
	}
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "print or edit CLI configuration",
		Long: "this command lets you show or customize the configuration of " +
			"the CLI",
		RunE: configPrint,
	}
)

func init() {
	configCmd.AddCommand(configSetCmd)
}

func configSet(_ *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if err := config.Persist(key, value); err != nil {
		return err
	}

	fmt.Printf("%s %s has been set\n", key, value)
	return nil
}

func configPrint(_ *cobra.Command, _ []string) error {
	return printJSON(config.AllSettings())
}
