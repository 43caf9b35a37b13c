package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

var (
	psbtFile string

	signPsbtCmd = &cobra.Command{
		Use:   "psbt [base64]",
		Short: "sign a PSBT",
		Long: "this command signs the inputs of the given base64 encoded PSBT " +
			"that belong to a registered wallet or, if no name is given, to " +
			"the standard account of a default single-signature template. " +
			"The PSBT can be read from a file with --file",
		Args: cobra.MaximumNArgs(1),
		RunE: signPsbt,
	}
	signMessageCmd = &cobra.Command{
		Use:   "message <path> <message>",
		Short: "sign a message",
		Long: "this command signs the message with the key derived at the " +
			"given path, in the Bitcoin Signed Message format",
		Args: cobra.ExactArgs(2),
		RunE: signMessage,
	}
	signCmd = &cobra.Command{
		Use:   "sign",
		Short: "sign PSBTs and messages",
	}
)

func init() {
	signPsbtCmd.Flags().StringVar(&walletName, "name", "", "name of the registered wallet")
	signPsbtCmd.Flags().StringVar(
		&template, "template", policy.TemplateNativeSegwit,
		"default template used if no name is given",
	)
	signPsbtCmd.Flags().Uint32Var(&account, "account", 0, "account of the default template")
	signPsbtCmd.Flags().StringVar(&psbtFile, "file", "", "file containing the base64 encoded PSBT")

	signCmd.AddCommand(signPsbtCmd, signMessageCmd)
}

func signPsbt(_ *cobra.Command, args []string) error {
	encoded, err := readPsbt(args)
	if err != nil {
		return err
	}

	svc, ctx, cleanup, err := getSignerService()
	if err != nil {
		return err
	}
	defer cleanup()

	if len(walletName) > 0 {
		signed, err := svc.SignPsbt(ctx, walletName, encoded)
		if err != nil {
			return err
		}
		return printJSON(signed)
	}

	signed, err := svc.SignPsbtWithDefault(ctx, template, account, encoded)
	if err != nil {
		return err
	}
	return printJSON(signed)
}

func signMessage(_ *cobra.Command, args []string) error {
	svc, ctx, cleanup, err := getSignerService()
	if err != nil {
		return err
	}
	defer cleanup()

	sig, err := svc.SignMessage(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	return printJSON(sig)
}

func readPsbt(args []string) (string, error) {
	if len(psbtFile) > 0 {
		buf, err := os.ReadFile(cleanAndExpandPath(psbtFile))
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(buf)), nil
	}
	if len(args) == 0 {
		return "", fmt.Errorf("missing psbt, pass it as argument or with --file")
	}
	return args[0], nil
}
