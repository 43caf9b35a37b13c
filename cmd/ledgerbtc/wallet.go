package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/vulpemventures/ledger-bitcoin/pkg/wallet/policy"
)

var (
	walletName string
	template   string
	keys       []string
	change     bool
	index      uint32
	account    uint32

	walletRegisterCmd = &cobra.Command{
		Use:   "register",
		Short: "register a wallet policy on the device",
		Long: "this command lets you register a named wallet policy, for " +
			"example a multisig, after reviewing it on the device. The proof " +
			"of registration is stored in the datadir",
		RunE: walletRegister,
	}
	walletListCmd = &cobra.Command{
		Use:   "list",
		Short: "list registered wallets",
		RunE:  walletList,
	}
	walletDeleteCmd = &cobra.Command{
		Use:   "delete",
		Short: "forget a registered wallet",
		Long: "this command deletes the proof of registration of a wallet " +
			"from the datadir. The wallet must be registered again to be used",
		RunE: walletDelete,
	}
	walletAddressCmd = &cobra.Command{
		Use:   "address",
		Short: "derive an address",
		Long: "this command derives an address of a registered wallet or, " +
			"if no name is given, of the standard account of a default " +
			"single-signature template",
		RunE: walletAddress,
	}
	walletCmd = &cobra.Command{
		Use:   "wallet",
		Short: "manage wallet policies",
		Long: "this command lets you register wallet policies on the device " +
			"and derive their addresses",
	}
)

func init() {
	walletRegisterCmd.Flags().StringVar(&walletName, "name", "", "name of the wallet")
	walletRegisterCmd.Flags().StringVar(
		&template, "template", "", "descriptor template, like wsh(sortedmulti(2,@0/**,@1/**))",
	)
	walletRegisterCmd.Flags().StringSliceVar(
		&keys, "key", nil, "key in key origin notation, repeat for each @N of the template",
	)
	walletRegisterCmd.MarkFlagRequired("name")
	walletRegisterCmd.MarkFlagRequired("template")
	walletRegisterCmd.MarkFlagRequired("key")

	walletDeleteCmd.Flags().StringVar(&walletName, "name", "", "name of the wallet")
	walletDeleteCmd.MarkFlagRequired("name")

	walletAddressCmd.Flags().StringVar(&walletName, "name", "", "name of the registered wallet")
	walletAddressCmd.Flags().StringVar(
		&template, "template", policy.TemplateNativeSegwit,
		"default template used if no name is given",
	)
	walletAddressCmd.Flags().Uint32Var(&account, "account", 0, "account of the default template")
	walletAddressCmd.Flags().BoolVar(&change, "change", false, "derive a change address")
	walletAddressCmd.Flags().Uint32Var(&index, "index", 0, "address index")
	walletAddressCmd.Flags().BoolVar(
		&display, "display", false, "show the address on the device for verification",
	)

	walletCmd.AddCommand(
		walletRegisterCmd, walletListCmd, walletDeleteCmd, walletAddressCmd,
	)
}

func walletRegister(_ *cobra.Command, _ []string) error {
	svc, ctx, cleanup, err := getSignerService()
	if err != nil {
		return err
	}
	defer cleanup()

	wallet, err := svc.RegisterWallet(ctx, walletName, template, keys)
	if err != nil {
		return err
	}

	return printJSON(wallet)
}

func walletList(_ *cobra.Command, _ []string) error {
	wallets, err := appCfg.WalletService().ListWallets(context.Background())
	if err != nil {
		return err
	}
	return printJSON(wallets)
}

func walletDelete(_ *cobra.Command, _ []string) error {
	err := appCfg.WalletService().DeleteWallet(context.Background(), walletName)
	if err != nil {
		return err
	}
	return printJSON(map[string]string{"deleted": walletName})
}

func walletAddress(_ *cobra.Command, _ []string) error {
	svc, ctx, cleanup, err := getSignerService()
	if err != nil {
		return err
	}
	defer cleanup()

	var addr string
	if len(walletName) > 0 {
		addr, err = svc.DeriveAddress(ctx, walletName, change, index, display)
	} else {
		addr, err = svc.DeriveDefaultAddress(ctx, template, account, change, index, display)
	}
	if err != nil {
		return err
	}

	return printJSON(map[string]string{"address": addr})
}
