package main

import (
	"github.com/spf13/cobra"
)

var (
	display bool

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "get info about the app running on the device",
		Long: "this command returns the name, version and flags of the app " +
			"running on the device along with the build info of the CLI",
		RunE: deviceVersion,
	}
	fingerprintCmd = &cobra.Command{
		Use:   "fingerprint",
		Short: "get the master key fingerprint",
		RunE:  deviceFingerprint,
	}
	xpubCmd = &cobra.Command{
		Use:   "xpub <path>",
		Short: "get an extended public key",
		Long: "this command returns the extended public key derived at the " +
			"given path, like m/84'/1'/0', also in key origin notation " +
			"ready to be used for registering a wallet policy",
		Args: cobra.ExactArgs(1),
		RunE: deviceXpub,
	}
)

func init() {
	xpubCmd.Flags().BoolVar(
		&display, "display", false, "show the key on the device for verification",
	)
}

func deviceVersion(_ *cobra.Command, _ []string) error {
	svc, ctx, cleanup, err := getSignerService()
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := svc.GetDeviceInfo(ctx)
	if err != nil {
		return err
	}

	return printJSON(map[string]interface{}{
		"app_name":    info.AppName,
		"app_version": info.AppVersion,
		"app_flags":   info.AppFlags,
		"network":     info.Network,
		"build_info":  svc.GetBuildInfo(),
	})
}

func deviceFingerprint(_ *cobra.Command, _ []string) error {
	svc, ctx, cleanup, err := getSignerService()
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := svc.GetDeviceInfo(ctx)
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"master_fingerprint": info.MasterFingerprint,
	})
}

func deviceXpub(_ *cobra.Command, args []string) error {
	svc, ctx, cleanup, err := getSignerService()
	if err != nil {
		return err
	}
	defer cleanup()

	info, err := svc.GetXpub(ctx, args[0], display)
	if err != nil {
		return err
	}

	return printJSON(map[string]string{
		"path": info.Path,
		"xpub": info.Xpub,
		"key":  info.Key,
	})
}
