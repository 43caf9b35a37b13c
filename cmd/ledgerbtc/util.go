package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	appconfig "github.com/vulpemventures/ledger-bitcoin/internal/app-config"
	"github.com/vulpemventures/ledger-bitcoin/internal/config"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/application"
	"github.com/vulpemventures/ledger-bitcoin/pkg/apdu"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
	"github.com/vulpemventures/ledger-bitcoin/pkg/profiler"
)

var (
	colorRed   = string("\033[31m")
	colorReset = string("\033[0m")

	// Global flags, overriding env vars and config file entries.
	networkFlag   string
	transportFlag string
	deviceFlag    string
	datadirFlag   string

	appCfg      *appconfig.AppConfig
	profilerSvc *profiler.ProfilerService
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&networkFlag, "network", "", "bitcoin network (mainnet, testnet, regtest, signet)")
	flags.StringVar(&transportFlag, "transport", "", "how to reach the device (speculos, websocket)")
	flags.StringVar(&deviceFlag, "device", "", "address of the device for the chosen transport")
	flags.StringVar(&datadirFlag, "datadir", "", "data directory")
}

// setup merges flags, env vars and config file, then prepares the datadir
// and the metrics dump. The connection to the device is opened lazily.
func setup(cmd *cobra.Command, _ []string) error {
	if len(datadirFlag) > 0 {
		config.Set(config.DatadirKey, cleanAndExpandPath(datadirFlag))
	}
	if err := config.Load(); err != nil {
		return err
	}
	overrides := map[string]string{
		config.NetworkKey:       networkFlag,
		config.TransportTypeKey: transportFlag,
		config.DeviceAddrKey:    deviceFlag,
	}
	for key, value := range overrides {
		if len(value) > 0 {
			config.Set(key, value)
		}
	}
	if err := config.Validate(); err != nil {
		return err
	}

	log.SetLevel(log.Level(config.GetInt(config.LogLevelKey)))

	if isConfigCmd(cmd) {
		return nil
	}

	if err := config.InitDatadir(); err != nil {
		return fmt.Errorf("error while creating datadir: %w", err)
	}
	datadir := config.GetDatadir()

	var registerer prometheus.Registerer
	if noMetrics := config.GetBool(config.NoMetricsKey); !noMetrics {
		registry := prometheus.NewRegistry()
		registerer = registry

		svc, err := profiler.NewService(profiler.ServiceOpts{
			Port:          config.GetInt(config.MetricsPortKey),
			StatsInterval: config.GetStatsInterval(),
			Datadir:       filepath.Join(datadir, config.MetricsLocation),
			Gatherer:      registry,
		})
		if err != nil {
			return err
		}
		if err := svc.Start(); err != nil {
			return err
		}
		profilerSvc = svc
	}

	appCfg = &appconfig.AppConfig{
		Version:           version,
		Commit:            commit,
		Date:              date,
		Network:           config.GetNetwork(),
		TransportType:     config.GetString(config.TransportTypeKey),
		DeviceAddr:        config.GetString(config.DeviceAddrKey),
		RepoManagerType:   config.GetString(config.DatabaseTypeKey),
		RepoManagerConfig: filepath.Join(datadir, config.DbLocation),
		MetricsRegisterer: registerer,
	}
	return appCfg.Validate()
}

func teardown() {
	if appCfg != nil {
		appCfg.Close()
		appCfg = nil
	}
	if profilerSvc != nil {
		profilerSvc.Stop()
		profilerSvc = nil
	}
}

func isConfigCmd(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd {
			return true
		}
	}
	return false
}

// getSignerService returns the service connected to the device, with a
// context bound to the configured timeout and to SIGINT/SIGTERM.
func getSignerService() (*application.SignerService, context.Context, func(), error) {
	ctx, stop := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	ctx, cancel := context.WithTimeout(ctx, config.GetTimeout())
	cleanup := func() {
		cancel()
		stop()
	}

	svc, err := appCfg.SignerService(ctx)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return svc, ctx, cleanup, nil
}

func printJSON(v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "   ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %s", err)
	}
	fmt.Println(string(buf))
	return nil
}

func printErr(err error) {
	msg := capitalize(err.Error())

	var clientErr *client.Error
	if errors.As(err, &clientErr) {
		switch clientErr.Kind() {
		case client.ErrDevice:
			status, _ := clientErr.Status()
			if status == apdu.SwDeny {
				msg = "Request denied on the device"
			}
		case client.ErrUnsupportedAppVersion:
			msg = "Open the Bitcoin app, version 2.1.0 or later, on the device"
		}
	}

	fmt.Fprintf(os.Stderr, "%s%s%s\n", colorRed, msg, colorReset)
}

func cleanAndExpandPath(path string) string {
	if path == "" {
		return ""
	}

	// Expand initial ~ to OS specific home directory.
	if strings.HasPrefix(path, "~") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			homeDir = os.Getenv("HOME")
		}
		path = strings.Replace(path, "~", homeDir, 1)
	}

	// NOTE: The os.ExpandEnv doesn't work with Windows-style %VARIABLE%,
	// but the variables can still be expanded via POSIX-style $VARIABLE.
	return filepath.Clean(os.ExpandEnv(path))
}

func capitalize(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[0:1]) + s[1:]
}
