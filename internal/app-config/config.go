package appconfig

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/ledger-bitcoin/internal/config"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/application"
	"github.com/vulpemventures/ledger-bitcoin/internal/core/ports"
	dbbadger "github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/storage/db/inmemory"
	instrumented_transport "github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/transport/instrumented"
	speculos_transport "github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/transport/speculos"
	ws_transport "github.com/vulpemventures/ledger-bitcoin/internal/infrastructure/transport/websocket"
	"github.com/vulpemventures/ledger-bitcoin/pkg/client"
)

// AppConfig is the struct holding all configuration options for the signer
// service. This data structure acts also as a factory of the service and
// the portable services used by it.
// Public config args:
//   - Network - (required) The Bitcoin network (mainnet, testnet, regtest, signet).
//   - TransportType - (required) One of the supported transport types.
//   - DeviceAddr - (required) The address of the device for the given transport type.
//   - RepoManagerType - (required) One of the supported repository manager types.
//   - RepoManagerConfig - (optional) Custom config args for the repository manager based on its type.
//   - MetricsRegisterer - (optional) Where transport metrics are registered, disabled if nil.
type AppConfig struct {
	Version string
	Commit  string
	Date    string

	Network       *chaincfg.Params
	TransportType string
	DeviceAddr    string

	RepoManagerType   string
	RepoManagerConfig interface{}
	MetricsRegisterer prometheus.Registerer

	rm        ports.RepoManager
	transport client.Transport
	signerSvc *application.SignerService
	walletSvc *application.WalletService
}

func (c *AppConfig) Validate() error {
	if c.Network == nil {
		return fmt.Errorf("missing network")
	}
	if len(c.TransportType) == 0 {
		return fmt.Errorf("missing transport type")
	}
	if _, ok := config.SupportedTransports[c.TransportType]; !ok {
		return fmt.Errorf(
			"transport type not supported, must be one of: %s",
			config.SupportedTransports,
		)
	}
	if len(c.DeviceAddr) == 0 {
		return fmt.Errorf("missing device address")
	}
	if len(c.RepoManagerType) == 0 {
		return fmt.Errorf("missing repo manager type")
	}
	if _, ok := config.SupportedDbs[c.RepoManagerType]; !ok {
		return fmt.Errorf(
			"repo manager type not supported, must be one of: %s",
			config.SupportedDbs,
		)
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}

	return nil
}

func (c *AppConfig) RepoManager() ports.RepoManager {
	return c.rm
}

func (c *AppConfig) WalletService() *application.WalletService {
	return c.walletService()
}

// SignerService connects to the device, if not yet done, and returns the
// service talking to it.
func (c *AppConfig) SignerService(
	ctx context.Context,
) (*application.SignerService, error) {
	return c.signerService(ctx)
}

// Close closes the connection with the device and the repositories.
func (c *AppConfig) Close() {
	if c.transport != nil {
		if closer, ok := c.transport.(interface{ Close() error }); ok {
			if err := closer.Close(); err != nil {
				log.WithError(err).Warn("app config: failed to close transport")
			}
		}
	}
	if c.rm != nil {
		c.rm.Close()
	}
}

func (c *AppConfig) repoManager() (ports.RepoManager, error) {
	if c.rm != nil {
		return c.rm, nil
	}

	switch c.RepoManagerType {
	case "inmemory":
		c.rm = inmemory.NewRepoManager()
		return c.rm, nil
	case "badger":
		if c.RepoManagerConfig == nil {
			return nil, fmt.Errorf("missing repo manager config args")
		}
		datadir, ok := c.RepoManagerConfig.(string)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be string")
		}
		rm, err := dbbadger.NewRepoManager(datadir, log.New())
		if err != nil {
			return nil, err
		}
		c.rm = rm
		return c.rm, nil
	default:
		return nil, fmt.Errorf("unknown repo manager type")
	}
}

func (c *AppConfig) deviceTransport(ctx context.Context) (client.Transport, error) {
	if c.transport != nil {
		return c.transport, nil
	}

	var t client.Transport
	switch c.TransportType {
	case "speculos":
		tr, err := speculos_transport.NewTransport(ctx, c.DeviceAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to device: %w", err)
		}
		t = tr
	case "websocket":
		tr, err := ws_transport.NewTransport(ctx, c.DeviceAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to device: %w", err)
		}
		t = tr
	default:
		return nil, fmt.Errorf("unknown transport type")
	}

	if c.MetricsRegisterer != nil {
		tr, err := instrumented_transport.NewTransport(t, c.MetricsRegisterer)
		if err != nil {
			if closer, ok := t.(interface{ Close() error }); ok {
				// nolint
				closer.Close()
			}
			return nil, err
		}
		t = tr
	}

	c.transport = t
	return c.transport, nil
}

func (c *AppConfig) signerService(
	ctx context.Context,
) (*application.SignerService, error) {
	if c.signerSvc != nil {
		return c.signerSvc, nil
	}

	rm, err := c.repoManager()
	if err != nil {
		return nil, err
	}
	t, err := c.deviceTransport(ctx)
	if err != nil {
		return nil, err
	}

	device := client.New(t, c.Network)
	c.signerSvc = application.NewSignerService(
		device, rm, c.Network, c.buildInfo(),
	)
	return c.signerSvc, nil
}

func (c *AppConfig) walletService() *application.WalletService {
	if c.walletSvc != nil {
		return c.walletSvc
	}

	rm, _ := c.repoManager()
	c.walletSvc = application.NewWalletService(rm)
	return c.walletSvc
}

func (c *AppConfig) buildInfo() application.BuildInfo {
	version := "dev"
	if c.Version != "" {
		version = c.Version
	}
	commit := "none"
	if c.Commit != "" {
		commit = c.Commit
	}
	date := "unknown"
	if c.Date != "" {
		date = c.Date
	}
	return application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}
