package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
	"github.com/vulpemventures/ledger-bitcoin/internal/config"
)

func TestConfig(t *testing.T) {
	datadir := t.TempDir()
	config.Set(config.DatadirKey, datadir)
	defer config.Unset(config.DatadirKey)

	t.Run("defaults", func(t *testing.T) {
		require.NoError(t, config.Load())
		require.Equal(t, &chaincfg.MainNetParams, config.GetNetwork())
		require.Equal(t, 5*time.Minute, config.GetTimeout())
		require.Equal(t, filepath.Join(datadir, "mainnet"), config.GetDatadir())
	})

	t.Run("invalid", func(t *testing.T) {
		tests := []struct {
			key   string
			value interface{}
		}{
			{config.NetworkKey, "liquid"},
			{config.DatabaseTypeKey, "postgres"},
			{config.TransportTypeKey, "hid"},
			{config.TimeoutKey, 0},
		}
		for _, tt := range tests {
			config.Set(tt.key, tt.value)
			require.Error(t, config.Validate(), tt.key)
			config.Unset(tt.key)
		}

		config.Set(config.TransportTypeKey, "websocket")
		require.Error(t, config.Validate())
		config.Set(config.DeviceAddrKey, "ws://127.0.0.1:8435")
		require.NoError(t, config.Validate())
		config.Unset(config.TransportTypeKey)
		config.Unset(config.DeviceAddrKey)
	})

	t.Run("persist", func(t *testing.T) {
		require.Error(t, config.Persist("unknown", "value"))
		require.Error(t, config.Persist(config.NetworkKey, "liquid"))
		require.Equal(t, &chaincfg.MainNetParams, config.GetNetwork())

		require.NoError(t, config.Persist("network", "testnet"))
		require.NoError(t, config.Persist(config.TimeoutKey, "60"))
		require.Equal(t, &chaincfg.TestNet3Params, config.GetNetwork())

		_, err := os.Stat(filepath.Join(datadir, config.ConfigFile))
		require.NoError(t, err)

		config.Unset(config.NetworkKey)
		config.Unset(config.TimeoutKey)
		require.NoError(t, config.Load())
		require.Equal(t, &chaincfg.TestNet3Params, config.GetNetwork())
		require.Equal(t, time.Minute, config.GetTimeout())

		settings := config.AllSettings()
		require.Equal(t, datadir, settings[config.DatadirKey])
	})
}
