package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the key to customize the datadir.
	DatadirKey = "DATADIR"
	// NetworkKey is the key to customize the Bitcoin network.
	NetworkKey = "NETWORK"
	// TransportTypeKey is the key to customize the way the device is reached.
	TransportTypeKey = "TRANSPORT"
	// DeviceAddrKey is the key to customize the address of the device, a
	// host:port for speculos or a ws:// url for the websocket bridge.
	DeviceAddrKey = "DEVICE_ADDR"
	// DatabaseTypeKey is the key to customize the type of database to use.
	DatabaseTypeKey = "DATABASE_TYPE"
	// LogLevelKey is the key to customize the log level to catch more specific
	// or more high level logs.
	LogLevelKey = "LOG_LEVEL"
	// NoMetricsKey is the key to disable the dump of Prometheus metrics.
	NoMetricsKey = "NO_METRICS"
	// MetricsPortKey is the key to expose the metrics over http while a
	// command runs. Disabled if zero.
	MetricsPortKey = "METRICS_PORT"
	// StatsIntervalKey is the key to customize the interval for the profiler
	// to log memory stats.
	StatsIntervalKey = "STATS_INTERVAL"
	// TimeoutKey is the key to customize the time in seconds an operation
	// can take, user confirmation on the device included.
	TimeoutKey = "TIMEOUT"

	// DbLocation is the folder inside the datadir containing db files.
	DbLocation = "db"
	// MetricsLocation is the folder inside the datadir containing the dumped
	// metrics.
	MetricsLocation = "metrics"
	// ConfigFile is the file inside the datadir where the entries set with
	// the CLI are persisted.
	ConfigFile = "config.json"
)

var (
	vip *viper.Viper

	defaultDatadir       = btcutil.AppDataDir("ledgerbtc", false)
	defaultNetwork       = "mainnet"
	defaultTransportType = "speculos"
	defaultDeviceAddr    = "127.0.0.1:9999"
	defaultDbType        = "badger"
	defaultLogLevel      = 4
	defaultStatsInterval = 0
	defaultTimeout       = 300 // 5 minutes

	supportedNetworks = map[string]*chaincfg.Params{
		"mainnet": &chaincfg.MainNetParams,
		"testnet": &chaincfg.TestNet3Params,
		"regtest": &chaincfg.RegressionNetParams,
		"signet":  &chaincfg.SigNetParams,
	}
	SupportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
	}
	SupportedTransports = supportedType{
		"speculos":  {},
		"websocket": {},
	}

	// persistedKeys are the keys that can be stored in the config file.
	persistedKeys = []string{
		NetworkKey, TransportTypeKey, DeviceAddrKey, DatabaseTypeKey,
		LogLevelKey, NoMetricsKey, MetricsPortKey, TimeoutKey,
	}
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("LEDGER")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(NetworkKey, defaultNetwork)
	vip.SetDefault(TransportTypeKey, defaultTransportType)
	vip.SetDefault(DeviceAddrKey, defaultDeviceAddr)
	vip.SetDefault(DatabaseTypeKey, defaultDbType)
	vip.SetDefault(LogLevelKey, defaultLogLevel)
	vip.SetDefault(NoMetricsKey, false)
	vip.SetDefault(MetricsPortKey, 0)
	vip.SetDefault(StatsIntervalKey, defaultStatsInterval)
	vip.SetDefault(TimeoutKey, defaultTimeout)

	if err := Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}
}

// Load merges the entries of the config file in the datadir, if any.
// Env vars take precedence over the file.
func Load() error {
	if _, err := os.Stat(configFilePath()); os.IsNotExist(err) {
		return Validate()
	}

	vip.SetConfigFile(configFilePath())
	vip.SetConfigType("json")
	if err := vip.ReadInConfig(); err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	return Validate()
}

// Persist writes the given entry to the config file in the datadir.
func Persist(key, value string) error {
	key = strings.ToUpper(key)
	if !isPersisted(key) {
		return fmt.Errorf(
			"unknown config key %s, must be one of %s",
			key, strings.Join(persistedKeys, " | "),
		)
	}

	prev := vip.Get(key)
	vip.Set(key, value)
	if err := Validate(); err != nil {
		vip.Set(key, prev)
		return err
	}

	if err := makeDirectoryIfNotExists(GetString(DatadirKey)); err != nil {
		return err
	}

	state := viper.New()
	state.SetConfigFile(configFilePath())
	state.SetConfigType("json")
	if _, err := os.Stat(configFilePath()); err == nil {
		if err := state.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	state.Set(key, value)
	return state.WriteConfigAs(configFilePath())
}

// AllSettings returns the current value of the persistable entries.
func AllSettings() map[string]interface{} {
	settings := make(map[string]interface{}, len(persistedKeys)+1)
	settings[DatadirKey] = GetString(DatadirKey)
	for _, key := range persistedKeys {
		settings[key] = vip.Get(key)
	}
	return settings
}

func Validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	net := GetString(NetworkKey)
	if len(net) == 0 {
		return fmt.Errorf("network must not be null")
	}
	if _, ok := supportedNetworks[net]; !ok {
		nets := make([]string, 0, len(supportedNetworks))
		for net := range supportedNetworks {
			nets = append(nets, net)
		}
		sort.Strings(nets)
		return fmt.Errorf("unknown network, must be one of: %v", nets)
	}

	dbType := GetString(DatabaseTypeKey)
	if _, ok := SupportedDbs[dbType]; !ok {
		return fmt.Errorf("unsupported database type, must be one of %s", SupportedDbs)
	}

	transportType := GetString(TransportTypeKey)
	if _, ok := SupportedTransports[transportType]; !ok {
		return fmt.Errorf(
			"unsupported transport type, must be one of %s", SupportedTransports,
		)
	}
	if len(GetString(DeviceAddrKey)) <= 0 {
		return fmt.Errorf("device address must not be null")
	}
	if transportType == "websocket" {
		addr := GetString(DeviceAddrKey)
		if !strings.HasPrefix(addr, "ws://") && !strings.HasPrefix(addr, "wss://") {
			return fmt.Errorf("device address must be a ws:// or wss:// url")
		}
	}

	if GetInt(TimeoutKey) <= 0 {
		return fmt.Errorf("timeout must be a positive number of seconds")
	}
	if GetInt(StatsIntervalKey) < 0 {
		return fmt.Errorf("stats interval must not be negative")
	}

	return nil
}

func GetDatadir() string {
	return filepath.Join(GetString(DatadirKey), GetString(NetworkKey))
}

func GetNetwork() *chaincfg.Params {
	return supportedNetworks[GetString(NetworkKey)]
}

func GetTimeout() time.Duration {
	return time.Duration(GetInt(TimeoutKey)) * time.Second
}

func GetStatsInterval() time.Duration {
	return time.Duration(GetInt(StatsIntervalKey)) * time.Second
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func Set(key string, val interface{}) {
	vip.Set(key, val)
}

func Unset(key string) {
	vip.Set(key, nil)
}

func IsSet(key string) bool {
	return vip.IsSet(key)
}

// InitDatadir creates the folders of the datadir used by the commands.
func InitDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	if noMetrics := GetBool(NoMetricsKey); noMetrics {
		return nil
	}
	return makeDirectoryIfNotExists(filepath.Join(datadir, MetricsLocation))
}

func configFilePath() string {
	return filepath.Join(GetString(DatadirKey), ConfigFile)
}

func isPersisted(key string) bool {
	for _, k := range persistedKeys {
		if k == key {
			return true
		}
	}
	return false
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}
