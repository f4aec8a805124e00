package config

import (
	"crypto/ecdsa"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/net"
	"github.com/mosaicnetworks/streamlet/src/proxy"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the validator's
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"
)

// Default configuration values.
const (
	DefaultLogLevel         = "debug"
	DefaultConsensusListen  = "127.0.0.1:11001"
	DefaultSyncListen       = "127.0.0.1:11002"
	DefaultServiceAddr      = "127.0.0.1:8000"
	DefaultNetwork          = "darkfi"
	DefaultSlotDuration     = 20 * time.Second
	DefaultSlotsPerEpoch    = 10
	DefaultGenesisTimestamp = 1640995200
	DefaultOutbound         = net.DefaultOutboundConnections
	DefaultInboundLimit     = net.DefaultInboundConnections
	DefaultCacheSize        = 10000
	DefaultMaxBlockTxs      = 1000
	DefaultStore            = false
)

// NetConfig configures one of the two P2P networks of a node.
type NetConfig struct {
	// Listen lists the addresses the inbound session binds to.
	Listen []string `mapstructure:"listen"`

	// Advertise lists the addresses advertised to other nodes. Defaults to
	// Listen.
	Advertise []string `mapstructure:"advertise"`

	// Peers lists the addresses the node keeps connected to.
	Peers []string `mapstructure:"peers"`

	// Seeds lists the addresses queried for hosts at startup.
	Seeds []string `mapstructure:"seeds"`

	// Outbound is the number of outbound connection slots.
	Outbound int `mapstructure:"outbound"`

	// InboundLimit caps the number of inbound connections. Zero means no
	// limit.
	InboundLimit int `mapstructure:"inbound-limit"`
}

// Config contains all the configuration properties of a Streamlet node.
type Config struct {
	// DataDir is the top-level directory containing the node's configuration
	// and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, receives a copy of every log entry in JSON.
	LogFile string `mapstructure:"log-file"`

	// Network is the name of the network, or its ticker. Nodes of different
	// networks refuse to connect.
	Network string `mapstructure:"network"`

	// Consensus configures the network carrying votes, proposals,
	// participants and keepalives.
	Consensus NetConfig `mapstructure:"consensus"`

	// Sync configures the network carrying finalized blocks.
	Sync NetConfig `mapstructure:"sync"`

	// SlotDuration is the length of a slot.
	SlotDuration time.Duration `mapstructure:"slot-duration"`

	// SlotsPerEpoch is the number of slots in an epoch.
	SlotsPerEpoch uint64 `mapstructure:"slots-per-epoch"`

	// GenesisTimestamp is the unix time of slot 0. Every node of a network
	// must use the same value.
	GenesisTimestamp int64 `mapstructure:"genesis-time"`

	// MaxBlockTxs caps the number of transactions of a proposed block.
	MaxBlockTxs int `mapstructure:"max-block-txs"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the optional HTTP service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Store activates persistant storage.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// CacheSize is the max number of blocks in the in-memory cache.
	CacheSize int `mapstructure:"cache-size"`

	// Bootstrap determines whether or not to load the chain view from an
	// existing database. Forces Store.
	Bootstrap bool `mapstructure:"bootstrap"`

	// SyncOnly runs the node as a follower of the sync network: it does not
	// load a key and does not join the consensus network.
	SyncOnly bool `mapstructure:"sync-only"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the private key of the validator.
	Key *ecdsa.PrivateKey

	// Proxy is the application's side of the node. A dummy application is
	// used when nil.
	Proxy proxy.AppProxy

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:  DefaultDataDir(),
		LogLevel: DefaultLogLevel,
		Network:  DefaultNetwork,
		Consensus: NetConfig{
			Listen:       []string{DefaultConsensusListen},
			Outbound:     DefaultOutbound,
			InboundLimit: DefaultInboundLimit,
		},
		Sync: NetConfig{
			Listen:       []string{DefaultSyncListen},
			Outbound:     DefaultOutbound,
			InboundLimit: DefaultInboundLimit,
		},
		SlotDuration:     DefaultSlotDuration,
		SlotsPerEpoch:    DefaultSlotsPerEpoch,
		GenesisTimestamp: DefaultGenesisTimestamp,
		MaxBlockTxs:      DefaultMaxBlockTxs,
		ServiceAddr:      DefaultServiceAddr,
		Store:            DefaultStore,
		DatabaseDir:      DefaultDatabaseDir(),
		CacheSize:        DefaultCacheSize,
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// GenesisTime returns the time of slot 0.
func (c *Config) GenesisTime() time.Time {
	return time.Unix(c.GenesisTimestamp, 0)
}

// NetworkName parses Network.
func (c *Config) NetworkName() (NetworkName, error) {
	return ParseNetworkName(c.Network)
}

// ConsensusSettings returns the P2P settings of the consensus network.
func (c *Config) ConsensusSettings() (*net.Settings, error) {
	return c.p2pSettings(c.Consensus)
}

// SyncSettings returns the P2P settings of the sync network.
func (c *Config) SyncSettings() (*net.Settings, error) {
	return c.p2pSettings(c.Sync)
}

func (c *Config) p2pSettings(nc NetConfig) (*net.Settings, error) {
	name, err := c.NetworkName()
	if err != nil {
		return nil, err
	}

	s := net.NewDefaultSettings()
	s.Network = strings.ToLower(name.String())
	s.Inbound = nc.Listen
	s.ExternalAddr = nc.Advertise
	if len(s.ExternalAddr) == 0 {
		s.ExternalAddr = nc.Listen
	}
	s.Peers = nc.Peers
	s.Seeds = nc.Seeds
	s.OutboundConnections = nc.Outbound
	s.InboundConnections = nc.InboundLimit
	return s, nil
}

// Logger returns a formatted logrus Entry, with prefix set to "streamlet".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(c.LogFile, &logrus.JSONFormatter{}))
		}
	}
	return c.logger.WithField("prefix", "streamlet")
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config based
// on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Streamlet")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Streamlet")
		} else {
			return filepath.Join(home, ".streamlet")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
