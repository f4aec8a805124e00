package node

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/common"
)

// Config contains the settings of the node run loop.
type Config struct {
	SlotDuration time.Duration `mapstructure:"slot-duration"`
	GenesisTime  time.Time     `mapstructure:"-"`
	MaxBlockTxs  int           `mapstructure:"max-block-txs"`
	Logger       *logrus.Entry
}

// NewConfig creates a Config.
func NewConfig(slotDuration time.Duration,
	genesisTime time.Time,
	maxBlockTxs int,
	logger *logrus.Entry) *Config {

	return &Config{
		SlotDuration: slotDuration,
		GenesisTime:  genesisTime,
		MaxBlockTxs:  maxBlockTxs,
		Logger:       logger,
	}
}

// DefaultConfig returns a Config with default values. The genesis is the
// start of 2022.
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		SlotDuration: 20 * time.Second,
		GenesisTime:  time.Unix(1640995200, 0),
		MaxBlockTxs:  1000,
		Logger:       logrus.NewEntry(logger),
	}
}

// TestConfig returns a Config with short slots starting now, and a logger
// writing to the test log.
func TestConfig(t testing.TB) *Config {
	config := DefaultConfig()
	config.SlotDuration = 50 * time.Millisecond
	config.GenesisTime = time.Now()
	config.Logger = common.NewTestEntry(t, common.TestLogLevel)
	return config
}
