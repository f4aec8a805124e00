package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNetworkName(t *testing.T) {
	cases := map[string]NetworkName{
		"drk":      DarkFi,
		"DarkFi":   DarkFi,
		"sol":      Solana,
		"SOLANA":   Solana,
		"btc":      Bitcoin,
		"bitcoin":  Bitcoin,
		"eth":      Ethereum,
		"Ethereum": Ethereum,
	}
	for in, want := range cases {
		got, err := ParseNetworkName(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseNetworkName("dogecoin")
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestSetDataDir(t *testing.T) {
	c := NewDefaultConfig()
	c.SetDataDir("/tmp/streamlet")
	assert.Equal(t, "/tmp/streamlet", c.DataDir)
	assert.Equal(t, filepath.Join("/tmp/streamlet", DefaultBadgerFile), c.DatabaseDir)
	assert.Equal(t, filepath.Join("/tmp/streamlet", DefaultKeyfile), c.Keyfile())

	// an explicit database directory is kept
	c = NewDefaultConfig()
	c.DatabaseDir = "/var/db"
	c.SetDataDir("/tmp/streamlet")
	assert.Equal(t, "/var/db", c.DatabaseDir)
}

func TestP2PSettings(t *testing.T) {
	c := NewDefaultConfig()
	c.Network = "sol"
	c.Consensus.Peers = []string{"tcp://10.0.0.1:11001"}
	c.Sync.Advertise = []string{"tcp://example.org:11002"}

	s, err := c.ConsensusSettings()
	require.NoError(t, err)
	assert.Equal(t, "solana", s.Network)
	assert.Equal(t, []string{DefaultConsensusListen}, s.Inbound)
	assert.Equal(t, []string{DefaultConsensusListen}, s.ExternalAddr)
	assert.Equal(t, []string{"tcp://10.0.0.1:11001"}, s.Peers)
	assert.Equal(t, DefaultOutbound, s.OutboundConnections)

	s, err = c.SyncSettings()
	require.NoError(t, err)
	assert.Equal(t, []string{DefaultSyncListen}, s.Inbound)
	assert.Equal(t, []string{"tcp://example.org:11002"}, s.ExternalAddr)

	c.Network = "nope"
	_, err = c.SyncSettings()
	assert.ErrorIs(t, err, ErrUnsupportedNetwork)
}

func TestGenesisTime(t *testing.T) {
	c := NewDefaultConfig()
	assert.Equal(t, int64(DefaultGenesisTimestamp), c.GenesisTime().Unix())
}

func TestLogLevel(t *testing.T) {
	assert.Equal(t, logrus.InfoLevel, LogLevel("info"))
	assert.Equal(t, logrus.WarnLevel, LogLevel("warn"))
	assert.Equal(t, logrus.DebugLevel, LogLevel("bogus"))
}

func TestLoggerFile(t *testing.T) {
	c := NewDefaultConfig()
	c.LogLevel = "info"
	c.LogFile = filepath.Join(t.TempDir(), "streamlet.log")

	c.Logger().Info("hello")

	data, err := os.ReadFile(c.LogFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"hello"`)
	assert.Contains(t, string(data), `"prefix":"streamlet"`)
}
