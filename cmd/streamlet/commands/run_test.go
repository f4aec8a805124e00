package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigFile = `
log = "error"
moniker = "from-file"
slot-duration = "5s"

[consensus]
peers = ["127.0.0.1:21001", "127.0.0.1:22001"]
`

func resetConfig(t *testing.T) {
	viper.Reset()
	_config = NewDefaultCLIConfig()
	t.Cleanup(func() {
		viper.Reset()
		_config = NewDefaultCLIConfig()
	})
}

func TestLoadConfigPrecedence(t *testing.T) {
	resetConfig(t)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigName+".toml"), []byte(testConfigFile), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("STREAMLET_MONIKER=from-env\n"), 0600))
	t.Cleanup(func() { os.Unsetenv("STREAMLET_MONIKER") })

	cmd := NewRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--datadir", dir,
		"--log", "info",
		"--sync-listen", "127.0.0.1:9000",
	}))
	require.NoError(t, loadConfig(cmd, nil))

	c := _config.Streamlet

	// flags win over the file
	assert.Equal(t, "info", c.LogLevel)
	assert.Equal(t, []string{"127.0.0.1:9000"}, c.Sync.Listen)

	// the environment wins over the file
	assert.Equal(t, "from-env", c.Moniker)

	// the file wins over defaults
	assert.Equal(t, 5*time.Second, c.SlotDuration)
	assert.Equal(t, []string{"127.0.0.1:21001", "127.0.0.1:22001"}, c.Consensus.Peers)

	// untouched values keep their defaults
	assert.Equal(t, NewDefaultCLIConfig().Streamlet.Consensus.Listen, c.Consensus.Listen)
	assert.Equal(t, filepath.Join(dir, "badger_db"), c.DatabaseDir)
}

func TestLoadConfigWithoutFiles(t *testing.T) {
	resetConfig(t)

	dir := t.TempDir()

	cmd := NewRunCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--datadir", dir, "--sync-only"}))
	require.NoError(t, loadConfig(cmd, nil))

	assert.True(t, _config.Streamlet.SyncOnly)
	assert.Equal(t, dir, _config.Streamlet.DataDir)
}

func TestKeygenCommand(t *testing.T) {
	dir := t.TempDir()

	cmd := NewKeygenCmd()
	require.NoError(t, cmd.ParseFlags([]string{
		"--priv", filepath.Join(dir, "keys", "priv_key"),
		"--pub", filepath.Join(dir, "keys", "key.pub"),
	}))
	require.NoError(t, keygen(cmd, nil))

	pub, err := os.ReadFile(filepath.Join(dir, "keys", "key.pub"))
	require.NoError(t, err)
	assert.Contains(t, string(pub), "0X")

	// a second run refuses to overwrite the key
	assert.Error(t, keygen(cmd, nil))
}
