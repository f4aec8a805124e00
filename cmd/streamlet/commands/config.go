package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/streamlet/src/config"
)

// ConfigName is the base name of the configuration file read from the data
// directory. Any extension supported by viper works (toml, json, yaml).
const ConfigName = "streamlet"

//CLIConfig contains configuration for the Run command
type CLIConfig struct {
	Streamlet config.Config `mapstructure:",squash"`
}

//NewDefaultCLIConfig creates a CLIConfig with default values
func NewDefaultCLIConfig() *CLIConfig {
	return &CLIConfig{
		Streamlet: *config.NewDefaultConfig(),
	}
}

var configFormat string

// NewConfigCmd returns the command that writes the effective configuration,
// flags and environment included, to [datadir]/streamlet.<format>.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "config",
		Short:   "Write the configuration file",
		PreRunE: loadConfig,
		RunE:    writeConfig,
	}
	AddRunFlags(cmd)
	cmd.Flags().StringVar(&configFormat, "format", "toml", "toml, json or yaml")
	return cmd
}

func writeConfig(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(_config.Streamlet.DataDir, 0700); err != nil {
		return err
	}

	file := filepath.Join(_config.Streamlet.DataDir, fmt.Sprintf("%s.%s", ConfigName, configFormat))

	if err := viper.SafeWriteConfigAs(file); err != nil {
		return fmt.Errorf("Writing config: %s", err)
	}

	fmt.Printf("Your configuration has been saved to: %s\n", file)

	return nil
}
