package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mosaicnetworks/streamlet/src/config"
	"github.com/mosaicnetworks/streamlet/src/streamlet"
)

// EnvPrefix prefixes the environment variables overriding the configuration,
// as in STREAMLET_SLOT_DURATION or STREAMLET_CONSENSUS_PEERS.
const EnvPrefix = "STREAMLET"

//NewRunCmd returns the command that starts a Streamlet node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runStreamlet,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runStreamlet(cmd *cobra.Command, args []string) error {
	engine := streamlet.NewStreamlet(&_config.Streamlet)

	if err := engine.Init(); err != nil {
		_config.Streamlet.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.Streamlet.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.Streamlet.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.Streamlet.LogFile, "Also write JSON logs to this file")
	cmd.Flags().String("moniker", _config.Streamlet.Moniker, "Optional name")
	cmd.Flags().StringP("network", "n", _config.Streamlet.Network, "Network name or ticker (drk, sol, btc, eth)")

	// Networks
	addNetFlags(cmd.Flags(), "consensus", _config.Streamlet.Consensus)
	addNetFlags(cmd.Flags(), "sync", _config.Streamlet.Sync)
	cmd.Flags().Bool("sync-only", _config.Streamlet.SyncOnly, "Follow the finalized chain without voting")

	// Service
	cmd.Flags().Bool("no-service", _config.Streamlet.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.Streamlet.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Streamlet.Store, "Use badgerDB instead of in-mem DB")
	cmd.Flags().String("db", _config.Streamlet.DatabaseDir, "Dabatabase directory")
	cmd.Flags().Bool("bootstrap", _config.Streamlet.Bootstrap, "Load from database")
	cmd.Flags().Int("cache-size", _config.Streamlet.CacheSize, "Number of items in LRU caches")

	// Consensus
	cmd.Flags().Duration("slot-duration", _config.Streamlet.SlotDuration, "Duration of a slot")
	cmd.Flags().Uint64("slots-per-epoch", _config.Streamlet.SlotsPerEpoch, "Number of slots in an epoch")
	cmd.Flags().Int64("genesis-time", _config.Streamlet.GenesisTimestamp, "Unix time of slot 0")
	cmd.Flags().Int("max-block-txs", _config.Streamlet.MaxBlockTxs, "Max number of transactions in a proposed block")
}

// addNetFlags adds the flags of one P2P network, named <name>-listen,
// <name>-peers and so on, which configure <name>.listen, <name>.peers...
func addNetFlags(flags *pflag.FlagSet, name string, nc config.NetConfig) {
	flags.StringSlice(name+"-listen", nc.Listen, "Listen IP:Port of the "+name+" network")
	flags.StringSlice(name+"-advertise", nc.Advertise, "Advertised IP:Port of the "+name+" network")
	flags.StringSlice(name+"-peers", nc.Peers, "Addresses to keep connected to on the "+name+" network")
	flags.StringSlice(name+"-seeds", nc.Seeds, "Addresses to query for hosts on the "+name+" network")
	flags.Int(name+"-outbound", nc.Outbound, "Outbound connection slots of the "+name+" network")
	flags.Int(name+"-inbound-limit", nc.InboundLimit, "Max inbound connections of the "+name+" network (0 = no limit)")
}

func bindNetFlags(flags *pflag.FlagSet, name string) error {
	for _, key := range []string{"listen", "advertise", "peers", "seeds", "outbound", "inbound-limit"} {
		if err := viper.BindPFlag(name+"."+key, flags.Lookup(name+"-"+key)); err != nil {
			return err
		}
	}
	return nil
}

func loadConfig(cmd *cobra.Command, args []string) error {

	sources, err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.Streamlet.SetDataDir(_config.Streamlet.DataDir)

	logFields := logrus.Fields{
		"streamlet.DataDir":          _config.Streamlet.DataDir,
		"streamlet.Network":          _config.Streamlet.Network,
		"streamlet.Consensus":        _config.Streamlet.Consensus,
		"streamlet.Sync":             _config.Streamlet.Sync,
		"streamlet.SyncOnly":         _config.Streamlet.SyncOnly,
		"streamlet.ServiceAddr":      _config.Streamlet.ServiceAddr,
		"streamlet.NoService":        _config.Streamlet.NoService,
		"streamlet.Store":            _config.Streamlet.Store,
		"streamlet.LogLevel":         _config.Streamlet.LogLevel,
		"streamlet.Moniker":          _config.Streamlet.Moniker,
		"streamlet.SlotDuration":     _config.Streamlet.SlotDuration,
		"streamlet.SlotsPerEpoch":    _config.Streamlet.SlotsPerEpoch,
		"streamlet.GenesisTimestamp": _config.Streamlet.GenesisTimestamp,
		"streamlet.MaxBlockTxs":      _config.Streamlet.MaxBlockTxs,
		"streamlet.CacheSize":        _config.Streamlet.CacheSize,
	}

	if _config.Streamlet.Store {
		logFields["streamlet.DatabaseDir"] = _config.Streamlet.DatabaseDir
		logFields["streamlet.Bootstrap"] = _config.Streamlet.Bootstrap
	}

	logger := _config.Streamlet.Logger()
	for _, src := range sources {
		logger.Debug(src)
	}
	logger.WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper. The precedence is flags,
// then environment (including [datadir]/.env), then the config file. The
// returned messages describe the files that were looked up; they are logged
// once the final log settings are known.
func bindFlagsLoadViper(cmd *cobra.Command) ([]string, error) {
	var sources []string

	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return nil, err
	}
	for _, name := range []string{"consensus", "sync"} {
		if err := bindNetFlags(cmd.Flags(), name); err != nil {
			return nil, err
		}
	}

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return nil, err
	}

	// [datadir]/.env populates the environment without overriding it
	envFile := filepath.Join(_config.Streamlet.DataDir, ".env")
	if err := godotenv.Load(envFile); err == nil {
		sources = append(sources, "Using env file: "+envFile)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	// look for config file in [datadir]/streamlet.toml (.json, .yaml also work)
	viper.SetConfigName(ConfigName)                // name of config file (without extension)
	viper.AddConfigPath(_config.Streamlet.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		sources = append(sources, "Using config file: "+viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		sources = append(sources, "No config file found in: "+_config.Streamlet.DataDir)
	} else {
		return nil, err
	}

	// second unmarshal to read from the environment and the config file
	if err := viper.Unmarshal(_config); err != nil {
		return nil, err
	}

	return sources, nil
}
