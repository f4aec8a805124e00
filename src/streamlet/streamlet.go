package streamlet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/config"
	"github.com/mosaicnetworks/streamlet/src/consensus"
	"github.com/mosaicnetworks/streamlet/src/crypto/keys"
	"github.com/mosaicnetworks/streamlet/src/net"
	"github.com/mosaicnetworks/streamlet/src/node"
	"github.com/mosaicnetworks/streamlet/src/peers"
	"github.com/mosaicnetworks/streamlet/src/proxy/dummy"
	"github.com/mosaicnetworks/streamlet/src/service"
)

// Streamlet is a struct containing the key parts of a Streamlet node
type Streamlet struct {
	Config       *config.Config
	Node         *node.Node
	State        *consensus.ValidatorState
	Store        consensus.Store
	ConsensusNet *net.P2P
	SyncNet      *net.P2P
	Peers        *peers.PeerSet
	Service      *service.Service
	Registry     *prometheus.Registry

	// Stream carries both networks. Defaults to TCP.
	Stream net.StreamLayer

	logger *logrus.Entry
}

// NewStreamlet is a factory method to produce a Streamlet instance.
func NewStreamlet(c *config.Config) *Streamlet {
	engine := &Streamlet{
		Config:   c,
		Registry: prometheus.NewRegistry(),
		Stream:   net.NewTCPStreamLayer(),
		logger:   c.Logger(),
	}

	return engine
}

// Init initialises the Streamlet object by loading the key and the genesis
// roster, opening the store, and creating the networks, the node and the
// service.
func (s *Streamlet) Init() error {
	s.logger.Debug("validateConfig")
	if err := s.validateConfig(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() validateConfig")
		return err
	}

	s.logger.Debug("initKey")
	if err := s.initKey(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initKey")
		return err
	}

	s.logger.Debug("initPeers")
	if err := s.initPeers(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initPeers")
		return err
	}

	s.logger.Debug("initStore")
	if err := s.initStore(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initStore")
		return err
	}

	s.logger.Debug("initState")
	if err := s.initState(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initState")
		return err
	}

	s.logger.Debug("initNetworks")
	if err := s.initNetworks(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initNetworks")
		return err
	}

	s.logger.Debug("initProxy")
	if err := s.initProxy(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initProxy")
		return err
	}

	s.logger.Debug("initNode")
	if err := s.initNode(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initNode")
		return err
	}

	s.logger.Debug("initService")
	if err := s.initService(); err != nil {
		s.logger.WithError(err).Error("streamlet.go:Init() initService")
		return err
	}

	return nil
}

// Run runs the node and the service until ctx is done, then shuts them down.
func (s *Streamlet) Run(ctx context.Context) error {
	if s.Service != nil {
		go func() {
			if err := s.Service.Serve(); err != nil {
				s.logger.WithError(err).Error("Service stopped")
			}
		}()
	}

	err := s.Node.Run(ctx)

	if s.Service != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.Service.Shutdown(sctx); err != nil {
			s.logger.WithError(err).Warn("Shutting down service")
		}
		cancel()
	}

	s.Node.Shutdown()

	return err
}

func (s *Streamlet) validateConfig() error {
	if _, err := s.Config.NetworkName(); err != nil {
		return err
	}

	if s.Config.SlotDuration <= 0 {
		return fmt.Errorf("slot duration must be positive, got %v", s.Config.SlotDuration)
	}

	if s.Config.SlotsPerEpoch == 0 {
		return fmt.Errorf("slots per epoch must be positive")
	}

	// Bootstrap requires a persistent store
	if s.Config.Bootstrap && !s.Config.Store {
		s.logger.Debug("Bootstrap => Store")
		s.Config.Store = true
	}

	if !s.Config.SyncOnly && len(s.Config.Consensus.Listen) == 0 && len(s.Config.Consensus.Advertise) == 0 {
		return fmt.Errorf("a validator needs a consensus address")
	}

	s.logger.WithFields(logrus.Fields{
		"datadir":         s.Config.DataDir,
		"network":         s.Config.Network,
		"consensus":       s.Config.Consensus.Listen,
		"sync":            s.Config.Sync.Listen,
		"slot-duration":   s.Config.SlotDuration,
		"slots-per-epoch": s.Config.SlotsPerEpoch,
		"genesis-time":    s.Config.GenesisTime(),
		"store":           s.Config.Store,
		"db":              s.Config.DatabaseDir,
		"bootstrap":       s.Config.Bootstrap,
		"sync-only":       s.Config.SyncOnly,
		"moniker":         s.Config.Moniker,
	}).Debug("Config")

	return nil
}

func (s *Streamlet) initKey() error {
	if s.Config.SyncOnly {
		s.Config.Key = nil
		return nil
	}

	if s.Config.Key == nil {
		simpleKeyFile := keys.NewSimpleKeyfile(s.Config.Keyfile())

		privKey, err := simpleKeyFile.ReadKey()
		if err != nil {
			return errors.Wrapf(err, "reading private key from %s; run keygen or use sync-only", s.Config.Keyfile())
		}

		s.Config.Key = privKey
	}

	return nil
}

func (s *Streamlet) initPeers() error {
	peerSet, err := peers.GenesisPeerSet(s.Config.DataDir)
	if err != nil {
		return errors.Wrap(err, "loading genesis peers")
	}
	if peerSet == nil || peerSet.Len() == 0 {
		return fmt.Errorf("genesis peers file in %s is empty", s.Config.DataDir)
	}

	s.Peers = peerSet

	return nil
}

func (s *Streamlet) initStore() error {
	if !s.Config.Store {
		s.logger.Debug("Creating InmemStore")
		s.Store = consensus.NewInmemStore(s.Config.CacheSize)
		return nil
	}

	dbPath := s.Config.DatabaseDir

	s.logger.WithField("path", dbPath).Debug("Creating BadgerStore")

	if !s.Config.Bootstrap {
		s.logger.Debug("No Bootstrap")

		backup := backupFileName(dbPath)

		err := os.Rename(dbPath, backup)
		if err != nil {
			if !os.IsNotExist(err) {
				return err
			}
			s.logger.Debug("Nothing to backup")
		} else {
			s.logger.WithField("path", backup).Debug("Created backup")
		}
	}

	store, err := consensus.LoadOrCreateBadgerStore(s.Config.CacheSize, dbPath, s.logger)
	if err != nil {
		return err
	}
	s.Store = store

	return nil
}

func (s *Streamlet) initState() error {
	genesis, err := s.Peers.Participants()
	if err != nil {
		return errors.Wrap(err, "parsing genesis peers")
	}

	state, err := consensus.NewValidatorState(consensus.StateConfig{
		Key:           s.Config.Key,
		SlotsPerEpoch: s.Config.SlotsPerEpoch,
		SlotDuration:  s.Config.SlotDuration,
		GenesisTime:   s.Config.GenesisTime(),
		Genesis:       genesis,
		Metrics:       consensus.NewMetrics(s.Registry),
	}, s.Store, s.logger)
	if err != nil {
		return err
	}

	if s.Config.Bootstrap {
		if err := state.Bootstrap(); err != nil {
			return errors.Wrap(err, "bootstrapping from database")
		}
	}

	s.State = state

	return nil
}

func (s *Streamlet) initNetworks() error {
	if !s.Config.SyncOnly {
		settings, err := s.Config.ConsensusSettings()
		if err != nil {
			return err
		}

		// the genesis roster is dialed when no peer or seed is configured
		if len(settings.Peers) == 0 && len(settings.Seeds) == 0 {
			settings.Peers = s.Peers.Addresses(keys.PublicKeyHex(&s.Config.Key.PublicKey))
		}

		s.ConsensusNet = net.NewP2P(settings,
			s.Stream,
			net.NewMetrics(s.Registry, "consensus"),
			s.logger.WithField("prefix", "consensus"))
	}

	settings, err := s.Config.SyncSettings()
	if err != nil {
		return err
	}

	s.SyncNet = net.NewP2P(settings,
		s.Stream,
		net.NewMetrics(s.Registry, "sync"),
		s.logger.WithField("prefix", "sync"))

	return nil
}

func (s *Streamlet) initProxy() error {
	if s.Config.Proxy == nil {
		s.logger.Debug("No proxy => dummy application")
		s.Config.Proxy = dummy.NewInmemDummyClient(s.logger.WithField("prefix", "dummy"))
	}
	return nil
}

func (s *Streamlet) initNode() error {
	var address string
	if s.ConsensusNet != nil {
		if external := s.ConsensusNet.Settings().ExternalAddr; len(external) > 0 {
			address = external[0]
		}
	}

	validator := node.NewValidator(s.Config.Key, s.Config.Moniker, address)

	s.Node = node.NewNode(
		node.NewConfig(s.Config.SlotDuration, s.Config.GenesisTime(), s.Config.MaxBlockTxs, s.logger),
		validator,
		s.State,
		s.Store,
		s.ConsensusNet,
		s.SyncNet,
		s.Config.Proxy,
	)

	return nil
}

func (s *Streamlet) initService() error {
	if !s.Config.NoService {
		s.Service = service.NewService(s.Config.ServiceAddr, s.Node, s.Registry, s.logger)
	}
	return nil
}

// backupFileName names the backup of a database that is not bootstrapped
// from: <base>--UTC--<timestamp>.
func backupFileName(base string) string {
	return fmt.Sprintf("%s--UTC--%s", base, time.Now().UTC().Format("2006-01-02T15-04-05.000000000Z"))
}

// Keygen generates a new key pair and writes the private key to keyfile. It
// refuses to overwrite an existing key.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("a key already lives under %s", keyfile)
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(key); err != nil {
		return nil, err
	}

	return key, nil
}
