package node

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/mosaicnetworks/streamlet/src/common"
	"github.com/mosaicnetworks/streamlet/src/consensus"
	"github.com/mosaicnetworks/streamlet/src/net"
	"github.com/mosaicnetworks/streamlet/src/proxy"
)

// Node drives a validator: it runs the consensus and sync networks, follows
// the slot clock, proposes blocks in the slots it leads and keeps its
// participant out of quarantine. Finalized blocks are committed to the
// application through the proxy.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	validator *Validator

	core  *consensus.ValidatorState
	store consensus.Store

	consensusNet *net.P2P
	syncNet      *net.P2P
	publisher    *consensus.Publisher

	proxy     proxy.AppProxy
	finalized *net.Subscription[*consensus.BlockInfo]
	stateHash []byte

	clock *SlotClock

	txLock          sync.Mutex
	transactionPool [][]byte

	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	start     time.Time
	proposals int
}

// NewNode is a factory method that returns a Node instance. The consensus
// protocols are registered on consensusNet and the sync protocol on syncNet.
// A node without a validator key, or without a consensus network, only
// follows the finalized chain over syncNet.
func NewNode(conf *Config,
	validator *Validator,
	core *consensus.ValidatorState,
	store consensus.Store,
	consensusNet *net.P2P,
	syncNet *net.P2P,
	appProxy proxy.AppProxy,
) *Node {
	node := Node{
		conf:         conf,
		logger:       conf.Logger.WithField("this_id", validator.ID()),
		validator:    validator,
		core:         core,
		store:        store,
		consensusNet: consensusNet,
		syncNet:      syncNet,
		proxy:        appProxy,
		finalized:    core.SubscribeFinalized(),
		clock:        NewSlotClock(conf.GenesisTime, conf.SlotDuration),
		shutdownCh:   make(chan struct{}),
		start:        time.Now(),
	}

	if node.isVoter() {
		node.publisher = consensus.RegisterProtocols(core, consensusNet, syncNet, conf.Logger)
	} else if syncNet != nil {
		syncNet.ProtocolRegistry().Register(net.SessionDefault, consensus.NewProtocolSync(core))
	}

	return &node
}

func (n *Node) isVoter() bool {
	return n.validator.Key != nil && n.consensusNet != nil
}

func (n *Node) networks() []*net.P2P {
	var res []*net.P2P
	if n.isVoter() {
		res = append(res, n.consensusNet)
	}
	if n.syncNet != nil {
		res = append(res, n.syncNet)
	}
	return res
}

// Run starts the networks and, once the outbound sessions have attempted
// their hosts, follows the slot clock. It blocks until ctx is done or
// Shutdown is called. Errors binding the networks are returned.
func (n *Node) Run(ctx context.Context) error {
	n.wg.Add(1)
	defer n.wg.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-n.shutdownCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	for _, p := range n.networks() {
		if err := p.Start(gctx); err != nil {
			cancel()
			g.Wait()
			return err
		}
		p := p
		g.Go(func() error {
			return p.Run(gctx)
		})
	}

	if n.proxy != nil {
		g.Go(func() error {
			n.doBackgroundWork(gctx)
			return nil
		})
		g.Go(func() error {
			n.commitFinalized(gctx)
			return nil
		})
	}

	g.Go(func() error {
		for _, p := range n.networks() {
			p.WaitForOutbound(gctx)
		}

		if !n.isVoter() {
			n.logger.Debug("No validator key => Following")
			n.setState(Following)
			<-gctx.Done()
			return nil
		}

		n.announce()

		n.logger.Debug("Voting")
		n.setState(Voting)
		return n.runSlots(gctx)
	})

	return g.Wait()
}

// doBackgroundWork moves the transactions submitted by the application to the
// transaction pool.
func (n *Node) doBackgroundWork(ctx context.Context) {
	for {
		select {
		case tx := <-n.proxy.SubmitCh():
			n.SubmitTx(tx)
		case <-ctx.Done():
			return
		}
	}
}

// commitFinalized commits every finalized block to the application, in chain
// order.
func (n *Node) commitFinalized(ctx context.Context) {
	for {
		info, err := n.finalized.Receive(ctx)
		if err != nil {
			return
		}

		resp, err := n.proxy.CommitBlock(info.Block)
		if err != nil {
			n.logger.WithError(err).WithField("slot", info.Block.Slot).Error("Committing block")
			continue
		}

		n.txLock.Lock()
		n.stateHash = resp.StateHash
		n.txLock.Unlock()
	}
}

func (n *Node) runSlots(ctx context.Context) error {
	for {
		slot, timer := n.clock.Next()
		select {
		case <-ctx.Done():
			return nil
		case <-timer:
			n.onSlot(slot)
		}
	}
}

// onSlot runs the duties of the start of slot.
func (n *Node) onSlot(slot uint64) {
	if slot%n.core.SlotsPerEpoch() == 0 {
		n.onEpoch(n.core.EpochOf(slot))
	}

	if n.core.LeaderOf(slot) == n.validator.ID() {
		n.propose(slot)
	}
}

// onEpoch quarantines the participants that stopped voting and refreshes the
// node's own standing with a keepalive.
func (n *Node) onEpoch(epoch uint64) {
	quarantined := n.core.UpdateQuarantine(epoch)
	if len(quarantined) > 0 {
		n.logger.WithFields(logrus.Fields{
			"epoch":       epoch,
			"quarantined": len(quarantined),
		}).Info("Quarantine updated")
	}

	keepAlive, err := consensus.NewKeepAlive(n.validator.Key, n.validator.Address)
	if err != nil {
		n.logger.WithError(err).Error("Signing keepalive")
		return
	}

	if _, err := n.core.ClearQuarantine(keepAlive); err != nil {
		n.logger.WithError(err).Debug("Clearing own quarantine")
	}

	n.broadcast(keepAlive)
}

// announce adds the node's participant, joining next epoch, unless it is
// already known, and sends it to the network.
func (n *Node) announce() {
	p, ok := n.core.Participant(n.validator.ID())
	if !ok {
		epoch := n.core.EpochOf(n.clock.Slot(n.clock.Now()))
		p = n.validator.Participant(epoch + 1)
		n.core.AddParticipant(p)
	}
	n.broadcast(p)
}

func (n *Node) propose(slot uint64) {
	txs := n.takeTransactions()

	proposal, res, err := n.core.Propose(slot, txs)
	if err != nil {
		n.logger.WithError(err).WithField("slot", slot).Warn("Proposing block")
		n.returnTransactions(txs)
		return
	}

	n.txLock.Lock()
	n.proposals++
	n.txLock.Unlock()

	n.publisher.Publish(res, proposal, "")
}

func (n *Node) broadcast(msg net.Message) {
	err := n.consensusNet.Broadcast(msg)
	if err != nil && !errors.Is(err, net.ErrP2PStopped) {
		n.logger.WithError(err).WithField("command", msg.Name()).Debug("Broadcast incomplete")
	}
}

// SubmitTx queues a transaction for the next block proposed by the node.
func (n *Node) SubmitTx(tx []byte) {
	n.txLock.Lock()
	defer n.txLock.Unlock()

	n.transactionPool = append(n.transactionPool, tx)
}

func (n *Node) takeTransactions() [][]byte {
	n.txLock.Lock()
	defer n.txLock.Unlock()

	count := len(n.transactionPool)
	if n.conf.MaxBlockTxs > 0 && count > n.conf.MaxBlockTxs {
		count = n.conf.MaxBlockTxs
	}

	txs := n.transactionPool[:count:count]
	n.transactionPool = n.transactionPool[count:]
	return txs
}

func (n *Node) returnTransactions(txs [][]byte) {
	n.txLock.Lock()
	defer n.txLock.Unlock()

	n.transactionPool = append(txs, n.transactionPool...)
}

// Shutdown stops the networks, waits for Run to return and closes the store.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")

		n.setState(Shutdown)

		close(n.shutdownCh)

		for _, p := range n.networks() {
			p.Stop()
		}

		n.waitRoutines()

		n.finalized.Unsubscribe()

		if err := n.store.Close(); err != nil {
			n.logger.WithError(err).Error("Closing store")
		}
	})
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	stats := n.core.Stats()
	slot := n.clock.Slot(n.clock.Now())

	n.txLock.Lock()
	pool := len(n.transactionPool)
	proposals := n.proposals
	stateHash := n.stateHash
	n.txLock.Unlock()

	s := map[string]string{
		"id":                  n.validator.ID(),
		"moniker":             n.validator.Moniker,
		"state":               n.getState().String(),
		"slot":                strconv.FormatUint(slot, 10),
		"epoch":               strconv.FormatUint(n.core.EpochOf(slot), 10),
		"leader":              n.core.LeaderOf(slot),
		"blocks":              strconv.Itoa(stats.Blocks),
		"notarized":           strconv.Itoa(stats.Notarized),
		"finalized":           strconv.Itoa(stats.Finalized),
		"last_finalized_slot": strconv.FormatUint(stats.LastFinalizedSlot, 10),
		"last_finalized_id":   stats.LastFinalizedID,
		"participants":        strconv.Itoa(stats.Participants),
		"quarantined":         strconv.Itoa(stats.Quarantined),
		"transaction_pool":    strconv.Itoa(pool),
		"proposals":           strconv.Itoa(proposals),
		"state_hash":          common.EncodeToString(stateHash),
		"consensus_peers":     strconv.Itoa(connections(n.consensusNet)),
		"sync_peers":          strconv.Itoa(connections(n.syncNet)),
		"time_elapsed":        time.Since(n.start).Truncate(time.Second).String(),
	}
	return s
}

func connections(p *net.P2P) int {
	if p == nil {
		return 0
	}
	return p.ConnectionsCount()
}

// GetState returns the state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// GetBlock returns a block known to the node.
func (n *Node) GetBlock(id consensus.BlockID) (*consensus.BlockInfo, error) {
	return n.core.Block(id)
}

// GetLastFinalized returns the last finalized block.
func (n *Node) GetLastFinalized() *consensus.BlockInfo {
	return n.core.LastFinalized()
}

// GetParticipants returns the known participants.
func (n *Node) GetParticipants() []*consensus.Participant {
	return n.core.Participants()
}

// GetNetworks describes the consensus and sync networks.
func (n *Node) GetNetworks() map[string]net.P2PInfo {
	res := make(map[string]net.P2PInfo)
	if n.consensusNet != nil {
		res["consensus"] = n.consensusNet.GetInfo()
	}
	if n.syncNet != nil {
		res["sync"] = n.syncNet.GetInfo()
	}
	return res
}

// ID returns the participant identity of the node.
func (n *Node) ID() string {
	return n.validator.ID()
}
