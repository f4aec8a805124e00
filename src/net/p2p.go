package net

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/gammazero/workerpool"
	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ErrP2PStopped is returned by operations on a stopped P2P network.
var ErrP2PStopped = errors.New("p2p stopped")

// P2PState is the lifecycle state of a P2P network.
type P2PState uint32

// P2P states.
const (
	P2PStateOpen P2PState = iota
	P2PStateStart
	P2PStateStarted
	P2PStateRun
	P2PStateStopped
)

func (s P2PState) String() string {
	switch s {
	case P2PStateOpen:
		return "Open"
	case P2PStateStart:
		return "Start"
	case P2PStateStarted:
		return "Started"
	case P2PStateRun:
		return "Run"
	case P2PStateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// P2PInfo describes a P2P network for GetInfo.
type P2PInfo struct {
	State    string        `json:"state"`
	External []string      `json:"external_addr"`
	Sessions []SessionInfo `json:"sessions"`
}

// P2P owns the Hosts registry, the ProtocolRegistry, the sessions and the set
// of connected channels of one network.
//
// The pending set and the connected set have their own locks. When both are
// needed, the pending lock is taken first.
type P2P struct {
	settings *Settings
	stream   StreamLayer
	registry *ProtocolRegistry
	hosts    *Hosts

	pendingLock sync.Mutex
	pending     map[string]struct{}

	channelsLock sync.RWMutex
	channels     map[string]*Channel

	channelSubs *Subscriber[ChannelResult]
	stopSubs    *Subscriber[struct{}]
	stopOnce    sync.Once

	state *atomic.Uint32

	manual   *ManualSession
	inbound  *InboundSession
	outbound *OutboundSession
	seed     *SeedSyncSession

	poolLock sync.RWMutex
	pool     *workerpool.WorkerPool

	metrics *Metrics
	logger  *logrus.Entry
}

// NewP2P creates a P2P network over stream. The ping and address protocols
// are registered for the default sessions and the seed protocol for seed
// sessions. A nil metrics creates unregistered metrics.
func NewP2P(settings *Settings, stream StreamLayer, metrics *Metrics, logger *logrus.Entry) *P2P {
	if metrics == nil {
		metrics = NewMetrics(nil, settings.Network)
	}

	workers := settings.BroadcastWorkers
	if workers <= 0 {
		workers = DefaultBroadcastWorkers
	}

	p := &P2P{
		settings:    settings,
		stream:      stream,
		registry:    NewProtocolRegistry(),
		hosts:       NewHosts(settings.MaxHosts),
		pending:     make(map[string]struct{}),
		channels:    make(map[string]*Channel),
		channelSubs: NewSubscriber[ChannelResult](),
		stopSubs:    NewSubscriber[struct{}](),
		state:       atomic.NewUint32(uint32(P2PStateOpen)),
		pool:        workerpool.New(workers),
		metrics:     metrics,
		logger:      logger.WithField("network", settings.Network),
	}

	p.hosts.gauge = metrics.Hosts

	p.manual = NewManualSession(p)
	p.inbound = NewInboundSession(p)
	p.outbound = NewOutboundSession(p)
	p.seed = NewSeedSyncSession(p)

	p.registry.Register(SessionDefault, NewProtocolPing)
	p.registry.Register(SessionDefault, NewProtocolAddress)
	p.registry.Register(SessionSeed, NewProtocolSeed)

	return p
}

// State returns the lifecycle state.
func (p *P2P) State() P2PState {
	return P2PState(p.state.Load())
}

func (p *P2P) setState(s P2PState) {
	p.state.Store(uint32(s))
	p.logger.WithField("state", s.String()).Debug("P2P state")
}

// Start runs the seed sync session.
func (p *P2P) Start(ctx context.Context) error {
	if p.State() == P2PStateStopped {
		return ErrP2PStopped
	}

	p.setState(P2PStateStart)

	if err := p.seed.Start(ctx); err != nil {
		return err
	}

	p.setState(P2PStateStarted)
	return nil
}

// Run connects the manual peers, starts the inbound and outbound sessions,
// and blocks until Stop is called or ctx is done. Bind errors are returned.
func (p *P2P) Run(ctx context.Context) error {
	if p.State() == P2PStateStopped {
		return ErrP2PStopped
	}

	stop := p.SubscribeStop()
	defer stop.Unsubscribe()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.setState(P2PStateRun)

	for _, peer := range p.settings.Peers {
		p.manual.Connect(ctx, peer)
	}

	if err := p.inbound.Start(ctx); err != nil {
		cancel()
		p.shutdown()
		return fmt.Errorf("inbound session: %w", err)
	}

	if err := p.outbound.Start(ctx); err != nil {
		cancel()
		p.shutdown()
		return fmt.Errorf("outbound session: %w", err)
	}

	stop.Receive(ctx)

	cancel()
	p.shutdown()
	return nil
}

// shutdown stops the sessions and every channel.
func (p *P2P) shutdown() {
	p.Stop()

	p.manual.Stop()
	p.inbound.Stop()
	p.outbound.Stop()
	p.seed.Stop()

	for _, ch := range p.Channels() {
		ch.Stop()
	}

	p.poolLock.Lock()
	if p.pool != nil {
		p.pool.StopWait()
		p.pool = nil
	}
	p.poolLock.Unlock()

	p.logger.Debug("P2P shut down")
}

// Stop signals Run to return. It is idempotent.
func (p *P2P) Stop() {
	p.stopOnce.Do(func() {
		p.setState(P2PStateStopped)
		p.stopSubs.Notify(struct{}{})
		p.stopSubs.Close(ErrP2PStopped)
	})
}

// SubscribeStop returns a subscription that receives once when Stop is
// called.
func (p *P2P) SubscribeStop() *Subscription[struct{}] {
	return p.stopSubs.Subscribe()
}

// SubscribeChannel returns a subscription to stored channels and, while
// outbound notifications are enabled, to failed outbound attempts.
func (p *P2P) SubscribeChannel() *Subscription[ChannelResult] {
	return p.channelSubs.Subscribe()
}

// Broadcast sends msg to every connected channel.
func (p *P2P) Broadcast(msg Message) error {
	return p.BroadcastWithExclude(msg, nil)
}

// BroadcastWithExclude sends msg to every connected channel whose address is
// not in exclude. The message is encoded once; channels are written in
// parallel over a snapshot of the connected set. A failure on one channel
// does not prevent delivery to the others; failures are returned together.
func (p *P2P) BroadcastWithExclude(msg Message, exclude []string) error {
	if p.State() == P2PStateStopped {
		return ErrP2PStopped
	}

	packet, err := NewPacket(msg)
	if err != nil {
		return err
	}
	raw, err := packet.Marshal()
	if err != nil {
		return err
	}

	excluded := make(map[string]bool, len(exclude))
	for _, addr := range exclude {
		excluded[addr] = true
	}

	var targets []*Channel
	for _, ch := range p.Channels() {
		if !excluded[ch.Address()] {
			targets = append(targets, ch)
		}
	}

	if len(targets) == 0 {
		p.logger.WithField("command", packet.Command).Debug("No channels to broadcast to")
		return nil
	}

	var (
		wg      sync.WaitGroup
		errLock sync.Mutex
		result  *multierror.Error
	)

	p.poolLock.RLock()
	if p.pool == nil {
		p.poolLock.RUnlock()
		return ErrP2PStopped
	}
	for _, ch := range targets {
		ch := ch
		wg.Add(1)
		p.pool.Submit(func() {
			defer wg.Done()
			if err := ch.sendRaw(packet.Command, raw); err != nil {
				p.metrics.BroadcastFailures.Inc()
				errLock.Lock()
				result = multierror.Append(result, fmt.Errorf("%s: %w", ch.Address(), err))
				errLock.Unlock()
			}
		})
	}
	p.poolLock.RUnlock()

	wg.Wait()

	if err := result.ErrorOrNil(); err != nil {
		p.logger.WithFields(logrus.Fields{
			"command": packet.Command,
			"error":   err,
		}).Error("Broadcast failed for some channels")
		return err
	}
	return nil
}

// AddPending reserves addr for a connection attempt. It returns false if addr
// is already pending or connected.
func (p *P2P) AddPending(addr string) bool {
	p.pendingLock.Lock()
	defer p.pendingLock.Unlock()

	if _, ok := p.pending[addr]; ok {
		return false
	}

	p.channelsLock.RLock()
	_, connected := p.channels[addr]
	p.channelsLock.RUnlock()
	if connected {
		return false
	}

	p.pending[addr] = struct{}{}
	p.metrics.Pending.Set(float64(len(p.pending)))
	return true
}

// RemovePending releases the reservation of addr.
func (p *P2P) RemovePending(addr string) {
	p.pendingLock.Lock()
	defer p.pendingLock.Unlock()

	delete(p.pending, addr)
	p.metrics.Pending.Set(float64(len(p.pending)))
}

// IsPending reports whether addr is reserved.
func (p *P2P) IsPending(addr string) bool {
	p.pendingLock.Lock()
	defer p.pendingLock.Unlock()

	_, ok := p.pending[addr]
	return ok
}

// Store moves ch from the pending set to the connected set and notifies the
// channel subscribers. A channel stored after Stop is stopped.
func (p *P2P) Store(ch *Channel) {
	if p.State() == P2PStateStopped {
		ch.Stop()
		p.RemovePending(ch.Address())
		return
	}

	p.pendingLock.Lock()
	p.channelsLock.Lock()
	delete(p.pending, ch.Address())
	p.channels[ch.Address()] = ch
	p.channelsLock.Unlock()
	p.metrics.Pending.Set(float64(len(p.pending)))
	p.pendingLock.Unlock()

	p.metrics.Channels.WithLabelValues(ch.Session().String()).Inc()
	p.channelSubs.Notify(ChannelResult{
		Addr:    ch.Address(),
		Session: ch.Session(),
		Channel: ch,
	})
}

// Remove deletes ch from the connected set.
func (p *P2P) Remove(ch *Channel) {
	p.channelsLock.Lock()
	defer p.channelsLock.Unlock()

	if cur, ok := p.channels[ch.Address()]; ok && cur == ch {
		delete(p.channels, ch.Address())
		p.metrics.Channels.WithLabelValues(ch.Session().String()).Dec()
	}
}

// Exists reports whether addr is connected.
func (p *P2P) Exists(addr string) bool {
	p.channelsLock.RLock()
	defer p.channelsLock.RUnlock()

	_, ok := p.channels[addr]
	return ok
}

func (p *P2P) channel(addr string) *Channel {
	p.channelsLock.RLock()
	defer p.channelsLock.RUnlock()
	return p.channels[addr]
}

// ConnectionsCount returns the number of connected channels.
func (p *P2P) ConnectionsCount() int {
	p.channelsLock.RLock()
	defer p.channelsLock.RUnlock()
	return len(p.channels)
}

// Channels returns a snapshot of the connected channels, sorted by address.
func (p *P2P) Channels() []*Channel {
	p.channelsLock.RLock()
	res := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		res = append(res, ch)
	}
	p.channelsLock.RUnlock()

	sort.Slice(res, func(i, j int) bool {
		return res[i].Address() < res[j].Address()
	})
	return res
}

// WaitForOutbound blocks until every known host other than ours has been
// attempted once by the outbound session, or every outbound slot is
// connected, or ctx is done. It returns at once unless seeds or peers are
// configured and there are outbound slots.
func (p *P2P) WaitForOutbound(ctx context.Context) {
	s := p.settings
	if (len(s.Seeds) == 0 && len(s.Peers) == 0) || s.OutboundConnections == 0 {
		return
	}

	sub := p.SubscribeChannel()
	defer sub.Unsubscribe()

	p.outbound.EnableNotify()
	defer p.outbound.DisableNotify()

	for {
		if p.outbound.ConnectedSlots() >= s.OutboundConnections {
			return
		}
		if p.outbound.attemptedAll(filterExternal(s, p.hosts.Load())) {
			return
		}

		if _, err := sub.Receive(ctx); err != nil {
			return
		}
	}
}

// GetInfo describes the network and its sessions.
func (p *P2P) GetInfo() P2PInfo {
	return P2PInfo{
		State:    p.State().String(),
		External: p.settings.ExternalAddr,
		Sessions: []SessionInfo{
			p.manual.Info(),
			p.inbound.Info(),
			p.outbound.Info(),
		},
	}
}

// Hosts returns the Hosts registry.
func (p *P2P) Hosts() *Hosts {
	return p.hosts
}

// Settings returns the network settings.
func (p *P2P) Settings() *Settings {
	return p.settings
}

// ProtocolRegistry returns the registry consulted for every new channel.
func (p *P2P) ProtocolRegistry() *ProtocolRegistry {
	return p.registry
}

// Metrics returns the network metrics.
func (p *P2P) Metrics() *Metrics {
	return p.metrics
}

// InboundAddrs returns the addresses the inbound session listens on.
func (p *P2P) InboundAddrs() []string {
	return p.inbound.Addrs()
}

// ManualSession returns the manual session.
func (p *P2P) ManualSession() *ManualSession {
	return p.manual
}
