package net

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

var errNoAddress = errors.New("no address available")

// OutboundSession maintains OutboundConnections slots. Each slot picks an
// address from the Hosts registry that is not ours, not connected and not
// pending, connects to it, and starts over when the channel stops.
type OutboundSession struct {
	p2p *P2P

	mtx       sync.Mutex
	slots     []*SlotInfo
	attempted map[string]struct{}

	notify *atomic.Bool

	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logrus.Entry
}

// NewOutboundSession creates an OutboundSession for p2p.
func NewOutboundSession(p2p *P2P) *OutboundSession {
	return &OutboundSession{
		p2p:       p2p,
		attempted: make(map[string]struct{}),
		notify:    atomic.NewBool(false),
		logger:    p2p.logger.WithField("session", "outbound"),
	}
}

// Type implements the Session interface.
func (s *OutboundSession) Type() SessionFlag {
	return SessionOutbound
}

// Start launches the slots. It does not block.
func (s *OutboundSession) Start(ctx context.Context) error {
	n := s.p2p.settings.OutboundConnections

	s.mtx.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.slots = make([]*SlotInfo, n)
	for i := range s.slots {
		s.slots[i] = &SlotInfo{State: slotIdle}
	}
	s.mtx.Unlock()

	s.logger.WithField("slots", n).Debug("Starting outbound slots")

	for i := 0; i < n; i++ {
		s.wg.Add(1)
		go s.runSlot(ctx, i)
	}
	return nil
}

func (s *OutboundSession) runSlot(ctx context.Context, slot int) {
	defer s.wg.Done()

	logger := s.logger.WithField("slot", slot)

	for ctx.Err() == nil {
		addr := s.pickAddress()
		if addr == "" {
			logger.Debug("No address available")
			s.updateSlot(slot, "", slotIdle, errNoAddress)
			if !sleepCtx(ctx, s.p2p.settings.OutboundRetry) {
				return
			}
			continue
		}

		s.updateSlot(slot, addr, slotConnecting, nil)

		ch, err := s.p2p.connect(ctx, addr, SessionOutbound)
		s.recordAttempt(addr)
		if s.notify.Load() {
			s.p2p.channelSubs.Notify(ChannelResult{
				Addr:    addr,
				Session: SessionOutbound,
				Channel: ch,
				Err:     err,
			})
		}

		if err != nil {
			logger.WithField("addr", addr).WithError(err).Debug("Outbound connection failed")
			s.updateSlot(slot, addr, slotIdle, err)
			if !sleepCtx(ctx, s.p2p.settings.OutboundRetry) {
				return
			}
			continue
		}

		logger.WithField("addr", addr).Info("Outbound channel connected")
		s.updateSlot(slot, addr, slotConnected, nil)

		waitStop(ctx, ch)
		s.updateSlot(slot, "", slotIdle, nil)
	}
}

// pickAddress returns a known address that is not ours, after reserving it
// in the pending set. It returns an empty string when none is available.
func (s *OutboundSession) pickAddress() string {
	for _, addr := range s.p2p.hosts.Sample(s.p2p.hosts.Len()) {
		if s.p2p.settings.isExternal(addr) {
			continue
		}
		if s.p2p.AddPending(addr) {
			return addr
		}
	}
	return ""
}

func (s *OutboundSession) updateSlot(slot int, addr, state string, err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info := s.slots[slot]
	info.Addr = addr
	info.State = state
	if err != nil {
		info.LastError = err.Error()
	} else if state == slotConnected {
		info.LastError = ""
	}
}

func (s *OutboundSession) recordAttempt(addr string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.attempted[addr] = struct{}{}
}

// attemptedAll reports whether every address of addrs was attempted at least
// once.
func (s *OutboundSession) attemptedAll(addrs []string) bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, addr := range addrs {
		if _, ok := s.attempted[addr]; !ok {
			return false
		}
	}
	return true
}

// EnableNotify publishes the result of every attempt to the SubscribeChannel
// subscribers.
func (s *OutboundSession) EnableNotify() {
	s.notify.Store(true)
}

// DisableNotify stops publishing attempts.
func (s *OutboundSession) DisableNotify() {
	s.notify.Store(false)
}

// ConnectedSlots returns the number of slots holding a channel.
func (s *OutboundSession) ConnectedSlots() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	n := 0
	for _, info := range s.slots {
		if info.State == slotConnected {
			n++
		}
	}
	return n
}

// Info implements the Session interface.
func (s *OutboundSession) Info() SessionInfo {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info := SessionInfo{Type: SessionOutbound.String()}
	for _, slot := range s.slots {
		entry := *slot
		if slot.State == slotConnected {
			if ch := s.p2p.channel(slot.Addr); ch != nil {
				chInfo := ch.Info()
				entry.Channel = &chInfo
			}
		}
		info.Entries = append(info.Entries, entry)
	}
	return info
}

// Stop implements the Session interface.
func (s *OutboundSession) Stop() {
	s.mtx.Lock()
	cancel := s.cancel
	s.mtx.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// sleepCtx sleeps for d. It returns false if ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
