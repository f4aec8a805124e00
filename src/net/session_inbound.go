package net

import (
	"context"
	"net"
	"sync"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// InboundSession accepts connections on the configured inbound addresses.
// Connections beyond InboundConnections, or from addresses already pending or
// connected, are closed.
type InboundSession struct {
	p2p *P2P

	mtx       sync.Mutex
	listeners []net.Listener
	active    *atomic.Int64
	stopped   bool

	wg sync.WaitGroup

	logger *logrus.Entry
}

// NewInboundSession creates an InboundSession for p2p.
func NewInboundSession(p2p *P2P) *InboundSession {
	return &InboundSession{
		p2p:    p2p,
		active: atomic.NewInt64(0),
		logger: p2p.logger.WithField("session", "inbound"),
	}
}

// Type implements the Session interface.
func (s *InboundSession) Type() SessionFlag {
	return SessionInbound
}

// Start binds every inbound address. A bind error closes the listeners
// already bound and is returned.
func (s *InboundSession) Start(ctx context.Context) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	for _, addr := range s.p2p.settings.Inbound {
		l, err := s.p2p.stream.Listen(addr)
		if err != nil {
			for _, prev := range s.listeners {
				prev.Close()
			}
			s.listeners = nil
			return err
		}

		s.logger.WithField("addr", l.Addr().String()).Info("Listening")
		s.listeners = append(s.listeners, l)

		s.wg.Add(1)
		go s.acceptLoop(ctx, l)
	}
	return nil
}

// Addrs returns the addresses the session listens on.
func (s *InboundSession) Addrs() []string {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	res := make([]string, 0, len(s.listeners))
	for _, l := range s.listeners {
		res = append(res, l.Addr().String())
	}
	return res
}

func (s *InboundSession) acceptLoop(ctx context.Context, l net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			if !s.isStopped() && ctx.Err() == nil {
				s.logger.WithError(err).Error("Accept failed")
			}
			return
		}

		addr := conn.RemoteAddr().String()
		limit := s.p2p.settings.InboundConnections

		if limit > 0 && s.active.Load() >= int64(limit) {
			s.logger.WithField("addr", addr).Debug("Inbound limit reached, refusing connection")
			conn.Close()
			continue
		}

		if !s.p2p.AddPending(addr) {
			s.logger.WithField("addr", addr).Debug("Address already pending or connected, refusing connection")
			conn.Close()
			continue
		}

		s.active.Inc()
		s.wg.Add(1)
		go s.handle(ctx, conn, addr)
	}
}

func (s *InboundSession) handle(ctx context.Context, conn net.Conn, addr string) {
	defer s.wg.Done()
	defer s.active.Dec()

	ch := NewChannel(conn, addr, SessionInbound, s.p2p.settings.WriteTimeout, s.p2p.metrics, s.p2p.logger)
	if err := s.p2p.registerChannel(ctx, ch); err != nil {
		s.logger.WithField("addr", addr).WithError(err).Debug("Inbound registration failed")
		return
	}

	waitStop(ctx, ch)
}

func (s *InboundSession) isStopped() bool {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.stopped
}

// Info implements the Session interface.
func (s *InboundSession) Info() SessionInfo {
	info := SessionInfo{Type: SessionInbound.String()}
	for _, addr := range s.Addrs() {
		info.Entries = append(info.Entries, SlotInfo{Addr: addr, State: slotListening})
	}
	for _, ch := range s.p2p.Channels() {
		if ch.Session() != SessionInbound {
			continue
		}
		chInfo := ch.Info()
		info.Entries = append(info.Entries, SlotInfo{
			Addr:    ch.Address(),
			State:   slotConnected,
			Channel: &chInfo,
		})
	}
	return info
}

// Stop implements the Session interface. The context given to Start must be
// done, otherwise Stop waits for the inbound channels to close.
func (s *InboundSession) Stop() {
	s.mtx.Lock()
	s.stopped = true
	for _, l := range s.listeners {
		l.Close()
	}
	s.mtx.Unlock()

	s.wg.Wait()
}

// Active returns the number of inbound channels, including those still in
// the handshake.
func (s *InboundSession) Active() int {
	return int(s.active.Load())
}
