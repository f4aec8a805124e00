package net

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"
)

var errAlreadyPending = errors.New("address already pending or connected")

// ManualSession keeps the configured peers connected. Each peer has its own
// goroutine that reconnects with a capped, randomized exponential backoff and
// starts over when a connected channel stops.
type ManualSession struct {
	p2p *P2P

	mtx   sync.Mutex
	slots map[string]*SlotInfo

	cancel context.CancelFunc
	ctx    context.Context
	wg     sync.WaitGroup

	logger *logrus.Entry
}

// NewManualSession creates a ManualSession for p2p.
func NewManualSession(p2p *P2P) *ManualSession {
	ctx, cancel := context.WithCancel(context.Background())
	return &ManualSession{
		p2p:    p2p,
		slots:  make(map[string]*SlotInfo),
		ctx:    ctx,
		cancel: cancel,
		logger: p2p.logger.WithField("session", "manual"),
	}
}

// Type implements the Session interface.
func (s *ManualSession) Type() SessionFlag {
	return SessionManual
}

// Connect keeps addr connected until ctx is done, the session stops, or
// ManualAttemptLimit consecutive attempts fail. It does not block.
func (s *ManualSession) Connect(ctx context.Context, addr string) {
	s.mtx.Lock()
	if _, ok := s.slots[addr]; ok {
		s.mtx.Unlock()
		return
	}
	s.slots[addr] = &SlotInfo{Addr: addr, State: slotIdle}
	s.mtx.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()

		// Stop follows the session context as well.
		go func() {
			select {
			case <-s.ctx.Done():
				cancel()
			case <-ctx.Done():
			}
		}()

		s.connectLoop(ctx, addr)
	}()
}

func (s *ManualSession) newBackoff() retry.Backoff {
	settings := s.p2p.settings

	base := settings.ReconnectBase
	if base <= 0 {
		base = DefaultReconnectBase
	}

	backoff := retry.NewExponential(base)
	backoff = retry.WithCappedDuration(settings.ReconnectMax, backoff)
	backoff = retry.WithJitterPercent(20, backoff)
	if settings.ManualAttemptLimit > 0 {
		backoff = retry.WithMaxRetries(uint64(settings.ManualAttemptLimit-1), backoff)
	}
	return backoff
}

func (s *ManualSession) connectLoop(ctx context.Context, addr string) {
	logger := s.logger.WithField("addr", addr)

	for ctx.Err() == nil {
		var ch *Channel
		err := retry.Do(ctx, s.newBackoff(), func(ctx context.Context) error {
			s.update(addr, func(info *SlotInfo) {
				info.State = slotConnecting
				info.Attempts++
			})

			if !s.p2p.AddPending(addr) {
				return retry.RetryableError(errAlreadyPending)
			}

			c, err := s.p2p.connect(ctx, addr, SessionManual)
			if err != nil {
				logger.WithError(err).Debug("Manual connection failed")
				s.update(addr, func(info *SlotInfo) {
					info.State = slotIdle
					info.LastError = err.Error()
				})
				return retry.RetryableError(err)
			}

			ch = c
			return nil
		})
		if err != nil {
			if ctx.Err() == nil {
				logger.WithError(err).Warn("Giving up on manual peer")
			}
			s.update(addr, func(info *SlotInfo) { info.State = slotIdle })
			return
		}

		logger.Info("Connected to manual peer")
		s.update(addr, func(info *SlotInfo) {
			info.State = slotConnected
			info.Attempts = 0
			info.LastError = ""
		})

		reason := waitStop(ctx, ch)
		s.update(addr, func(info *SlotInfo) { info.State = slotIdle })
		if ctx.Err() != nil {
			return
		}
		logger.WithField("reason", reason).Info("Manual peer disconnected, reconnecting")
	}
}

func (s *ManualSession) update(addr string, f func(info *SlotInfo)) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if info, ok := s.slots[addr]; ok {
		f(info)
	}
}

// Info implements the Session interface.
func (s *ManualSession) Info() SessionInfo {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info := SessionInfo{Type: SessionManual.String()}
	for _, slot := range s.slots {
		entry := *slot
		if ch := s.p2p.channel(slot.Addr); ch != nil {
			chInfo := ch.Info()
			entry.Channel = &chInfo
		}
		info.Entries = append(info.Entries, entry)
	}
	sort.Slice(info.Entries, func(i, j int) bool {
		return info.Entries[i].Addr < info.Entries[j].Addr
	})
	return info
}

// Stop implements the Session interface.
func (s *ManualSession) Stop() {
	s.cancel()
	s.wg.Wait()
}
