package net

import (
	"context"
	"errors"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNoSeedsOrPeers is returned when the node needs outbound connections
	// but has no seed, no manual peer and no known host.
	ErrNoSeedsOrPeers = errors.New("no seeds or peers configured and no known hosts")

	// ErrSeedFailed is returned when every seed query failed and no host is
	// known.
	ErrSeedFailed = errors.New("seed queries failed and no known hosts")
)

// SeedSyncSession queries the configured seeds for addresses once, when the
// network starts.
type SeedSyncSession struct {
	p2p *P2P

	mtx     sync.Mutex
	results []SlotInfo

	logger *logrus.Entry
}

// NewSeedSyncSession creates a SeedSyncSession for p2p.
func NewSeedSyncSession(p2p *P2P) *SeedSyncSession {
	return &SeedSyncSession{
		p2p:    p2p,
		logger: p2p.logger.WithField("session", "seed"),
	}
}

// Type implements the Session interface.
func (s *SeedSyncSession) Type() SessionFlag {
	return SessionSeed
}

// Start queries every seed concurrently, each within SeedQueryTimeout, and
// returns when all queries are done.
func (s *SeedSyncSession) Start(ctx context.Context) error {
	settings := s.p2p.settings

	if len(settings.Seeds) == 0 {
		if settings.OutboundConnections > 0 &&
			len(settings.Peers) == 0 &&
			s.p2p.hosts.IsEmpty() {
			return ErrNoSeedsOrPeers
		}
		s.logger.Debug("No seeds configured, skipping seed sync")
		return nil
	}

	s.mtx.Lock()
	s.results = make([]SlotInfo, len(settings.Seeds))
	s.mtx.Unlock()

	var g errgroup.Group
	for i, seed := range settings.Seeds {
		i, seed := i, seed
		g.Go(func() error {
			err := s.querySeed(ctx, seed)
			s.record(i, seed, err)
			return err
		})
	}

	if err := g.Wait(); err != nil {
		s.logger.WithError(err).Warn("Seed query failed")
	}

	if s.succeeded() == 0 && s.p2p.hosts.IsEmpty() {
		return ErrSeedFailed
	}

	s.logger.WithField("hosts", s.p2p.hosts.Len()).Info("Seed sync done")
	return nil
}

func (s *SeedSyncSession) querySeed(ctx context.Context, seed string) error {
	if s.p2p.settings.SeedQueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.p2p.settings.SeedQueryTimeout)
		defer cancel()
	}

	ch, err := s.p2p.connect(ctx, seed, SessionSeed)
	if err != nil {
		return err
	}

	reason := waitStop(ctx, ch)
	if reason != errSeedQueryDone {
		ch.Stop()
		return reason
	}
	return nil
}

func (s *SeedSyncSession) record(i int, seed string, err error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info := SlotInfo{Addr: seed, State: "done"}
	if err != nil {
		info.State = "failed"
		info.LastError = err.Error()
	}
	s.results[i] = info
}

func (s *SeedSyncSession) succeeded() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	n := 0
	for _, r := range s.results {
		if r.State == "done" {
			n++
		}
	}
	return n
}

// Info implements the Session interface.
func (s *SeedSyncSession) Info() SessionInfo {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	info := SessionInfo{Type: SessionSeed.String()}
	info.Entries = append(info.Entries, s.results...)
	return info
}

// Stop implements the Session interface. Seed queries are bounded by their
// timeout, so there is nothing to stop.
func (s *SeedSyncSession) Stop() {}
