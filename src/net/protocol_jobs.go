package net

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// ProtocolJobsManager runs the goroutines of one protocol on one channel. The
// jobs share a context that is cancelled when the channel stops.
type ProtocolJobsManager struct {
	name    string
	channel *Channel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *logrus.Entry
}

// NewProtocolJobsManager creates a jobs manager for the protocol name on ch.
func NewProtocolJobsManager(name string, ch *Channel) *ProtocolJobsManager {
	return &ProtocolJobsManager{
		name:    name,
		channel: ch,
		logger:  ch.logger.WithField("protocol", name),
	}
}

// Start derives the jobs context from ctx and stops it with the channel.
func (m *ProtocolJobsManager) Start(ctx context.Context) {
	m.ctx, m.cancel = context.WithCancel(ctx)

	stop := m.channel.SubscribeStop()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer stop.Unsubscribe()

		_, _ = stop.Receive(m.ctx)
		m.cancel()
	}()
}

// Spawn runs job in its own goroutine. A job returning an error other than
// the channel closing is logged.
func (m *ProtocolJobsManager) Spawn(job func(ctx context.Context) error) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := job(m.ctx); err != nil && err != ErrChannelClosed && m.ctx.Err() == nil {
			m.logger.WithError(err).Debug("Protocol job ended")
		}
	}()
}

// Close cancels the jobs and waits for them to return.
func (m *ProtocolJobsManager) Close() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Context returns the jobs context.
func (m *ProtocolJobsManager) Context() context.Context {
	return m.ctx
}
