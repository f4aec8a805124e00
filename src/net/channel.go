package net

import (
	"bufio"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.uber.org/atomic"
)

// ErrChannelClosed is returned by operations on a stopped channel.
var ErrChannelClosed = errors.New("channel closed")

// ChannelInfo describes a channel for GetInfo.
type ChannelInfo struct {
	Address   string    `json:"address"`
	Session   string    `json:"session"`
	StartTime time.Time `json:"start_time"`
	LastMsg   string    `json:"last_msg"`
	LastTime  time.Time `json:"last_time"`
	Sent      uint64    `json:"sent"`
	Received  uint64    `json:"received"`
}

// Channel is one connection to a peer. Received packets are routed through
// its MessageSubsystem; Send writes under a per-channel lock so concurrent
// protocols never interleave frames.
type Channel struct {
	conn    net.Conn
	addr    string
	session SessionFlag

	msgs     *MessageSubsystem
	stopSubs *Subscriber[error]

	writeLock    sync.Mutex
	writeTimeout time.Duration

	started  *atomic.Bool
	stopped  *atomic.Bool
	sent     *atomic.Uint64
	received *atomic.Uint64

	infoLock  sync.Mutex
	startTime time.Time
	lastMsg   string
	lastTime  time.Time

	metrics *Metrics
	logger  *logrus.Entry
}

// NewChannel wraps conn. addr is the address the peer is known by: the dialed
// address for outbound connections, the remote address for inbound ones.
func NewChannel(conn net.Conn,
	addr string,
	session SessionFlag,
	writeTimeout time.Duration,
	metrics *Metrics,
	logger *logrus.Entry) *Channel {

	chLogger := logger.WithFields(logrus.Fields{
		"channel": addr,
		"session": session.String(),
	})

	return &Channel{
		conn:         conn,
		addr:         addr,
		session:      session,
		msgs:         NewMessageSubsystem(chLogger),
		stopSubs:     NewSubscriber[error](),
		writeTimeout: writeTimeout,
		started:      atomic.NewBool(false),
		stopped:      atomic.NewBool(false),
		sent:         atomic.NewUint64(0),
		received:     atomic.NewUint64(0),
		startTime:    time.Now(),
		metrics:      metrics,
		logger:       chLogger,
	}
}

// Address returns the peer address.
func (c *Channel) Address() string {
	return c.addr
}

// Session returns the class of the session owning the channel.
func (c *Channel) Session() SessionFlag {
	return c.session
}

// Messages returns the channel's MessageSubsystem.
func (c *Channel) Messages() *MessageSubsystem {
	return c.msgs
}

// Logger returns the channel's logger.
func (c *Channel) Logger() *logrus.Entry {
	return c.logger
}

// Start launches the read loop. Dispatchers must be added before.
func (c *Channel) Start() {
	if !c.started.CompareAndSwap(false, true) {
		return
	}
	go c.readLoop()
}

func (c *Channel) readLoop() {
	r := bufio.NewReader(c.conn)
	for {
		packet, err := readPacket(r)
		if err != nil {
			if !c.IsStopped() && err != io.EOF {
				c.logger.WithError(err).Debug("Read failed")
			}
			c.stopWith(err)
			return
		}

		c.received.Inc()
		c.infoLock.Lock()
		c.lastMsg = packet.Command
		c.lastTime = time.Now()
		c.infoLock.Unlock()
		if c.metrics != nil {
			c.metrics.MessagesReceived.WithLabelValues(packet.Command).Inc()
		}

		c.msgs.notify(packet)
	}
}

// Send encodes msg and writes it to the peer.
func (c *Channel) Send(msg Message) error {
	packet, err := NewPacket(msg)
	if err != nil {
		return err
	}
	raw, err := packet.Marshal()
	if err != nil {
		return err
	}
	return c.sendRaw(packet.Command, raw)
}

// sendRaw writes an already framed packet. A write failure stops the channel.
func (c *Channel) sendRaw(command string, raw []byte) error {
	if c.IsStopped() {
		return ErrChannelClosed
	}

	c.writeLock.Lock()
	defer c.writeLock.Unlock()

	if c.writeTimeout > 0 {
		c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(raw); err != nil {
		c.logger.WithError(err).Debug("Write failed")
		c.stopWith(err)
		return ErrChannelClosed
	}

	c.sent.Inc()
	if c.metrics != nil {
		c.metrics.MessagesSent.WithLabelValues(command).Inc()
	}
	return nil
}

// Stop closes the connection. Every message subscription fails with
// ErrChannelClosed and the stop subscribers are notified. Stop is idempotent.
func (c *Channel) Stop() {
	c.stopWith(ErrChannelClosed)
}

func (c *Channel) stopWith(reason error) {
	if !c.stopped.CompareAndSwap(false, true) {
		return
	}

	c.logger.WithField("reason", reason).Debug("Stopping channel")

	c.conn.Close()
	c.msgs.close(ErrChannelClosed)
	c.stopSubs.Notify(reason)
	c.stopSubs.Close(reason)
}

// IsStopped reports whether the channel was stopped.
func (c *Channel) IsStopped() bool {
	return c.stopped.Load()
}

// SubscribeStop returns a subscription that receives the reason the channel
// stopped. On a stopped channel, Receive returns the reason as its error.
func (c *Channel) SubscribeStop() *Subscription[error] {
	return c.stopSubs.Subscribe()
}

// Info returns a snapshot of the channel's counters.
func (c *Channel) Info() ChannelInfo {
	c.infoLock.Lock()
	defer c.infoLock.Unlock()

	return ChannelInfo{
		Address:   c.addr,
		Session:   c.session.String(),
		StartTime: c.startTime,
		LastMsg:   c.lastMsg,
		LastTime:  c.lastTime,
		Sent:      c.sent.Load(),
		Received:  c.received.Load(),
	}
}
