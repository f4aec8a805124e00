package net

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/mosaicnetworks/streamlet/src/serial"
)

// ErrMissingDispatcher is returned when subscribing to a message type that has
// no dispatcher on the channel.
var ErrMissingDispatcher = errors.New("missing dispatcher")

// MessageSubscription yields the decoded messages of one type received on a
// channel.
type MessageSubscription[M any] struct {
	*Subscription[*M]
}

// dispatcher decodes the payloads of one command and publishes them.
type dispatcher interface {
	dispatch(payload []byte) error
	close(err error)
}

type messageDispatcher[M any, PM interface {
	*M
	Message
}] struct {
	subs *Subscriber[*M]
}

func (d *messageDispatcher[M, PM]) dispatch(payload []byte) error {
	msg := new(M)
	if err := serial.Deserialize(payload, PM(msg)); err != nil {
		return err
	}
	d.subs.Notify(msg)
	return nil
}

func (d *messageDispatcher[M, PM]) close(err error) {
	d.subs.Close(err)
}

// MessageSubsystem routes received packets to the dispatcher registered for
// their command.
type MessageSubsystem struct {
	mtx         sync.Mutex
	dispatchers map[string]dispatcher
	closeErr    error

	logger *logrus.Entry
}

// NewMessageSubsystem creates an empty MessageSubsystem.
func NewMessageSubsystem(logger *logrus.Entry) *MessageSubsystem {
	return &MessageSubsystem{
		dispatchers: make(map[string]dispatcher),
		logger:      logger,
	}
}

// AddDispatch installs the dispatcher for messages of type M. Adding the same
// type twice keeps the first dispatcher and its subscriptions.
func AddDispatch[M any, PM interface {
	*M
	Message
}](ms *MessageSubsystem) {
	name := PM(new(M)).Name()

	ms.mtx.Lock()
	defer ms.mtx.Unlock()

	if _, ok := ms.dispatchers[name]; ok {
		return
	}

	d := &messageDispatcher[M, PM]{subs: NewSubscriber[*M]()}
	if ms.closeErr != nil {
		d.close(ms.closeErr)
	}
	ms.dispatchers[name] = d
}

// SubscribeMsg subscribes to the messages of type M. The dispatcher must have
// been added with AddDispatch.
func SubscribeMsg[M any, PM interface {
	*M
	Message
}](ms *MessageSubsystem) (*MessageSubscription[M], error) {
	name := PM(new(M)).Name()

	ms.mtx.Lock()
	d, ok := ms.dispatchers[name]
	ms.mtx.Unlock()

	if !ok {
		return nil, ErrMissingDispatcher
	}

	md, ok := d.(*messageDispatcher[M, PM])
	if !ok {
		return nil, ErrMissingDispatcher
	}

	return &MessageSubscription[M]{md.subs.Subscribe()}, nil
}

// notify hands a packet to its dispatcher. Unknown commands and payloads that
// fail to decode are logged and dropped.
func (ms *MessageSubsystem) notify(packet *Packet) {
	ms.mtx.Lock()
	d, ok := ms.dispatchers[packet.Command]
	ms.mtx.Unlock()

	if !ok {
		ms.logger.WithField("command", packet.Command).Debug("No dispatcher for command")
		return
	}

	if err := d.dispatch(packet.Payload); err != nil {
		ms.logger.WithFields(logrus.Fields{
			"command": packet.Command,
			"error":   err,
		}).Warn("Dropping malformed message")
	}
}

// close fails every subscription with err.
func (ms *MessageSubsystem) close(err error) {
	ms.mtx.Lock()
	if ms.closeErr == nil {
		ms.closeErr = err
	}
	ds := make([]dispatcher, 0, len(ms.dispatchers))
	for _, d := range ms.dispatchers {
		ds = append(ds, d)
	}
	ms.mtx.Unlock()

	for _, d := range ds {
		d.close(err)
	}
}
