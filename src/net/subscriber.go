package net

import (
	"context"
	"errors"
	"sync"
)

// ErrSubscriptionClosed is returned by Receive once a Subscription is drained
// and its Subscriber was closed without a more specific error.
var ErrSubscriptionClosed = errors.New("subscription closed")

// Subscriber is a publish/subscribe registry. Every Subscription gets its own
// unbounded queue, so a slow consumer never blocks Notify or the other
// subscriptions.
type Subscriber[T any] struct {
	mtx      sync.Mutex
	subs     map[uint64]*Subscription[T]
	nextID   uint64
	closed   bool
	closeErr error
}

// NewSubscriber creates an empty Subscriber.
func NewSubscriber[T any]() *Subscriber[T] {
	return &Subscriber[T]{
		subs: make(map[uint64]*Subscription[T]),
	}
}

// Subscribe registers a new Subscription. Subscribing to a closed Subscriber
// returns a Subscription that is already closed.
func (s *Subscriber[T]) Subscribe() *Subscription[T] {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	sub := newSubscription(s, s.nextID)
	s.nextID++

	if s.closed {
		sub.close(s.closeErr)
		return sub
	}

	s.subs[sub.id] = sub
	return sub
}

// Notify appends v to the queue of every current Subscription.
func (s *Subscriber[T]) Notify(v T) {
	for _, sub := range s.snapshot() {
		sub.push(v)
	}
}

// Close closes every Subscription with err. Queued values remain available to
// Receive. Close is idempotent; only the first error is kept.
func (s *Subscriber[T]) Close(err error) {
	if err == nil {
		err = ErrSubscriptionClosed
	}

	s.mtx.Lock()
	if s.closed {
		s.mtx.Unlock()
		return
	}
	s.closed = true
	s.closeErr = err
	subs := make([]*Subscription[T], 0, len(s.subs))
	for _, sub := range s.subs {
		subs = append(subs, sub)
	}
	s.subs = make(map[uint64]*Subscription[T])
	s.mtx.Unlock()

	for _, sub := range subs {
		sub.close(err)
	}
}

// Len returns the number of live subscriptions.
func (s *Subscriber[T]) Len() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.subs)
}

func (s *Subscriber[T]) snapshot() []*Subscription[T] {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	res := make([]*Subscription[T], 0, len(s.subs))
	for _, sub := range s.subs {
		res = append(res, sub)
	}
	return res
}

func (s *Subscriber[T]) remove(id uint64) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.subs, id)
}

// Subscription is one consumer of a Subscriber.
type Subscription[T any] struct {
	id     uint64
	parent *Subscriber[T]

	mtx    sync.Mutex
	queue  []T
	err    error
	signal chan struct{}
}

func newSubscription[T any](parent *Subscriber[T], id uint64) *Subscription[T] {
	return &Subscription[T]{
		id:     id,
		parent: parent,
		signal: make(chan struct{}, 1),
	}
}

func (s *Subscription[T]) push(v T) {
	s.mtx.Lock()
	if s.err != nil {
		s.mtx.Unlock()
		return
	}
	s.queue = append(s.queue, v)
	s.mtx.Unlock()

	s.wake()
}

func (s *Subscription[T]) close(err error) {
	s.mtx.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mtx.Unlock()

	s.wake()
}

func (s *Subscription[T]) wake() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Receive returns the next queued value. It blocks until a value is
// available, the Subscription is closed, or ctx is done. Values queued
// before Close are still delivered.
func (s *Subscription[T]) Receive(ctx context.Context) (T, error) {
	var zero T
	for {
		s.mtx.Lock()
		if len(s.queue) > 0 {
			v := s.queue[0]
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mtx.Unlock()
			return v, nil
		}
		if s.err != nil {
			err := s.err
			s.mtx.Unlock()
			return zero, err
		}
		s.mtx.Unlock()

		select {
		case <-s.signal:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Pending returns the number of queued values.
func (s *Subscription[T]) Pending() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.queue)
}

// Unsubscribe detaches the Subscription from its Subscriber and closes it.
func (s *Subscription[T]) Unsubscribe() {
	s.parent.remove(s.id)
	s.close(ErrSubscriptionClosed)
}
