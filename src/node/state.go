package node

import (
	"sync"

	"go.uber.org/atomic"
)

// State captures the state of a node: Initialising, Voting, Following or
// Shutdown.
type State uint32

const (
	// Initialising is the initial state of a node: its networks are starting.
	Initialising State = iota
	// Voting nodes follow the slot clock, propose and vote.
	Voting
	// Following nodes have no key and only apply finalized blocks.
	Following
	// Shutdown is shutdown
	Shutdown
)

func (s State) String() string {
	switch s {
	case Initialising:
		return "Initialising"
	case Voting:
		return "Voting"
	case Following:
		return "Following"
	case Shutdown:
		return "Shutdown"
	default:
		return "Unknown"
	}
}

type state struct {
	state atomic.Uint32
	wg    sync.WaitGroup
}

func (b *state) getState() State {
	return State(b.state.Load())
}

func (b *state) setState(s State) {
	b.state.Store(uint32(s))
}

// Start a goroutine and add it to waitgroup
func (b *state) goFunc(f func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		f()
	}()
}

func (b *state) waitRoutines() {
	b.wg.Wait()
}
