package node

import "time"

type timerFactory func(time.Duration) <-chan time.Time

// SlotClock maps wall-clock time to slots. Slot 0 starts at the genesis and
// every slot lasts the same duration.
type SlotClock struct {
	genesis  time.Time
	duration time.Duration

	now          func() time.Time
	timerFactory timerFactory
}

// NewSlotClock creates a SlotClock on the system clock.
func NewSlotClock(genesis time.Time, duration time.Duration) *SlotClock {
	return &SlotClock{
		genesis:      genesis,
		duration:     duration,
		now:          time.Now,
		timerFactory: time.After,
	}
}

// Now returns the current time.
func (c *SlotClock) Now() time.Time {
	return c.now()
}

// Slot returns the slot running at t. Times before the genesis belong to
// slot 0.
func (c *SlotClock) Slot(t time.Time) uint64 {
	if !t.After(c.genesis) {
		return 0
	}
	return uint64(t.Sub(c.genesis) / c.duration)
}

// SlotStart returns the time slot starts.
func (c *SlotClock) SlotStart(slot uint64) time.Time {
	return c.genesis.Add(time.Duration(slot) * c.duration)
}

// Next returns the next slot and a channel that fires when it starts.
func (c *SlotClock) Next() (uint64, <-chan time.Time) {
	now := c.now()
	next := c.Slot(now) + 1
	return next, c.timerFactory(c.SlotStart(next).Sub(now))
}
