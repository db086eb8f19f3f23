package clock

import "time"

// FakeClock is a fixed Clock for tests. Credits, debits, and poller cutoffs
// are all stamped from Now, so pinning it makes journal rows and stale-pending
// queries assertable.
type FakeClock struct {
	now time.Time
}

func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

func (c *FakeClock) Now() time.Time {
	return c.now
}

// Advance moves the clock forward and returns the new time.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.now = c.now.Add(d)
	return c.now
}
