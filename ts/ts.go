// Package ts is the process clock.
package ts

import (
	"time"

	"github.com/jonboulle/clockwork"
)

// Clock wraps a clockwork.Clock so tests can swap in a fake one.
type Clock struct {
	realClock clockwork.Clock
}

func NewRealClock() *Clock {
	return NewClock(clockwork.NewRealClock())
}

func NewClock(c clockwork.Clock) *Clock {
	return &Clock{realClock: c}
}

// Now is the current time in UTC.  Payouts record when they were calculated
// in UTC, whatever the server's zone.
func (c *Clock) Now() time.Time {
	return c.realClock.Now().UTC()
}

// Today is the current UTC calendar date at midnight.
func (c *Clock) Today() time.Time {
	y, m, d := c.Now().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (c *Clock) Year() int {
	return c.Now().Year()
}

func (c *Clock) RealClock() clockwork.Clock {
	return c.realClock
}
