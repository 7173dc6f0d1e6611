// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock implements audit.Clock. Times are UTC and truncated to microseconds,
// the precision Postgres stores, so persisted run timestamps compare equal
// after a round trip.
type Clock struct {
	now func() time.Time
}

// New returns a Clock backed by time.Now.
func New() *Clock {
	return &Clock{now: time.Now}
}

// Now returns the current UTC time at microsecond precision.
func (c *Clock) Now() time.Time {
	now := time.Now
	if c != nil && c.now != nil {
		now = c.now
	}
	return now().UTC().Truncate(time.Microsecond)
}
