// Package monitor drives the counter store and alert engine from a stream of
// access-log rows, using the data itself as the clock.
package monitor

import "time"

// Clock tracks "now" as the latest record timestamp observed. Records that
// arrive out of order never move it backwards.
type Clock struct {
	now time.Time
	set bool
}

// Observe offers a timestamp and reports whether the clock advanced.
func (c *Clock) Observe(ts time.Time) bool {
	if c.set && !ts.After(c.now) {
		return false
	}
	c.now = ts
	c.set = true
	return true
}

// Now returns the current data time and whether any timestamp was observed.
func (c *Clock) Now() (time.Time, bool) {
	return c.now, c.set
}
