// Package system provides the wall clock used outside tests.
package system

import "time"

// Clock stamps discovered_at, crawl_time and backup names. Times are UTC and
// truncated to the configured precision so stored JSON stays compact.
type Clock struct {
	precision time.Duration
}

// Option configures a Clock.
type Option func(*Clock)

// WithPrecision truncates every reading to d. Zero keeps full precision.
func WithPrecision(d time.Duration) Option {
	return func(c *Clock) { c.precision = d }
}

// New creates a Clock.
func New(opts ...Option) *Clock {
	c := &Clock{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the current UTC time.
func (c *Clock) Now() time.Time {
	now := time.Now().UTC()
	if c.precision > 0 {
		now = now.Truncate(c.precision)
	}
	return now
}
