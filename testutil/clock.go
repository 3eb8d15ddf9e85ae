/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"sync"
	"time"
)

// FakeClock is a manually advanced clock. Its Now method may be passed to every store as the time source.
type FakeClock struct {
	mu  sync.Mutex
	cur time.Time
}

// NewFakeClock creates a new FakeClock that starts at the given time.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{cur: start}
}

// NewDefaultFakeClock creates a new FakeClock that starts at 2024-03-01 10:00:00 UTC.
func NewDefaultFakeClock() *FakeClock {
	return NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
}

// Now returns the current time of the clock.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cur
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.cur = c.cur.Add(d)
	c.mu.Unlock()
}

// Set moves the clock to the given time.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.cur = t
	c.mu.Unlock()
}
