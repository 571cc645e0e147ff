// Package testutil provides shared test fixtures: deterministic clocks and
// evidence builders used across package tests.
package testutil

import (
	"sync"
	"time"
)

// FrozenClock is a thread-safe wall clock for tests. It returns a fixed
// instant until advanced, so freshness-window assertions are deterministic.
type FrozenClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFrozenClock creates a clock frozen at t.
func NewFrozenClock(t time.Time) *FrozenClock {
	return &FrozenClock{now: t}
}

// Now returns the frozen instant. Pass the method value as a now-func:
//
//	gate := presence.NewGate(evidence, clock.Now, nil)
func (c *FrozenClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *FrozenClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to an absolute instant.
func (c *FrozenClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
