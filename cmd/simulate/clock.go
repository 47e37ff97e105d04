package main

import (
	"sync"
	"time"
)

// virtualClock is wall time shifted by the scenario's advance steps.
type virtualClock struct {
	mu     sync.Mutex
	offset time.Duration
}

func newVirtualClock() *virtualClock {
	return &virtualClock{}
}

func (c *virtualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Now().Add(c.offset)
}

func (c *virtualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offset += d
}
