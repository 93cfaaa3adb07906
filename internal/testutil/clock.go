package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock is a controllable fav.Clock. With a non-zero step every call to
// Now advances it, so records created in sequence get distinct, increasing
// AddedAt values.
type StubClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

// NewStubClock returns a clock frozen at t.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// NewSteppingClock returns a clock that starts at t and moves forward by step
// after each reading.
func NewSteppingClock(t time.Time, step time.Duration) *StubClock {
	return &StubClock{now: t, step: step}
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

// Peek returns the next reading without advancing.
func (c *StubClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// SetStep changes how far each reading advances the clock.
func (c *StubClock) SetStep(step time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.step = step
}

// StubIDGenerator hands out remote record IDs "id-1", "id-2", ...
type StubIDGenerator struct {
	mu   sync.Mutex
	next int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return fmt.Sprintf("id-%d", g.next)
}
