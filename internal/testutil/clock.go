// Package testutil holds deterministic stand-ins shared by package tests.
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock returns a fixed time. Safe for concurrent use.
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock creates a StubClock set to the given time.
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock returns a StubClock set to Monday 2026-02-16 08:00 local time.
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2026, 2, 16, 8, 0, 0, 0, time.Local))
}

func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *StubClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// StubIDGenerator returns sequential IDs with a prefix: "id-1", "id-2", etc.
type StubIDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter int
}

func NewStubIDGenerator() *StubIDGenerator {
	return &StubIDGenerator{prefix: "id"}
}

// NewPrefixedIDGenerator returns ids of the form "<prefix>-N".
func NewPrefixedIDGenerator(prefix string) *StubIDGenerator {
	return &StubIDGenerator{prefix: prefix}
}

func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}
