package domain

import (
	"sync"
	"time"
)

// DailyTradeCounter tracks executed swaps inside a rolling 24h window.
// The window resets lazily: any read or increment first checks whether
// 24h elapsed since the window opened. No background timer.
type DailyTradeCounter struct {
	mu        sync.Mutex
	count     int
	windowAt  time.Time
	windowLen time.Duration
}

// NewDailyTradeCounter opens a fresh window at now.
func NewDailyTradeCounter(now time.Time) *DailyTradeCounter {
	return &DailyTradeCounter{windowAt: now, windowLen: 24 * time.Hour}
}

func (c *DailyTradeCounter) resetIfElapsed(now time.Time) {
	if now.Sub(c.windowAt) >= c.windowLen {
		c.count = 0
		c.windowAt = now
	}
}

// Count returns the trades executed in the current window, applying the
// lazy reset first.
func (c *DailyTradeCounter) Count(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfElapsed(now)
	return c.count
}

// Increment records one executed trade and returns the new count.
func (c *DailyTradeCounter) Increment(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetIfElapsed(now)
	c.count++
	return c.count
}

// WindowStartedAt reports when the current window opened.
func (c *DailyTradeCounter) WindowStartedAt() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.windowAt
}
