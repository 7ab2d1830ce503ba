package queue

import "time"

// Clock supplies scheduler ticks. One tick is one narration time unit.
type Clock interface {
	Ticks() <-chan time.Time
	Stop()
}

type tickerClock struct {
	ticker *time.Ticker
}

// NewTickerClock returns a Clock driven by a time.Ticker
func NewTickerClock(interval time.Duration) Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &tickerClock{ticker: time.NewTicker(interval)}
}

func (c *tickerClock) Ticks() <-chan time.Time { return c.ticker.C }
func (c *tickerClock) Stop() { c.ticker.Stop() }

// ManualClock ticks only when told to. Advance blocks until the
// scheduler has received each tick.
type ManualClock struct {
	ch chan time.Time
}

// NewManualClock creates a ManualClock
func NewManualClock() *ManualClock {
	return &ManualClock{ch: make(chan time.Time)}
}

func (c *ManualClock) Ticks() <-chan time.Time { return c.ch }
func (c *ManualClock) Stop() {}

// Advance delivers n ticks
func (c *ManualClock) Advance(n int) {
	for i := 0; i < n; i++ {
		c.ch <- time.Now()
	}
}
