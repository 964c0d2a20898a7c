// Package timing provides the tickers and clocks driving the frame loop.
package timing

import (
	"time"

	"github.com/kestrel3d/kestrel/config"
)

// NewTime creates a new time service
func NewTime(cfg config.TimeConfiguration) Time {
	var interval time.Duration
	if cfg.FramesPerSecond == 0 {
		interval = time.Nanosecond
	} else {
		interval = time.Second / (time.Duration)(cfg.FramesPerSecond)
	}

	pollDelay := cfg.EventPollDelay
	if pollDelay <= 0 {
		pollDelay = 10
	}

	return Time{
		fps:            cfg.FramesPerSecond,
		fpsTicker:      time.NewTicker(interval),
		eventPollDelay: pollDelay,
		eventTicker:    time.NewTicker(time.Duration(pollDelay) * time.Millisecond),
	}
}

// Time contains all the time services and tickers
type Time struct {
	fps       int
	fpsTicker *time.Ticker

	eventPollDelay int
	eventTicker    *time.Ticker
}

// Fps gets the set frames per second
func (t *Time) Fps() int {
	return t.fps
}

// FpsTicker gets the initialized fps ticker
func (t *Time) FpsTicker() *time.Ticker {
	return t.fpsTicker
}

// EventTicker gets the initialized event ticker for the event loop
func (t *Time) EventTicker() *time.Ticker {
	return t.eventTicker
}

// Stop releases both tickers.
func (t *Time) Stop() {
	t.fpsTicker.Stop()
	t.eventTicker.Stop()
}

// Clock measures the delta time between frames.
type Clock struct {
	last time.Time
}

// NewClock creates a started clock.
func NewClock() *Clock {
	return &Clock{last: time.Now()}
}

// Delta returns the seconds since the previous call and restarts the
// measurement. The first call measures from clock creation.
func (c *Clock) Delta() float32 {
	now := time.Now()
	delta := now.Sub(c.last)
	c.last = now
	return float32(delta.Seconds())
}
