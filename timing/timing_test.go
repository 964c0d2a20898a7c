package timing

import (
	"testing"
	"time"

	"github.com/kestrel3d/kestrel/config"
)

func TestTimeTickers(t *testing.T) {
	clock := NewTime(config.TimeConfiguration{FramesPerSecond: 60, EventPollDelay: 5})
	defer clock.Stop()

	if clock.Fps() != 60 {
		t.Errorf("fps: got %d, want 60", clock.Fps())
	}
	if clock.FpsTicker() == nil || clock.EventTicker() == nil {
		t.Fatal("tickers not initialized")
	}

	select {
	case <-clock.FpsTicker().C:
	case <-time.After(time.Second):
		t.Error("fps ticker did not fire within a second")
	}
}

func TestUncappedTime(t *testing.T) {
	clock := NewTime(config.TimeConfiguration{})
	defer clock.Stop()
	if clock.Fps() != 0 {
		t.Errorf("uncapped fps: got %d, want 0", clock.Fps())
	}
	select {
	case <-clock.FpsTicker().C:
	case <-time.After(time.Second):
		t.Error("uncapped ticker did not fire within a second")
	}
}

func TestClockDelta(t *testing.T) {
	clock := NewClock()
	time.Sleep(10 * time.Millisecond)
	delta := clock.Delta()
	if delta <= 0 {
		t.Errorf("delta not positive: %f", delta)
	}
	if delta > 5 {
		t.Errorf("delta implausibly large: %f", delta)
	}
}
