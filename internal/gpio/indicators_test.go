package gpio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/logic"
)

func newTestIndicators() (*Indicators, *FakeLEDs, *[]time.Duration) {
	leds := &FakeLEDs{}
	ind := NewIndicators(leds)
	var slept []time.Duration
	ind.sleep = func(ctx context.Context, d time.Duration) error {
		slept = append(slept, d)
		return ctx.Err()
	}
	return ind, leds, &slept
}

func TestShow(t *testing.T) {
	tests := []struct {
		sig  logic.Signal
		want LampState
	}{
		{logic.SignalWaiting, LampState{Waiting: true}},
		{logic.SignalInProgress, LampState{Active: true}},
		{logic.SignalStopped, LampState{Stopped: true}},
	}

	for _, tt := range tests {
		t.Run(string(tt.sig), func(t *testing.T) {
			ind, leds, _ := newTestIndicators()
			if err := ind.Show(tt.sig); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := leds.Current(); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestShowUnknownSignal(t *testing.T) {
	ind, leds, _ := newTestIndicators()
	if err := ind.Show("PURPLE"); err == nil {
		t.Error("expected error for unknown signal")
	}
	if len(leds.Calls()) != 0 {
		t.Error("unknown signal must not touch the lamps")
	}
}

func TestCelebrate(t *testing.T) {
	ind, leds, slept := newTestIndicators()

	if err := ind.Celebrate(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	calls := leds.Calls()
	if len(calls) != 2*logic.CelebrationReps {
		t.Fatalf("expected %d lamp changes, got %d", 2*logic.CelebrationReps, len(calls))
	}
	for i, c := range calls {
		if !c.Stopped {
			t.Errorf("call %d: red must stay on during celebration", i)
		}
		on := i%2 == 0
		if c.Waiting != on || c.Active != on {
			t.Errorf("call %d: expected green+yellow=%v, got %+v", i, on, c)
		}
	}

	var total time.Duration
	for _, d := range *slept {
		total += d
	}
	if total != logic.DefaultTiming().Celebration {
		t.Errorf("expected celebration to last %v, got %v", logic.DefaultTiming().Celebration, total)
	}
}

func TestCelebrateCancelled(t *testing.T) {
	ind, leds, _ := newTestIndicators()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := ind.Celebrate(ctx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := leds.Current(); got != (LampState{Stopped: true}) {
		t.Errorf("expected only red after cancel, got %+v", got)
	}
}

func TestCelebrateLEDError(t *testing.T) {
	ind, leds, _ := newTestIndicators()
	leds.SetError = errors.New("line busy")

	if err := ind.Celebrate(context.Background()); err == nil {
		t.Error("expected led error to be returned")
	}
}

func TestOff(t *testing.T) {
	ind, leds, _ := newTestIndicators()
	ind.Show(logic.SignalStopped)
	if err := ind.Off(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := leds.Current(); got != (LampState{}) {
		t.Errorf("expected all off, got %+v", got)
	}
}
