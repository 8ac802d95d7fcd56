package gpio

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/fuel-kiosk/internal/logic"
)

// Indicators maps machine signals onto the LEDs.
type Indicators struct {
	leds  LEDs
	sleep func(context.Context, time.Duration) error
}

// NewIndicators wraps leds. Celebrate blocks for the blink pattern using
// real time.
func NewIndicators(leds LEDs) *Indicators {
	return &Indicators{leds: leds, sleep: sleepCtx}
}

// Show lights exactly the lamp for sig.
func (i *Indicators) Show(sig logic.Signal) error {
	switch sig {
	case logic.SignalWaiting:
		return i.leds.Set(true, false, false)
	case logic.SignalInProgress:
		return i.leds.Set(false, true, false)
	case logic.SignalStopped:
		return i.leds.Set(false, false, true)
	}
	return fmt.Errorf("unknown signal %q", sig)
}

// Celebrate blinks the waiting and active lamps together while the stopped
// lamp stays lit. It returns early if ctx is cancelled, leaving the stopped
// lamp on.
func (i *Indicators) Celebrate(ctx context.Context) error {
	for n := 0; n < logic.CelebrationReps; n++ {
		if err := i.leds.Set(true, true, true); err != nil {
			return err
		}
		if err := i.sleep(ctx, logic.CelebrationOn); err != nil {
			return i.leds.Set(false, false, true)
		}
		if err := i.leds.Set(false, false, true); err != nil {
			return err
		}
		if err := i.sleep(ctx, logic.CelebrationOff); err != nil {
			return nil
		}
	}
	return nil
}

// Off turns every lamp off.
func (i *Indicators) Off() error {
	return i.leds.Set(false, false, false)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
