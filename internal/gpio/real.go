//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// RealReader reads GPIO from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip      *gpiocdev.Chip
	magnetPin *gpiocdev.Line
	tiltPin   *gpiocdev.Line
}

// NewRealReader creates a GPIO reader for actual Raspberry Pi hardware.
func NewRealReader(chipName string, pinMagnet, pinTilt int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Both sensors pull their line to ground, so bias up.
	magnetLine, err := chip.RequestLine(pinMagnet, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request magnet pin %d: %w", pinMagnet, err)
	}

	tiltLine, err := chip.RequestLine(pinTilt, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		magnetLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request tilt pin %d: %w", pinTilt, err)
	}

	return &RealReader{
		chip:      chip,
		magnetPin: magnetLine,
		tiltPin:   tiltLine,
	}, nil
}

// Read returns the logical states of the magnet and tilt inputs.
// Magnet is inverted (raw 0 = present); tilt is not (raw 1 = tilted).
func (r *RealReader) Read() (bool, bool, error) {
	magnetRaw, err := r.magnetPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read magnet pin: %w", err)
	}

	tiltRaw, err := r.tiltPin.Value()
	if err != nil {
		return false, false, fmt.Errorf("read tilt pin: %w", err)
	}

	return magnetRaw == 0, tiltRaw == 1, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	var errs []error

	if r.magnetPin != nil {
		if err := r.magnetPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close magnet pin: %w", err))
		}
	}
	if r.tiltPin != nil {
		if err := r.tiltPin.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close tilt pin: %w", err))
		}
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealLEDs drives the indicator lamps through the GPIO character device.
type RealLEDs struct {
	chip  *gpiocdev.Chip
	lines *gpiocdev.Lines
}

// NewRealLEDs requests the three LED lines as outputs, starting with only
// the waiting lamp lit.
func NewRealLEDs(chipName string, pinWaiting, pinActive, pinStopped int) (*RealLEDs, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	lines, err := chip.RequestLines([]int{pinWaiting, pinActive, pinStopped}, gpiocdev.AsOutput(1, 0, 0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request led pins %d,%d,%d: %w", pinWaiting, pinActive, pinStopped, err)
	}

	return &RealLEDs{chip: chip, lines: lines}, nil
}

// Set switches each lamp on or off.
func (l *RealLEDs) Set(waiting, active, stopped bool) error {
	if err := l.lines.SetValues([]int{btoi(waiting), btoi(active), btoi(stopped)}); err != nil {
		return fmt.Errorf("set leds: %w", err)
	}
	return nil
}

// Close turns the lamps off, then returns the lines to inputs so nothing is
// driven while the kiosk is down.
func (l *RealLEDs) Close() error {
	var errs []error

	if l.lines != nil {
		if err := l.lines.SetValues([]int{0, 0, 0}); err != nil {
			errs = append(errs, fmt.Errorf("clear leds: %w", err))
		}
		if err := l.lines.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure leds: %w", err))
		}
		if err := l.lines.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close leds: %w", err))
		}
	}
	if l.chip != nil {
		if err := l.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func btoi(b bool) int {
	if b {
		return 1
	}
	return 0
}
