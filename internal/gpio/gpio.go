// Package gpio provides the kiosk's digital inputs (nozzle magnet, tilt
// switch) and its three indicator LEDs, with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

// Reader reads the digital inputs.
type Reader interface {
	// Read returns the logical states of the magnet and tilt inputs.
	// The magnet input is active-low: raw 0 = nozzle in tank.
	// The tilt input is active-high: raw 1 = tilted.
	// Returns (magnet, tilt, error).
	Read() (bool, bool, error)

	// Close releases GPIO resources.
	Close() error
}

// LEDs drives the three indicator lamps.
type LEDs interface {
	// Set switches each lamp on (true) or off.
	Set(waiting, active, stopped bool) error

	// Close turns the lamps off and releases GPIO resources.
	Close() error
}

// Pins holds the BCM line offsets.
type Pins struct {
	Magnet     int `mapstructure:"pin_magnet" yaml:"pin_magnet"`
	Tilt       int `mapstructure:"pin_tilt" yaml:"pin_tilt"`
	LEDWaiting int `mapstructure:"pin_led_waiting" yaml:"pin_led_waiting"`
	LEDActive  int `mapstructure:"pin_led_active" yaml:"pin_led_active"`
	LEDStopped int `mapstructure:"pin_led_stopped" yaml:"pin_led_stopped"`
}

// Pin definitions (BCM numbering)
const (
	PinMagnet     = 16 // hall-effect sensor on the nozzle holster
	PinTilt       = 17
	PinLEDWaiting = 20 // yellow
	PinLEDActive  = 19 // green
	PinLEDStopped = 18 // red
)

// DefaultChip is the GPIO character device on a Raspberry Pi.
const DefaultChip = "gpiochip0"

// DefaultPins returns the kiosk's wiring.
func DefaultPins() Pins {
	return Pins{
		Magnet:     PinMagnet,
		Tilt:       PinTilt,
		LEDWaiting: PinLEDWaiting,
		LEDActive:  PinLEDActive,
		LEDStopped: PinLEDStopped,
	}
}
