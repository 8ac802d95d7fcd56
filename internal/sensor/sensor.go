// Package sensor reads the kiosk's ambient inputs: a photoresistor light
// level and an air temperature. Both are only sampled when a dispense ends.
package sensor

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrSensorFault is returned (wrapped) when the temperature cannot be read.
	ErrSensorFault = errors.New("sensor fault")

	// ErrBadFrame is returned by ParseFrame for a malformed or corrupt frame.
	ErrBadFrame = errors.New("bad frame")
)

// MaxLight is the top of the light scale (unsigned 16-bit).
const MaxLight = 65535

// Ambient supplies light and temperature readings.
// ReadLightLevel never fails; implementations fall back to the last good value.
type Ambient interface {
	ReadLightLevel() int
	ReadTemperature() (float64, error)
}

// Source is an Ambient backed by hardware that must be released.
type Source interface {
	Ambient
	Close() error
}

// Backend names accepted by New.
const (
	BackendIIO    = "iio"
	BackendSerial = "serial"
	BackendFake   = "fake"
)

// Config selects and configures a backend.
type Config struct {
	Backend       string       `mapstructure:"backend" yaml:"backend"`
	LightFallback int          `mapstructure:"light_fallback" yaml:"light_fallback"`
	IIO           IIOConfig    `mapstructure:"iio" yaml:"iio"`
	Serial        SerialConfig `mapstructure:"serial" yaml:"serial"`
}

// IIOConfig holds sysfs attribute paths.
type IIOConfig struct {
	LightPath       string `mapstructure:"light_path" yaml:"light_path"`
	TemperaturePath string `mapstructure:"temperature_path" yaml:"temperature_path"`
}

// SerialConfig describes the microcontroller bridge.
type SerialConfig struct {
	Device     string        `mapstructure:"device" yaml:"device"`
	Baud       int           `mapstructure:"baud" yaml:"baud"`
	StaleAfter time.Duration `mapstructure:"stale_after" yaml:"stale_after"`
}

// DefaultConfig returns the Raspberry Pi IIO setup (ADS1115 channel 0 and
// the dht11 overlay).
func DefaultConfig() Config {
	return Config{
		Backend:       BackendIIO,
		LightFallback: MaxLight,
		IIO: IIOConfig{
			LightPath:       "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
			TemperaturePath: "/sys/bus/iio/devices/iio:device1/in_temp_input",
		},
		Serial: SerialConfig{
			Device:     "/dev/ttyACM0",
			Baud:       115200,
			StaleAfter: 5 * time.Second,
		},
	}
}

// New builds the configured backend.
func New(cfg Config, log *zap.Logger) (Source, error) {
	if log == nil {
		log = zap.NewNop()
	}
	switch cfg.Backend {
	case BackendIIO:
		return NewIIO(cfg.IIO, cfg.LightFallback, log), nil
	case BackendSerial:
		return NewSerialBridge(cfg.Serial, cfg.LightFallback, log)
	case BackendFake:
		return &FakeAmbient{Light: cfg.LightFallback, Temp: 25}, nil
	}
	return nil, fmt.Errorf("unknown sensor backend %q", cfg.Backend)
}

// lastGood remembers the most recent valid light reading.
type lastGood struct {
	mu    sync.Mutex
	value int
}

func (l *lastGood) get() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

func (l *lastGood) set(v int) {
	l.mu.Lock()
	l.value = v
	l.mu.Unlock()
}

func clampLight(v int) int {
	if v < 0 {
		return 0
	}
	if v > MaxLight {
		return MaxLight
	}
	return v
}
