package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// IIO reads the sensors through Linux Industrial I/O sysfs attributes.
// The light channel is a raw ADC count; the dht11 driver reports
// temperature in milli-degrees Celsius.
type IIO struct {
	cfg   IIOConfig
	light lastGood
	log   *zap.Logger
}

// NewIIO creates an IIO reader. fallback is returned for light until the
// first successful read.
func NewIIO(cfg IIOConfig, fallback int, log *zap.Logger) *IIO {
	if log == nil {
		log = zap.NewNop()
	}
	s := &IIO{cfg: cfg, log: log}
	s.light.set(clampLight(fallback))
	return s
}

// ReadLightLevel returns the raw light level, or the last good value if the
// attribute cannot be read.
func (s *IIO) ReadLightLevel() int {
	v, err := readInt(s.cfg.LightPath)
	if err != nil {
		last := s.light.get()
		s.log.Warn("light read failed, using last good value", zap.Error(err), zap.Int("light", last))
		return last
	}
	v = clampLight(v)
	s.light.set(v)
	return v
}

// ReadTemperature returns °C. The dht11 driver fails reads on checksum
// errors and timeouts; those surface as ErrSensorFault.
func (s *IIO) ReadTemperature() (float64, error) {
	milli, err := readInt(s.cfg.TemperaturePath)
	if err != nil {
		return 0, fmt.Errorf("%w: temperature: %v", ErrSensorFault, err)
	}
	return float64(milli) / 1000, nil
}

// Close is a no-op; sysfs attributes are opened per read.
func (s *IIO) Close() error {
	return nil
}

func readInt(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	return v, nil
}
