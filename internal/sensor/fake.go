package sensor

import (
	"fmt"
	"sync"
)

// FakeAmbient is a test double with settable readings.
type FakeAmbient struct {
	mu      sync.Mutex
	Light   int
	Temp    float64
	TempErr error

	// Reads counts ReadTemperature calls.
	Reads int
}

// Set replaces the readings.
func (f *FakeAmbient) Set(light int, temp float64, tempErr error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Light, f.Temp, f.TempErr = light, temp, tempErr
}

// ReadLightLevel returns Light.
func (f *FakeAmbient) ReadLightLevel() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Light
}

// ReadTemperature returns Temp, or TempErr wrapped in ErrSensorFault.
func (f *FakeAmbient) ReadTemperature() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.TempErr != nil {
		return 0, fmt.Errorf("%w: %v", ErrSensorFault, f.TempErr)
	}
	return f.Temp, nil
}

// Close does nothing.
func (f *FakeAmbient) Close() error {
	return nil
}
