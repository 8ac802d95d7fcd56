package gpio

import (
	"errors"
	"sync"
)

// FakeReader is a test double that returns scripted GPIO values.
type FakeReader struct {
	// Samples contains scripted (magnet, tilt) values to return.
	// Each call to Read() consumes the next sample.
	Samples []Sample

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Sample represents a single GPIO reading (already in logical form).
type Sample struct {
	Magnet bool // true = nozzle in tank
	Tilt   bool // true = tilted
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []Sample) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (bool, bool, error) {
	if f.ReadError != nil {
		return false, false, f.ReadError
	}

	if len(f.Samples) == 0 {
		return false, false, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample.Magnet, sample.Tilt, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// LampState is one Set call on FakeLEDs.
type LampState struct {
	Waiting, Active, Stopped bool
}

// FakeLEDs records every Set call.
type FakeLEDs struct {
	mu      sync.Mutex
	History []LampState
	Closed  bool

	// SetError, if set, will be returned by Set()
	SetError error
}

// Set records the lamp state.
func (f *FakeLEDs) Set(waiting, active, stopped bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.History = append(f.History, LampState{waiting, active, stopped})
	return nil
}

// Current returns the last recorded state (all off if none).
func (f *FakeLEDs) Current() LampState {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.History) == 0 {
		return LampState{}
	}
	return f.History[len(f.History)-1]
}

// Calls returns a copy of the recorded states.
func (f *FakeLEDs) Calls() []LampState {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]LampState, len(f.History))
	copy(out, f.History)
	return out
}

// Close marks the LEDs as closed.
func (f *FakeLEDs) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}
