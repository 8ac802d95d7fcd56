package gpio

import (
	"errors"
	"testing"
)

func TestFakeReaderRead(t *testing.T) {
	samples := []Sample{
		{Magnet: true, Tilt: false},
		{Magnet: false, Tilt: true},
		{Magnet: true, Tilt: true},
	}

	f := NewFakeReader(samples)

	for i, want := range samples {
		magnet, tilt, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if magnet != want.Magnet || tilt != want.Tilt {
			t.Errorf("sample %d: expected (%v, %v), got (%v, %v)", i, want.Magnet, want.Tilt, magnet, tilt)
		}
	}

	// Fourth read should repeat last sample
	magnet, tilt, err := f.Read()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if magnet != true || tilt != true {
		t.Errorf("sample 3 (repeat): expected (true, true), got (%v, %v)", magnet, tilt)
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	_, _, err := f.Read()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]Sample{{Magnet: true}})
	f.ReadError = errors.New("simulated error")

	_, _, err := f.Read()
	if err == nil {
		t.Error("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([]Sample{{Magnet: true}, {Tilt: true}})

	if f.Closed {
		t.Error("should not be closed initially")
	}
	f.Read()
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	magnet, tilt, _ := f.Read()
	if !magnet || tilt {
		t.Errorf("after reset: expected (true, false), got (%v, %v)", magnet, tilt)
	}
}

func TestDefaultPins(t *testing.T) {
	p := DefaultPins()
	if p.Magnet != 16 || p.Tilt != 17 {
		t.Errorf("unexpected input pins: %+v", p)
	}
	if p.LEDWaiting != 20 || p.LEDActive != 19 || p.LEDStopped != 18 {
		t.Errorf("unexpected led pins: %+v", p)
	}
}
