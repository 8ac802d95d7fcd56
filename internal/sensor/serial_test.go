package sensor

import (
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrame(t *testing.T) {
	f, err := ParseFrame(EncodeFrame(Frame{Light: 18234, Temp: 23.5, TempOK: true}) + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, 18234, f.Light)
	assert.Equal(t, 23.5, f.Temp)
	assert.True(t, f.TempOK)
}

func TestParseFrameTempError(t *testing.T) {
	line := EncodeFrame(Frame{Light: 100})
	assert.Contains(t, line, "T=ERR*")

	f, err := ParseFrame(line)
	require.NoError(t, err)
	assert.Equal(t, 100, f.Light)
	assert.False(t, f.TempOK)
}

func TestParseFrameLowercaseChecksum(t *testing.T) {
	line := EncodeFrame(Frame{Light: 1, Temp: 20, TempOK: true})
	star := len(line) - 4
	_, err := ParseFrame(line[:star] + strings.ToLower(line[star:]))
	assert.NoError(t, err)
}

func TestParseFrameRejects(t *testing.T) {
	good := EncodeFrame(Frame{Light: 500, Temp: 21, TempOK: true})

	tests := []struct {
		name string
		line string
	}{
		{"empty", ""},
		{"no checksum", "L=500;T=21.0"},
		{"short checksum", "L=500;T=21.0*AB"},
		{"corrupt payload", "L=501" + good[5:]},
		{"corrupt checksum", good[:len(good)-1] + "Z"},
		{"light out of range", withCRC("L=70000;T=21.0")},
		{"negative light", withCRC("L=-1;T=21.0")},
		{"bad temperature", withCRC("L=1;T=hot")},
		{"nan temperature", withCRC("L=1;T=NaN")},
		{"missing temperature", withCRC("L=1")},
		{"unknown field", withCRC("L=1;T=2;H=40")},
		{"no separator", withCRC("L1;T=2")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseFrame(tt.line)
			assert.ErrorIs(t, err, ErrBadFrame)
		})
	}
}

func withCRC(payload string) string {
	return payload + "*" + checksumHex(payload)
}

// clock is a settable time source.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// pipeOpener hands out one pipe, then fails.
func pipeOpener() (func() (io.ReadCloser, error), *io.PipeWriter) {
	pr, pw := io.Pipe()
	var once sync.Once
	return func() (io.ReadCloser, error) {
		var rc io.ReadCloser
		once.Do(func() { rc = pr })
		if rc == nil {
			return nil, errors.New("device gone")
		}
		return rc, nil
	}, pw
}

func TestSerialBridgeReadsFrames(t *testing.T) {
	clk := &clock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	open, pw := pipeOpener()
	b := newSerialBridge(SerialConfig{Device: "test", StaleAfter: 5 * time.Second}, MaxLight, nil, open, clk.Now)
	defer b.Close()

	// No frame yet: light falls back, temperature is a fault.
	assert.Equal(t, MaxLight, b.ReadLightLevel())
	_, err := b.ReadTemperature()
	assert.ErrorIs(t, err, ErrSensorFault)

	_, err = io.WriteString(pw, "garbage\n"+EncodeFrame(Frame{Light: 12000, Temp: 29.5, TempOK: true})+"\n")
	require.NoError(t, err)

	require.Eventually(t, func() bool { return b.ReadLightLevel() == 12000 }, time.Second, 5*time.Millisecond)
	temp, err := b.ReadTemperature()
	require.NoError(t, err)
	assert.Equal(t, 29.5, temp)

	// Bridge reports a DHT fault.
	_, err = io.WriteString(pw, EncodeFrame(Frame{Light: 11000})+"\n")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return b.ReadLightLevel() == 11000 }, time.Second, 5*time.Millisecond)
	_, err = b.ReadTemperature()
	assert.ErrorIs(t, err, ErrSensorFault)

	// Frames go stale: light keeps the last good value.
	clk.Advance(6 * time.Second)
	assert.Equal(t, 11000, b.ReadLightLevel())
	_, err = b.ReadTemperature()
	assert.ErrorIs(t, err, ErrSensorFault)

	pw.Close()
}

func TestNewSerialBridgeValidates(t *testing.T) {
	_, err := NewSerialBridge(SerialConfig{Baud: 9600}, 0, nil)
	assert.Error(t, err)

	_, err = NewSerialBridge(SerialConfig{Device: "/dev/null", Baud: 0}, 0, nil)
	assert.Error(t, err)
}
