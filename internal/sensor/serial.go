package sensor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sigurn/crc16"
	"github.com/tarm/serial"
	"go.uber.org/zap"
)

var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

// Frame is one report from the sensor bridge. The bridge sends a line like
//
//	L=18234;T=23.5*1A2F
//
// about once a second, where the four hex digits are the CRC16/ARC of
// everything before the '*'. T=ERR means the bridge's DHT11 read failed.
type Frame struct {
	Light  int
	Temp   float64
	TempOK bool
}

// ParseFrame validates and decodes one line. Errors wrap ErrBadFrame.
func ParseFrame(line string) (Frame, error) {
	line = strings.TrimSpace(line)
	star := strings.LastIndexByte(line, '*')
	if star < 0 || len(line)-star-1 != 4 {
		return Frame{}, fmt.Errorf("%w: missing checksum", ErrBadFrame)
	}

	payload, given := line[:star], line[star+1:]
	want := checksumHex(payload)
	if !strings.EqualFold(given, want) {
		return Frame{}, fmt.Errorf("%w: checksum %s, want %s", ErrBadFrame, given, want)
	}

	var f Frame
	var haveL, haveT bool
	for _, field := range strings.Split(payload, ";") {
		key, val, ok := strings.Cut(field, "=")
		if !ok {
			return Frame{}, fmt.Errorf("%w: field %q", ErrBadFrame, field)
		}
		switch key {
		case "L":
			n, err := strconv.Atoi(val)
			if err != nil || n < 0 || n > MaxLight {
				return Frame{}, fmt.Errorf("%w: light %q", ErrBadFrame, val)
			}
			f.Light, haveL = n, true
		case "T":
			haveT = true
			if val == "ERR" {
				continue
			}
			t, err := strconv.ParseFloat(val, 64)
			if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
				return Frame{}, fmt.Errorf("%w: temperature %q", ErrBadFrame, val)
			}
			f.Temp, f.TempOK = t, true
		default:
			return Frame{}, fmt.Errorf("%w: unknown field %q", ErrBadFrame, key)
		}
	}
	if !haveL || !haveT {
		return Frame{}, fmt.Errorf("%w: incomplete", ErrBadFrame)
	}
	return f, nil
}

// EncodeFrame renders f the way the bridge firmware does.
func EncodeFrame(f Frame) string {
	t := "ERR"
	if f.TempOK {
		t = strconv.FormatFloat(f.Temp, 'f', 1, 64)
	}
	payload := fmt.Sprintf("L=%d;T=%s", f.Light, t)
	return payload + "*" + checksumHex(payload)
}

// SerialBridge reads frames from a microcontroller over a USB serial port.
// A background goroutine keeps the latest frame; reads never touch the port.
type SerialBridge struct {
	cfg  SerialConfig
	open func() (io.ReadCloser, error)
	now  func() time.Time
	log  *zap.Logger

	light lastGood

	mu    sync.Mutex
	frame Frame
	at    time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// NewSerialBridge starts reading from cfg.Device. The port is (re)opened in
// the background, so a missing device is not an error here.
func NewSerialBridge(cfg SerialConfig, fallback int, log *zap.Logger) (*SerialBridge, error) {
	if cfg.Device == "" {
		return nil, errors.New("serial bridge: no device configured")
	}
	if cfg.Baud <= 0 {
		return nil, fmt.Errorf("serial bridge: invalid baud %d", cfg.Baud)
	}
	open := func() (io.ReadCloser, error) {
		return serial.OpenPort(&serial.Config{Name: cfg.Device, Baud: cfg.Baud})
	}
	return newSerialBridge(cfg, fallback, log, open, time.Now), nil
}

func newSerialBridge(cfg SerialConfig, fallback int, log *zap.Logger, open func() (io.ReadCloser, error), now func() time.Time) *SerialBridge {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultConfig().Serial.StaleAfter
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &SerialBridge{
		cfg:    cfg,
		open:   open,
		now:    now,
		log:    log.With(zap.String("device", cfg.Device)),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	b.light.set(clampLight(fallback))
	go b.run(ctx)
	return b
}

// ReadLightLevel returns the light level from the latest fresh frame, or the
// last good value.
func (b *SerialBridge) ReadLightLevel() int {
	f, fresh := b.latest()
	if !fresh {
		last := b.light.get()
		b.log.Warn("no fresh bridge frame, using last good light level", zap.Int("light", last))
		return last
	}
	b.light.set(f.Light)
	return f.Light
}

// ReadTemperature returns the temperature from the latest fresh frame.
func (b *SerialBridge) ReadTemperature() (float64, error) {
	f, fresh := b.latest()
	if !fresh {
		return 0, fmt.Errorf("%w: no frame within %s", ErrSensorFault, b.cfg.StaleAfter)
	}
	if !f.TempOK {
		return 0, fmt.Errorf("%w: bridge reported temperature error", ErrSensorFault)
	}
	return f.Temp, nil
}

// Close stops the reader. It waits briefly for the goroutine; a read blocked
// in the driver is abandoned.
func (b *SerialBridge) Close() error {
	b.cancel()
	select {
	case <-b.done:
	case <-time.After(2 * time.Second):
		b.log.Warn("serial reader did not stop in time")
	}
	return nil
}

func (b *SerialBridge) latest() (Frame, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.at.IsZero() || b.now().Sub(b.at) > b.cfg.StaleAfter {
		return Frame{}, false
	}
	return b.frame, true
}

func (b *SerialBridge) store(f Frame) {
	b.mu.Lock()
	b.frame, b.at = f, b.now()
	b.mu.Unlock()
}

func (b *SerialBridge) run(ctx context.Context) {
	defer close(b.done)

	backoff := time.Second
	for {
		port, err := b.open()
		if err != nil {
			b.log.Warn("open serial port failed", zap.Error(err), zap.Duration("retry_in", backoff))
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}

		backoff = time.Second
		b.log.Info("serial bridge connected")
		err = b.readFrames(ctx, port)
		port.Close()
		if ctx.Err() != nil {
			return
		}
		b.log.Warn("serial bridge disconnected", zap.Error(err))
	}
}

func (b *SerialBridge) readFrames(ctx context.Context, port io.ReadCloser) error {
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()

	bad := 0
	sc := bufio.NewScanner(port)
	for sc.Scan() {
		f, err := ParseFrame(sc.Text())
		if err != nil {
			bad++
			b.log.Debug("dropping frame", zap.Error(err), zap.Int("bad_frames", bad))
			continue
		}
		bad = 0
		b.store(f)
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return io.EOF
}

func checksumHex(payload string) string {
	return fmt.Sprintf("%04X", crc16.Checksum([]byte(payload), crcTable))
}
