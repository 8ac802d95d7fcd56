// Command fuel-kiosk runs the fuel-dispensing kiosk: it watches the nozzle
// and tilt switches, prices each dispense, drives the indicator lamps and
// serves the session ledger over HTTP and MQTT.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sweeney/fuel-kiosk/internal/config"
	"github.com/sweeney/fuel-kiosk/internal/gpio"
	"github.com/sweeney/fuel-kiosk/internal/logging"
	"github.com/sweeney/fuel-kiosk/internal/logic"
	"github.com/sweeney/fuel-kiosk/internal/mqtt"
	"github.com/sweeney/fuel-kiosk/internal/pricing"
	"github.com/sweeney/fuel-kiosk/internal/sensor"
	"github.com/sweeney/fuel-kiosk/internal/status"
	"github.com/sweeney/fuel-kiosk/internal/telemetry"
	"github.com/sweeney/fuel-kiosk/internal/web"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loaded, err := config.Load("fuel-kiosk", args)
	if err != nil {
		return err
	}
	cfg := loaded.Config

	if loaded.PrintConfig {
		out, err := cfg.YAML()
		if err != nil {
			return fmt.Errorf("render config: %w", err)
		}
		_, err = stdout.Write(out)
		return err
	}

	log, closeLog, err := logging.New(cfg.Log, stderr)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()
	if loaded.ConfigFile != "" {
		log.Info("config loaded", zap.String("file", loaded.ConfigFile))
	}

	// Initialize GPIO
	reader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.GPIO.Magnet, cfg.GPIO.Tilt)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	ambient, err := sensor.New(cfg.Sensors, log.Named("sensor"))
	if err != nil {
		return fmt.Errorf("init sensors: %w", err)
	}
	defer ambient.Close()

	// Print sensors mode
	if loaded.PrintSensors {
		return printSensors(stdout, reader, ambient)
	}

	leds, err := gpio.NewRealLEDs(cfg.GPIO.Chip, cfg.GPIO.LEDWaiting, cfg.GPIO.LEDActive, cfg.GPIO.LEDStopped)
	if err != nil {
		return fmt.Errorf("init leds: %w", err)
	}
	defer leds.Close()
	indicators := gpio.NewIndicators(leds)

	bootID := uuid.NewString()
	startTime := time.Now()

	store := telemetry.NewStore(cfg.Report.RecentSessions)
	timing := logic.DefaultTiming()
	timing.AbortHold = cfg.Timing.AbortHold
	timing.CompleteHold = cfg.Timing.CompleteHold
	machine := logic.NewMachine(cfg.Pricing, ambient, store, timing, startTime)

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(bootID, startTime, status.Config{
		PollMs:         cfg.Poll.Milliseconds(),
		HeartbeatMs:    cfg.Heartbeat.Milliseconds(),
		Broker:         cfg.MQTT.Broker,
		TopicPrefix:    cfg.MQTT.TopicPrefix,
		HTTPAddr:       cfg.HTTP,
		SensorBackend:  cfg.Sensors.Backend,
		RecentSessions: cfg.Report.RecentSessions,
		Pricing:        cfg.Pricing,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Initialize MQTT
	var publisher interface {
		mqtt.Publisher
		mqtt.ConnectionStatus
	} = mqtt.Noop{}
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:             cfg.MQTT.Broker,
			ClientID:           cfg.MQTT.ClientID,
			TopicPrefix:        cfg.MQTT.TopicPrefix,
			BufferSize:         cfg.MQTT.BufferSize,
			OnConnectionChange: tracker.SetMQTTConnected,
		}, log.Named("mqtt"))
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		publisher = mqtt.NewAsync(rp, cfg.MQTT.QueueSize, log.Named("mqtt"))
	} else {
		log.Info("no MQTT broker configured, publishing disabled")
	}
	defer publisher.Close()

	loaded.WatchPricing(log.Named("config"), func(p pricing.Policy) {
		machine.SetPolicy(p)
		tracker.SetPricing(p)
	})

	// Publish startup event with full status snapshot
	tracker.Update(machine.State(), status.LedgerFrom(store.Snapshot(0)))
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Warn("failed to publish startup event", zap.Error(err))
	}
	if err := publisher.PublishStatus(mqtt.StatusEvent{Timestamp: snap.Now, Text: store.Status()}); err != nil {
		log.Warn("failed to publish status", zap.Error(err))
	}

	// Start the reporting interface
	if cfg.HTTP != "" {
		srv, err := web.New(cfg.HTTP, store, tracker, web.Options{Recent: cfg.Report.RecentSessions}, log.Named("http"))
		if err != nil {
			return fmt.Errorf("init http: %w", err)
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
		log.Info("reporting interface listening", zap.String("addr", cfg.HTTP))
	}

	if err := indicators.Show(logic.SignalWaiting); err != nil {
		log.Warn("indicator error", zap.Error(err))
	}
	defer indicators.Off()

	log.Info("started",
		zap.String("boot_id", bootID),
		zap.Duration("poll", cfg.Poll),
		zap.Duration("heartbeat", cfg.Heartbeat),
		zap.String("sensors", cfg.Sensors.Backend),
		zap.Float64("price_per_liter", cfg.Pricing.PricePerLiter))

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return runLoop(loop{
		reader:     reader,
		lamps:      indicators,
		machine:    machine,
		store:      store,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		bootID:     bootID,
		heartbeat:  cfg.Heartbeat,
		log:        log,
	}, time.Now, ticker.C, sigCh)
}

// lamps is the part of gpio.Indicators the loop drives.
type lamps interface {
	Show(logic.Signal) error
	Celebrate(ctx context.Context) error
}

// loop holds runLoop's collaborators.
type loop struct {
	reader     gpio.Reader
	lamps      lamps
	machine    *logic.Machine
	store      *telemetry.Store
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	bootID     string
	heartbeat  time.Duration
	log        *zap.Logger
}

func runLoop(l loop, now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	log := l.log
	if log == nil {
		log = zap.NewNop()
	}

	for {
		select {
		case s := <-sig:
			l.shutdown(s, now)
			return nil

		case <-tick:
			t := now()
			magnet, tilt, err := l.reader.Read()
			if err != nil {
				log.Warn("gpio read error", zap.Error(err))
				continue
			}

			events := l.machine.Process(logic.Input{
				Magnet: magnet,
				Tilt:   tilt,
				Time:   t,
			})
			for _, event := range events {
				if s := l.apply(event, sig); s != nil {
					l.shutdown(s, now)
					return nil
				}
			}

			// Check for heartbeat
			if hb := l.machine.CheckHeartbeat(t, l.heartbeat); hb != nil {
				snap := l.store.Snapshot(0)
				log.Info("heartbeat",
					zap.Duration("uptime", hb.Uptime),
					zap.String("state", string(hb.State)),
					zap.Int("sessions", snap.Count),
					zap.Float64("total_liters", snap.TotalLiters))

				hbEvent := mqtt.SystemEvent{
					Timestamp: hb.Timestamp,
					Event:     "HEARTBEAT",
				}
				if l.tracker != nil {
					// Refresh network info for heartbeat
					if net := readNetworkInfo(); net != nil {
						l.tracker.SetNetwork(net)
					}
					l.syncTracker()
					hbEvent.RawPayload = status.FormatStatusEvent(l.tracker.Snapshot(), "HEARTBEAT", "")
				}
				if err := l.publisher.PublishSystem(hbEvent); err != nil {
					log.Warn("heartbeat publish error", zap.Error(err))
				}
			}

			if l.tracker != nil {
				l.syncTracker()
			}
		}
	}
}

// shutdown publishes the retained SHUTDOWN event for signal s.
func (l loop) shutdown(s os.Signal, now func() time.Time) {
	log := l.log
	if log == nil {
		log = zap.NewNop()
	}

	log.Info("shutting down", zap.String("signal", s.String()))
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	event := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     "SHUTDOWN",
		Reason:    signalName,
		Retained:  true,
	}
	if l.tracker != nil {
		l.syncTracker()
		snap := l.tracker.Snapshot()
		event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
	}
	if err := l.publisher.PublishSystem(event); err != nil {
		log.Warn("failed to publish shutdown event", zap.Error(err))
	}
}

// apply carries out the side effects of one machine event. A signal that
// arrives during the celebration cuts it short and is returned.
func (l loop) apply(event logic.Event, sig <-chan os.Signal) os.Signal {
	log := l.log
	if log == nil {
		log = zap.NewNop()
	}

	fields := []zap.Field{zap.String("event", string(event.Type)), zap.String("state", string(event.State))}
	if s := event.Session; s != nil {
		fields = append(fields,
			zap.Int("seq", s.Seq),
			zap.String("kind", s.Kind()),
			zap.Float64("liters", s.Liters),
			zap.Float64("price", s.Price),
			zap.Bool("dark", s.Dark),
			zap.Float64("temperature", s.Temperature))
		if s.TempFallback {
			log.Warn("temperature unavailable, priced at default", zap.Int("seq", s.Seq))
		}
	}
	log.Info("dispense event", fields...)

	if err := l.lamps.Show(event.Signal); err != nil {
		log.Warn("indicator error", zap.Error(err))
	}

	if event.Session != nil {
		if err := l.publisher.PublishSession(mqtt.SessionEvent{BootID: l.bootID, Session: *event.Session}); err != nil {
			log.Warn("session publish error", zap.Error(err))
		}
	}
	if err := l.publisher.PublishStatus(mqtt.StatusEvent{Timestamp: event.Timestamp, Text: event.Status}); err != nil {
		log.Warn("status publish error", zap.Error(err))
	}

	// Inputs are ignored while settling, so blocking the loop here loses nothing.
	if !event.Celebrate {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- l.lamps.Celebrate(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			log.Warn("indicator error", zap.Error(err))
		}
		return nil
	case s := <-sig:
		cancel()
		<-done
		return s
	}
}

func (l loop) syncTracker() {
	l.tracker.Update(l.machine.State(), status.LedgerFrom(l.store.Snapshot(0)))
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

// printSensors reads every input once and prints it.
func printSensors(w io.Writer, reader gpio.Reader, ambient sensor.Ambient) error {
	magnet, tilt, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Fprintf(w, "magnet: %s\n", onOff(magnet))
	fmt.Fprintf(w, "tilt: %s\n", onOff(tilt))
	fmt.Fprintf(w, "light: %d\n", ambient.ReadLightLevel())
	if temp, err := ambient.ReadTemperature(); err != nil {
		fmt.Fprintf(w, "temperature: error (%v)\n", err)
	} else {
		fmt.Fprintf(w, "temperature: %.1f°C\n", temp)
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
