// Package config loads the daemon configuration from defaults, an optional
// YAML file, FUEL_KIOSK_* environment variables and command-line flags, in
// increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/fuel-kiosk/internal/gpio"
	"github.com/sweeney/fuel-kiosk/internal/logging"
	"github.com/sweeney/fuel-kiosk/internal/pricing"
	"github.com/sweeney/fuel-kiosk/internal/sensor"
)

// EnvPrefix is prepended to every environment override, e.g.
// FUEL_KIOSK_MQTT_BROKER for mqtt.broker.
const EnvPrefix = "FUEL_KIOSK"

// MaxRecentSessions bounds report.recent_sessions and the /data?n= override.
const MaxRecentSessions = 100

// Config is the effective daemon configuration.
type Config struct {
	Poll      time.Duration  `mapstructure:"poll" yaml:"poll"`
	Heartbeat time.Duration  `mapstructure:"heartbeat" yaml:"heartbeat"`
	HTTP      string         `mapstructure:"http" yaml:"http"` // listen address; empty disables
	Report    ReportConfig   `mapstructure:"report" yaml:"report"`
	MQTT      MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	GPIO      GPIOConfig     `mapstructure:"gpio" yaml:"gpio"`
	Sensors   sensor.Config  `mapstructure:"sensors" yaml:"sensors"`
	Pricing   pricing.Policy `mapstructure:"pricing" yaml:"pricing"`
	Timing    TimingConfig   `mapstructure:"timing" yaml:"timing"`
	Log       logging.Config `mapstructure:"log" yaml:"log"`
}

// ReportConfig configures the reporting interface.
type ReportConfig struct {
	RecentSessions int `mapstructure:"recent_sessions" yaml:"recent_sessions"`
}

// MQTTConfig configures the publisher. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker      string `mapstructure:"broker" yaml:"broker"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	BufferSize  int    `mapstructure:"buffer_size" yaml:"buffer_size"`
	QueueSize   int    `mapstructure:"queue_size" yaml:"queue_size"`
}

// GPIOConfig names the chip and line offsets.
type GPIOConfig struct {
	Chip      string `mapstructure:"chip" yaml:"chip"`
	gpio.Pins `mapstructure:",squash" yaml:",inline"`
}

// TimingConfig holds the settling holds after a dispense.
type TimingConfig struct {
	AbortHold    time.Duration `mapstructure:"abort_hold" yaml:"abort_hold"`
	CompleteHold time.Duration `mapstructure:"complete_hold" yaml:"complete_hold"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("poll", 200*time.Millisecond)
	v.SetDefault("heartbeat", 15*time.Minute)
	v.SetDefault("http", ":80")
	v.SetDefault("report.recent_sessions", 5)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic_prefix", "fuel/kiosk")
	v.SetDefault("mqtt.buffer_size", 100)
	v.SetDefault("mqtt.queue_size", 64)

	pins := gpio.DefaultPins()
	v.SetDefault("gpio.chip", gpio.DefaultChip)
	v.SetDefault("gpio.pin_magnet", pins.Magnet)
	v.SetDefault("gpio.pin_tilt", pins.Tilt)
	v.SetDefault("gpio.pin_led_waiting", pins.LEDWaiting)
	v.SetDefault("gpio.pin_led_active", pins.LEDActive)
	v.SetDefault("gpio.pin_led_stopped", pins.LEDStopped)

	s := sensor.DefaultConfig()
	v.SetDefault("sensors.backend", s.Backend)
	v.SetDefault("sensors.light_fallback", s.LightFallback)
	v.SetDefault("sensors.iio.light_path", s.IIO.LightPath)
	v.SetDefault("sensors.iio.temperature_path", s.IIO.TemperaturePath)
	v.SetDefault("sensors.serial.device", s.Serial.Device)
	v.SetDefault("sensors.serial.baud", s.Serial.Baud)
	v.SetDefault("sensors.serial.stale_after", s.Serial.StaleAfter)

	p := pricing.Default()
	v.SetDefault("pricing.flow_rate", p.FlowRate)
	v.SetDefault("pricing.price_per_liter", p.PricePerLiter)
	v.SetDefault("pricing.surcharge_rate", p.SurchargeRate)
	v.SetDefault("pricing.light_threshold", p.LightThreshold)
	v.SetDefault("pricing.temp_threshold", p.TempThreshold)
	v.SetDefault("pricing.temp_derate", p.TempDerate)
	v.SetDefault("pricing.default_temperature", p.DefaultTemperature)

	v.SetDefault("timing.abort_hold", 3*time.Second)
	v.SetDefault("timing.complete_hold", 2*time.Second)

	l := logging.DefaultConfig()
	v.SetDefault("log.level", l.Level)
	v.SetDefault("log.format", l.Format)
	v.SetDefault("log.file", l.File)
	v.SetDefault("log.max_size_mb", l.MaxSizeMB)
	v.SetDefault("log.max_backups", l.MaxBackups)
	v.SetDefault("log.max_age_days", l.MaxAgeDays)
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"poll":      "poll",
	"heartbeat": "heartbeat",
	"http":      "http",
	"recent":    "report.recent_sessions",
	"broker":    "mqtt.broker",
	"sensors":   "sensors.backend",
	"log-level": "log.level",
	"log-file":  "log.file",
}

// Loaded is the result of Load: the config plus the one-shot action flags.
type Loaded struct {
	Config       Config
	ConfigFile   string // empty if none was read
	PrintConfig  bool
	PrintSensors bool

	v *viper.Viper
}

// NewFlagSet declares the daemon's flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "YAML config file")
	fs.Duration("poll", 200*time.Millisecond, "input poll interval")
	fs.Duration("heartbeat", 15*time.Minute, "heartbeat interval (0 to disable)")
	fs.String("http", ":80", "reporting interface listen address (empty to disable)")
	fs.Int("recent", 5, "sessions shown in the status feed")
	fs.String("broker", "", "MQTT broker URL (empty to disable)")
	fs.String("sensors", sensor.BackendIIO, "ambient sensor backend: iio, serial or fake")
	fs.String("log-level", "info", "log level")
	fs.String("log-file", "", "also log to this file (rotated)")
	fs.Bool("print-config", false, "print the effective config as YAML and exit")
	fs.Bool("print-sensors", false, "print one reading of every input and exit")
	return fs
}

// Load parses args and merges every source. It returns pflag.ErrHelp for
// -h/--help.
func Load(name string, args []string) (*Loaded, error) {
	fs := NewFlagSet(name)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return nil, fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}

	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	printConfig, _ := fs.GetBool("print-config")
	printSensors, _ := fs.GetBool("print-sensors")

	return &Loaded{
		Config:       cfg,
		ConfigFile:   v.ConfigFileUsed(),
		PrintConfig:  printConfig,
		PrintSensors: printSensors,
		v:            v,
	}, nil
}

// Validate rejects configurations the daemon cannot run with.
func (c Config) Validate() error {
	var errs []error
	if c.Poll <= 0 {
		errs = append(errs, fmt.Errorf("poll must be > 0, got %s", c.Poll))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must be >= 0, got %s", c.Heartbeat))
	}
	if c.Report.RecentSessions < 1 || c.Report.RecentSessions > MaxRecentSessions {
		errs = append(errs, fmt.Errorf("report.recent_sessions must be in 1..%d, got %d", MaxRecentSessions, c.Report.RecentSessions))
	}
	if c.Timing.AbortHold < 0 || c.Timing.CompleteHold < 0 {
		errs = append(errs, errors.New("timing holds must be >= 0"))
	}
	switch c.Sensors.Backend {
	case sensor.BackendIIO, sensor.BackendSerial, sensor.BackendFake:
	default:
		errs = append(errs, fmt.Errorf("sensors.backend must be iio, serial or fake, got %q", c.Sensors.Backend))
	}
	if c.Sensors.LightFallback < 0 || c.Sensors.LightFallback > sensor.MaxLight {
		errs = append(errs, fmt.Errorf("sensors.light_fallback must be in 0..%d", sensor.MaxLight))
	}
	if err := c.Pricing.Validate(); err != nil {
		errs = append(errs, err)
	}
	if err := c.Log.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// YAML renders the config for --print-config.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// WatchPricing calls fn with the new pricing section whenever the config
// file changes and the section is valid. Invalid edits are logged and
// ignored. It does nothing when no config file was loaded.
func (l *Loaded) WatchPricing(log *zap.Logger, fn func(pricing.Policy)) {
	if l.ConfigFile == "" {
		return
	}
	if log == nil {
		log = zap.NewNop()
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		// Unmarshal the whole tree so defaults fill keys the file omits.
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			log.Warn("config reload: decode", zap.Error(err))
			return
		}
		p := cfg.Pricing
		if err := p.Validate(); err != nil {
			log.Warn("config reload: pricing rejected", zap.Error(err))
			return
		}
		log.Info("pricing reloaded", zap.String("file", e.Name),
			zap.Float64("price_per_liter", p.PricePerLiter),
			zap.Float64("surcharge_rate", p.SurchargeRate))
		fn(p)
	})
	l.v.WatchConfig()
}
