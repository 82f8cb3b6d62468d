// Package config loads daemon settings from defaults, an optional config
// file, PLANT_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/sweeney/plant-waterer/internal/logic"
)

// EnvPrefix prefixes every environment override, e.g. PLANT_AP_SSID.
const EnvPrefix = "PLANT"

// Config is the effective daemon configuration.
type Config struct {
	AP       APConfig       `mapstructure:"ap" yaml:"ap"`
	Station  StationConfig  `mapstructure:"station" yaml:"station"`
	WiFi     WiFiConfig     `mapstructure:"wifi" yaml:"wifi"`
	Watering WateringConfig `mapstructure:"watering" yaml:"watering"`
	Refresh  RefreshConfig  `mapstructure:"refresh" yaml:"refresh"`
	Radio    RadioConfig    `mapstructure:"radio" yaml:"radio"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	HTTP     HTTPConfig     `mapstructure:"http" yaml:"http"`
	Pins     PinsConfig     `mapstructure:"pins" yaml:"pins"`
	ADC      ADCConfig      `mapstructure:"adc" yaml:"adc"`
	MQTT     MQTTConfig     `mapstructure:"mqtt" yaml:"mqtt"`
	Influx   InfluxConfig   `mapstructure:"influx" yaml:"influx"`
	MDNS     MDNSConfig     `mapstructure:"mdns" yaml:"mdns"`
}

type APConfig struct {
	SSID     string `mapstructure:"ssid" yaml:"ssid"`
	Password string `mapstructure:"password" yaml:"password"`
}

type StationConfig struct {
	SSID     string        `mapstructure:"ssid" yaml:"ssid"`
	Password string        `mapstructure:"password" yaml:"password"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

type WiFiConfig struct {
	Interface string `mapstructure:"interface" yaml:"interface"`
}

type WateringConfig struct {
	Threshold int           `mapstructure:"threshold" yaml:"threshold"`
	Interval  int           `mapstructure:"interval" yaml:"interval"`
	Duration  time.Duration `mapstructure:"duration" yaml:"duration"`
}

type RefreshConfig struct {
	Period time.Duration `mapstructure:"period" yaml:"period"`
}

type RadioConfig struct {
	Settle    time.Duration `mapstructure:"settle" yaml:"settle"`
	MaxQuiet  time.Duration `mapstructure:"max-quiet" yaml:"max-quiet"`
	APTimeout time.Duration `mapstructure:"ap-timeout" yaml:"ap-timeout"`
}

type LogConfig struct {
	Capacity int    `mapstructure:"capacity" yaml:"capacity"`
	Level    string `mapstructure:"level" yaml:"level"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// PinsConfig holds BCM line offsets on the GPIO chip.
type PinsConfig struct {
	Chip       string `mapstructure:"chip" yaml:"chip"`
	Pump       int    `mapstructure:"pump" yaml:"pump"`
	WaterLevel int    `mapstructure:"water-level" yaml:"water-level"`
	LEDRed     int    `mapstructure:"led-red" yaml:"led-red"`
	LEDGreen   int    `mapstructure:"led-green" yaml:"led-green"`
	LEDBlue    int    `mapstructure:"led-blue" yaml:"led-blue"`
	Button     int    `mapstructure:"button" yaml:"button"`
}

type ADCConfig struct {
	Bus     string `mapstructure:"bus" yaml:"bus"`
	Address int    `mapstructure:"address" yaml:"address"`
	Channel int    `mapstructure:"channel" yaml:"channel"`
}

type MQTTConfig struct {
	Broker    string        `mapstructure:"broker" yaml:"broker"`
	ClientID  string        `mapstructure:"client-id" yaml:"client-id"`
	Heartbeat time.Duration `mapstructure:"heartbeat" yaml:"heartbeat"`
}

type InfluxConfig struct {
	URL    string `mapstructure:"url" yaml:"url"`
	Token  string `mapstructure:"token" yaml:"token"`
	Org    string `mapstructure:"org" yaml:"org"`
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
}

type MDNSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	Instance string `mapstructure:"instance" yaml:"instance"`
}

// SetDefaults registers every key with its default so environment variables
// can override keys that appear in no config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("ap.ssid", "PlantWateringAuto")
	v.SetDefault("ap.password", "12345678")
	v.SetDefault("station.ssid", "")
	v.SetDefault("station.password", "")
	v.SetDefault("station.timeout", 10*time.Second)
	v.SetDefault("wifi.interface", "wlan0")
	v.SetDefault("watering.threshold", 50)
	v.SetDefault("watering.interval", 10)
	v.SetDefault("watering.duration", 3*time.Second)
	v.SetDefault("refresh.period", 30*time.Second)
	v.SetDefault("radio.settle", 100*time.Millisecond)
	v.SetDefault("radio.max-quiet", 500*time.Millisecond)
	v.SetDefault("radio.ap-timeout", 15*time.Second)
	v.SetDefault("log.capacity", 20)
	v.SetDefault("log.level", "info")
	v.SetDefault("http.addr", ":80")
	v.SetDefault("pins.chip", "gpiochip0")
	v.SetDefault("pins.pump", 15)
	v.SetDefault("pins.water-level", 14)
	v.SetDefault("pins.led-red", 13)
	v.SetDefault("pins.led-green", 25)
	v.SetDefault("pins.led-blue", 24)
	v.SetDefault("pins.button", 12)
	v.SetDefault("adc.bus", "")
	v.SetDefault("adc.address", 0x48)
	v.SetDefault("adc.channel", 0)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client-id", "plant-waterer")
	v.SetDefault("mqtt.heartbeat", 15*time.Minute)
	v.SetDefault("influx.url", "")
	v.SetDefault("influx.token", "")
	v.SetDefault("influx.org", "")
	v.SetDefault("influx.bucket", "")
	v.SetDefault("mdns.enabled", true)
	v.SetDefault("mdns.instance", "plant-waterer")
}

// RegisterFlags adds the command-line overrides to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String("log-level", "info", "log level: debug, info, warn, error, off")
	fs.String("http-addr", ":80", "HTTP listen address")
	fs.String("mqtt-broker", "", "MQTT broker URL (e.g., tcp://192.168.1.200:1883)")
	fs.Int("threshold", 50, "initial moisture threshold percent")
	fs.Int("interval", 10, "initial check interval in minutes")
}

var flagKeys = map[string]string{
	"log-level":   "log.level",
	"http-addr":   "http.addr",
	"mqtt-broker": "mqtt.broker",
	"threshold":   "watering.threshold",
	"interval":    "watering.interval",
}

// BindFlags binds the flags added by RegisterFlags. Only flags the user set
// take precedence over the file and environment.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the configuration. file may be empty; its format follows the
// extension (YAML, TOML, .env).
func Load(v *viper.Viper, file string) (*Config, error) {
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Watering.Threshold < 0 || c.Watering.Threshold > 100 {
		errs = append(errs, fmt.Errorf("watering.threshold %d: must be between 0 and 100", c.Watering.Threshold))
	}
	if err := logic.ValidateInterval(c.Watering.Interval); err != nil {
		errs = append(errs, fmt.Errorf("watering.interval: %w", err))
	}
	if c.Watering.Duration <= 0 {
		errs = append(errs, fmt.Errorf("watering.duration %s: must be positive", c.Watering.Duration))
	}
	if c.Refresh.Period <= 0 {
		errs = append(errs, fmt.Errorf("refresh.period %s: must be positive", c.Refresh.Period))
	}
	if c.AP.SSID == "" {
		errs = append(errs, errors.New("ap.ssid: must not be empty"))
	}
	if len(c.AP.Password) < 8 {
		errs = append(errs, errors.New("ap.password: must be at least 8 characters"))
	}
	if c.MQTT.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("mqtt.heartbeat %s: must not be negative", c.MQTT.Heartbeat))
	}
	if c.ADC.Address < 0 || c.ADC.Address > 0x7f {
		errs = append(errs, fmt.Errorf("adc.address %#x: not a 7-bit I2C address", c.ADC.Address))
	}
	if c.ADC.Channel < 0 || c.ADC.Channel > 3 {
		errs = append(errs, fmt.Errorf("adc.channel %d: must be 0-3", c.ADC.Channel))
	}
	return errors.Join(errs...)
}

const redacted = "********"

// Redacted returns a copy with secrets masked.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return redacted
	}
	c.AP.Password = mask(c.AP.Password)
	c.Station.Password = mask(c.Station.Password)
	c.Influx.Token = mask(c.Influx.Token)
	return c
}

// YAML renders the effective configuration with secrets masked.
func (c Config) YAML() ([]byte, error) {
	return yaml.Marshal(c.Redacted())
}
