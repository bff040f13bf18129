package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog"

	"github.com/livews/livews.go"
)

// EnvPrefix is the prefix for environment variables that configure livewscat.
const EnvPrefix = "LIVEWS_"

const (
	TransportGorilla = "gorilla"
	TransportGWS     = "gws"
	TransportNhooyr  = "nhooyr"
)

// Config holds all configuration for livewscat.
type Config struct {
	URL       string   `koanf:"url"`
	Protocols []string `koanf:"protocols"`
	Transport string   `koanf:"transport"`

	Reconnect ReconnectConfig `koanf:"reconnect"`
	Queue     QueueConfig     `koanf:"queue"`
	Heartbeat HeartbeatConfig `koanf:"heartbeat"`
	Lifecycle LifecycleConfig `koanf:"lifecycle"`
	Log       LogConfig       `koanf:"log"`
	Metrics   MetricsConfig   `koanf:"metrics"`
}

type ReconnectConfig struct {
	MinDelay          time.Duration `koanf:"min_delay"`
	MaxDelay          time.Duration `koanf:"max_delay"`
	GrowFactor        float64       `koanf:"grow_factor"`
	MinUptime         time.Duration `koanf:"min_uptime"`
	ConnectionTimeout time.Duration `koanf:"connection_timeout"`
	MaxRetries        int           `koanf:"max_retries"`
}

type QueueConfig struct {
	MaxMessages int `koanf:"max_messages"`
}

type HeartbeatConfig struct {
	Interval    time.Duration `koanf:"interval"`
	PongTimeout time.Duration `koanf:"pong_timeout"`
	// Message is sent as a text frame before every heartbeat deadline. Any
	// incoming message counts as the answer.
	Message     string `koanf:"message"`
	ControlPing bool   `koanf:"control_ping"`
}

type LifecycleConfig struct {
	// Signals maps SIGUSR1/SIGUSR2 to hidden/visible.
	Signals        bool          `koanf:"signals"`
	HiddenCloseAge time.Duration `koanf:"hidden_close_after"`
}

type LogConfig struct {
	Level string `koanf:"level"`
	File  string `koanf:"file"`
}

type MetricsConfig struct {
	// Addr serves Prometheus metrics when set, e.g. ":9090".
	Addr string `koanf:"addr"`
}

// sections are the nested keys, used to map LIVEWS_SECTION_KEY onto
// section.key.
var sections = []string{"reconnect", "queue", "heartbeat", "lifecycle", "log", "metrics"}

func defaultConfig() *Config {
	o := livews.DefaultOptions()
	return &Config{
		Transport: TransportGorilla,
		Reconnect: ReconnectConfig{
			MinDelay:          o.MinReconnectionDelay,
			MaxDelay:          o.MaxReconnectionDelay,
			GrowFactor:        o.ReconnectionDelayGrowFactor,
			MinUptime:         o.MinUptime,
			ConnectionTimeout: o.ConnectionTimeout,
			MaxRetries:        o.MaxRetries,
		},
		Queue: QueueConfig{
			MaxMessages: o.MaxEnqueuedMessages,
		},
		Heartbeat: HeartbeatConfig{
			Interval:    o.HeartbeatInterval,
			PongTimeout: o.PongTimeoutInterval,
		},
		Lifecycle: LifecycleConfig{
			HiddenCloseAge: o.PageHiddenCloseTime,
		},
		Log: LogConfig{
			Level: zerolog.InfoLevel.String(),
		},
	}
}

// LoadConfig layers the TOML file at path, if any, and LIVEWS_ environment
// variables over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// envKey maps LIVEWS_RECONNECT_MAX_DELAY to reconnect.max_delay and
// LIVEWS_URL to url.
func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	for _, section := range sections {
		if rest, ok := strings.CutPrefix(s, section+"_"); ok {
			return section + "." + rest
		}
	}
	return s
}

// Validate checks the fields livewscat interprets itself. Socket options are
// validated by livews.New.
func (c *Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	switch c.Transport {
	case TransportGorilla, TransportGWS, TransportNhooyr:
	default:
		errs = append(errs, fmt.Errorf("unknown transport %q", c.Transport))
	}
	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log level: %w", err))
	}
	if c.Heartbeat.ControlPing && c.Heartbeat.Message != "" {
		errs = append(errs, errors.New("heartbeat message and control_ping are mutually exclusive"))
	}
	return errors.Join(errs...)
}

func (c *Config) heartbeatEnabled() bool {
	return c.Heartbeat.ControlPing || c.Heartbeat.Message != ""
}
