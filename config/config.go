package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/TheGoodCatalyst/chameleon/errors"
	"github.com/TheGoodCatalyst/chameleon/pkg/backoff"
)

// Transport kinds
const (
	TransportWebSocket = "websocket"
	TransportNATS      = "nats"
)

// Config is the complete client configuration: which transport to dial,
// how to reconnect, deployment theming, and metrics exposure.
type Config struct {
	Session   string          `json:"session,omitempty"`
	Transport TransportConfig `json:"transport"`
	Reconnect ReconnectConfig `json:"reconnect,omitempty"`
	Theme     ThemeConfig     `json:"theme,omitempty"`
	Metrics   MetricsConfig   `json:"metrics,omitempty"`
}

// TransportConfig selects and parameterizes the transport adapter.
// SubscribePrefix and PublishSubject apply to the NATS transport only.
type TransportConfig struct {
	Kind            string `json:"kind"`
	URL             string `json:"url"`
	SubscribePrefix string `json:"subscribe_prefix,omitempty"`
	PublishSubject  string `json:"publish_subject,omitempty"`
}

// ReconnectConfig parameterizes the dispatcher's retry schedule.
type ReconnectConfig struct {
	Disabled    bool          `json:"disabled,omitempty"`
	BaseDelay   time.Duration `json:"base_delay,omitempty"`
	MaxDelay    time.Duration `json:"max_delay,omitempty"`
	Multiplier  float64       `json:"multiplier,omitempty"`
	MaxAttempts int           `json:"max_attempts,omitempty"`
}

// ThemeConfig carries deployment styling settings consumed by the
// compositor's theme merge. Values are passed through as hints; the core
// computes nothing from them.
type ThemeConfig struct {
	Density   string         `json:"density,omitempty"`
	Animation string         `json:"animation,omitempty"`
	Palette   string         `json:"palette,omitempty"`
	Effects   map[string]any `json:"effects,omitempty"`
}

// validThemeDensities guards against misconfigured deployments: a bad
// theme source is fatal at initialization, never at runtime.
var validThemeDensities = map[string]bool{
	"": true, "compact": true, "comfortable": true, "spacious": true,
}

var validThemeAnimations = map[string]bool{
	"": true, "full": true, "reduced": true, "none": true,
}

// MetricsConfig controls the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `json:"enabled,omitempty"`
	Port    int    `json:"port,omitempty"`
	Path    string `json:"path,omitempty"`
}

// Default returns a configuration with standard values. The transport URL
// still has to be supplied.
func Default() *Config {
	return &Config{
		Session: "default",
		Transport: TransportConfig{
			Kind: TransportWebSocket,
		},
		Reconnect: ReconnectConfig{
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    30 * time.Second,
			Multiplier:  2.0,
			MaxAttempts: 5,
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Validate checks the configuration for usable values. Invalid transport or
// theme settings are config errors, fatal to initialization.
func (c *Config) Validate() error {
	switch c.Transport.Kind {
	case TransportWebSocket, TransportNATS:
	default:
		return errors.WrapConfig(
			fmt.Errorf("unknown transport kind %q", c.Transport.Kind),
			"Config", "Validate", "transport kind")
	}
	if c.Transport.URL == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "Config", "Validate", "transport url")
	}
	if c.Transport.Kind == TransportNATS && c.Transport.SubscribePrefix == "" {
		return errors.WrapConfig(errors.ErrMissingConfig, "Config", "Validate", "subscribe prefix")
	}

	if !c.Reconnect.Disabled {
		if err := c.BackoffPolicy().Validate(); err != nil {
			return errors.WrapConfig(err, "Config", "Validate", "reconnect policy")
		}
	}

	if !validThemeDensities[c.Theme.Density] {
		return errors.WrapConfig(
			fmt.Errorf("unknown theme density %q", c.Theme.Density),
			"Config", "Validate", "theme density")
	}
	if !validThemeAnimations[c.Theme.Animation] {
		return errors.WrapConfig(
			fmt.Errorf("unknown theme animation %q", c.Theme.Animation),
			"Config", "Validate", "theme animation")
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
			return errors.WrapConfig(
				fmt.Errorf("port %d outside valid range", c.Metrics.Port),
				"Config", "Validate", "metrics port")
		}
	}
	return nil
}

// BackoffPolicy converts the reconnect section into a backoff policy.
func (c *Config) BackoffPolicy() backoff.Policy {
	return backoff.Policy{
		BaseDelay:   c.Reconnect.BaseDelay,
		MaxDelay:    c.Reconnect.MaxDelay,
		Multiplier:  c.Reconnect.Multiplier,
		MaxAttempts: c.Reconnect.MaxAttempts,
	}
}

// Loader loads configuration from a JSON file with defaults underneath and
// environment overrides on top.
type Loader struct {
	envPrefix string
}

// NewLoader creates a loader with the standard CHAMELEON_ env prefix.
func NewLoader() *Loader {
	return &Loader{envPrefix: "CHAMELEON"}
}

// LoadFile loads and validates a configuration file. Pass an empty path to
// start from defaults and environment overrides only.
func (l *Loader) LoadFile(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.WrapConfig(err, "Loader", "LoadFile", "read file")
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, errors.WrapConfig(err, "Loader", "LoadFile", "parse json")
		}
	}

	l.applyEnvOverrides(cfg)
	cfg.fillDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillDefaults restores default values for fields a partial file left at
// zero. A file that sets only max_attempts still gets the standard delays.
func (c *Config) fillDefaults() {
	d := Default()
	if c.Session == "" {
		c.Session = d.Session
	}
	if c.Transport.Kind == "" {
		c.Transport.Kind = d.Transport.Kind
	}
	if c.Reconnect.BaseDelay == 0 {
		c.Reconnect.BaseDelay = d.Reconnect.BaseDelay
	}
	if c.Reconnect.MaxDelay == 0 {
		c.Reconnect.MaxDelay = d.Reconnect.MaxDelay
	}
	if c.Reconnect.Multiplier == 0 {
		c.Reconnect.Multiplier = d.Reconnect.Multiplier
	}
	if c.Reconnect.MaxAttempts == 0 {
		c.Reconnect.MaxAttempts = d.Reconnect.MaxAttempts
	}
	if c.Metrics.Port == 0 {
		c.Metrics.Port = d.Metrics.Port
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = d.Metrics.Path
	}
}

// applyEnvOverrides applies environment variable overrides
func (l *Loader) applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(l.envPrefix + "_SESSION"); val != "" {
		cfg.Session = val
	}
	if val := os.Getenv(l.envPrefix + "_TRANSPORT_KIND"); val != "" {
		cfg.Transport.Kind = val
	}
	if val := os.Getenv(l.envPrefix + "_TRANSPORT_URL"); val != "" {
		cfg.Transport.URL = val
	}
	if val := os.Getenv(l.envPrefix + "_SUBSCRIBE_PREFIX"); val != "" {
		cfg.Transport.SubscribePrefix = val
	}
	if val := os.Getenv(l.envPrefix + "_PUBLISH_SUBJECT"); val != "" {
		cfg.Transport.PublishSubject = val
	}
	if val := os.Getenv(l.envPrefix + "_MAX_ATTEMPTS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Reconnect.MaxAttempts = n
		}
	}
	if val := os.Getenv(l.envPrefix + "_THEME_DENSITY"); val != "" {
		cfg.Theme.Density = val
	}
	if val := os.Getenv(l.envPrefix + "_METRICS_PORT"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			cfg.Metrics.Port = n
			cfg.Metrics.Enabled = true
		}
	}
}

// UnmarshalJSON accepts reconnect delays either as nanosecond integers or
// as duration strings ("500ms", "30s").
func (rc *ReconnectConfig) UnmarshalJSON(data []byte) error {
	aux := struct {
		Disabled    bool    `json:"disabled,omitempty"`
		BaseDelay   any     `json:"base_delay,omitempty"`
		MaxDelay    any     `json:"max_delay,omitempty"`
		Multiplier  float64 `json:"multiplier,omitempty"`
		MaxAttempts int     `json:"max_attempts,omitempty"`
	}{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	rc.Disabled = aux.Disabled
	rc.Multiplier = aux.Multiplier
	rc.MaxAttempts = aux.MaxAttempts

	var err error
	if rc.BaseDelay, err = parseDuration(aux.BaseDelay); err != nil {
		return fmt.Errorf("base_delay: %w", err)
	}
	if rc.MaxDelay, err = parseDuration(aux.MaxDelay); err != nil {
		return fmt.Errorf("max_delay: %w", err)
	}
	return nil
}

func parseDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case nil:
		return 0, nil
	case string:
		return time.ParseDuration(val)
	case float64:
		return time.Duration(val), nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", v)
	}
}
