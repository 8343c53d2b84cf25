package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/colorsignal/session-controller/internal/feedback"
	"github.com/colorsignal/session-controller/internal/history"
	"github.com/colorsignal/session-controller/internal/patterns"
)

// EnvPrefix prefixes every environment override, e.g. COLORSIGNAL_SESSION_CAPACITY.
const EnvPrefix = "COLORSIGNAL"

// Config is the controller configuration.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Session SessionConfig `mapstructure:"session"`
	Backend BackendConfig `mapstructure:"backend"`
	Journal JournalConfig `mapstructure:"journal"`
	Log     LogConfig     `mapstructure:"log"`
	HTTP    HTTPConfig    `mapstructure:"http"`
}

type SessionConfig struct {
	Capacity       int    `mapstructure:"capacity"`        // Shared by buffer, gate and display
	PatternWindow  int    `mapstructure:"pattern_window"`  // Bulk upload window length
	FeedbackPolicy string `mapstructure:"feedback_policy"` // "truncate" | "retain"
	HydrateOnStart bool   `mapstructure:"hydrate_on_start"`
}

type BackendConfig struct {
	Addr           string        `mapstructure:"addr"`
	Identity       string        `mapstructure:"identity"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type JournalConfig struct {
	Path string `mapstructure:"path"` // Empty disables the cycle journal
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type HTTPConfig struct {
	Addr string `mapstructure:"addr"`
}

// Load reads configPath (optional) with environment overrides on top of defaults.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("colorsignal")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("session.capacity", history.DefaultCapacity)
	v.SetDefault("session.pattern_window", patterns.DefaultWindowLength)
	v.SetDefault("session.feedback_policy", string(feedback.PolicyTruncate))
	v.SetDefault("session.hydrate_on_start", false)

	v.SetDefault("backend.addr", "localhost:50051")
	v.SetDefault("backend.identity", "anonymous")
	v.SetDefault("backend.request_timeout", "10s")

	v.SetDefault("journal.path", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("http.addr", ":8080")
}

// Validate rejects values the session cannot run with.
func (c *Config) Validate() error {
	if c.Session.Capacity < 1 {
		return fmt.Errorf("session.capacity must be at least 1, got %d", c.Session.Capacity)
	}
	if c.Session.PatternWindow < 1 {
		return fmt.Errorf("session.pattern_window must be at least 1, got %d", c.Session.PatternWindow)
	}
	if _, err := feedback.ParsePolicy(c.Session.FeedbackPolicy); err != nil {
		return fmt.Errorf("session.feedback_policy: %w", err)
	}
	if c.Backend.Addr == "" {
		return errors.New("backend.addr is required")
	}
	if c.Backend.RequestTimeout <= 0 {
		return fmt.Errorf("backend.request_timeout must be positive, got %s", c.Backend.RequestTimeout)
	}
	return nil
}
