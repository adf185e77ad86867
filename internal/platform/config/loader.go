package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader reads configuration from an optional yaml file layered over defaults,
// with environment variables taking final precedence.
type Loader struct {
	useDotEnv bool
	path      string
}

// NewLoader creates a loader reading from the default config path.
func NewLoader() *Loader {
	return &Loader{
		useDotEnv: true,
		path:      "config.yaml",
	}
}

// WithDotEnv toggles loading variables from a .env file before reading config.
func (l *Loader) WithDotEnv(enabled bool) *Loader {
	l.useDotEnv = enabled
	return l
}

// WithPath overrides the yaml config file location (useful for tests).
func (l *Loader) WithPath(path string) *Loader {
	if path != "" {
		l.path = path
	}
	return l
}

// Result captures the loaded configuration and its origin path.
type Result struct {
	Config *Config
	Path   string
}

// Load builds the effective configuration: defaults, then yaml, then env.
func (l *Loader) Load() (*Result, error) {
	if l.useDotEnv {
		if err := godotenv.Load(); err != nil {
			fmt.Println("no .env file found, using system environment")
		}
	}

	cfg := DefaultConfig()
	origin := "defaults"

	if data, err := os.ReadFile(l.path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", l.path, err)
		}
		origin = l.path
	}

	applyEnvOverrides(cfg)

	return &Result{
		Config: cfg,
		Path:   origin,
	}, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SOLARLAB_PRIMARY_URL"); v != "" {
		cfg.Source.PrimaryURL = v
	}
	if v := os.Getenv("SOLARLAB_FALLBACK_URL"); v != "" {
		cfg.Source.FallbackURL = v
	}
	if v := os.Getenv("SOLARLAB_UPDATE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.Pipeline.UpdateInterval = d
		}
	}
	if v := os.Getenv("SOLARLAB_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.Web.Port = port
		}
	}
	if v := os.Getenv("SOLARLAB_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}
