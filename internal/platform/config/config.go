package config

import "time"

type Config struct {
	Log      LogConfig      `yaml:"log"`
	Web      WebConfig      `yaml:"web"`
	Source   SourceConfig   `yaml:"source"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Pool     PoolConfig     `yaml:"pool"`
	Flare    FlareConfig    `yaml:"flare"`
}

type LogConfig struct {
	Level string `yaml:"log_level"`
	Dir   string `yaml:"log_dir"`
	File  string `yaml:"log_file"`
}

// WebConfig configures the read-only status HTTP surface.
type WebConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// SourceConfig names the remote image sources, primary first.
type SourceConfig struct {
	PrimaryURL   string        `yaml:"primary_url"`
	FallbackURL  string        `yaml:"fallback_url"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

type PipelineConfig struct {
	UpdateInterval   time.Duration `yaml:"update_interval"`
	SubscriberBuffer int           `yaml:"subscriber_buffer"`
	Workers          int           `yaml:"workers"` // 0 means hardware parallelism
}

// PoolConfig bounds the fetcher's HTTP connection pool.
type PoolConfig struct {
	MaxConnections  int           `yaml:"max_connections"`
	MaxPending      int           `yaml:"max_pending"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	MaxLifetime     time.Duration `yaml:"max_lifetime"`
	EvictionSweep   time.Duration `yaml:"eviction_sweep"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
}

type FlareConfig struct {
	BrightnessThreshold int `yaml:"brightness_threshold"`
	MinSize             int `yaml:"min_size"`
	RecentEvents        int `yaml:"recent_events"`
}
