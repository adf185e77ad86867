package config

import "time"

// DefaultConfig returns the configuration used when no file overrides exist.
// The source URLs point at the NASA SOHO EIT 195 realtime feed.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
			Dir:   "data/logs",
			File:  "server.log",
		},
		Web: WebConfig{
			Enabled: true,
			Port:    8080,
		},
		Source: SourceConfig{
			PrimaryURL:   "https://sohowww.nascom.nasa.gov/data/realtime/eit_195/1024/latest.jpg",
			FallbackURL:  "https://soho.nascom.nasa.gov/data/realtime/eit_195/1024/latest.jpg",
			FetchTimeout: 10 * time.Second,
		},
		Pipeline: PipelineConfig{
			UpdateInterval:   5 * time.Second,
			SubscriberBuffer: 16,
			Workers:          0,
		},
		Pool: PoolConfig{
			MaxConnections: 10,
			MaxPending:     50,
			IdleTimeout:    30 * time.Second,
			MaxLifetime:    5 * time.Minute,
			EvictionSweep:  60 * time.Second,
			AcquireTimeout: 5 * time.Second,
		},
		Flare: FlareConfig{
			BrightnessThreshold: 200,
			MinSize:             100,
			RecentEvents:        64,
		},
	}
}
