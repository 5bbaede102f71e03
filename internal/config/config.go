// Package config defines the top-level configuration for the cost simulator
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by COSTSIM_* environment
// variables.
type Config struct {
	Feed       FeedConfig       `toml:"feed"`
	Simulation SimulationConfig `toml:"simulation"`
	Redis      RedisConfig      `toml:"redis"`
	Server     ServerConfig     `toml:"server"`
	LogLevel   string           `toml:"log_level"`
}

// FeedConfig holds the market-data feed endpoint and connection policy.
type FeedConfig struct {
	WsURL                string   `toml:"ws_url"`
	Channel              string   `toml:"channel"`
	Instrument           string   `toml:"instrument"`
	PingInterval         duration `toml:"ping_interval"`
	ReconnectDelay       duration `toml:"reconnect_delay"`
	MaxReconnectAttempts int      `toml:"max_reconnect_attempts"`
}

// SimulationConfig holds the initial order parameters and model tuning.
type SimulationConfig struct {
	QuantityUSD     float64 `toml:"quantity_usd"`
	FeeTier         string  `toml:"fee_tier"`
	MakerProportion float64 `toml:"maker_proportion"`
	VolumeMultiple  float64 `toml:"volume_multiple"`
}

// RedisConfig holds Redis connection parameters for the optional estimate
// cache.
type RedisConfig struct {
	Enabled     bool     `toml:"enabled"`
	Addr        string   `toml:"addr"`
	Password    string   `toml:"password"`
	DB          int      `toml:"db"`
	PoolSize    int      `toml:"pool_size"`
	MaxRetries  int      `toml:"max_retries"`
	TLSEnabled  bool     `toml:"tls_enabled"`
	EstimateTTL duration `toml:"estimate_ttl"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "15s", "3s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Feed: FeedConfig{
			WsURL:                "wss://ws.okx.com:8443/ws/v5/public",
			Channel:              "books5",
			Instrument:           "BTC-USDT",
			PingInterval:         duration{15 * time.Second},
			ReconnectDelay:       duration{3 * time.Second},
			MaxReconnectAttempts: 10,
		},
		Simulation: SimulationConfig{
			QuantityUSD:     100,
			FeeTier:         "VIP0",
			MakerProportion: 0.1,
			VolumeMultiple:  100,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			DB:          0,
			PoolSize:    20,
			MaxRetries:  3,
			TLSEnabled:  false,
			EstimateTTL: duration{30 * time.Second},
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	// LogLevel
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Feed
	if c.Feed.WsURL == "" {
		errs = append(errs, "feed: ws_url must not be empty")
	} else if !strings.HasPrefix(c.Feed.WsURL, "ws://") && !strings.HasPrefix(c.Feed.WsURL, "wss://") {
		errs = append(errs, fmt.Sprintf("feed: ws_url must use ws:// or wss://, got %q", c.Feed.WsURL))
	}
	if c.Feed.Channel == "" {
		errs = append(errs, "feed: channel must not be empty")
	}
	if c.Feed.Instrument == "" {
		errs = append(errs, "feed: instrument must not be empty")
	}
	if c.Feed.PingInterval.Duration <= 0 {
		errs = append(errs, "feed: ping_interval must be > 0")
	}
	if c.Feed.ReconnectDelay.Duration <= 0 {
		errs = append(errs, "feed: reconnect_delay must be > 0")
	}
	if c.Feed.MaxReconnectAttempts < 1 {
		errs = append(errs, "feed: max_reconnect_attempts must be >= 1")
	}

	// Simulation. Unknown fee tiers are not rejected here: the model falls
	// back to the lowest tier by design.
	if c.Simulation.QuantityUSD <= 0 {
		errs = append(errs, "simulation: quantity_usd must be > 0")
	}
	if c.Simulation.MakerProportion < 0 || c.Simulation.MakerProportion >= 1 {
		errs = append(errs, fmt.Sprintf("simulation: maker_proportion must be in [0, 1), got %g", c.Simulation.MakerProportion))
	}
	if c.Simulation.VolumeMultiple <= 0 {
		errs = append(errs, "simulation: volume_multiple must be > 0")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty when enabled")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
		if c.Redis.EstimateTTL.Duration <= 0 {
			errs = append(errs, "redis: estimate_ttl must be > 0")
		}
	}

	// Server
	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
