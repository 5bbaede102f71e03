package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies COSTSIM_* environment variable overrides, and
// returns the final Config. A missing file is not an error; the defaults
// plus environment are used. The returned Config has NOT been validated;
// the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known COSTSIM_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e.
// not empty). This lets operators tweak deployments without touching the
// TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Feed ──
	setStr(&cfg.Feed.WsURL, "COSTSIM_FEED_WS_URL")
	setStr(&cfg.Feed.Channel, "COSTSIM_FEED_CHANNEL")
	setStr(&cfg.Feed.Instrument, "COSTSIM_FEED_INSTRUMENT")
	setDuration(&cfg.Feed.PingInterval, "COSTSIM_FEED_PING_INTERVAL")
	setDuration(&cfg.Feed.ReconnectDelay, "COSTSIM_FEED_RECONNECT_DELAY")
	setInt(&cfg.Feed.MaxReconnectAttempts, "COSTSIM_FEED_MAX_RECONNECT_ATTEMPTS")

	// ── Simulation ──
	setFloat64(&cfg.Simulation.QuantityUSD, "COSTSIM_SIMULATION_QUANTITY_USD")
	setStr(&cfg.Simulation.FeeTier, "COSTSIM_SIMULATION_FEE_TIER")
	setFloat64(&cfg.Simulation.MakerProportion, "COSTSIM_SIMULATION_MAKER_PROPORTION")
	setFloat64(&cfg.Simulation.VolumeMultiple, "COSTSIM_SIMULATION_VOLUME_MULTIPLE")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "COSTSIM_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "COSTSIM_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "COSTSIM_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "COSTSIM_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "COSTSIM_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "COSTSIM_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "COSTSIM_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.EstimateTTL, "COSTSIM_REDIS_ESTIMATE_TTL")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "COSTSIM_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "COSTSIM_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "COSTSIM_SERVER_CORS_ORIGINS")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "COSTSIM_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
