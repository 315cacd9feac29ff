package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type AppConfig struct {
	Port        string        `env:"PORT" envDefault:"8080"`
	HTTPTimeout time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`

	// VWorld boundary API. The key is required for the proxy routes to work.
	VWorldKey     string `env:"VWORLD_KEY"`
	VWorldDomain  string `env:"VWORLD_DOMAIN"`
	VWorldBaseURL string `env:"VWORLD_BASE_URL" envDefault:"https://api.vworld.kr/req/data"`

	// Empty DatabaseURL keeps posts in memory.
	DatabaseURL string `env:"DATABASE_URL"`
	// Posts kept per district by the in-memory store (0 = unlimited).
	StoreMaxPerDistrict int `env:"STORE_MAX_PER_DISTRICT" envDefault:"0"`

	// Empty RedisAddr caches upstream responses in memory.
	RedisAddr          string        `env:"REDIS_ADDR"`
	RedisPassword      string        `env:"REDIS_PASSWORD"`
	RedisDB            int           `env:"REDIS_DB" envDefault:"0"`
	UpstreamTTL        time.Duration `env:"UPSTREAM_CACHE_TTL" envDefault:"1h"`
	StatsInterval      time.Duration `env:"STATS_REFRESH_INTERVAL" envDefault:"1m"`
	OverlayConcurrency int           `env:"OVERLAY_CONCURRENCY" envDefault:"4"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	Tracker TrackerConfig
}

// TrackerConfig configures the live-location follower.
type TrackerConfig struct {
	GeocoderURL  string        `env:"GEOCODER_URL" envDefault:"http://localhost:8080"`
	QuietPeriod  time.Duration `env:"TRACKER_QUIET_PERIOD" envDefault:"700ms"`
	MaxAccuracy  float64       `env:"TRACKER_MAX_ACCURACY_M" envDefault:"200"`
	FetchTimeout time.Duration `env:"TRACKER_FETCH_TIMEOUT" envDefault:"10s"`
}

// Load reads configuration from the environment (and a .env file, if any) with defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Debugf("no .env file loaded: %v", err)
	}

	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.StatsInterval <= 0 {
		return nil, fmt.Errorf("invalid STATS_REFRESH_INTERVAL: %s", cfg.StatsInterval)
	}
	if cfg.Tracker.MaxAccuracy <= 0 {
		return nil, fmt.Errorf("invalid TRACKER_MAX_ACCURACY_M: %v", cfg.Tracker.MaxAccuracy)
	}
	return cfg, nil
}
