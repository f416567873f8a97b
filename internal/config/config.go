package config

import (
	"fmt"
	"time"

	"github.com/Netflix/go-env"
)

type Config struct {
	UpstreamBaseURL   string `env:"UPSTREAM_BASE_URL,required=true"`
	RedisURL          string `env:"REDIS_URL,required=true"`
	APIPort           int    `env:"API_PORT,default=8080"`
	LogLevel          string `env:"LOG_LEVEL,default=info"`
	RequestTimeoutSec int    `env:"REQUEST_TIMEOUT_SEC,default=30"`
	MaxUploadMB       int    `env:"MAX_UPLOAD_MB,default=10"`
	DefaultPageLimit  int    `env:"DEFAULT_PAGE_LIMIT,default=20"`
	DialogIdleMinutes int    `env:"DIALOG_IDLE_MINUTES,default=10"`
}

func Load() (*Config, error) {
	var cfg Config
	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

func (c *Config) DialogIdle() time.Duration {
	return time.Duration(c.DialogIdleMinutes) * time.Minute
}
