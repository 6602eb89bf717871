// Package config loads the storefront configuration from the environment.
package config

import (
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	HTTPPort        string        `envconfig:"HTTP_PORT" default:"8080"`
	StoreBaseURL    string        `envconfig:"STORE_BASE_URL" default:"http://localhost:9000/api"`
	StoreAPIToken   string        `envconfig:"STORE_API_TOKEN"`
	RedisAddr       string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	KafkaBrokers    []string      `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	RequestTimeout  time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	SessionTTL      time.Duration `envconfig:"SESSION_TTL" default:"30m"`
	LogLevel        string        `envconfig:"LOG_LEVEL" default:"info"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("storefront", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
