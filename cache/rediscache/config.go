package rediscache

import "time"

// Config configures the Redis connection backing the state cache.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"             envDefault:"redis://localhost:6379/0" yaml:"url"`
	KeyPrefix      string        `env:"REDIS_KEY_PREFIX"      yaml:"keyPrefix"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS"  envDefault:"3"                        yaml:"retryAttempts"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL"  envDefault:"5s"                       yaml:"retryInterval"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"                      yaml:"connectTimeout"`
}
