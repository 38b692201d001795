package jobs

import "time"

// Config sizes the worker pool and its retry policy.
type Config struct {
	WorkerCount int `env:"WORKER_COUNT"      envDefault:"10" yaml:"workerCount"`
	QueueSize   int `env:"WORKER_QUEUE_SIZE" envDefault:"0"  yaml:"queueSize"`

	// RetryAttempts of 1 disables retries.
	RetryAttempts        uint          `env:"WORKER_RETRY_ATTEMPTS"         envDefault:"1"     yaml:"retryAttempts"`
	RetryInitialInterval time.Duration `env:"WORKER_RETRY_INITIAL_INTERVAL" envDefault:"200ms" yaml:"retryInitialInterval"`
	RetryMaxInterval     time.Duration `env:"WORKER_RETRY_MAX_INTERVAL"     envDefault:"5s"    yaml:"retryMaxInterval"`
}
