package mongostore

import "time"

// Config configures the MongoDB client. It is only read when the mongo store
// is selected.
type Config struct {
	ConnectionURL   string        `env:"MONGODB_URL"                yaml:"url"`
	Database        string        `env:"MONGODB_DATABASE"           envDefault:"fsm"  yaml:"database"`
	ConnectTimeout  time.Duration `env:"MONGODB_CONNECT_TIMEOUT"    envDefault:"10s"  yaml:"connectTimeout"`
	MaxPoolSize     uint64        `env:"MONGODB_MAX_POOL_SIZE"      envDefault:"100"  yaml:"maxPoolSize"`
	MinPoolSize     uint64        `env:"MONGODB_MIN_POOL_SIZE"      envDefault:"1"    yaml:"minPoolSize"`
	MaxConnIdleTime time.Duration `env:"MONGODB_MAX_CONN_IDLE_TIME" envDefault:"300s" yaml:"maxConnIdleTime"`
	RetryWrites     bool          `env:"MONGODB_RETRY_WRITES"       envDefault:"true" yaml:"retryWrites"`
	RetryReads      bool          `env:"MONGODB_RETRY_READS"        envDefault:"true" yaml:"retryReads"`
	RetryAttempts   int           `env:"MONGODB_RETRY_ATTEMPTS"     envDefault:"3"    yaml:"retryAttempts"`
	RetryInterval   time.Duration `env:"MONGODB_RETRY_INTERVAL"     envDefault:"5s"   yaml:"retryInterval"`
}
