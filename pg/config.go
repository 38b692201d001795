package pg

import "time"

// Config configures the Postgres pool. It is only read when the postgres
// store is selected, so the connection URL is not required.
type Config struct {
	ConnectionString  string        `env:"PG_CONN_URL"           yaml:"connURL"`
	MaxOpenConns      int32         `env:"PG_MAX_OPEN_CONNS"     envDefault:"10"  yaml:"maxOpenConns"`
	MaxIdleConns      int32         `env:"PG_MAX_IDLE_CONNS"     envDefault:"5"   yaml:"maxIdleConns"`
	HealthCheckPeriod time.Duration `env:"PG_HEALTHCHECK_PERIOD" envDefault:"1m"  yaml:"healthCheckPeriod"`
	MaxConnIdleTime   time.Duration `env:"PG_MAX_CONN_IDLE_TIME" envDefault:"10m" yaml:"maxConnIdleTime"`
	MaxConnLifetime   time.Duration `env:"PG_MAX_CONN_LIFETIME"  envDefault:"30m" yaml:"maxConnLifetime"`

	RetryAttempts int           `env:"PG_RETRY_ATTEMPTS" envDefault:"3"  yaml:"retryAttempts"`
	RetryInterval time.Duration `env:"PG_RETRY_INTERVAL" envDefault:"2s" yaml:"retryInterval"`

	MigrationsTable string `env:"PG_MIGRATIONS_TABLE" envDefault:"fsm_schema_migrations" yaml:"migrationsTable"`
}
