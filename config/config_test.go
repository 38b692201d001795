package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()

	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

//nolint:paralleltest
func TestLoadDefaults(t *testing.T) {
	clearEnv(t, "FSM_CACHE_TTL", "FSM_STORE", "FSM_CACHE", "FSM_HISTORY_LIMIT", "LOG_LEVEL", "WORKER_COUNT", "PG_CONN_URL")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 300*time.Second, cfg.Engine.CacheTTL)
	assert.Equal(t, "default", cfg.Engine.StateManager)
	assert.Equal(t, 100, cfg.Engine.HistoryLimit)
	assert.Equal(t, StoreMemory, cfg.Engine.Store)
	assert.Equal(t, CacheMemory, cfg.Engine.Cache)
	assert.Equal(t, 10, cfg.Workers.WorkerCount)
	assert.Empty(t, cfg.Postgres.ConnectionString)
	assert.Equal(t, "fsm_schema_migrations", cfg.Postgres.MigrationsTable)
}

//nolint:paralleltest
func TestEnvironmentThenYAML(t *testing.T) {
	t.Setenv("FSM_CACHE_TTL", "1m")
	t.Setenv("FSM_STORE", "sqlite")
	t.Setenv("REDIS_URL", "redis://cache:6379/1")

	path := filepath.Join(t.TempDir(), "fsm.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
engine:
  store: postgres
  historyLimit: 25
workers:
  workerCount: 3
  retryAttempts: 4
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Engine.CacheTTL)
	assert.Equal(t, StorePostgres, cfg.Engine.Store)
	assert.Equal(t, 25, cfg.Engine.HistoryLimit)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.ConnectionURL)
	assert.Equal(t, 3, cfg.Workers.WorkerCount)
	assert.Equal(t, uint(4), cfg.Workers.RetryAttempts)
}

//nolint:paralleltest
func TestValidate(t *testing.T) {
	clearEnv(t, "FSM_CACHE_TTL", "FSM_STORE", "FSM_CACHE", "LOG_LEVEL")

	tests := []struct {
		name string
		yaml string
		want error
	}{
		{name: "unknown store", yaml: "engine: {store: cassandra}", want: ErrUnknownStore},
		{name: "unknown cache", yaml: "engine: {cache: memcached}", want: ErrUnknownCache},
		{name: "non-positive ttl", yaml: "engine: {cacheTTL: -1s}", want: ErrInvalidCacheTTL},
		{name: "bad log level", yaml: "log: {level: loud}", want: ErrInvalidConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFromBytes([]byte(tt.yaml))
			require.ErrorIs(t, err, tt.want)
		})
	}

	_, err := LoadFromBytes([]byte("engine: ["))
	require.ErrorIs(t, err, ErrParsingConfig)
}

//nolint:paralleltest
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.ErrorIs(t, err, ErrReadingFile)
}
