// Package config loads the process configuration for the transition engine and
// the stores, caches and workers wired around it.
//
// Values come from three layers, each overriding the previous one:
//
//  1. envDefault tags on the section structs
//  2. environment variables (a .env file in the working directory is loaded first if present)
//  3. an optional YAML file passed to Load
package config

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/amp-labs/amp-fsm/cache/rediscache"
	"github.com/amp-labs/amp-fsm/jobs"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/pg"
	"github.com/amp-labs/amp-fsm/statestore/mongostore"
	"github.com/amp-labs/amp-fsm/telemetry"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends understood by Engine.Store.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreMongo    = "mongo"
)

// Cache backends understood by Engine.Cache.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

var (
	ErrParsingConfig   = errors.New("failed to parse config")
	ErrReadingFile     = errors.New("failed to read config file")
	ErrInvalidConfig   = errors.New("invalid config")
	ErrUnknownStore    = errors.New("unknown store backend")
	ErrUnknownCache    = errors.New("unknown cache backend")
	ErrInvalidCacheTTL = errors.New("cache TTL must be positive")
)

var defaultEnvLoaded sync.Once

// Engine configures the state manager itself.
type Engine struct {
	CacheTTL     time.Duration `env:"FSM_CACHE_TTL"     envDefault:"300s"                       yaml:"cacheTTL"`
	StateManager string        `env:"FSM_STATE_MANAGER" envDefault:"default"                    yaml:"stateManager"`
	HistoryLimit int           `env:"FSM_HISTORY_LIMIT" envDefault:"100"                        yaml:"historyLimit"`
	Store        string        `env:"FSM_STORE"         envDefault:"memory"                     yaml:"store"`
	Cache        string        `env:"FSM_CACHE"         envDefault:"memory"                     yaml:"cache"`
	SQLitePath   string        `env:"FSM_SQLITE_PATH"   envDefault:"file::memory:?cache=shared" yaml:"sqlitePath"`
}

// Config is the full process configuration.
type Config struct {
	Environment string            `env:"FSM_ENVIRONMENT" envDefault:"development" yaml:"environment"`
	Engine      Engine            `yaml:"engine"`
	Log         logger.Config     `yaml:"log"`
	Telemetry   telemetry.Config  `yaml:"telemetry"`
	Redis       rediscache.Config `yaml:"redis"`
	Postgres    pg.Config         `yaml:"postgres"`
	Mongo       mongostore.Config `yaml:"mongo"`
	Workers     jobs.Config       `yaml:"workers"`
}

// Load builds a Config from the environment and, when path is non-empty,
// overlays the YAML file at path on top of it.
func Load(path string) (*Config, error) {
	defaultEnvLoaded.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	if path != "" {
		data, err := os.ReadFile(path) //nolint:gosec // Operator-supplied path
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrReadingFile, path, err)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrParsingConfig, path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadFromBytes parses a YAML document on top of the environment-derived config.
func LoadFromBytes(data []byte) (*Config, error) {
	var cfg Config

	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Join(ErrParsingConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the settings that would otherwise fail late, at first use.
func (c *Config) Validate() error {
	if c.Engine.CacheTTL <= 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, ErrInvalidCacheTTL)
	}

	switch c.Engine.Store {
	case StoreMemory, StorePostgres, StoreSQLite, StoreMongo:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrUnknownStore, c.Engine.Store)
	}

	switch c.Engine.Cache {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("%w: %w: %q", ErrInvalidConfig, ErrUnknownCache, c.Engine.Cache)
	}

	if c.Engine.HistoryLimit <= 0 {
		c.Engine.HistoryLimit = 100
	}

	if _, err := c.Log.SlogLevel(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	return nil
}
