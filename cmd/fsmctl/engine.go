package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/amp-labs/amp-fsm/cache/rediscache"
	"github.com/amp-labs/amp-fsm/config"
	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/jobs"
	"github.com/amp-labs/amp-fsm/labeling"
	"github.com/amp-labs/amp-fsm/logger"
	"github.com/amp-labs/amp-fsm/pg"
	"github.com/amp-labs/amp-fsm/statestore/gormstore"
	"github.com/amp-labs/amp-fsm/statestore/memstore"
	"github.com/amp-labs/amp-fsm/statestore/mongostore"
	"gorm.io/gorm"
)

// engine is the wired transition engine plus everything it holds open.
type engine struct {
	registry *fsm.Registry
	models   *fsm.StateModelRegistry
	manager  *fsm.DefaultStateManager
	runner   *jobs.Runner

	closers []func(context.Context) error
}

func newEngine(ctx context.Context, cfg *config.Config) (*engine, error) {
	eng := &engine{
		registry: fsm.NewRegistry(),
		models:   fsm.NewStateModelRegistry(),
	}

	if err := eng.wire(ctx, cfg); err != nil {
		return nil, errors.Join(err, eng.Close(ctx))
	}

	logger.Get(ctx).Debug("engine ready",
		"store", cfg.Engine.Store,
		"cache", cfg.Engine.Cache,
		"entity_types", eng.registry.EntityTypes())

	return eng, nil
}

func (e *engine) wire(ctx context.Context, cfg *config.Config) error {
	if err := labeling.RegisterTransitions(ctx, e.registry); err != nil {
		return err
	}

	txn, err := e.openStore(ctx, cfg)
	if err != nil {
		return err
	}

	cache, err := e.openCache(ctx, cfg)
	if err != nil {
		return err
	}

	e.manager = fsm.NewDefaultStateManager(
		fsm.WithRegistry(e.registry),
		fsm.WithStateModels(e.models),
		fsm.WithCache(cache),
		fsm.WithTransactor(txn),
		fsm.WithCacheTTL(cfg.Engine.CacheTTL),
		fsm.WithHistoryLimit(cfg.Engine.HistoryLimit),
	)

	e.runner = jobs.NewRunner(e.manager, cfg.Workers)
	e.onClose(func(ctx context.Context) error {
		e.runner.Stop(ctx)

		return nil
	})

	return nil
}

func (e *engine) onClose(fn func(context.Context) error) {
	e.closers = append(e.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (e *engine) Close(ctx context.Context) error {
	var errs []error

	for i := len(e.closers) - 1; i >= 0; i-- {
		errs = append(errs, e.closers[i](ctx))
	}

	e.closers = nil

	return errors.Join(errs...)
}

func (e *engine) openStore(ctx context.Context, cfg *config.Config) (fsm.Transactor, error) {
	switch cfg.Engine.Store {
	case config.StoreMemory:
		for _, entityType := range labeling.EntityTypes() {
			e.models.Register(entityType, memstore.New(entityType, memstore.WithDenormalizer(labeling.Denormalize)))
		}

		return fsm.LocalTransactor{}, nil

	case config.StoreSQLite:
		db, err := gormstore.OpenSQLite(cfg.Engine.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("opening sqlite: %w", err)
		}

		e.closeGorm(db)

		return e.registerGorm(ctx, db, true)

	case config.StorePostgres:
		pool, err := pg.Connect(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}

		e.onClose(func(context.Context) error {
			pool.Close()

			return nil
		})

		if err := pg.Migrate(ctx, pool, cfg.Postgres); err != nil {
			return nil, err
		}

		db, err := pg.OpenGorm(pool)
		if err != nil {
			return nil, fmt.Errorf("opening gorm over postgres: %w", err)
		}

		return e.registerGorm(ctx, db, false)

	case config.StoreMongo:
		client, err := mongostore.Connect(ctx, cfg.Mongo)
		if err != nil {
			return nil, err
		}

		e.onClose(client.Disconnect)

		db := client.Database(cfg.Mongo.Database)

		for _, entityType := range labeling.EntityTypes() {
			store := mongostore.New(db, entityType, mongostore.WithDenormalizer(labeling.Denormalize))
			if err := store.EnsureIndexes(ctx); err != nil {
				return nil, err
			}

			e.models.Register(entityType, store)
		}

		return fsm.LocalTransactor{}, nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownStore, cfg.Engine.Store)
	}
}

func (e *engine) closeGorm(db *gorm.DB) {
	e.onClose(func(context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}

		return sqlDB.Close()
	})
}

func (e *engine) registerGorm(ctx context.Context, db *gorm.DB, migrate bool) (fsm.Transactor, error) {
	for _, entityType := range labeling.EntityTypes() {
		store, err := gormstore.New(db, entityType, gormstore.WithDenormalizer(labeling.Denormalize))
		if err != nil {
			return nil, err
		}

		if migrate {
			if err := store.Migrate(ctx); err != nil {
				return nil, err
			}
		}

		e.models.Register(entityType, store)
	}

	return gormstore.NewTransactor(db), nil
}

func (e *engine) openCache(ctx context.Context, cfg *config.Config) (fsm.Cache, error) {
	switch cfg.Engine.Cache {
	case config.CacheMemory:
		return fsm.NewMemoryCache(nil), nil

	case config.CacheRedis:
		client, err := rediscache.Connect(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}

		e.onClose(func(context.Context) error { return client.Close() })

		return rediscache.New(client, cfg.Redis.KeyPrefix), nil

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownCache, cfg.Engine.Cache)
	}
}
