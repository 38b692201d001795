package pg

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/amp-labs/amp-fsm/logger"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its settings in package globals.
var gooseMu sync.Mutex

// Migrate applies the embedded state table migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg Config) error {
	db := stdlib.OpenDBFromPool(pool)

	defer func() {
		if err := db.Close(); err != nil {
			logger.Get(ctx).Error("failed to close migration connection", "error", err)
		}
	}()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{ctx: ctx})
	goose.SetTableName(cfg.MigrationsTable)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	return nil
}

// gooseLogger routes goose output to the structured logger.
type gooseLogger struct {
	ctx context.Context //nolint:containedctx
}

func (l *gooseLogger) Fatalf(format string, v ...any) {
	logger.Get(l.ctx).Error(fmt.Sprintf(format, v...))
}

func (l *gooseLogger) Printf(format string, v ...any) {
	logger.Get(l.ctx).Info(fmt.Sprintf(format, v...))
}
