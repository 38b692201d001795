package gormstore

import (
	"context"

	"github.com/amp-labs/amp-fsm/fsm"
	"gorm.io/gorm"
)

type txKey struct{}

// conn returns the transaction carried by ctx, or root.
func conn(ctx context.Context, root *gorm.DB) *gorm.DB {
	if tx, ok := ctx.Value(txKey{}).(*gorm.DB); ok {
		return tx.WithContext(ctx)
	}

	return root.WithContext(ctx)
}

// Transactor runs atomic units in gorm transactions. Stores created from
// the same *gorm.DB pick the transaction up from the context. Nested units
// become savepoints of the outer transaction.
type Transactor struct {
	db *gorm.DB
}

var _ fsm.Transactor = (*Transactor)(nil)

// NewTransactor returns a Transactor over db.
func NewTransactor(db *gorm.DB) *Transactor {
	return &Transactor{db: db}
}

func (t *Transactor) Atomic(ctx context.Context, fn func(ctx context.Context) error) error {
	return fsm.WithinCommitScope(ctx, func(ctx context.Context) error {
		return conn(ctx, t.db).Transaction(func(tx *gorm.DB) error {
			return fn(context.WithValue(ctx, txKey{}, tx))
		})
	})
}
