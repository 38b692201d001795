// Package gormstore persists state records in SQL through gorm, one
// append-only table per entity type. It also provides the fsm.Transactor
// that makes record creation and post-commit cache updates atomic.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

var (
	ErrInvalidEntityType = errors.New("entity type is not a valid table identifier")
	ErrNilDB             = errors.New("gorm db is nil")
)

var identifier = regexp.MustCompile(`^[a-z][a-z0-9_]{0,46}$`)

// TableName is the state table of an entity type.
func TableName(entityType string) string {
	return "fsm_" + entityType + "_states"
}

// Store is a fsm.StateModel backed by one SQL table.
type Store struct {
	db          *gorm.DB
	entityType  string
	table       string
	denormalize fsm.Denormalizer
}

var _ fsm.StateModel = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDenormalizer sets the function extracting denormalized fields.
func WithDenormalizer(fn fsm.Denormalizer) Option {
	return func(s *Store) { s.denormalize = fn }
}

// New returns a Store for entityType. Call Migrate before first use.
func New(db *gorm.DB, entityType string, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, ErrNilDB
	}

	if !identifier.MatchString(entityType) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidEntityType, entityType)
	}

	s := &Store{db: db, entityType: entityType, table: TableName(entityType)}
	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// OpenSQLite opens a SQLite database with gorm's logging silenced.
func OpenSQLite(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
}

// Migrate creates the state table and its indexes.
func (s *Store) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)

	if err := db.Table(s.table).AutoMigrate(&Record{}); err != nil {
		return fmt.Errorf("migrating %s: %w", s.table, err)
	}

	indexes := []string{
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_entity ON %[1]s (entity_id, id)", s.table),
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%[1]s_org ON %[1]s (organization_id)", s.table),
	}

	for _, stmt := range indexes {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("indexing %s: %w", s.table, err)
		}
	}

	return nil
}

func (s *Store) conn(ctx context.Context) *gorm.DB {
	return conn(ctx, s.db).Table(s.table)
}

func (s *Store) Create(ctx context.Context, rec *fsm.StateRecord) error {
	row, err := toRow(rec)
	if err != nil {
		return err
	}

	return s.conn(ctx).Create(row).Error
}

func (s *Store) GetCurrentState(ctx context.Context, entity fsm.Entity) (*fsm.StateRecord, error) {
	var rows []Record

	err := s.conn(ctx).
		Where("entity_id = ?", entity.EntityID()).
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	if len(rows) == 0 {
		return nil, nil //nolint:nilnil
	}

	return rows[0].toState(s.entityType)
}

func (s *Store) GetCurrentStateValue(ctx context.Context, entity fsm.Entity) (string, error) {
	var states []string

	err := s.conn(ctx).
		Where("entity_id = ?", entity.EntityID()).
		Order("id DESC").
		Limit(1).
		Pluck("state", &states).Error
	if err != nil || len(states) == 0 {
		return "", err
	}

	return states[0], nil
}

func (s *Store) GetDenormalizedFields(ctx context.Context, entity fsm.Entity) (map[string]any, error) {
	if s.denormalize == nil {
		return map[string]any{}, nil
	}

	return s.denormalize(ctx, entity)
}

func (s *Store) GetStateHistory(ctx context.Context, entity fsm.Entity, limit int) ([]*fsm.StateRecord, error) {
	var rows []Record

	err := s.conn(ctx).
		Where("entity_id = ?", entity.EntityID()).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return s.toStates(rows)
}

// GetStatesInRange filters on the time embedded in record IDs, which is the
// record's creation time.
func (s *Store) GetStatesInRange(
	ctx context.Context,
	entity fsm.Entity,
	start, end time.Time,
) ([]*fsm.StateRecord, error) {
	lo, hi := fsm.RecordIDBounds(start, end)

	var rows []Record

	err := s.conn(ctx).
		Where("entity_id = ? AND id >= ? AND id <= ?", entity.EntityID(), lo, hi).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	return s.toStates(rows)
}

func (s *Store) toStates(rows []Record) ([]*fsm.StateRecord, error) {
	out := make([]*fsm.StateRecord, 0, len(rows))

	for i := range rows {
		rec, err := rows[i].toState(s.entityType)
		if err != nil {
			return nil, err
		}

		out = append(out, rec)
	}

	return out, nil
}
