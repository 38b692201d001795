// Package mongostore persists state records in MongoDB, one collection per
// entity type. Record IDs are stored as canonical UUID strings, whose
// lexicographic order matches the time order of UUIDv7 values.
//
// Inserting a record is a single-document write, so the store is used with
// fsm.LocalTransactor rather than multi-document transactions.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// CollectionName is the collection of an entity type.
func CollectionName(entityType string) string {
	return "fsm_" + entityType + "_states"
}

type document struct {
	ID             string    `bson:"_id"`
	EntityID       string    `bson:"entity_id"`
	State          string    `bson:"state"`
	PreviousState  string    `bson:"previous_state,omitempty"`
	TransitionName string    `bson:"transition_name"`
	TriggeredBy    string    `bson:"triggered_by,omitempty"`
	ContextData    bson.M    `bson:"context_data,omitempty"`
	Reason         string    `bson:"reason,omitempty"`
	OrganizationID string    `bson:"organization_id,omitempty"`
	Denormalized   bson.M    `bson:"denormalized,omitempty"`
	CreatedAt      time.Time `bson:"created_at"`
}

// Store is a fsm.StateModel backed by one collection.
type Store struct {
	coll        *mongo.Collection
	entityType  string
	denormalize fsm.Denormalizer
}

var _ fsm.StateModel = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDenormalizer sets the function extracting denormalized fields.
func WithDenormalizer(fn fsm.Denormalizer) Option {
	return func(s *Store) { s.denormalize = fn }
}

// New returns a Store for entityType in db. Call EnsureIndexes before first use.
func New(db *mongo.Database, entityType string, opts ...Option) *Store {
	s := &Store{coll: db.Collection(CollectionName(entityType)), entityType: entityType}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

// EnsureIndexes creates the indexes used by the read paths.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "entity_id", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "organization_id", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("indexing %s: %w", s.coll.Name(), err)
	}

	return nil
}

func (s *Store) Create(ctx context.Context, rec *fsm.StateRecord) error {
	_, err := s.coll.InsertOne(ctx, document{
		ID:             rec.ID.String(),
		EntityID:       rec.EntityID,
		State:          rec.State,
		PreviousState:  rec.PreviousState,
		TransitionName: rec.TransitionName,
		TriggeredBy:    rec.TriggeredBy,
		ContextData:    rec.ContextData,
		Reason:         rec.Reason,
		OrganizationID: rec.OrganizationID,
		Denormalized:   rec.Denormalized,
		CreatedAt:      rec.CreatedAt.UTC(),
	})

	return err
}

func (s *Store) GetCurrentState(ctx context.Context, entity fsm.Entity) (*fsm.StateRecord, error) {
	var doc document

	err := s.coll.FindOne(ctx,
		bson.D{{Key: "entity_id", Value: entity.EntityID()}},
		options.FindOne().SetSort(bson.D{{Key: "_id", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil //nolint:nilnil
	}

	if err != nil {
		return nil, err
	}

	return doc.toState(s.entityType)
}

func (s *Store) GetCurrentStateValue(ctx context.Context, entity fsm.Entity) (string, error) {
	var doc struct {
		State string `bson:"state"`
	}

	err := s.coll.FindOne(ctx,
		bson.D{{Key: "entity_id", Value: entity.EntityID()}},
		options.FindOne().
			SetSort(bson.D{{Key: "_id", Value: -1}}).
			SetProjection(bson.D{{Key: "state", Value: 1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", nil
	}

	return doc.State, err
}

func (s *Store) GetDenormalizedFields(ctx context.Context, entity fsm.Entity) (map[string]any, error) {
	if s.denormalize == nil {
		return map[string]any{}, nil
	}

	return s.denormalize(ctx, entity)
}

func (s *Store) GetStateHistory(ctx context.Context, entity fsm.Entity, limit int) ([]*fsm.StateRecord, error) {
	return s.find(ctx,
		bson.D{{Key: "entity_id", Value: entity.EntityID()}},
		options.Find().SetSort(bson.D{{Key: "_id", Value: -1}}).SetLimit(int64(limit)),
	)
}

func (s *Store) GetStatesInRange(
	ctx context.Context,
	entity fsm.Entity,
	start, end time.Time,
) ([]*fsm.StateRecord, error) {
	lo, hi := fsm.RecordIDBounds(start, end)

	return s.find(ctx,
		bson.D{
			{Key: "entity_id", Value: entity.EntityID()},
			{Key: "_id", Value: bson.D{
				{Key: "$gte", Value: lo.String()},
				{Key: "$lte", Value: hi.String()},
			}},
		},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
}

func (s *Store) find(
	ctx context.Context,
	filter bson.D,
	opts *options.FindOptionsBuilder,
) ([]*fsm.StateRecord, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	out := make([]*fsm.StateRecord, 0, len(docs))

	for i := range docs {
		rec, err := docs[i].toState(s.entityType)
		if err != nil {
			return nil, err
		}

		out = append(out, rec)
	}

	return out, nil
}

func (d *document) toState(entityType string) (*fsm.StateRecord, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, fmt.Errorf("decoding record id %q: %w", d.ID, err)
	}

	return &fsm.StateRecord{
		ID:             id,
		EntityType:     entityType,
		EntityID:       d.EntityID,
		State:          d.State,
		PreviousState:  d.PreviousState,
		TransitionName: d.TransitionName,
		TriggeredBy:    d.TriggeredBy,
		ContextData:    plainMap(d.ContextData),
		Reason:         d.Reason,
		OrganizationID: d.OrganizationID,
		Denormalized:   plainMap(d.Denormalized),
		CreatedAt:      d.CreatedAt.UTC(),
	}, nil
}

// plainMap converts decoded BSON containers to the map and slice types the
// rest of the engine works with.
func plainMap(m bson.M) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = plainValue(v)
	}

	return out
}

func plainValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		return plainMap(val)
	case bson.D:
		m := make(map[string]any, len(val))
		for _, e := range val {
			m[e.Key] = plainValue(e.Value)
		}

		return m
	case bson.A:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = plainValue(e)
		}

		return out
	default:
		return v
	}
}
