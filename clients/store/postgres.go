package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/uptrace/bun"

	"github.com/kava-labs/kava-batch-service/logging"
)

// resource is the row stored for every entity
type resource struct {
	bun.BaseModel `bun:"table:resources,alias:r"`

	EntitySet string          `bun:",pk"`
	Key       int64           `bun:",pk"`
	Data      json.RawMessage `bun:"type:jsonb"`
	CreatedAt time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
	UpdatedAt time.Time       `bun:",nullzero,notnull,default:current_timestamp"`
}

type resourceSequence struct {
	bun.BaseModel `bun:"table:resource_sequences,alias:rs"`

	EntitySet string `bun:",pk"`
	Value     int64
}

// PostgresStore is an implementation of Store keeping entities in
// the resources table of the batch service database
type PostgresStore struct {
	db *bun.DB
	*logging.ServiceLogger
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *bun.DB, logger *logging.ServiceLogger) *PostgresStore {
	return &PostgresStore{
		db:            db,
		ServiceLogger: logger,
	}
}

func (ps *PostgresStore) NextKey(ctx context.Context, set string) (int64, error) {
	sequence := &resourceSequence{
		EntitySet: set,
		Value:     1,
	}

	_, err := ps.db.NewInsert().
		Model(sequence).
		On("CONFLICT (entity_set) DO UPDATE").
		Set("value = rs.value + 1").
		Returning("value").
		Exec(ctx)
	if err != nil {
		return 0, err
	}

	return sequence.Value, nil
}

func (ps *PostgresStore) Put(ctx context.Context, set string, key int64, data []byte) error {
	row := &resource{
		EntitySet: set,
		Key:       key,
		Data:      data,
		UpdatedAt: time.Now(),
	}

	_, err := ps.db.NewInsert().
		Model(row).
		On("CONFLICT (entity_set, key) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)

	return err
}

func (ps *PostgresStore) Get(ctx context.Context, set string, key int64) ([]byte, error) {
	row := new(resource)

	err := ps.db.NewSelect().
		Model(row).
		Where("entity_set = ?", set).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return row.Data, nil
}

func (ps *PostgresStore) List(ctx context.Context, set string) ([][]byte, error) {
	var rows []resource

	err := ps.db.NewSelect().
		Model(&rows).
		Where("entity_set = ?", set).
		Order("key ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	list := make([][]byte, 0, len(rows))
	for _, row := range rows {
		list = append(list, row.Data)
	}

	return list, nil
}

func (ps *PostgresStore) Delete(ctx context.Context, set string, key int64) error {
	result, err := ps.db.NewDelete().
		Model((*resource)(nil)).
		Where("entity_set = ?", set).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return err
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if deleted == 0 {
		return ErrNotFound
	}

	return nil
}

func (ps *PostgresStore) Healthcheck(ctx context.Context) error {
	return ps.db.PingContext(ctx)
}
