// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oceansat/geoharvest/internal/harvest"
)

// ObjectStoreConfig controls the Postgres connection pool used for harvest objects.
type ObjectStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ObjectStore persists harvest objects in Postgres.
type ObjectStore struct {
	pool pgxPool
}

// NewObjectStore creates a Postgres-backed ObjectStore using the provided config.
func NewObjectStore(ctx context.Context, cfg ObjectStoreConfig) (*ObjectStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &ObjectStore{pool: pool}, nil
}

// NewObjectStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewObjectStoreWithPool(pool pgxPool) (*ObjectStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &ObjectStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ObjectStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Save inserts a freshly gathered object.
func (s *ObjectStore) Save(ctx context.Context, obj *harvest.Object) error {
	if obj.ID == "" {
		return fmt.Errorf("object id is required")
	}
	extrasJSON, err := json.Marshal(obj.Extras)
	if err != nil {
		return fmt.Errorf("marshal extras: %w", err)
	}
	const query = `
INSERT INTO harvest_objects (
	id,
	source_id,
	guid,
	content,
	extras,
	current,
	dataset_id,
	gathered_at,
	imported_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)`
	_, err = s.pool.Exec(ctx, query,
		obj.ID,
		obj.SourceID,
		obj.GUID,
		obj.Content,
		extrasJSON,
		obj.Current,
		nullString(obj.DatasetID),
		obj.GatheredAt,
		obj.ImportedAt,
	)
	if err != nil {
		return fmt.Errorf("insert object: %w", err)
	}
	return nil
}

// Update rewrites a stored object.
func (s *ObjectStore) Update(ctx context.Context, obj *harvest.Object) error {
	extrasJSON, err := json.Marshal(obj.Extras)
	if err != nil {
		return fmt.Errorf("marshal extras: %w", err)
	}
	const query = `
UPDATE harvest_objects SET
	content = $2,
	extras = $3,
	current = $4,
	dataset_id = $5,
	imported_at = $6
WHERE id = $1`
	tag, err := s.pool.Exec(ctx, query,
		obj.ID,
		obj.Content,
		extrasJSON,
		obj.Current,
		nullString(obj.DatasetID),
		obj.ImportedAt,
	)
	if err != nil {
		return fmt.Errorf("update object: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return harvest.ErrNotFound
	}
	return nil
}

// MostRecent returns the newest current object for a source, by gather time.
func (s *ObjectStore) MostRecent(ctx context.Context, sourceID string) (*harvest.Object, error) {
	const query = `
SELECT id, source_id, guid, content, extras, current, dataset_id, gathered_at, imported_at
FROM harvest_objects
WHERE source_id = $1 AND current
ORDER BY gathered_at DESC
LIMIT 1`
	row := s.pool.QueryRow(ctx, query, sourceID)
	obj, err := scanObject(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, harvest.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select most recent object: %w", err)
	}
	return obj, nil
}

// MarkSuperseded clears the current flag on other objects sharing a guid.
func (s *ObjectStore) MarkSuperseded(ctx context.Context, sourceID, guid, keepID string) error {
	const query = `
UPDATE harvest_objects SET current = FALSE
WHERE source_id = $1 AND guid = $2 AND id <> $3`
	if _, err := s.pool.Exec(ctx, query, sourceID, guid, keepID); err != nil {
		return fmt.Errorf("supersede objects: %w", err)
	}
	return nil
}

func scanObject(row pgx.Row) (*harvest.Object, error) {
	var (
		obj        harvest.Object
		extrasJSON []byte
		datasetID  *string
	)
	err := row.Scan(
		&obj.ID,
		&obj.SourceID,
		&obj.GUID,
		&obj.Content,
		&extrasJSON,
		&obj.Current,
		&datasetID,
		&obj.GatheredAt,
		&obj.ImportedAt,
	)
	if err != nil {
		return nil, err
	}
	obj.Extras = map[string]string{}
	if len(extrasJSON) > 0 {
		if err := json.Unmarshal(extrasJSON, &obj.Extras); err != nil {
			return nil, fmt.Errorf("unmarshal extras: %w", err)
		}
	}
	if datasetID != nil {
		obj.DatasetID = *datasetID
	}
	return &obj, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
