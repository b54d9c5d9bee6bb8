package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema is the SQL DDL for the inventory tables. Execute it via
// [PostgresStore.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS inventories (
    owner      TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS inventory_items (
    id    BIGSERIAL PRIMARY KEY,
    owner TEXT NOT NULL REFERENCES inventories(owner) ON DELETE CASCADE,
    item  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_inventory_items_owner ON inventory_items(owner);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore is a [Store] backed by PostgreSQL, so inventories survive
// between sessions.
type PostgresStore struct {
	db DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store using db. Call [PostgresStore.Migrate]
// before the first query.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Open connects a pool to the database at dsn, pings it and runs
// [PostgresStore.Migrate]. The caller owns the pool and must close it.
func Open(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("inventory: ping: %w", err)
	}
	s := NewPostgresStore(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return s, pool, nil
}

// Migrate creates the inventory tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("inventory: migrate: %w", err)
	}
	return nil
}

// Create implements [Store].
func (s *PostgresStore) Create(ctx context.Context, owner string) error {
	if owner == "" {
		return ErrEmptyOwner
	}
	_, err := s.db.Exec(ctx, `INSERT INTO inventories (owner) VALUES ($1)`, owner)
	if isPgCode(err, "23505") {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("inventory: create %q: %w", owner, err)
	}
	return nil
}

// Owners implements [Store].
func (s *PostgresStore) Owners(ctx context.Context) ([]string, error) {
	return s.strings(ctx, "owners", `SELECT owner FROM inventories ORDER BY created_at, owner`)
}

// Items implements [Store].
func (s *PostgresStore) Items(ctx context.Context, owner string) ([]string, error) {
	if err := s.mustExist(ctx, owner); err != nil {
		return nil, err
	}
	return s.strings(ctx, "items", `SELECT item FROM inventory_items WHERE owner = $1 ORDER BY id`, owner)
}

// Add implements [Store].
func (s *PostgresStore) Add(ctx context.Context, owner, item string) error {
	_, err := s.db.Exec(ctx, `INSERT INTO inventory_items (owner, item) VALUES ($1, $2)`, owner, item)
	if isPgCode(err, "23503") {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inventory: add item: %w", err)
	}
	return nil
}

// Remove implements [Store].
func (s *PostgresStore) Remove(ctx context.Context, owner, item string) error {
	if err := s.mustExist(ctx, owner); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
DELETE FROM inventory_items WHERE id = (
    SELECT id FROM inventory_items WHERE owner = $1 AND item = $2 ORDER BY id LIMIT 1
)`, owner, item)
	if err != nil {
		return fmt.Errorf("inventory: remove item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

// Update implements [Store].
func (s *PostgresStore) Update(ctx context.Context, owner, item, newItem string) error {
	if err := s.mustExist(ctx, owner); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `
UPDATE inventory_items SET item = $3 WHERE id = (
    SELECT id FROM inventory_items WHERE owner = $1 AND item = $2 ORDER BY id LIMIT 1
)`, owner, item, newItem)
	if err != nil {
		return fmt.Errorf("inventory: update item: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrItemNotFound
	}
	return nil
}

func (s *PostgresStore) mustExist(ctx context.Context, owner string) error {
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM inventories WHERE owner = $1)`, owner).Scan(&exists)
	if err != nil {
		return fmt.Errorf("inventory: lookup %q: %w", owner, err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) strings(ctx context.Context, what, sql string, args ...any) ([]string, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("inventory: list %s: %w", what, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("inventory: scan %s: %w", what, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// isPgCode reports whether err is a PostgreSQL error with the given SQLSTATE.
func isPgCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
