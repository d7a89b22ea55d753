package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// PGStore persists entities as single rows in an entities table and blobs as
// bytea rows. Update runs the mutator inside a transaction holding a row
// lock, which gives the same per-entity serialization the file store gets
// from its mutex.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(connStr string) (*PGStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}
	s := &PGStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPGStoreWithDB wraps an existing connection without running migrations.
// Used by tests that drive the store through sqlmock.
func NewPGStoreWithDB(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) migrate() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("store: migration source: %w", err)
	}
	driver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("store: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("store: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

func (s *PGStore) Read(ctx context.Context, entity string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM entities WHERE name = $1`, entity).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", entity, err)
	}
	return raw, nil
}

func (s *PGStore) Write(ctx context.Context, entity string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entities (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = $2, updated_at = NOW()`,
		entity, data)
	if err != nil {
		return fmt.Errorf("store: write %s: %w", entity, err)
	}
	return nil
}

func (s *PGStore) Update(ctx context.Context, entity string, fn UpdateFunc) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin update %s: %w", entity, err)
	}
	defer tx.Rollback()

	var cur []byte
	err = tx.QueryRowContext(ctx,
		`SELECT value FROM entities WHERE name = $1 FOR UPDATE`, entity).Scan(&cur)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("store: lock %s: %w", entity, err)
	}

	next, err := fn(cur)
	if err != nil {
		return err
	}
	if next == nil {
		return tx.Commit()
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entities (name, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = $2, updated_at = NOW()`,
		entity, next); err != nil {
		return fmt.Errorf("store: update %s: %w", entity, err)
	}
	return tx.Commit()
}

func (s *PGStore) ReadBlob(ctx context.Context, key string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM blobs WHERE key = $1`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: read blob %s: %w", key, err)
	}
	return raw, nil
}

func (s *PGStore) WriteBlob(ctx context.Context, key string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO blobs (key, data, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET data = $2, updated_at = NOW()`,
		key, data)
	if err != nil {
		return fmt.Errorf("store: write blob %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) DeleteBlob(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM blobs WHERE key = $1`, key); err != nil {
		return fmt.Errorf("store: delete blob %s: %w", key, err)
	}
	return nil
}

func (s *PGStore) Close() error { return s.db.Close() }
