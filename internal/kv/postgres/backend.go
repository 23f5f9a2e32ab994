// Package postgres implements a kv.Backend that keeps each document as one
// JSONB row in Postgres.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/bidharvest/internal/kv"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for documents.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// Pool owns the connection pool shared by every document backend.
type Pool struct {
	pool  pool
	table string
}

// Connect opens a pool and makes sure the documents table exists.
func Connect(ctx context.Context, cfg Config) (*Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.postgres.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pgPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	p, err := NewWithPool(pgPool, cfg.Table)
	if err != nil {
		pgPool.Close()
		return nil, err
	}
	if err := p.EnsureSchema(ctx); err != nil {
		pgPool.Close()
		return nil, err
	}
	return p, nil
}

// NewWithPool wraps an existing pool (primarily for testing).
func NewWithPool(pl pool, table string) (*Pool, error) {
	if pl == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "bidharvest_kv"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &Pool{pool: pl, table: table}, nil
}

// EnsureSchema creates the documents table when missing.
func (p *Pool) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	name       TEXT PRIMARY KEY,
	document   JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, p.table)
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Backend returns the kv.Backend for the named document.
func (p *Pool) Backend(name string) *Backend {
	return &Backend{pool: p, name: name}
}

// Close releases the underlying pool resources.
func (p *Pool) Close() {
	if p == nil || p.pool == nil {
		return
	}
	p.pool.Close()
}

// Backend reads and writes one named document row.
type Backend struct {
	pool *Pool
	name string
}

// Read loads the document row or returns kv.ErrNotFound.
func (b *Backend) Read(ctx context.Context) ([]byte, error) {
	query := fmt.Sprintf(`SELECT document FROM %s WHERE name = $1`, b.pool.table)
	var doc []byte
	err := b.pool.pool.QueryRow(ctx, query, b.name).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, kv.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select document %q: %w", b.name, err)
	}
	return doc, nil
}

// Write upserts the document row.
func (b *Backend) Write(ctx context.Context, data []byte) error {
	query := fmt.Sprintf(`
INSERT INTO %s (name, document, updated_at) VALUES ($1, $2, now())
ON CONFLICT (name) DO UPDATE SET document = EXCLUDED.document, updated_at = now()`, b.pool.table)
	if _, err := b.pool.pool.Exec(ctx, query, b.name, data); err != nil {
		return fmt.Errorf("upsert document %q: %w", b.name, err)
	}
	return nil
}
