// Package pgquery provides a pooled, read-only Postgres client that only
// ever executes statements this package has validated as SELECT/EXPLAIN/WITH/
// SHOW queries. It owns no schema and runs no migrations: the database belongs to
// the Django core this system sits alongside.
package pgquery

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config tunes the connection pool. Min/Max mirror the conservative pool
// sizing used elsewhere in the corpus for a shared, non-owned database
// connection (a handful of connections, not a per-request pool).
type Config struct {
	DSN         string
	MinConns    int32
	MaxConns    int32
	MaxConnLife time.Duration
}

// DefaultConfig returns the pool sizing spec.md §5 calls for: min 1, max 10.
func DefaultConfig(dsn string) Config {
	return Config{
		DSN:         dsn,
		MinConns:    1,
		MaxConns:    10,
		MaxConnLife: 30 * time.Minute,
	}
}

// Client wraps a pgxpool.Pool restricted to validated read-only queries.
type Client struct {
	pool *pgxpool.Pool
}

// New parses cfg and opens the pool, pinging once to fail fast on a
// misconfigured DSN.
func New(ctx context.Context, cfg Config) (*Client, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgquery: parsing DSN: %w", err)
	}
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLife

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pgquery: creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgquery: pinging database: %w", err)
	}
	return &Client{pool: pool}, nil
}

// Close releases the connection pool.
func (c *Client) Close() {
	c.pool.Close()
}

// Row is one result row, column name to value, decoded via pgx's generic
// any-scanning rather than a caller-supplied destination struct, since the
// set of queries this package runs is fixed and small (latency probe,
// pgpool introspection, computer-uuid lookup).
type Row map[string]any

// Query validates sql, then executes it with args and returns every row.
func (c *Client) Query(ctx context.Context, sql string, args ...any) ([]Row, error) {
	if err := Validate(sql); err != nil {
		return nil, err
	}

	rows, err := c.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("pgquery: executing query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("pgquery: reading row: %w", err)
		}
		row := make(Row, len(fields))
		for i, f := range fields {
			row[string(f.Name)] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgquery: iterating rows: %w", err)
	}
	return out, nil
}

// QueryRow is a convenience for single-row queries (the SELECT 1 latency
// probe, a single computer lookup).
func (c *Client) QueryRow(ctx context.Context, sql string, args ...any) (Row, error) {
	rows, err := c.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, pgx.ErrNoRows
	}
	return rows[0], nil
}

// Ping measures round-trip latency to Postgres via SELECT 1, used by the
// saturation sampler.
func (c *Client) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if _, err := c.QueryRow(ctx, "SELECT 1"); err != nil {
		return 0, fmt.Errorf("pgquery: ping: %w", err)
	}
	return time.Since(start), nil
}
