package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"oceanstella/api/internal/config"
)

// OpenFunc dials a new pool.
type OpenFunc func(ctx context.Context) (Pool, error)

// Connector establishes the database pool on first use and shares it across
// callers. A failed attempt leaves nothing cached, so the next call dials
// again.
type Connector struct {
	open OpenFunc

	mu   sync.Mutex
	pool Pool
}

func NewConnector(cfg config.PostgresConfig) *Connector {
	return NewConnectorWithOpener(func(ctx context.Context) (Pool, error) {
		return NewPostgresPool(ctx, cfg)
	})
}

func NewConnectorWithOpener(open OpenFunc) *Connector {
	return &Connector{open: open}
}

// Acquire returns the shared pool, dialing it if needed. Concurrent first
// callers wait on the same attempt.
func (c *Connector) Acquire(ctx context.Context) (Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pool != nil {
		return c.pool, nil
	}

	pool, err := c.open(ctx)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	c.pool = pool
	return pool, nil
}

func (c *Connector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pool != nil
}

func (c *Connector) Ping(ctx context.Context) error {
	pool, err := c.Acquire(ctx)
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

func (c *Connector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pool != nil {
		c.pool.Close()
		c.pool = nil
	}
}

func (c *Connector) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	pool, err := c.Acquire(ctx)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	return pool.Exec(ctx, sql, args...)
}

func (c *Connector) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	pool, err := c.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	return pool.Query(ctx, sql, args...)
}

func (c *Connector) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	pool, err := c.Acquire(ctx)
	if err != nil {
		return errRow{err: err}
	}
	return pool.QueryRow(ctx, sql, args...)
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error {
	return r.err
}
