package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dtroode/membership-server/database"
)

// PoolOptions size the connection pool. Every open dashboard subscription
// holds one connection for LISTEN, so MaxConns bounds concurrent dashboards.
type PoolOptions struct {
	// MaxConns of zero keeps the pgx default.
	MaxConns        int32
	MaxConnIdleTime time.Duration
}

// Connection is a migrated postgres connection pool.
type Connection struct {
	*pgxpool.Pool
}

// NewConnection applies pending migrations to dsn and opens a pool sized by opts.
func NewConnection(ctx context.Context, dsn string, opts PoolOptions) (*Connection, error) {
	conf, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if opts.MaxConns > 0 {
		conf.MaxConns = opts.MaxConns
	}
	if opts.MaxConnIdleTime > 0 {
		conf.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	if err := database.Migrate(ctx, dsn); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, conf)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection pool: %w", err)
	}

	return &Connection{Pool: pool}, nil
}

func (c *Connection) Close() error {
	if c.Pool != nil {
		c.Pool.Close()
	}
	return nil
}

// Ping is the readiness probe of the registration store.
func (c *Connection) Ping(ctx context.Context) error {
	if c.Pool == nil {
		return errors.New("connection pool is not open")
	}
	return c.Pool.Ping(ctx)
}
