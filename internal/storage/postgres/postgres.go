// Package postgres persists the bucks ledger in PostgreSQL using pgx v5.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/cory-johannsen/crypdoebucks/internal/config"
)

// applicationName is reported in pg_stat_activity.
const applicationName = "bucksd"

// Pool owns the pgx connection pool shared by the ledger store.
type Pool struct {
	pool *pgxpool.Pool
}

// NewPool connects to PostgreSQL, retrying the initial ping until it
// succeeds, ctx ends, or attempts run out.
//
// Precondition: cfg must contain valid database connection parameters;
// attempts >= 1.
// Postcondition: Returns a pool that has answered a ping, or a non-nil error.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, opts ...PoolOption) (*Pool, error) {
	o := poolOptions{attempts: 1, backoff: time.Second, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}
	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	for attempt := 1; ; attempt++ {
		err = pool.Ping(ctx)
		if err == nil {
			return &Pool{pool: pool}, nil
		}
		if attempt >= o.attempts {
			break
		}
		o.logger.Warn("database not ready, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", o.backoff),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			pool.Close()
			return nil, fmt.Errorf("pinging database: %w", ctx.Err())
		case <-time.After(o.backoff):
		}
	}
	pool.Close()
	return nil, fmt.Errorf("pinging database after %d attempt(s): %w", o.attempts, err)
}

type poolOptions struct {
	attempts int
	backoff  time.Duration
	logger   *zap.Logger
}

// PoolOption adjusts NewPool.
type PoolOption func(*poolOptions)

// WithRetry retries the initial ping up to attempts times, sleeping backoff
// between tries and logging each failure.
func WithRetry(attempts int, backoff time.Duration, logger *zap.Logger) PoolOption {
	return func(o *poolOptions) {
		if attempts > 0 {
			o.attempts = attempts
		}
		o.backoff = backoff
		if logger != nil {
			o.logger = logger
		}
	}
}

// Health pings the database, giving up after timeout.
//
// Precondition: The pool must not be closed.
func (p *Pool) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.pool.Ping(ctx)
}

// Close releases all pool resources.
func (p *Pool) Close() {
	p.pool.Close()
}

// DB returns the underlying pgxpool.Pool.
func (p *Pool) DB() *pgxpool.Pool {
	return p.pool
}
