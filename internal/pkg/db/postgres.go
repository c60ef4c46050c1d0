// Package db manages the shared PostgreSQL connection pool.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"minex-server/internal/config"
)

// Pool is the application's pgx connection pool. It backs the
// liveness check the HTTP health endpoint serves.
type Pool struct {
	*pgxpool.Pool
}

// NewPool connects to PostgreSQL and verifies the connection with a
// ping. Sizing and timeouts come straight from configuration; the
// config defaults guarantee sane values.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	pc.MaxConns = int32(cfg.PoolSize)
	pc.MinConns = max(1, pc.MaxConns/4)
	pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int32("max_conns", pc.MaxConns).
		Msg("Connected to PostgreSQL")

	return &Pool{Pool: pool}, nil
}

// HealthCheck pings the database. Served through GET /health.
func (p *Pool) HealthCheck(ctx context.Context) error {
	return p.Ping(ctx)
}
