// Package db owns the PostgreSQL connection pool every other package
// is handed at startup.
package db

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/enginerepair/engshopsync/internal/config"
)

// Open creates a connection pool sized from cfg (spec.md §6:
// pool_max, pool_idle_ms, pool_connect_ms).
func Open(ctx context.Context, cfg config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, err
	}

	poolCfg.MaxConns = int32(cfg.PoolMax)
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = time.Duration(cfg.PoolIdleMs) * time.Millisecond
	poolCfg.HealthCheckPeriod = time.Minute
	poolCfg.ConnConfig.ConnectTimeout = time.Duration(cfg.PoolConnectMs) * time.Millisecond

	return newPool(ctx, poolCfg)
}

// OpenURL creates a connection pool directly from a DSN, bypassing
// config.Config. Used by test harnesses that only have
// TEST_DATABASE_URL to work with.
func OpenURL(ctx context.Context, url string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConns = 20
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute

	return newPool(ctx, poolCfg)
}

func newPool(ctx context.Context, poolCfg *pgxpool.Config) (*pgxpool.Pool, error) {
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Int32("max_conns", poolCfg.MaxConns).
		Int32("min_conns", poolCfg.MinConns).
		Msg("postgres connection pool created")

	return pool, nil
}
