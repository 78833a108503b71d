package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/movesintl/moves-study-hub-sub001/internal/logger"
)

// ConnectPostgres opens a pgx pool against the hosted Postgres and pings it.
func ConnectPostgres(dsn string, maxConns int32) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute
	poolCfg.HealthCheckPeriod = time.Minute
	// Hosted poolers (pgbouncer in transaction mode) reject named prepared statements.
	poolCfg.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeCacheDescribe

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping Postgres: %w", err)
	}

	logger.Info().Int32("max_conns", poolCfg.MaxConns).Msg("connected to Postgres")
	return pool, nil
}

// DisconnectPostgres closes the pool.
func DisconnectPostgres(pool *pgxpool.Pool) {
	if pool == nil {
		return
	}
	pool.Close()
	logger.Info().Msg("Postgres pool closed")
}
