package db

import (
	"context"
	"time"

	"taskify/internal/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pool and verifies it with a ping. maxConns <= 0 keeps the pgx default.
func Connect(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("database connected", "max_conns", cfg.MaxConns)
	return pool, nil
}

// MustConnect is Connect that exits the process on failure.
func MustConnect(dsn string, maxConns int32) *pgxpool.Pool {
	pool, err := Connect(context.Background(), dsn, maxConns)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	return pool
}
