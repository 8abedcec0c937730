package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"market-pulse-bot/internal/config"
)

// NewPool configures a PostgreSQL connection pool from runtime settings.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	return pool, nil
}

// schemaStatements are applied one at a time: pgx's extended protocol
// rejects multi-statement strings.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS publish_records (
        id BIGSERIAL PRIMARY KEY,
        content_hash TEXT NOT NULL,
        source TEXT NOT NULL,
        platform TEXT NOT NULL,
        posted_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        UNIQUE (content_hash, source, platform)
    );`,
	`CREATE INDEX IF NOT EXISTS idx_publish_records_posted_at
        ON publish_records (posted_at);`,
	`CREATE TABLE IF NOT EXISTS platform_posts (
        id BIGSERIAL PRIMARY KEY,
        platform TEXT NOT NULL,
        posted_at TIMESTAMPTZ NOT NULL
    );`,
	`CREATE INDEX IF NOT EXISTS idx_platform_posts_platform_posted_at
        ON platform_posts (platform, posted_at);`,
}

// EnsureSchema creates the bot tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, execErr := pool.Exec(ctx, stmt); execErr != nil {
			return fmt.Errorf("apply schema: %w", execErr)
		}
	}
	return nil
}
