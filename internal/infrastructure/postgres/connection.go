package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Ludentes/RooDemo-sub001/pkg/config"
	"github.com/Ludentes/RooDemo-sub001/pkg/logger"
)

func NewConnection(cfg *config.Database, logger *logger.Logger) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ConnectionTimeout)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MaxConnIdleTime = cfg.MaxIdleTime
	poolConfig.ConnConfig.ConnectTimeout = cfg.ConnectionTimeout

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Successfully connected to PostgreSQL database")

	return pool, nil
}

func RunMigrations(pool *pgxpool.Pool, logger *logger.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS elections (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			start_time TIMESTAMP WITH TIME ZONE NOT NULL,
			end_time TIMESTAMP WITH TIME ZONE NOT NULL,
			status TEXT NOT NULL DEFAULT 'upcoming',
			registered_voters BIGINT NOT NULL DEFAULT 0,
			bulletins_issued BIGINT NOT NULL DEFAULT 0,
			votes_cast BIGINT NOT NULL DEFAULT 0,
			participation_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_elections_status ON elections(status)`,
		`CREATE TABLE IF NOT EXISTS constituencies (
			id TEXT PRIMARY KEY,
			election_id TEXT NOT NULL REFERENCES elections(id),
			name TEXT NOT NULL,
			region TEXT NOT NULL DEFAULT '',
			registered_voters BIGINT NOT NULL DEFAULT 0,
			bulletins_issued BIGINT NOT NULL DEFAULT 0,
			votes_cast BIGINT NOT NULL DEFAULT 0,
			participation_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			anomaly_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			anomaly_count BIGINT NOT NULL DEFAULT 0,
			last_activity TIMESTAMP WITH TIME ZONE,
			version BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_constituencies_election ON constituencies(election_id)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			tx_id TEXT NOT NULL,
			constituency_id TEXT NOT NULL REFERENCES constituencies(id),
			block_height BIGINT NOT NULL,
			timestamp TIMESTAMP WITH TIME ZONE NOT NULL,
			type TEXT NOT NULL,
			raw_data JSONB,
			operation_data JSONB,
			status TEXT NOT NULL DEFAULT 'processed',
			source TEXT NOT NULL DEFAULT 'upload',
			anomaly BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			UNIQUE(constituency_id, tx_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_constituency_time ON transactions(constituency_id, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_transactions_type ON transactions(type)`,
		`CREATE TABLE IF NOT EXISTS hourly_stats (
			constituency_id TEXT NOT NULL REFERENCES constituencies(id),
			election_id TEXT NOT NULL,
			hour TIMESTAMP WITH TIME ZONE NOT NULL,
			bulletins_issued BIGINT NOT NULL DEFAULT 0,
			votes_cast BIGINT NOT NULL DEFAULT 0,
			transaction_count BIGINT NOT NULL DEFAULT 0,
			bulletin_velocity DOUBLE PRECISION NOT NULL DEFAULT 0,
			vote_velocity DOUBLE PRECISION NOT NULL DEFAULT 0,
			participation_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			anomaly_count BIGINT NOT NULL DEFAULT 0,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (constituency_id, hour)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_hourly_stats_election ON hourly_stats(election_id, hour)`,
	}

	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("failed to run migration %d: %w", i+1, err)
		}
	}

	logger.Info("Successfully ran database migrations")
	return nil
}
