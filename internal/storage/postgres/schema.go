package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		chain_id BIGINT NOT NULL,
		order_id TEXT NOT NULL,
		request_id TEXT NOT NULL,
		user_address TEXT NOT NULL,
		token_address TEXT NOT NULL,
		amount NUMERIC(78,0) NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		block_time TIMESTAMPTZ NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (chain_id, order_id),
		UNIQUE (chain_id, tx_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS orders_block_time_idx ON orders (block_time DESC)`,
	`CREATE INDEX IF NOT EXISTS orders_user_idx ON orders (user_address)`,
	`CREATE INDEX IF NOT EXISTS orders_token_idx ON orders (chain_id, token_address)`,
	`CREATE TABLE IF NOT EXISTS contract_metrics (
		id BIGSERIAL PRIMARY KEY,
		chain_id BIGINT NOT NULL,
		order_count NUMERIC(78,0) NOT NULL,
		total_volume NUMERIC(78,0) NOT NULL,
		successful_orders NUMERIC(78,0) NOT NULL,
		failed_orders NUMERIC(78,0) NOT NULL,
		snapshot_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS contract_metrics_chain_time_idx ON contract_metrics (chain_id, snapshot_at DESC)`,
	`CREATE TABLE IF NOT EXISTS sync_status (
		kind TEXT NOT NULL,
		chain_id BIGINT NOT NULL,
		last_synced_block BIGINT NOT NULL DEFAULT 0,
		last_sync_at TIMESTAMPTZ,
		running BOOLEAN NOT NULL DEFAULT false,
		last_error TEXT,
		failed_ranges JSONB NOT NULL DEFAULT '[]'::jsonb,
		success_count BIGINT NOT NULL DEFAULT 0,
		error_count BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		PRIMARY KEY (kind, chain_id)
	)`,
	`CREATE TABLE IF NOT EXISTS volume_snapshots (
		id BIGSERIAL PRIMARY KEY,
		total_volume_usd DOUBLE PRECISION NOT NULL,
		total_volume_local DOUBLE PRECISION NOT NULL,
		local_currency TEXT NOT NULL,
		breakdown JSONB NOT NULL,
		snapshot_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS volume_snapshots_time_idx ON volume_snapshots (snapshot_at DESC)`,
}

// EnsureSchema creates tables and indexes when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}
