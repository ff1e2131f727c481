package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
		telegram_id BIGINT PRIMARY KEY,
		username VARCHAR(255),
		first_name VARCHAR(255),
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS user_configs (
		id BIGSERIAL PRIMARY KEY,
		user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
		name VARCHAR(255) NOT NULL,
		config_text TEXT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS collections (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		total_amount NUMERIC(18, 2) NOT NULL CHECK (total_amount > 0),
		description TEXT NOT NULL,
		payment_details TEXT NOT NULL,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,

	`CREATE TABLE IF NOT EXISTS collection_participants (
		id BIGSERIAL PRIMARY KEY,
		collection_id UUID NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		user_id BIGINT NOT NULL REFERENCES users(telegram_id) ON DELETE CASCADE,
		status VARCHAR(32) NOT NULL DEFAULT 'pending',
		amount_to_pay NUMERIC(18, 2) NOT NULL DEFAULT 0,
		UNIQUE(collection_id, user_id)
	)`,

	`CREATE INDEX IF NOT EXISTS idx_user_configs_user_id ON user_configs(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_collection_participants_user_id ON collection_participants(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_collections_status ON collections(status)`,

	// At most one collection may be open at a time
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_collections_single_active ON collections ((true))
		WHERE status IN ('pending', 'awaiting_confirmation', 'awaiting_payment')`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
