package database

import (
	"context"
	"fmt"
)

var migrations = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp"`,

	`CREATE TABLE IF NOT EXISTS users (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		email VARCHAR(255) UNIQUE NOT NULL,
		name VARCHAR(255) NOT NULL,
		avatar_url VARCHAR(500),
		provider VARCHAR(50) NOT NULL,
		provider_id VARCHAR(255) NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		UNIQUE(provider, provider_id)
	)`,

	`CREATE TABLE IF NOT EXISTS refresh_tokens (
		id UUID PRIMARY KEY DEFAULT uuid_generate_v4(),
		user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		token_hash VARCHAR(255) NOT NULL UNIQUE,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_refresh_tokens_user_id ON refresh_tokens(user_id)`,

	`CREATE TABLE IF NOT EXISTS communities (
		id VARCHAR(100) PRIMARY KEY,
		owner_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		curation_policy TEXT NOT NULL DEFAULT '',
		page TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_communities_owner_id ON communities(owner_id)`,
	`CREATE INDEX IF NOT EXISTS idx_communities_title ON communities(title)`,

	// Shared moderation cache; rows past expires_at are treated as absent.
	`CREATE TABLE IF NOT EXISTS cache_entries (
		key VARCHAR(255) PRIMARY KEY,
		value TEXT NOT NULL,
		expires_at TIMESTAMP WITH TIME ZONE NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_cache_entries_expires_at ON cache_entries(expires_at)`,

	// Field table of the record index. Owned by the index in production
	// deployments; created here so a single database works for development.
	`CREATE TABLE IF NOT EXISTS record_fields (
		recid INTEGER NOT NULL,
		tag VARCHAR(6) NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_record_fields_tag_value ON record_fields(tag, value)`,
	`CREATE INDEX IF NOT EXISTS idx_record_fields_recid_tag ON record_fields(recid, tag)`,
}

func (db *DB) Migrate(ctx context.Context) error {
	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
