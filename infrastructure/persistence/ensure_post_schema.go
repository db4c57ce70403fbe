package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"post-planner/infrastructure/logger"
)

// EnsurePostSchema creates the planned_posts table and its indexes if missing.
// Safe to call at every startup.
func EnsurePostSchema(db *sql.DB) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ddl := `CREATE TABLE IF NOT EXISTS planned_posts (
        id TEXT PRIMARY KEY,
        owner_origin TEXT NOT NULL,
        owner_account_id TEXT,
        scheduled_at TIMESTAMPTZ NOT NULL,
        text TEXT NOT NULL,
        visibility TEXT NOT NULL,
        status TEXT NOT NULL,
        attempts INTEGER NOT NULL DEFAULT 0,
        last_error TEXT,
        sent_at TIMESTAMPTZ,
        remote_id TEXT,
        created_at TIMESTAMPTZ NOT NULL,
        updated_at TIMESTAMPTZ NOT NULL
    )`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create planned_posts table: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_planned_posts_status_scheduled_at ON planned_posts(status, scheduled_at)`); err != nil {
		logger.GetLogger().WithField("error", err).Warn("failed creating idx_planned_posts_status_scheduled_at")
	}
	if _, err := db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_planned_posts_owner ON planned_posts(owner_origin, owner_account_id, scheduled_at)`); err != nil {
		logger.GetLogger().WithField("error", err).Warn("failed creating idx_planned_posts_owner")
	}
	return nil
}
