package catalog

import (
	"context"
	"fmt"
	"log/slog"
)

var schemaDDL = []string{
	`CREATE TABLE IF NOT EXISTS applications (
		id INTEGER PRIMARY KEY,
		last_event INTEGER NOT NULL DEFAULT 0,
		last_updated INTEGER NOT NULL DEFAULT 0,
		view_flags INTEGER NOT NULL DEFAULT 0,
		launch_required_version INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS content_metas (
		id INTEGER NOT NULL,
		type INTEGER NOT NULL,
		storage_id INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		application_id INTEGER NOT NULL,
		recorded INTEGER NOT NULL DEFAULT 1,
		PRIMARY KEY (id, type, storage_id)
	)`,
	`CREATE INDEX IF NOT EXISTS content_metas_application ON content_metas (application_id)`,
	`CREATE TABLE IF NOT EXISTS contents (
		meta_id INTEGER NOT NULL,
		meta_type INTEGER NOT NULL,
		storage_id INTEGER NOT NULL,
		content_type INTEGER NOT NULL,
		content_id BLOB NOT NULL,
		PRIMARY KEY (meta_id, meta_type, storage_id, content_type),
		FOREIGN KEY (meta_id, meta_type, storage_id)
			REFERENCES content_metas (id, type, storage_id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS metadata (
		application_id INTEGER PRIMARY KEY REFERENCES applications (id) ON DELETE CASCADE,
		name TEXT NOT NULL DEFAULT '',
		publisher TEXT NOT NULL DEFAULT '',
		icon BLOB,
		nacp BLOB
	)`,
	`CREATE TABLE IF NOT EXISTS occupied_sizes (
		application_id INTEGER NOT NULL REFERENCES applications (id) ON DELETE CASCADE,
		storage_id INTEGER NOT NULL,
		app_size INTEGER NOT NULL DEFAULT 0,
		patch_size INTEGER NOT NULL DEFAULT 0,
		add_on_content_size INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (application_id, storage_id)
	)`,
	`CREATE TABLE IF NOT EXISTS play_events (
		application_id INTEGER NOT NULL,
		user_id BLOB,
		launched_at INTEGER NOT NULL,
		duration_secs INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS play_events_application ON play_events (application_id)`,
}

// createSchema creates every catalog table that does not exist yet
func (d *database) createSchema(ctx context.Context) error {
	tx, err := d.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for i, ddl := range schemaDDL {
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("executing schema statement %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing schema: %w", err)
	}

	slog.Debug("Catalog schema ready", "path", d.path, "statements", len(schemaDDL))
	return nil
}
