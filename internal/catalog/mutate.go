package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jchantrell/nxpkg/internal/content"
)

// ApplicationEntry is one row of the applications table
type ApplicationEntry struct {
	Record                content.ApplicationRecord
	Flags                 content.ViewFlag
	LaunchRequiredVersion uint32
}

// PutApplication inserts or replaces an application record
func (c *Catalog) PutApplication(ctx context.Context, entry ApplicationEntry) error {
	_, err := c.db.exec(ctx, `
		INSERT INTO applications (id, last_event, last_updated, view_flags, launch_required_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			last_event = excluded.last_event,
			last_updated = excluded.last_updated,
			view_flags = excluded.view_flags,
			launch_required_version = excluded.launch_required_version`,
		sqlID(entry.Record.ID),
		uint8(entry.Record.LastEvent),
		int64(entry.Record.LastUpdated),
		uint32(entry.Flags),
		entry.LaunchRequiredVersion,
	)
	if err != nil {
		return fmt.Errorf("storing application %s: %w", content.FormatID(entry.Record.ID), err)
	}
	return nil
}

// PutContentMeta inserts or replaces an installed content-meta entry. Entries
// that are not recorded are only visible through ListContentMetaKeys.
func (c *Catalog) PutContentMeta(ctx context.Context, status content.ContentMetaStatus, recorded bool) error {
	_, err := c.db.exec(ctx, `
		INSERT INTO content_metas (id, type, storage_id, version, application_id, recorded)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id, type, storage_id) DO UPDATE SET
			version = excluded.version,
			application_id = excluded.application_id,
			recorded = excluded.recorded`,
		sqlID(status.ID),
		uint8(status.Type),
		uint8(status.StorageID),
		status.Version,
		sqlID(content.BaseApplicationID(status.ID, status.Type)),
		recorded,
	)
	if err != nil {
		return fmt.Errorf("storing content meta %s: %w", content.FormatID(status.ID), err)
	}
	return nil
}

// PutContent stores the content pieces of an installed content-meta entry,
// replacing any previous pieces in the same slots
func (c *Catalog) PutContent(ctx context.Context, key content.ContentMetaKey, storage content.StorageID, infos ...content.ContentInfo) error {
	tx, err := c.db.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO contents (meta_id, meta_type, storage_id, content_type, content_id)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing content insert: %w", err)
	}
	defer stmt.Close()

	for _, info := range infos {
		if _, err := stmt.ExecContext(ctx, sqlID(key.ID), uint8(key.Type), uint8(storage), uint8(info.Type), info.ID[:]); err != nil {
			return fmt.Errorf("storing content %s of %s: %w", info.ID, content.FormatID(key.ID), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing contents: %w", err)
	}
	return nil
}

// PutMetadata inserts or replaces the display metadata of an application
func (c *Catalog) PutMetadata(ctx context.Context, appID uint64, m content.Metadata) error {
	_, err := c.db.exec(ctx, `
		INSERT OR REPLACE INTO metadata (application_id, name, publisher, icon, nacp)
		VALUES (?, ?, ?, ?, ?)`,
		sqlID(appID), m.Name, m.Publisher, m.Icon, m.Nacp,
	)
	if err != nil {
		return fmt.Errorf("storing metadata of %s: %w", content.FormatID(appID), err)
	}
	return nil
}

// PutOccupiedSize inserts or replaces the space an application uses on one storage
func (c *Catalog) PutOccupiedSize(ctx context.Context, appID uint64, size content.StorageOccupiedSize) error {
	_, err := c.db.exec(ctx, `
		INSERT OR REPLACE INTO occupied_sizes (application_id, storage_id, app_size, patch_size, add_on_content_size)
		VALUES (?, ?, ?, ?, ?)`,
		sqlID(appID),
		uint8(size.StorageID),
		int64(size.AppSize),
		int64(size.PatchSize),
		int64(size.AddOnContentSize),
	)
	if err != nil {
		return fmt.Errorf("storing occupied size of %s: %w", content.FormatID(appID), err)
	}
	return nil
}

// RecordPlayEvent appends one play session. A nil user records a session not
// tied to an account.
func (c *Catalog) RecordPlayEvent(ctx context.Context, appID uint64, user *content.UserID, launchedAt time.Time, played time.Duration) error {
	var userID []byte
	if user != nil {
		userID = user[:]
	}

	_, err := c.db.exec(ctx, `
		INSERT INTO play_events (application_id, user_id, launched_at, duration_secs)
		VALUES (?, ?, ?, ?)`,
		sqlID(appID), userID, launchedAt.Unix(), int64(played/time.Second),
	)
	if err != nil {
		return fmt.Errorf("recording play event of %s: %w", content.FormatID(appID), err)
	}
	return nil
}

// DeleteApplication removes an application together with everything installed
// under it
func (c *Catalog) DeleteApplication(ctx context.Context, appID uint64) error {
	tx, err := c.db.begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	id := sqlID(appID)
	statements := []string{
		`DELETE FROM content_metas WHERE application_id = ?`,
		`DELETE FROM play_events WHERE application_id = ?`,
		`DELETE FROM applications WHERE id = ?`,
	}
	var removed int64
	for _, stmt := range statements {
		result, err := tx.ExecContext(ctx, stmt, id)
		if err != nil {
			return fmt.Errorf("deleting application %s: %w", content.FormatID(appID), err)
		}
		removed += rowsAffected(result)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing application delete: %w", err)
	}

	slog.Debug("Deleted application from catalog", "id", content.FormatID(appID), "rows", removed)
	return nil
}

// DeleteContentMeta removes one installed content-meta entry and its pieces
func (c *Catalog) DeleteContentMeta(ctx context.Context, status content.ContentMetaStatus) error {
	_, err := c.db.exec(ctx, `DELETE FROM content_metas WHERE id = ? AND type = ? AND storage_id = ?`,
		sqlID(status.ID), uint8(status.Type), uint8(status.StorageID))
	if err != nil {
		return fmt.Errorf("deleting content meta %s: %w", content.FormatID(status.ID), err)
	}
	return nil
}

func rowsAffected(result sql.Result) int64 {
	n, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
