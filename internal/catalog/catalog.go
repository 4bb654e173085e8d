package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jchantrell/nxpkg/internal/content"
)

// Catalog answers platform queries from the catalog database
type Catalog struct {
	db *database
}

var _ content.Platform = (*Catalog)(nil)

// Open opens the catalog at path, creating the schema when needed
func Open(ctx context.Context, path string) (*Catalog, error) {
	db, err := openDatabase(ctx, path)
	if err != nil {
		return nil, err
	}
	return &Catalog{db: db}, nil
}

// Close closes the underlying database
func (c *Catalog) Close() error {
	return c.db.close()
}

// SQLite integers are signed; ids are stored bit-for-bit
func sqlID(id uint64) int64 { return int64(id) }

func (c *Catalog) ListApplicationRecords(ctx context.Context) ([]content.ApplicationRecord, error) {
	rows, err := c.db.query(ctx, `SELECT id, last_event, last_updated FROM applications ORDER BY last_updated DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("querying application records: %w", err)
	}
	defer rows.Close()

	var records []content.ApplicationRecord
	for rows.Next() {
		var id, updated int64
		var event uint8
		if err := rows.Scan(&id, &event, &updated); err != nil {
			return nil, fmt.Errorf("scanning application record: %w", err)
		}
		records = append(records, content.ApplicationRecord{
			ID:          uint64(id),
			LastEvent:   content.RecordEvent(event),
			LastUpdated: uint64(updated),
		})
	}
	return records, rows.Err()
}

func (c *Catalog) GetApplicationView(ctx context.Context, appID uint64) (content.ApplicationView, error) {
	var flags uint32
	err := c.db.queryRow(ctx, `SELECT view_flags FROM applications WHERE id = ?`, sqlID(appID)).Scan(&flags)
	if errors.Is(err, sql.ErrNoRows) {
		return content.ApplicationView{ID: appID}, nil
	}
	if err != nil {
		return content.ApplicationView{}, fmt.Errorf("querying application view: %w", err)
	}
	return content.ApplicationView{ID: appID, Flags: content.ViewFlag(flags)}, nil
}

func (c *Catalog) ListContentMetaStatus(ctx context.Context, appID uint64) ([]content.ContentMetaStatus, error) {
	rows, err := c.db.query(ctx, `
		SELECT id, version, type, storage_id FROM content_metas
		WHERE application_id = ? AND recorded = 1
		ORDER BY type, id, storage_id`, sqlID(appID))
	if err != nil {
		return nil, fmt.Errorf("querying content meta status: %w", err)
	}
	defer rows.Close()

	var statuses []content.ContentMetaStatus
	for rows.Next() {
		var id int64
		var s content.ContentMetaStatus
		if err := rows.Scan(&id, &s.Version, &s.Type, &s.StorageID); err != nil {
			return nil, fmt.Errorf("scanning content meta status: %w", err)
		}
		s.ID = uint64(id)
		statuses = append(statuses, s)
	}
	return statuses, rows.Err()
}

func (c *Catalog) ListContentMetaKeys(ctx context.Context, storage content.StorageID) ([]content.ContentMetaKey, error) {
	rows, err := c.db.query(ctx, `
		SELECT id, version, type FROM content_metas
		WHERE storage_id = ?
		ORDER BY type, id`, uint8(storage))
	if err != nil {
		return nil, fmt.Errorf("querying content meta keys: %w", err)
	}
	defer rows.Close()

	var keys []content.ContentMetaKey
	for rows.Next() {
		var id int64
		var k content.ContentMetaKey
		if err := rows.Scan(&id, &k.Version, &k.Type); err != nil {
			return nil, fmt.Errorf("scanning content meta key: %w", err)
		}
		k.ID = uint64(id)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (c *Catalog) ListContentIDs(ctx context.Context, key content.ContentMetaKey, storage content.StorageID) ([]content.ContentInfo, error) {
	rows, err := c.db.query(ctx, `
		SELECT content_type, content_id FROM contents
		WHERE meta_id = ? AND meta_type = ? AND storage_id = ?
		ORDER BY content_type`, sqlID(key.ID), uint8(key.Type), uint8(storage))
	if err != nil {
		return nil, fmt.Errorf("querying content ids: %w", err)
	}
	defer rows.Close()

	var infos []content.ContentInfo
	for rows.Next() {
		var info content.ContentInfo
		var raw []byte
		if err := rows.Scan(&info.Type, &raw); err != nil {
			return nil, fmt.Errorf("scanning content id: %w", err)
		}
		if len(raw) != len(info.ID) {
			return nil, fmt.Errorf("content id of %s has %d bytes", content.FormatID(key.ID), len(raw))
		}
		copy(info.ID[:], raw)
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

func (c *Catalog) GetMetadata(ctx context.Context, appID uint64) (content.Metadata, error) {
	var m content.Metadata
	err := c.db.queryRow(ctx, `SELECT name, publisher, icon, nacp FROM metadata WHERE application_id = ?`, sqlID(appID)).
		Scan(&m.Name, &m.Publisher, &m.Icon, &m.Nacp)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Metadata{}, nil
	}
	if err != nil {
		return content.Metadata{}, fmt.Errorf("querying metadata: %w", err)
	}
	return m, nil
}

func (c *Catalog) GetOccupiedSize(ctx context.Context, appID uint64) (content.OccupiedSize, error) {
	rows, err := c.db.query(ctx, `
		SELECT storage_id, app_size, patch_size, add_on_content_size FROM occupied_sizes
		WHERE application_id = ?
		ORDER BY storage_id`, sqlID(appID))
	if err != nil {
		return content.OccupiedSize{}, fmt.Errorf("querying occupied size: %w", err)
	}
	defer rows.Close()

	var size content.OccupiedSize
	for rows.Next() {
		var s content.StorageOccupiedSize
		var app, patch, aoc int64
		if err := rows.Scan(&s.StorageID, &app, &patch, &aoc); err != nil {
			return content.OccupiedSize{}, fmt.Errorf("scanning occupied size: %w", err)
		}
		s.AppSize, s.PatchSize, s.AddOnContentSize = uint64(app), uint64(patch), uint64(aoc)
		size.Storages = append(size.Storages, s)
	}
	return size, rows.Err()
}

func (c *Catalog) GetPlayStatistics(ctx context.Context, appID uint64, user *content.UserID) (content.PlayStatistics, error) {
	query := `SELECT COALESCE(SUM(duration_secs), 0), MIN(launched_at), MAX(launched_at)
		FROM play_events WHERE application_id = ?`
	args := []interface{}{sqlID(appID)}
	if user != nil {
		query += ` AND user_id = ?`
		args = append(args, user[:])
	}

	var total int64
	var first, last sql.NullInt64
	if err := c.db.queryRow(ctx, query, args...).Scan(&total, &first, &last); err != nil {
		return content.PlayStatistics{}, fmt.Errorf("querying play statistics: %w", err)
	}

	stats := content.PlayStatistics{TotalPlayTime: time.Duration(total) * time.Second}
	if first.Valid {
		stats.FirstLaunched = time.Unix(first.Int64, 0)
	}
	if last.Valid {
		stats.LastLaunched = time.Unix(last.Int64, 0)
	}
	return stats, nil
}

func (c *Catalog) GetLaunchRequiredVersion(ctx context.Context, appID uint64) (uint32, error) {
	var version uint32
	err := c.db.queryRow(ctx, `SELECT launch_required_version FROM applications WHERE id = ?`, sqlID(appID)).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("querying launch required version: %w", err)
	}
	return version, nil
}
