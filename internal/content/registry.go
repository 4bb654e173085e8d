package content

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"

	"github.com/jchantrell/nxpkg/internal/cache"
	"github.com/jchantrell/nxpkg/internal/storage"
)

// RegistryOptions configures a Registry
type RegistryOptions struct {
	// Backend receives exported icons and control blocks. Nothing is exported
	// when it is nil.
	Backend storage.Backend

	// Cache builds the export paths
	Cache *cache.Cache

	// Languages are tried first when picking a display name from a control block
	Languages []Language

	// Clock is the time source for play statistics
	Clock clock.Clock
}

// Registry is the set of installed applications. It is rebuilt from the platform
// whenever NotifyChanged is called.
type Registry struct {
	platform  Platform
	backend   storage.Backend
	cache     *cache.Cache
	languages []Language
	clock     clock.Clock

	apps        []*Application
	initialized bool
}

// NewRegistry creates an empty registry. Call Initialize to populate it.
func NewRegistry(platform Platform, options *RegistryOptions) *Registry {
	if options == nil {
		options = &RegistryOptions{}
	}

	r := &Registry{
		platform:  platform,
		backend:   options.Backend,
		cache:     options.Cache,
		languages: options.Languages,
		clock:     options.Clock,
	}
	if r.cache == nil {
		r.cache = cache.New("")
	}
	if r.clock == nil {
		r.clock = clock.New()
	}
	return r
}

// Initialize builds the registry from scratch
func (r *Registry) Initialize(ctx context.Context) error {
	apps, err := r.build(ctx)
	if err != nil {
		return err
	}
	r.apps = apps
	r.initialized = true

	slog.Debug("Application registry built", "application_count", len(apps))
	return nil
}

// Finalize drops every application record
func (r *Registry) Finalize() {
	r.apps = nil
	r.initialized = false
}

// NotifyChanged rebuilds the registry after content was installed or removed.
// The previous state is kept if the rebuild fails.
func (r *Registry) NotifyChanged(ctx context.Context) error {
	slog.Debug("Application library changed, rebuilding registry")
	return r.Initialize(ctx)
}

// Initialized reports whether the registry has been built
func (r *Registry) Initialized() bool {
	return r.initialized
}

// Applications returns the installed applications in platform order
func (r *Registry) Applications() []*Application {
	apps := make([]*Application, len(r.apps))
	copy(apps, r.apps)
	return apps
}

// Lookup returns the application with the given base id
func (r *Registry) Lookup(appID uint64) (*Application, bool) {
	for _, app := range r.apps {
		if app.ID() == appID {
			return app, true
		}
	}
	return nil, false
}

// FindByContent returns the application that has the content-meta entry
// (programID, kind) installed
func (r *Registry) FindByContent(programID uint64, kind ContentMetaType) (*Application, bool) {
	baseID := BaseApplicationID(programID, kind)
	for _, app := range r.apps {
		if app.ID() == baseID && app.HasContent(programID, kind) {
			return app, true
		}
	}
	return nil, false
}

// FindByAnyContent returns the application with base id appID if anything is
// installed under it
func (r *Registry) FindByAnyContent(appID uint64) (*Application, bool) {
	for _, app := range r.apps {
		if app.ID() == appID && len(app.MetaStatus) > 0 {
			return app, true
		}
	}
	return nil, false
}

// RemoveApplication drops the application record with the given base id
func (r *Registry) RemoveApplication(appID uint64) {
	for i, app := range r.apps {
		if app.ID() == appID {
			r.apps = append(r.apps[:i], r.apps[i+1:]...)
			slog.Debug("Removed application", "id", FormatID(appID))
			return
		}
	}
}

// RemoveContent drops one content-meta entry from app. The application itself
// stays registered even when this leaves it empty.
func (r *Registry) RemoveContent(app *Application, idx int) {
	if idx < 0 || idx >= len(app.MetaStatus) || idx >= len(app.Contents) {
		return
	}
	app.MetaStatus = append(app.MetaStatus[:idx], app.MetaStatus[idx+1:]...)
	app.Contents = append(app.Contents[:idx], app.Contents[idx+1:]...)
	app.updateVersionBounds()
}

// UpdateVersion recomputes the installed version bounds of app and refreshes
// its launch-required version from the platform
func (r *Registry) UpdateVersion(ctx context.Context, app *Application) error {
	app.updateVersionBounds()

	v, err := r.platform.GetLaunchRequiredVersion(ctx, app.ID())
	if err != nil {
		return fmt.Errorf("querying launch required version of %s: %w", FormatID(app.ID()), err)
	}
	app.LaunchRequiredVersion = v
	return nil
}

// GlobalPlayStats computes play statistics across all users
func (r *Registry) GlobalPlayStats(ctx context.Context, app *Application) (PlayStats, error) {
	return r.playStats(ctx, app, nil)
}

// UserPlayStats computes play statistics for one user
func (r *Registry) UserPlayStats(ctx context.Context, app *Application, user UserID) (PlayStats, error) {
	return r.playStats(ctx, app, &user)
}

func (r *Registry) playStats(ctx context.Context, app *Application, user *UserID) (PlayStats, error) {
	raw, err := r.platform.GetPlayStatistics(ctx, app.ID(), user)
	if err != nil {
		return PlayStats{}, fmt.Errorf("querying play statistics of %s: %w", FormatID(app.ID()), err)
	}

	now := r.clock.Now()
	return PlayStats{
		TotalPlaySecs:         secs(raw.TotalPlayTime),
		SecsFromLastLaunched:  secsSince(now, raw.LastLaunched),
		SecsFromFirstLaunched: secsSince(now, raw.FirstLaunched),
	}, nil
}

func secs(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d / time.Second)
}

func secsSince(now, t time.Time) uint64 {
	if t.IsZero() {
		return 0
	}
	return secs(now.Sub(t))
}

// ExportedIconPath returns where the icon of appID is exported
func (r *Registry) ExportedIconPath(appID uint64) string {
	return r.cache.ApplicationIconPath(appID)
}

// ExportedNacpPath returns where the control block of appID is exported
func (r *Registry) ExportedNacpPath(appID uint64) string {
	return r.cache.ApplicationNacpPath(appID)
}

func (r *Registry) build(ctx context.Context) ([]*Application, error) {
	records, err := r.platform.ListApplicationRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing application records: %w", err)
	}

	if r.backend != nil {
		if err := r.cache.EnsureDir(r.backend); err != nil {
			return nil, fmt.Errorf("creating export cache: %w", err)
		}
	}

	apps := make([]*Application, 0, len(records))
	byID := make(map[uint64]*Application, len(records))
	for _, record := range records {
		if _, dup := byID[record.ID]; dup {
			slog.Warn("Duplicate application record", "id", FormatID(record.ID))
			continue
		}

		app, err := r.loadApplication(ctx, record)
		if err != nil {
			return nil, fmt.Errorf("loading application %s: %w", FormatID(record.ID), err)
		}
		apps = append(apps, app)
		byID[record.ID] = app
	}

	if err := r.attachDiscoveredContent(ctx, byID); err != nil {
		return nil, err
	}

	return apps, nil
}

func (r *Registry) loadApplication(ctx context.Context, record ApplicationRecord) (*Application, error) {
	app := &Application{Record: record}

	view, err := r.platform.GetApplicationView(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("getting view: %w", err)
	}
	app.View = view

	statuses, err := r.platform.ListContentMetaStatus(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("listing content meta status: %w", err)
	}
	for _, status := range statuses {
		if base := BaseApplicationID(status.ID, status.Type); base != record.ID {
			slog.Warn("Content meta status does not belong to application",
				"id", FormatID(record.ID),
				"content_id", FormatID(status.ID),
				"type", status.Type.String(),
				"base_id", FormatID(base))
			continue
		}
		if app.hasStatus(status) {
			continue
		}
		if err := r.addContent(ctx, app, status); err != nil {
			return nil, err
		}
	}

	app.OccupiedSize, err = r.platform.GetOccupiedSize(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("getting occupied size: %w", err)
	}

	app.Metadata, err = r.platform.GetMetadata(ctx, record.ID)
	if err != nil {
		return nil, fmt.Errorf("getting metadata: %w", err)
	}

	var nacp *Nacp
	if len(app.Metadata.Nacp) > 0 {
		nacp, err = ParseNacp(app.Metadata.Nacp)
		if err != nil {
			slog.Warn("Invalid control block", "id", FormatID(record.ID), "error", err)
			nacp = nil
		}
	}
	if !IsNacpEmpty(nacp) {
		app.Misc = nacp.Misc()
	}

	if err := r.UpdateVersion(ctx, app); err != nil {
		return nil, err
	}

	r.fillCache(app, nacp)
	return app, nil
}

// attachDiscoveredContent adds patches and add-on content found on the install
// storages to the application they belong to
func (r *Registry) attachDiscoveredContent(ctx context.Context, byID map[uint64]*Application) error {
	for _, storageID := range InstallStorages {
		keys, err := r.platform.ListContentMetaKeys(ctx, storageID)
		if err != nil {
			return fmt.Errorf("listing content meta keys on %s: %w", storageID, err)
		}

		for _, key := range keys {
			baseID := BaseApplicationID(key.ID, key.Type)
			app, ok := byID[baseID]
			if !ok {
				slog.Debug("Content without installed application",
					"content_id", FormatID(key.ID),
					"type", key.Type.String(),
					"storage", storageID.String())
				continue
			}

			status := ContentMetaStatus{
				ID:        key.ID,
				Version:   key.Version,
				Type:      key.Type,
				StorageID: storageID,
			}
			if app.hasStatus(status) {
				continue
			}

			if err := r.addContent(ctx, app, status); err != nil {
				return fmt.Errorf("loading content of %s: %w", FormatID(baseID), err)
			}
			app.updateVersionBounds()
			slog.Debug("Attached content",
				"id", FormatID(baseID),
				"content_id", FormatID(key.ID),
				"type", key.Type.String())
		}
	}
	return nil
}

func (r *Registry) addContent(ctx context.Context, app *Application, status ContentMetaStatus) error {
	infos, err := r.platform.ListContentIDs(ctx, status.Key(), status.StorageID)
	if err != nil {
		return fmt.Errorf("listing contents of %s: %w", FormatID(status.ID), err)
	}

	content := ApplicationContent{MetaKey: status.Key()}
	for _, info := range infos {
		if int(info.Type) >= MaxContentCount {
			slog.Debug("Skipping unknown content type", "content_id", FormatID(status.ID), "type", info.Type.String())
			continue
		}
		if content.ContentIDs[info.Type] != nil {
			continue
		}
		id := info.ID
		content.ContentIDs[info.Type] = &id
	}

	app.MetaStatus = append(app.MetaStatus, status)
	app.Contents = append(app.Contents, content)
	return nil
}

func (r *Registry) fillCache(app *Application, nacp *Nacp) {
	c := &app.Cache

	c.DisplayName = app.Metadata.Name
	if c.DisplayName == "" {
		c.DisplayName = FindNacpName(nacp, r.languages...)
	}
	if c.DisplayName == "" {
		c.DisplayName = FormatID(app.ID())
	}

	c.DisplayAuthor = app.Metadata.Publisher
	if c.DisplayAuthor == "" {
		c.DisplayAuthor = FindNacpAuthor(nacp, r.languages...)
	}

	c.RecordLastEvent = app.Record.LastEvent.String()
	c.ViewFlags = app.View.FlagNames()
	c.IconPath = ""

	if r.backend == nil {
		return
	}

	if app.HasIcon() {
		iconPath := r.ExportedIconPath(app.ID())
		if err := r.cache.Export(r.backend, iconPath, app.Metadata.Icon); err != nil {
			slog.Warn("Failed to export icon", "id", FormatID(app.ID()), "error", err)
		} else {
			c.IconPath = iconPath
		}
	}
	if !IsNacpEmpty(nacp) {
		if err := r.cache.Export(r.backend, r.ExportedNacpPath(app.ID()), app.Metadata.Nacp); err != nil {
			slog.Warn("Failed to export control block", "id", FormatID(app.ID()), "error", err)
		}
	}
}
