package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/jchantrell/nxpkg/internal/cache"
	"github.com/jchantrell/nxpkg/internal/catalog"
	"github.com/jchantrell/nxpkg/internal/content"
	"github.com/jchantrell/nxpkg/internal/storage"
)

// openMounts mounts every configured partition on its host directory
func openMounts() (*storage.Mounts, error) {
	mounts := storage.NewMounts(cfg.WorkBufferSize)
	for p, root := range cfg.StorageRoots() {
		backend, err := storage.NewOSBackend(p.Prefix(), root)
		if err != nil {
			return nil, fmt.Errorf("mounting %s at %s: %w", p, root, err)
		}
		mounts.Mount(p, backend)
		slog.Debug("Mounted partition", "partition", p.Prefix(), "root", root)
	}
	return mounts, nil
}

// library bundles what the application commands work on
type library struct {
	mounts   *storage.Mounts
	catalog  *catalog.Catalog
	registry *content.Registry
}

func (l *library) Close() error {
	l.registry.Finalize()
	return l.catalog.Close()
}

// openLibrary opens the catalog and builds the application registry from it.
// Icons and control blocks are exported to the SD card when it is mounted.
func openLibrary(ctx context.Context) (*library, error) {
	mounts, err := openMounts()
	if err != nil {
		return nil, err
	}

	cat, err := catalog.Open(ctx, cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	options := &content.RegistryOptions{
		Cache:     cache.New(cfg.CacheRoot),
		Languages: cfg.PreferredLanguages(),
	}
	if sd, ok := mounts.Backend(storage.PartitionSdCard); ok {
		options.Backend = sd
	}

	registry := content.NewRegistry(cat, options)
	if err := registry.Initialize(ctx); err != nil {
		cat.Close()
		return nil, fmt.Errorf("building application registry: %w", err)
	}

	return &library{mounts: mounts, catalog: cat, registry: registry}, nil
}

// lookupApplication parses a hexadecimal id and finds its application
func (l *library) lookupApplication(arg string) (*content.Application, error) {
	id, err := content.ParseID(arg)
	if err != nil {
		return nil, err
	}

	app, ok := l.registry.Lookup(id)
	if !ok {
		return nil, fmt.Errorf("application %s is not installed", content.FormatID(id))
	}
	return app, nil
}

// removeContent drops one content-meta entry from the catalog and the registry.
// Removing the last entry removes the application too.
func (l *library) removeContent(ctx context.Context, app *content.Application, idx int) error {
	status := app.MetaStatus[idx]
	if err := l.catalog.DeleteContentMeta(ctx, status); err != nil {
		return err
	}
	l.registry.RemoveContent(app, idx)

	slog.Info("Removed content",
		"id", content.FormatID(app.ID()),
		"content_id", content.FormatID(status.ID),
		"type", status.Type.String(),
		"remaining", len(app.MetaStatus))

	if len(app.MetaStatus) == 0 {
		return l.removeApplication(ctx, app.ID())
	}
	return nil
}

// removeApplication deletes an application from the catalog and the registry
// along with its exported icon and control block
func (l *library) removeApplication(ctx context.Context, id uint64) error {
	if err := l.catalog.DeleteApplication(ctx, id); err != nil {
		return err
	}
	l.registry.RemoveApplication(id)

	if sd, ok := l.mounts.Backend(storage.PartitionSdCard); ok {
		for _, p := range []string{l.registry.ExportedIconPath(id), l.registry.ExportedNacpPath(id)} {
			if err := sd.DeleteFile(p); err != nil {
				slog.Warn("Failed to remove exported file", "path", p, "error", err)
			}
		}
	}

	slog.Info("Removed application", "id", content.FormatID(id))
	return nil
}

// readPrefixedFile reads a whole file from a mounted partition
func readPrefixedFile(mounts *storage.Mounts, full string) ([]byte, error) {
	backend, inner, err := mounts.Resolve(full)
	if err != nil {
		return nil, err
	}
	if !backend.IsFile(inner) {
		return nil, fmt.Errorf("%s is not a file", full)
	}

	data := make([]byte, backend.FileSize(inner))
	n, err := backend.ReadFile(inner, 0, data)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", full, err)
	}
	return data[:n], nil
}

// putProgram records the --program content piece of a content-meta entry
func putProgram(ctx context.Context, cat *catalog.Catalog, status content.ContentMetaStatus) error {
	if appsProgramID == "" {
		return nil
	}

	raw, err := hex.DecodeString(appsProgramID)
	var info content.ContentInfo
	if err != nil || len(raw) != len(info.ID) {
		return fmt.Errorf("invalid program content id %q: expected %d hex bytes", appsProgramID, len(info.ID))
	}
	copy(info.ID[:], raw)
	info.Type = content.ContentTypeProgram

	return cat.PutContent(ctx, status.Key(), status.StorageID, info)
}
