package content

import (
	"context"
	"time"
)

// UserID identifies a console user account
type UserID [16]byte

// PlayStatistics is the raw accounting data the platform keeps for an application
type PlayStatistics struct {
	TotalPlayTime time.Duration
	FirstLaunched time.Time
	LastLaunched  time.Time
}

// Platform is the set of platform services the registry is built from.
// Lookups of things that don't exist return zero values, not errors.
type Platform interface {
	ListApplicationRecords(ctx context.Context) ([]ApplicationRecord, error)
	GetApplicationView(ctx context.Context, appID uint64) (ApplicationView, error)
	ListContentMetaStatus(ctx context.Context, appID uint64) ([]ContentMetaStatus, error)
	ListContentMetaKeys(ctx context.Context, storage StorageID) ([]ContentMetaKey, error)
	ListContentIDs(ctx context.Context, key ContentMetaKey, storage StorageID) ([]ContentInfo, error)
	GetMetadata(ctx context.Context, appID uint64) (Metadata, error)
	GetOccupiedSize(ctx context.Context, appID uint64) (OccupiedSize, error)
	// GetPlayStatistics returns global statistics when user is nil
	GetPlayStatistics(ctx context.Context, appID uint64, user *UserID) (PlayStatistics, error)
	GetLaunchRequiredVersion(ctx context.Context, appID uint64) (uint32, error)
}
