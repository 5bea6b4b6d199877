package app

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/metrics"
	"github.com/vitaspro/storefront/internal/remote"
	"github.com/vitaspro/storefront/internal/settings"
	"gorm.io/gorm"
)

// DBProvider provides database access
type DBProvider interface {
	DB() *gorm.DB
}

// ConfigProvider provides application configuration
type ConfigProvider interface {
	Config() *config.AppConfig
}

// SettingsProvider provides the runtime drive settings
type SettingsProvider interface {
	Settings() *settings.Store
}

// SchedulerProvider provides task scheduling capability
type SchedulerProvider interface {
	Scheduler() *cron.Cron
}

// CatalogProvider provides the product facade and the storefront snapshot
type CatalogProvider interface {
	Catalog() *catalog.Service
	Snapshots() *catalog.Cache
}

// ImageUploader stores product images next to the document.
type ImageUploader interface {
	UploadImage(ctx context.Context, img remote.ImageUpload) (remote.ImageResult, error)
	UploadImages(ctx context.Context, imgs []remote.ImageUpload) ([]string, error)
}

// ImageProvider provides image upload
type ImageProvider interface {
	Images() ImageUploader
}

// SyncProvider exposes the health of the remote store
type SyncProvider interface {
	Metrics() *metrics.Store
	BreakerStates() map[string]string
	RefreshNow(ctx context.Context) (catalog.Snapshot, error)
}

// AppContext combines all provider interfaces for full application context
// Services should depend on specific providers or this combined interface
type AppContext interface {
	DBProvider
	ConfigProvider
	SettingsProvider
	SchedulerProvider
	CatalogProvider
	ImageProvider
	SyncProvider

	// Application lifecycle methods
	MigrateDB(track bool) error
	InitDb()
	DropAll()
	// RunBackupNow writes a backup of the products document immediately
	RunBackupNow(ctx context.Context) (string, error)
}
