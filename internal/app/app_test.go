package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
)

func newDatabaseApp(t *testing.T) *Application {
	t.Helper()
	cfg := config.DefaultAppConfig()
	cfg.System.Workdir = t.TempDir()
	cfg.Storage.Backend = config.BackendDatabase
	cfg.Catalog.RefreshDelay = time.Millisecond
	require.NoError(t, os.MkdirAll(cfg.GetDataDir(), 0o755))

	db, err := OpenDatabase(cfg.Database, cfg.System.Workdir)
	require.NoError(t, err)

	a := NewApplication(cfg)
	a.OverrideDB(db)
	require.NoError(t, a.MigrateDB(false))
	require.NoError(t, a.Setup(nil))
	t.Cleanup(func() {
		a.remote.Close()
		_ = a.settings.Close()
	})
	return a
}

func TestSetupDatabaseBackend(t *testing.T) {
	a := newDatabaseApp(t)
	ctx := catalog.WithOperator(context.Background(), catalog.Operator{Name: "admin", IP: "127.0.0.1"})

	p, err := a.Catalog().Create(ctx, catalog.Draft{Name: "Krema za ruke", Price: "990", Category: "PREPARATI ZA LICE I TELO"})
	require.NoError(t, err)

	var logs []domain.SyncLog
	require.NoError(t, a.DB().Find(&logs).Error)
	require.Len(t, logs, 1)
	assert.Equal(t, "admin", logs[0].OprName)
	assert.Equal(t, p.ID.String(), logs[0].ProductID)
	assert.Equal(t, "success", logs[0].Result)

	snap, err := a.RefreshNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{p.ID.String()}, snap.IDs())
	assert.Equal(t, snap.Version, a.Snapshots().Snapshot().Version)
}

func TestRunBackupNow(t *testing.T) {
	a := newDatabaseApp(t)
	_, err := a.Catalog().Create(context.Background(), catalog.Draft{Name: "Lak", Price: "450"})
	require.NoError(t, err)

	target, err := a.RunBackupNow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, a.Config().GetBackupDir(), filepath.Dir(target))
	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"name": "Lak"`)
}

func TestClearExpireData(t *testing.T) {
	a := newDatabaseApp(t)
	require.NoError(t, a.DB().Create(&domain.SyncLog{ID: 1, Action: "create", OptTime: time.Now().AddDate(-2, 0, 0)}).Error)
	require.NoError(t, a.DB().Create(&domain.SyncLog{ID: 2, Action: "create", OptTime: time.Now()}).Error)

	a.SchedClearExpireData()

	var count int64
	a.DB().Model(&domain.SyncLog{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestSeedDocumentSkipsDriveBackend(t *testing.T) {
	cfg := config.DefaultAppConfig()
	a := NewApplication(cfg)
	assert.NoError(t, a.SeedDocument(context.Background()))
}
