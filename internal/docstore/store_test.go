package docstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "catalog.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(domain.Tables...))
	return New(db)
}

func TestLoadEmptyDocument(t *testing.T) {
	s := newTestStore(t)
	snap, err := s.Load(context.Background(), catalog.LoadOptions{})
	require.NoError(t, err)
	assert.NotNil(t, snap.Products)
	assert.Empty(t, snap.Products)
	assert.Equal(t, catalog.Version("0"), snap.Version)
	assert.Equal(t, Source, snap.Source)
}

func TestSaveThenLoad(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	products := []domain.Product{
		{ID: "1", Name: "Šampon", Price: "1200", Image: "a.jpg", Images: domain.ImageList{"b.jpg"}},
		{ID: "2", Name: "Lak", Price: "450", Image: "c.jpg", Category: "NOKTI"},
	}

	res, err := s.Save(ctx, products, catalog.SaveOptions{Expected: "0"})
	require.NoError(t, err)
	assert.Equal(t, catalog.Version("1"), res.Version)
	assert.True(t, res.Confirmed)

	snap, err := s.Load(ctx, catalog.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, products, snap.Products)
	assert.Equal(t, res.Version, snap.Version)

	res, err = s.Save(ctx, products[:1], catalog.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, catalog.Version("2"), res.Version)
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, []domain.Product{{ID: "1", Name: "A", Price: "1"}}, catalog.SaveOptions{})
	require.NoError(t, err)
	snap, err := s.Load(ctx, catalog.LoadOptions{})
	require.NoError(t, err)

	_, err = s.Save(ctx, nil, catalog.SaveOptions{Expected: snap.Version})
	require.NoError(t, err)

	_, err = s.Save(ctx, nil, catalog.SaveOptions{Expected: snap.Version})
	assert.True(t, errors.Is(err, catalog.ErrConflict))

	_, err = s.Save(ctx, nil, catalog.SaveOptions{Expected: "garbage"})
	assert.True(t, errors.Is(err, catalog.ErrConflict))
}

func TestSaveOnMissingRowWithVersionConflicts(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Save(context.Background(), nil, catalog.SaveOptions{Expected: "5"})
	assert.True(t, errors.Is(err, catalog.ErrConflict))
}

func TestServiceOverDatabase(t *testing.T) {
	svc, err := catalog.NewService(newTestStore(t), 1)
	require.NoError(t, err)
	ctx := context.Background()

	p, err := svc.Create(ctx, catalog.Draft{Name: "Krema", Price: "990"})
	require.NoError(t, err)

	got, err := svc.Get(ctx, p.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "Krema", got.Name)

	require.NoError(t, svc.Remove(ctx, p.ID.String()))
	snap, err := svc.List(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, snap.Products)
}
