package backup

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
)

type fixedStore struct {
	products []domain.Product
	err      error
}

func (s *fixedStore) Load(context.Context, catalog.LoadOptions) (catalog.Snapshot, error) {
	return catalog.Snapshot{Products: s.products}, s.err
}

func (s *fixedStore) Save(context.Context, []domain.Product, catalog.SaveOptions) (catalog.WriteResult, error) {
	return catalog.WriteResult{}, nil
}

type captureUploader struct {
	names []string
	err   error
}

func (u *captureUploader) Upload(_ context.Context, name string, _ []byte) error {
	u.names = append(u.names, name)
	return u.err
}

func TestRunWritesIndentedDocument(t *testing.T) {
	dir := t.TempDir()
	store := &fixedStore{products: []domain.Product{{ID: "1", Name: "Krema", Price: "990", Image: "a.jpg"}}}
	up := &captureUploader{}
	job := New(store, dir, 3, WithUploader(up))
	job.now = func() time.Time { return time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC) }

	target, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "products-20240510-120000.json"), target)
	assert.Equal(t, []string{"products-20240510-120000.json"}, up.names)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[\n  {\n    \"id\": \"1\"")
}

func TestRunKeepsNewestFiles(t *testing.T) {
	dir := t.TempDir()
	job := New(&fixedStore{}, dir, 2)
	base := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Hour)
		job.now = func() time.Time { return at }
		_, err := job.Run(context.Background())
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	names, err := job.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"products-20240510-030000.json", "products-20240510-020000.json"}, names)
}

func TestRunFailsWhenStoreFails(t *testing.T) {
	dir := t.TempDir()
	job := New(&fixedStore{err: catalog.ErrUnreachable}, dir, 2)
	_, err := job.Run(context.Background())
	assert.True(t, errors.Is(err, catalog.ErrUnreachable))

	names, err := job.List()
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFromConfigAddsSFTPUploader(t *testing.T) {
	cfg := config.DefaultAppConfig()
	cfg.Backup.Dir = t.TempDir()
	assert.Nil(t, FromConfig(&fixedStore{}, cfg).uploader)

	cfg.Backup.Sftp.Host = "backup.example.com"
	assert.IsType(t, &SFTPUploader{}, FromConfig(&fixedStore{}, cfg).uploader)
}

func TestSFTPHostKeyMustParse(t *testing.T) {
	u := NewSFTPUploader(config.SftpConfig{Host: "h", Port: 22, HostKey: "not a key"})
	_, err := u.clientConfig()
	assert.Error(t, err)
}
