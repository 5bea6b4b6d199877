package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitaspro/storefront/internal/domain"
)

func TestCacheStatusDistinguishesEmptyFromUnreachable(t *testing.T) {
	store := &memStore{}
	cache := NewCache(store, 0)
	assert.Equal(t, StatusPending, cache.State().Status)

	_, err := cache.Refresh(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, StatusEmpty, cache.State().Status)

	store.products = []domain.Product{{ID: "1", Name: "A", Price: "1"}}
	_, err = cache.Refresh(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, StatusOK, cache.State().Status)

	store.loadErr = errors.Wrap(ErrUnreachable, "offline")
	snap, err := cache.Refresh(context.Background(), true)
	require.Error(t, err)
	assert.Len(t, snap.Products, 1, "previous snapshot is kept")
	st := cache.State()
	assert.Equal(t, StatusUnreachable, st.Status)
	assert.Contains(t, st.Error, "offline")
	assert.Equal(t, 1, st.Items)

	store.loadErr = ErrNotConfigured
	_, _ = cache.Refresh(context.Background(), true)
	assert.Equal(t, StatusNotConfigured, cache.State().Status)
}

func TestCacheNewestFirst(t *testing.T) {
	store := &memStore{products: []domain.Product{
		{ID: "old", Name: "Old", CreatedAt: "2024-01-01T10:00:00.000Z", Category: "KOSA"},
		{ID: "undated", Name: "Undated", Category: "NOKTI"},
		{ID: "new", Name: "New", CreatedAt: "2024-05-01T10:00:00.000Z", Category: "KOSA"},
		{ID: "mid", Name: "Mid", CreatedAt: "2024-03-01T10:00:00.000Z", Category: "NOKTI"},
	}}
	cache := NewCache(store, 0)
	_, err := cache.Refresh(context.Background(), false)
	require.NoError(t, err)

	all, total := cache.Newest(0, 0, nil)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"new", "mid", "old", "undated"}, ids(all))

	page, total := cache.Newest(1, 2, nil)
	assert.Equal(t, 4, total)
	assert.Equal(t, []string{"mid", "old"}, ids(page))

	kosa, total := cache.Newest(0, 10, func(p domain.Product) bool { return p.Category == "KOSA" })
	assert.Equal(t, 2, total)
	assert.Equal(t, []string{"new", "old"}, ids(kosa))

	p, ok := cache.Find("mid")
	assert.True(t, ok)
	assert.Equal(t, "Mid", p.Name)
}

func TestCacheFollowsWrites(t *testing.T) {
	store := seeded()
	cache := NewCache(store, time.Millisecond)
	bus := EventBus.New()
	require.NoError(t, cache.Subscribe(bus))

	svc := newTestService(t, store, WithEventBus(bus))
	require.NoError(t, svc.Remove(context.Background(), "1"))
	bus.WaitAsync()

	assert.Equal(t, 2, cache.State().Items)
	assert.Equal(t, StatusOK, cache.State().Status)
	_, found := cache.Find("1")
	assert.False(t, found)
}

func TestEncodeDocumentIndentsWithTwoSpaces(t *testing.T) {
	doc, err := EncodeDocument([]domain.Product{{ID: "1", Name: "A", Price: "1", Image: "a"}})
	require.NoError(t, err)
	assert.Contains(t, string(doc), "[\n  {\n    \"id\": \"1\",")

	empty, err := EncodeDocument(nil)
	require.NoError(t, err)
	assert.Equal(t, "[]", string(empty))

	back, err := DecodeDocument(doc)
	require.NoError(t, err)
	assert.Equal(t, "A", back[0].Name)

	_, err = DecodeDocument([]byte(`{"error":"nope"}`))
	assert.Error(t, err)
}

func ids(products []domain.Product) []string {
	out := make([]string, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID.String())
	}
	return out
}

func TestCacheAppliesWritesInOrder(t *testing.T) {
	cache := NewCache(seeded(), time.Millisecond)
	bus := EventBus.New()
	require.NoError(t, cache.Subscribe(bus))

	first := []domain.Product{{ID: "1", Name: "A", Price: "1"}}
	second := []domain.Product{{ID: "1", Name: "A", Price: "1"}, {ID: "2", Name: "B", Price: "2"}}
	bus.Publish(TopicWritten, Snapshot{Products: first, Version: Fingerprint(first)})
	bus.Publish(TopicWritten, Snapshot{Products: second, Version: Fingerprint(second)})

	assert.Equal(t, Fingerprint(second), cache.State().Version)
	assert.Equal(t, 2, cache.State().Items)
	bus.WaitAsync()
}

// gatedStore holds every load until release is closed.
type gatedStore struct {
	memStore
	started chan struct{}
	release chan struct{}
}

func (g *gatedStore) Load(ctx context.Context, opts LoadOptions) (Snapshot, error) {
	close(g.started)
	select {
	case <-g.release:
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
	return g.memStore.Load(ctx, opts)
}

func TestCacheSharedLoadOutlivesCancelledCaller(t *testing.T) {
	store := &gatedStore{
		memStore: memStore{products: []domain.Product{{ID: "1", Name: "A", Price: "1"}}},
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
	cache := NewCache(store, 0)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := cache.Refresh(ctx, true)
		done <- err
	}()
	<-store.started

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	close(store.release)

	assert.Eventually(t, func() bool {
		return cache.State().Status == StatusOK
	}, time.Second, 5*time.Millisecond)
	st := cache.State()
	assert.Equal(t, 1, st.Items)
	assert.Empty(t, st.Error)
}
