package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/google/btree"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Status tells the storefront why it shows what it shows.
type Status string

const (
	StatusPending       Status = "pending"
	StatusOK            Status = "ok"
	StatusEmpty         Status = "empty"
	StatusUnreachable   Status = "unreachable"
	StatusNotConfigured Status = "not_configured"
)

// State is the outcome of the latest refresh plus the snapshot being served.
type State struct {
	Status      Status    `json:"status"`
	Error       string    `json:"error,omitempty"`
	Items       int       `json:"items"`
	Version     Version   `json:"version"`
	Source      string    `json:"source"`
	LastAttempt time.Time `json:"lastAttempt"`
	LastSuccess time.Time `json:"lastSuccess"`
}

type indexItem struct {
	created time.Time
	dated   bool
	pos     int
}

// newestFirst orders dated products before undated ones, newest first, and
// keeps document order otherwise.
func newestFirst(a, b indexItem) bool {
	if a.dated != b.dated {
		return a.dated
	}
	if a.dated && !a.created.Equal(b.created) {
		return a.created.After(b.created)
	}
	return a.pos < b.pos
}

// Cache serves the last good snapshot to readers and refreshes it in the
// background. A failed refresh keeps the previous snapshot.
type Cache struct {
	store  Store
	delay  time.Duration
	logger *zap.Logger

	group singleflight.Group

	mu          sync.RWMutex
	snap        Snapshot
	index       *btree.BTreeG[indexItem]
	status      Status
	lastErr     error
	lastAttempt time.Time
	lastSuccess time.Time
}

// NewCache creates a cache over store. delay is how long to wait after a
// write before re-reading the store.
func NewCache(store Store, delay time.Duration) *Cache {
	return &Cache{
		store:  store,
		delay:  delay,
		logger: zap.L(),
		index:  btree.NewG[indexItem](8, newestFirst),
		status: StatusPending,
	}
}

// refreshTimeout bounds a shared load.
const refreshTimeout = 2 * time.Minute

// Refresh reloads the snapshot. Concurrent callers share one load, which
// outlives any single caller: a caller whose ctx ends gets ctx.Err() while
// the load carries on for the others.
func (c *Cache) Refresh(ctx context.Context, force bool) (Snapshot, error) {
	key := "load"
	if force {
		key = "force"
	}
	ch := c.group.DoChan(key, func() (interface{}, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()
		snap, err := c.store.Load(loadCtx, LoadOptions{Force: force})
		c.apply(snap, err)
		return snap, err
	})
	select {
	case <-ctx.Done():
		return c.Snapshot(), ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return c.Snapshot(), res.Err
		}
		return res.Val.(Snapshot), nil
	}
}

func (c *Cache) apply(snap Snapshot, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastAttempt = time.Now()
	c.lastErr = err
	if err != nil {
		if errors.Is(err, ErrNotConfigured) {
			c.status = StatusNotConfigured
		} else {
			c.status = StatusUnreachable
		}
		c.logger.Warn("catalog refresh failed",
			zap.String("namespace", "catalog"),
			zap.String("status", string(c.status)),
			zap.Error(err))
		return
	}
	c.setLocked(snap)
}

// Set replaces the served snapshot, e.g. with the list just written.
func (c *Cache) Set(snap Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastErr = nil
	c.setLocked(snap)
}

func (c *Cache) setLocked(snap Snapshot) {
	c.snap = snap
	c.lastSuccess = time.Now()
	if len(snap.Products) == 0 {
		c.status = StatusEmpty
	} else {
		c.status = StatusOK
	}
	c.index.Clear(false)
	for i, p := range snap.Products {
		created, ok := p.CreatedTime()
		c.index.ReplaceOrInsert(indexItem{created: created, dated: ok, pos: i})
	}
}

// Snapshot returns the snapshot being served.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

func (c *Cache) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st := State{
		Status:      c.status,
		Items:       len(c.snap.Products),
		Version:     c.snap.Version,
		Source:      c.snap.Source,
		LastAttempt: c.lastAttempt,
		LastSuccess: c.lastSuccess,
	}
	if c.lastErr != nil {
		st.Error = c.lastErr.Error()
	}
	return st
}

// Newest pages through the products newest first. match may be nil.
func (c *Cache) Newest(offset, limit int, match func(domain.Product) bool) ([]domain.Product, int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var (
		out   []domain.Product
		total int
	)
	c.index.Ascend(func(item indexItem) bool {
		p := c.snap.Products[item.pos]
		if match != nil && !match(p) {
			return true
		}
		if total >= offset && (limit <= 0 || len(out) < limit) {
			out = append(out, p)
		}
		total++
		return true
	})
	return out, total
}

// Find returns the first product whose id string-equals id.
func (c *Cache) Find(id string) (domain.Product, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx := indexOf(c.snap.Products, id); idx >= 0 {
		return c.snap.Products[idx], true
	}
	return domain.Product{}, false
}

// Subscribe serves written lists immediately and re-reads the store after
// the configured delay so the cache converges on what the store kept.
// Written lists are applied on the publishing goroutine so they land in
// write order; only the re-read runs in the background.
func (c *Cache) Subscribe(bus EventBus.Bus) error {
	if err := bus.Subscribe(TopicWritten, c.Set); err != nil {
		return err
	}
	return bus.SubscribeAsync(TopicWritten, c.refreshAfterWrite, false)
}

func (c *Cache) refreshAfterWrite(Snapshot) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	ctx, cancel := context.WithTimeout(context.Background(), refreshTimeout)
	defer cancel()
	if _, err := c.Refresh(ctx, true); err != nil {
		c.logger.Warn("refresh after write failed", zap.String("namespace", "catalog"), zap.Error(err))
	}
}
