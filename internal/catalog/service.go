package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/bwmarrin/snowflake"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/domain"
	"go.uber.org/zap"
)

// TopicWritten is published with (Snapshot) after every successful write.
const TopicWritten = "catalog:written"

// isoMillis matches the timestamps the storefront has always written.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// Draft is the input for a new product.
type Draft struct {
	Name        string           `json:"name"`
	Price       domain.Price     `json:"price"`
	Image       string           `json:"image"`
	Images      domain.ImageList `json:"images"`
	Description string           `json:"description"`
	Category    string           `json:"category"`
}

// Patch holds the fields to change; nil fields are left alone.
type Patch struct {
	Name        *string           `json:"name"`
	Price       *domain.Price     `json:"price"`
	Image       *string           `json:"image"`
	Images      *domain.ImageList `json:"images"`
	Description *string           `json:"description"`
	Category    *string           `json:"category"`
}

// Auditor receives one entry per committed mutation.
type Auditor interface {
	Record(ctx context.Context, entry domain.SyncLog)
}

type Option func(*Service)

func WithEventBus(bus EventBus.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

func WithAuditor(a Auditor) Option {
	return func(s *Service) { s.audit = a }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// Service is the product CRUD facade. Every mutation reads the whole list,
// changes it and writes it back; mutations are serialised inside the process
// and carry the read version so the store can reject stale writes.
type Service struct {
	store  Store
	node   *snowflake.Node
	bus    EventBus.Bus
	audit  Auditor
	now    func() time.Time
	logger *zap.Logger

	mu sync.Mutex
}

func NewService(store Store, nodeID int64, opts ...Option) (*Service, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, errors.Wrap(err, "create id generator")
	}
	s := &Service{
		store:  store,
		node:   node,
		now:    time.Now,
		logger: zap.L(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// List reads the current list from the store.
func (s *Service) List(ctx context.Context, force bool) (Snapshot, error) {
	return s.store.Load(ctx, LoadOptions{Force: force})
}

// Get returns the first product whose id string-equals id.
func (s *Service) Get(ctx context.Context, id string) (domain.Product, error) {
	snap, err := s.store.Load(ctx, LoadOptions{})
	if err != nil {
		return domain.Product{}, err
	}
	idx := indexOf(snap.Products, id)
	if idx < 0 {
		return domain.Product{}, &NotFoundError{ID: id, Known: snap.IDs()}
	}
	return snap.Products[idx], nil
}

// Create appends a new product with a generated id and creation time.
func (s *Service) Create(ctx context.Context, d Draft) (domain.Product, error) {
	d.Name = strings.TrimSpace(d.Name)
	d.Price = domain.Price(strings.TrimSpace(d.Price.String()))
	if d.Name == "" {
		return domain.Product{}, invalidf("name is required")
	}
	if d.Price == "" {
		return domain.Product{}, invalidf("price is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx, LoadOptions{Force: true})
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "read catalog before create")
	}

	p := domain.Product{
		ID:          domain.ProductID(s.node.Generate().String()),
		Name:        d.Name,
		Price:       d.Price,
		Image:       strings.TrimSpace(d.Image),
		Images:      domain.NormalizeImages(d.Images),
		Description: strings.TrimSpace(d.Description),
		Category:    strings.TrimSpace(d.Category),
		CreatedAt:   s.now().UTC().Format(isoMillis),
	}
	products := append(cloneProducts(snap.Products), p)
	if err := s.commit(ctx, "create", p.ID.String(), snap, products); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// Update merges patch into the product with the given id. id and createdAt
// never change.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx, LoadOptions{Force: true})
	if err != nil {
		return domain.Product{}, errors.Wrap(err, "read catalog before update")
	}
	idx := indexOf(snap.Products, id)
	if idx < 0 {
		return domain.Product{}, &NotFoundError{ID: id, Known: snap.IDs()}
	}

	products := cloneProducts(snap.Products)
	p := products[idx]
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Product{}, invalidf("name cannot be empty")
		}
		p.Name = name
	}
	if patch.Price != nil {
		price := domain.Price(strings.TrimSpace(patch.Price.String()))
		if price == "" {
			return domain.Product{}, invalidf("price cannot be empty")
		}
		p.Price = price
	}
	if patch.Image != nil {
		p.Image = strings.TrimSpace(*patch.Image)
	}
	if patch.Images != nil {
		p.Images = domain.NormalizeImages(*patch.Images)
	}
	if patch.Description != nil {
		p.Description = strings.TrimSpace(*patch.Description)
	}
	if patch.Category != nil {
		p.Category = strings.TrimSpace(*patch.Category)
	}
	products[idx] = p

	if err := s.commit(ctx, "update", id, snap, products); err != nil {
		return domain.Product{}, err
	}
	return p, nil
}

// Remove drops every product whose id string-equals id. Nothing is written
// when no product matches.
func (s *Service) Remove(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.store.Load(ctx, LoadOptions{Force: true})
	if err != nil {
		return errors.Wrap(err, "read catalog before remove")
	}
	target := strings.TrimSpace(id)
	kept := make([]domain.Product, 0, len(snap.Products))
	for _, p := range snap.Products {
		if p.ID.String() == target {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == len(snap.Products) {
		return &NotFoundError{ID: id, Known: snap.IDs()}
	}
	return s.commit(ctx, "remove", target, snap, kept)
}

// Replace writes a whole new list. A non-empty expected version must match
// the list currently stored.
func (s *Service) Replace(ctx context.Context, products []domain.Product, expected Version) (WriteResult, error) {
	for i, p := range products {
		if strings.TrimSpace(p.ID.String()) == "" {
			return WriteResult{}, invalidf("product #%d has no id", i+1)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{Version: expected}
	if expected != "" {
		current, err := s.store.Load(ctx, LoadOptions{Force: true})
		if err != nil {
			return WriteResult{}, errors.Wrap(err, "read catalog before replace")
		}
		if current.Version != expected {
			return WriteResult{}, ErrConflict
		}
		snap = current
	}
	return s.save(ctx, "replace", "", snap, cloneProducts(products))
}

func (s *Service) commit(ctx context.Context, action, id string, read Snapshot, products []domain.Product) error {
	_, err := s.save(ctx, action, id, read, products)
	return err
}

func (s *Service) save(ctx context.Context, action, id string, read Snapshot, products []domain.Product) (WriteResult, error) {
	res, err := s.store.Save(ctx, products, SaveOptions{Expected: read.Version})
	s.record(ctx, action, id, len(products), res, err)
	if err != nil {
		s.logger.Error("catalog write failed",
			zap.String("namespace", "catalog"),
			zap.String("action", action),
			zap.String("id", id),
			zap.Error(err))
		return res, errors.Wrapf(err, "%s product", action)
	}
	s.logger.Info("catalog written",
		zap.String("namespace", "catalog"),
		zap.String("action", action),
		zap.String("id", id),
		zap.Int("items", len(products)),
		zap.String("strategy", res.Strategy),
		zap.Bool("confirmed", res.Confirmed))

	if s.bus != nil {
		s.bus.Publish(TopicWritten, Snapshot{
			Products:  products,
			Version:   res.Version,
			Source:    res.Strategy,
			FetchedAt: s.now(),
		})
	}
	return res, nil
}

func (s *Service) record(ctx context.Context, action, id string, items int, res WriteResult, err error) {
	if s.audit == nil {
		return
	}
	op := OperatorFrom(ctx)
	entry := domain.SyncLog{
		ID:        s.node.Generate().Int64(),
		OprName:   op.Name,
		OprIp:     op.IP,
		Action:    action,
		ProductID: id,
		Items:     items,
		Strategy:  res.Strategy,
		Result:    "success",
		OptTime:   s.now(),
	}
	if err != nil {
		entry.Result = "failure"
		entry.Message = truncate(err.Error(), 1024)
	}
	s.audit.Record(ctx, entry)
}

func indexOf(products []domain.Product, id string) int {
	target := strings.TrimSpace(id)
	for i, p := range products {
		if p.ID.String() == target {
			return i
		}
	}
	return -1
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

type operatorKey struct{}

// Operator identifies who triggered a mutation, for the sync log.
type Operator struct {
	Name string
	IP   string
}

func WithOperator(ctx context.Context, op Operator) context.Context {
	return context.WithValue(ctx, operatorKey{}, op)
}

func OperatorFrom(ctx context.Context) Operator {
	op, _ := ctx.Value(operatorKey{}).(Operator)
	if op.Name == "" {
		op.Name = "system"
	}
	return op
}
