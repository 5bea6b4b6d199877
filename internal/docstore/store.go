package docstore

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Source names the backend in snapshots and write results.
const Source = "database"

// documentID is the single row that holds the products document.
const documentID int64 = 1

// Store keeps the products document in the catalog_document table. Every
// write bumps the row version, and a write with an expected version only
// lands when the row still carries it.
type Store struct {
	db  *gorm.DB
	now func() time.Time
}

var _ catalog.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db, now: time.Now}
}

func (s *Store) Load(ctx context.Context, _ catalog.LoadOptions) (catalog.Snapshot, error) {
	var doc domain.CatalogDocument
	err := s.db.WithContext(ctx).Where("id = ?", documentID).First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return catalog.Snapshot{
			Products:  []domain.Product{},
			Version:   "0",
			Source:    Source,
			FetchedAt: s.now(),
		}, nil
	}
	if err != nil {
		return catalog.Snapshot{}, errors.Wrap(catalog.ErrUnreachable, err.Error())
	}
	products, err := catalog.DecodeDocument([]byte(doc.Content))
	if err != nil {
		return catalog.Snapshot{}, err
	}
	return catalog.Snapshot{
		Products:  products,
		Version:   version(doc.Version),
		Source:    Source,
		FetchedAt: s.now(),
	}, nil
}

func (s *Store) Save(ctx context.Context, products []domain.Product, opts catalog.SaveOptions) (catalog.WriteResult, error) {
	content, err := catalog.EncodeDocument(products)
	if err != nil {
		return catalog.WriteResult{}, err
	}
	var next int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc domain.CatalogDocument
		err := tx.Where("id = ?", documentID).First(&doc).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if opts.Expected != "" && opts.Expected != "0" {
				return catalog.ErrConflict
			}
			next = 1
			return tx.Create(&domain.CatalogDocument{
				ID:        documentID,
				Content:   string(content),
				Version:   next,
				Items:     len(products),
				UpdatedAt: s.now(),
			}).Error
		case err != nil:
			return err
		}

		current := doc.Version
		if opts.Expected != "" {
			expected, perr := strconv.ParseInt(string(opts.Expected), 10, 64)
			if perr != nil || expected != current {
				return catalog.ErrConflict
			}
		}
		next = current + 1
		res := tx.Model(&domain.CatalogDocument{}).
			Where("id = ? AND version = ?", documentID, current).
			Updates(map[string]interface{}{
				"content":    string(content),
				"version":    next,
				"items":      len(products),
				"updated_at": s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return catalog.ErrConflict
		}
		return nil
	})
	if errors.Is(err, catalog.ErrConflict) {
		zap.S().Warnf("catalog document changed, expected version %s", opts.Expected)
		return catalog.WriteResult{}, catalog.ErrConflict
	}
	if err != nil {
		return catalog.WriteResult{}, errors.Wrap(catalog.ErrUnreachable, err.Error())
	}
	return catalog.WriteResult{Version: version(next), Strategy: Source, Confirmed: true}, nil
}

func version(v int64) catalog.Version {
	return catalog.Version(strconv.FormatInt(v, 10))
}
