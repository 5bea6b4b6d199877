package catalog

import (
	"bytes"
	"context"
	stdjson "encoding/json"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Version identifies one revision of the document. Backends choose the
// representation; callers only compare versions for equality.
type Version string

// Snapshot is the product list as read from the store.
type Snapshot struct {
	Products  []domain.Product `json:"products"`
	Version   Version          `json:"version"`
	Source    string           `json:"source"`
	FetchedAt time.Time        `json:"fetchedAt"`
}

// IDs returns the product ids in document order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s.Products))
	for _, p := range s.Products {
		ids = append(ids, p.ID.String())
	}
	return ids
}

type LoadOptions struct {
	// Force bypasses intermediate caches.
	Force bool
}

type SaveOptions struct {
	// Expected, when set, must match the stored version for the write to proceed.
	Expected Version
}

// WriteResult describes how a write reached the store.
type WriteResult struct {
	Version  Version `json:"version"`
	Strategy string  `json:"strategy"`
	// Confirmed is false when the write was sent without reading a reply.
	Confirmed bool `json:"confirmed"`
}

// Store persists the whole product list as a single document.
type Store interface {
	Load(ctx context.Context, opts LoadOptions) (Snapshot, error)
	Save(ctx context.Context, products []domain.Product, opts SaveOptions) (WriteResult, error)
}

// EncodeDocument renders the list the way the document is stored: a JSON
// array indented with two spaces.
func EncodeDocument(products []domain.Product) ([]byte, error) {
	if products == nil {
		products = []domain.Product{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return nil, errors.Wrap(err, "encode products document")
	}
	// Product carries its own marshaler, so indent the compact output afterwards.
	var out bytes.Buffer
	if err := stdjson.Indent(&out, data, "", "  "); err != nil {
		return nil, errors.Wrap(err, "indent products document")
	}
	return out.Bytes(), nil
}

// DecodeDocument parses a document body that must hold a JSON array.
func DecodeDocument(data []byte) ([]domain.Product, error) {
	var products []domain.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, errors.Wrap(err, "decode products document")
	}
	if products == nil {
		products = []domain.Product{}
	}
	return products, nil
}

// Fingerprint hashes the canonical encoding of the list.
func Fingerprint(products []domain.Product) Version {
	if products == nil {
		products = []domain.Product{}
	}
	data, err := json.Marshal(products)
	if err != nil {
		return ""
	}
	return Version(strconv.FormatUint(xxhash.Sum64(data), 16))
}

func cloneProducts(in []domain.Product) []domain.Product {
	out := make([]domain.Product, len(in))
	copy(out, in)
	return out
}
