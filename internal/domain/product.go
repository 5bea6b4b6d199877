package domain

import (
	"bytes"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cast"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Product is one record of the remote products document.
type Product struct {
	ID          ProductID `json:"id"`
	Name        string    `json:"name"`
	Price       Price     `json:"price"`
	Image       string    `json:"image"`
	Images      ImageList `json:"images,omitempty"`
	Description string    `json:"description"`
	Category    string    `json:"category,omitempty"`
	CreatedAt   string    `json:"createdAt,omitempty"`

	// Extra keeps fields written by other tools so a rewrite does not drop them.
	Extra map[string]jsoniter.RawMessage `json:"-"`
}

type productAlias Product

var productKeys = map[string]struct{}{
	"id": {}, "name": {}, "price": {}, "image": {}, "images": {},
	"description": {}, "category": {}, "createdAt": {},
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var alias productAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	var raw map[string]jsoniter.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for k := range productKeys {
		delete(raw, k)
	}
	if len(raw) == 0 {
		raw = nil
	}
	*p = Product(alias)
	p.Extra = raw
	return nil
}

func (p Product) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(productAlias(p))
	if err != nil || len(p.Extra) == 0 {
		return data, err
	}
	keys := make([]string, 0, len(p.Extra))
	for k := range p.Extra {
		if _, known := productKeys[k]; !known {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range keys {
		name, _ := json.Marshal(k)
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(p.Extra[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// IsNew reports whether the product was created within window of now.
// A product without a parseable creation time is never new.
func (p Product) IsNew(now time.Time, window time.Duration) bool {
	created, ok := p.CreatedTime()
	if !ok {
		return false
	}
	return now.Sub(created) <= window
}

// CreatedTime parses CreatedAt leniently (ISO-8601, RFC1123, unix millis...).
func (p Product) CreatedTime() (time.Time, bool) {
	s := strings.TrimSpace(p.CreatedAt)
	if s == "" {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// ProductID is compared as a string; documents written by hand may carry numbers.
type ProductID string

func (id ProductID) String() string {
	return string(id)
}

func (id *ProductID) UnmarshalJSON(data []byte) error {
	s, err := scalarString(data)
	if err != nil {
		return err
	}
	*id = ProductID(s)
	return nil
}

// Price is kept as the text the document carries; no currency is attached.
type Price string

func (p Price) String() string {
	return string(p)
}

// Float parses the price, accepting a decimal comma.
func (p Price) Float() (float64, bool) {
	s := strings.ReplaceAll(strings.TrimSpace(string(p)), ",", ".")
	if s == "" {
		return 0, false
	}
	v, err := cast.ToFloat64E(s)
	if err != nil {
		return 0, false
	}
	return v, true
}

func (p *Price) UnmarshalJSON(data []byte) error {
	s, err := scalarString(data)
	if err != nil {
		return err
	}
	*p = Price(s)
	return nil
}

// ImageList decodes from a JSON array or from a comma/newline separated string.
// Entries are trimmed and blanks dropped; an empty result is nil.
type ImageList []string

func (l *ImageList) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch val := v.(type) {
	case nil:
		*l = nil
	case string:
		*l = SplitImages(val)
	case []interface{}:
		items := make([]string, 0, len(val))
		for _, item := range val {
			if item == nil {
				continue
			}
			items = append(items, cast.ToString(item))
		}
		*l = NormalizeImages(items)
	default:
		*l = NormalizeImages([]string{cast.ToString(val)})
	}
	return nil
}

// SplitImages splits a comma or newline delimited list of URLs.
func SplitImages(s string) ImageList {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	})
	return NormalizeImages(parts)
}

// NormalizeImages trims entries and drops blanks, keeping order.
func NormalizeImages(items []string) ImageList {
	var out ImageList
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func scalarString(data []byte) (string, error) {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return "", err
	}
	if v == nil {
		return "", nil
	}
	return cast.ToStringE(v)
}
