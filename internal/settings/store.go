package settings

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	bucketName = []byte("settings")
	driveKey   = []byte("drive")
)

// ValidationError lists the rejected fields and their problems.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "invalid settings: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return catalog.ErrInvalid
}

// Store persists the drive connection settings in a bbolt file. Values
// saved at runtime override the ones from the config file.
type Store struct {
	db       *bolt.DB
	defaults domain.DriveSettings

	mu      sync.RWMutex
	current domain.DriveSettings
}

// Defaults converts the config file section to settings.
func Defaults(c config.DriveConfig) domain.DriveSettings {
	return domain.DriveSettings{
		FileURL:               c.FileURL,
		AppsScriptURL:         c.AppsScriptURL,
		ProductsJSONUpdateURL: c.ProductsJSONUpdateURL,
		SyncURL:               c.SyncURL,
	}
}

// Open opens (or creates) the settings file at path.
func Open(path string, defaults domain.DriveSettings) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 3 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open settings db %s", path)
	}
	s := &Store{db: db, defaults: defaults, current: defaults}
	if err := s.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return errors.Wrap(err, "create settings bucket")
		}
		raw := b.Get(driveKey)
		if raw == nil {
			return nil
		}
		merged := s.defaults
		if err := json.Unmarshal(raw, &merged); err != nil {
			zap.S().Errorf("ignore broken drive settings: %s", err.Error())
			return nil
		}
		s.current = merged
		return nil
	})
}

// Get returns the effective settings.
func (s *Store) Get() domain.DriveSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// DriveSettings lets the remote client read the settings on every call.
func (s *Store) DriveSettings(context.Context) (domain.DriveSettings, error) {
	return s.Get(), nil
}

// Save validates and stores the full settings.
func (s *Store) Save(v domain.DriveSettings) (domain.DriveSettings, error) {
	v = trimmed(v)
	if problems := v.Validate(); len(problems) > 0 {
		return domain.DriveSettings{}, &ValidationError{Fields: problems}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return domain.DriveSettings{}, errors.Wrap(err, "encode settings")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put(driveKey, raw)
	})
	if err != nil {
		return domain.DriveSettings{}, errors.Wrap(err, "save settings")
	}
	s.current = v
	return v, nil
}

// Patch applies the given fields on top of the current settings. Keys use
// the JSON names; unknown keys are rejected.
func (s *Store) Patch(fields map[string]interface{}) (domain.DriveSettings, error) {
	next := s.Get()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &next,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return domain.DriveSettings{}, errors.Wrap(err, "settings decoder")
	}
	if err := dec.Decode(fields); err != nil {
		return domain.DriveSettings{}, errors.Wrap(catalog.ErrInvalid, err.Error())
	}
	return s.Save(next)
}

// Reset drops the saved settings and returns to the config file values.
func (s *Store) Reset() (domain.DriveSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Delete(driveKey)
	})
	if err != nil {
		return domain.DriveSettings{}, errors.Wrap(err, "reset settings")
	}
	s.current = s.defaults
	return s.current, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func trimmed(v domain.DriveSettings) domain.DriveSettings {
	v.FileURL = strings.TrimSpace(v.FileURL)
	v.AppsScriptURL = strings.TrimSpace(v.AppsScriptURL)
	v.ProductsJSONUpdateURL = strings.TrimSpace(v.ProductsJSONUpdateURL)
	v.SyncURL = strings.TrimSpace(v.SyncURL)
	return v
}
