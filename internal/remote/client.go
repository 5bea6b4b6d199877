// Package remote talks to the products document kept on Google Drive and to
// the serverless endpoint that rewrites it.
package remote

import (
	"context"
	"net/http"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"go.uber.org/zap"
)

// SettingsSource supplies the current connection settings. They are read on
// every call because operators may change them at runtime.
type SettingsSource interface {
	DriveSettings(ctx context.Context) (domain.DriveSettings, error)
}

// StaticSettings is a fixed SettingsSource.
type StaticSettings domain.DriveSettings

func (s StaticSettings) DriveSettings(context.Context) (domain.DriveSettings, error) {
	return domain.DriveSettings(s), nil
}

// Config tunes the transports.
type Config struct {
	RelayURL          string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	EndpointRetries   int
	RetryStep         time.Duration
	SettleDelay       time.Duration
	BlindWrite        bool
	VerifyBeforeWrite bool
	Breaker           bool
	UploadWorkers     int
}

// ConfigFrom maps the application config section.
func ConfigFrom(c config.DriveConfig) Config {
	return Config{
		RelayURL:          c.RelayURL,
		ReadTimeout:       c.ReadTimeout,
		WriteTimeout:      c.WriteTimeout,
		EndpointRetries:   c.EndpointRetries,
		RetryStep:         c.RetryStep,
		SettleDelay:       c.SettleDelay,
		BlindWrite:        c.BlindWrite,
		VerifyBeforeWrite: c.VerifyBeforeWrite,
		Breaker:           c.Breaker,
		UploadWorkers:     c.UploadWorkers,
	}
}

// Client implements catalog.Store over Drive links and the serverless endpoint.
type Client struct {
	cfg        Config
	settings   SettingsSource
	httpClient *http.Client
	logger     *zap.Logger
	recorder   Recorder
	breakers   *breakerSet
	pool       *ants.Pool
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

var _ catalog.Store = (*Client)(nil)

type Option func(*Client)

// WithHTTPClient replaces the HTTP client, mostly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

func NewClient(cfg Config, settings SettingsSource, opts ...Option) (*Client, error) {
	if cfg.RelayURL == "" {
		cfg.RelayURL = config.DefaultRelayURL
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.UploadWorkers <= 0 {
		cfg.UploadWorkers = 4
	}
	c := &Client{
		cfg:        cfg,
		settings:   settings,
		httpClient: &http.Client{},
		logger:     zap.L(),
		breakers:   newBreakerSet(cfg.Breaker),
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	pool, err := ants.NewPool(cfg.UploadWorkers, ants.WithPanicHandler(func(p interface{}) {
		zap.S().Errorf("image upload worker panic: %v", p)
	}))
	if err != nil {
		return nil, errors.Wrap(err, "create upload pool")
	}
	c.pool = pool
	return c, nil
}

// Close releases the upload workers.
func (c *Client) Close() {
	if c.pool != nil {
		c.pool.Release()
	}
}

// BreakerStates reports the circuit breaker of every strategy used so far.
func (c *Client) BreakerStates() map[string]string {
	return c.breakers.states()
}

func (c *Client) currentSettings(ctx context.Context) (domain.DriveSettings, error) {
	if c.settings == nil {
		return domain.DriveSettings{}, catalog.ErrNotConfigured
	}
	s, err := c.settings.DriveSettings(ctx)
	if err != nil {
		return domain.DriveSettings{}, errors.Wrap(err, "load drive settings")
	}
	return s, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
