package remote

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"github.com/vitaspro/storefront/internal/drive"
	"go.uber.org/zap"
)

const (
	StrategyEndpoint      = "sync-endpoint"
	StrategyDirect        = "drive-direct"
	StrategyRelayDownload = "relay-download"
	StrategyRelayView     = "relay-view"
)

// linearBackOff waits step, 2*step, 3*step...
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() {
	b.n = 0
}

// Load reads the products document, trying the sync endpoint, the direct
// download link and two relayed links in that order.
func (c *Client) Load(ctx context.Context, opts catalog.LoadOptions) (catalog.Snapshot, error) {
	s, err := c.currentSettings(ctx)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	fileID := s.FileID()
	if fileID == "" {
		return catalog.Snapshot{}, errors.Wrap(catalog.ErrNotConfigured, "no products file link in settings")
	}

	token := ""
	if opts.Force {
		token = strconv.FormatInt(c.now().UnixNano(), 10)
	}

	var strategies []Strategy[[]domain.Product]
	if endpoint := drive.EndpointURL(s.ReadEndpoint()); endpoint != "" {
		target := endpointReadURL(endpoint, fileID, token)
		strategies = append(strategies, Strategy[[]domain.Product]{
			Name: StrategyEndpoint,
			Run: func(ctx context.Context) ([]domain.Product, error) {
				return c.readEndpoint(ctx, target)
			},
		})
	}
	direct := drive.WithCacheBuster(drive.DownloadURL(fileID, true), token)
	view := drive.WithCacheBuster(drive.ViewURL(fileID), token)
	strategies = append(strategies,
		Strategy[[]domain.Product]{
			Name: StrategyDirect,
			Run: func(ctx context.Context) ([]domain.Product, error) {
				return c.fetchDocument(ctx, direct, true)
			},
		},
		Strategy[[]domain.Product]{
			Name: StrategyRelayDownload,
			Run: func(ctx context.Context) ([]domain.Product, error) {
				return c.fetchDocument(ctx, drive.RelayURL(c.cfg.RelayURL, direct), false)
			},
		},
		Strategy[[]domain.Product]{
			Name: StrategyRelayView,
			Run: func(ctx context.Context) ([]domain.Product, error) {
				return c.fetchDocument(ctx, drive.RelayURL(c.cfg.RelayURL, view), false)
			},
		},
	)

	ch := chain[[]domain.Product]{
		op:         "failed to read products document",
		hint:       "check the file link and sync endpoint in settings",
		strategies: strategies,
		breakers:   c.breakers,
		recorder:   c.recorder,
		logger:     c.logger,
	}
	products, source, err := ch.run(ctx)
	if err != nil {
		return catalog.Snapshot{}, err
	}
	return catalog.Snapshot{
		Products:  products,
		Version:   catalog.Fingerprint(products),
		Source:    source,
		FetchedAt: c.now(),
	}, nil
}

func endpointReadURL(endpoint, fileID, token string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return endpoint
	}
	q := u.Query()
	q.Set("fileId", fileID)
	if token != "" {
		q.Set("t", token)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// readEndpoint asks the sync endpoint, retrying timeouts and gateway errors
// with a linearly growing pause.
func (c *Client) readEndpoint(ctx context.Context, target string) ([]domain.Product, error) {
	op := func() ([]domain.Product, error) {
		products, err := c.fetchDocument(ctx, target, false)
		if err == nil || retryable(err) {
			return products, err
		}
		return nil, backoff.Permanent(err)
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: c.cfg.RetryStep}, uint64(c.cfg.EndpointRetries)),
		ctx,
	)
	notify := func(err error, wait time.Duration) {
		c.logger.Info("retrying sync endpoint",
			zap.String("namespace", "remote"),
			zap.Duration("wait", wait),
			zap.Error(err))
	}
	return backoff.RetryNotifyWithData(op, b, notify)
}

// fetchDocument GETs target and parses it. When scrape is set and Drive
// answers with its virus-scan page, the confirm link on that page is
// followed once.
func (c *Client) fetchDocument(ctx context.Context, target string, scrape bool) ([]domain.Product, error) {
	resp, err := c.get(ctx, target)
	if err != nil {
		return nil, err
	}
	if !resp.ok() {
		return nil, resp.statusError()
	}
	if scrape && LooksLikeHTML(resp.Body, resp.ContentType) {
		link, found := ScrapeDownloadLink(resp.Body)
		if !found {
			return nil, ErrHTMLPayload
		}
		c.logger.Info("following drive confirm link", zap.String("namespace", "remote"))
		resp, err = c.get(ctx, link)
		if err != nil {
			return nil, errors.Wrap(err, "confirm link")
		}
		if !resp.ok() {
			return nil, errors.Wrap(resp.statusError(), "confirm link")
		}
	}
	return ParseDocument(resp.Body, resp.ContentType)
}

func (c *Client) get(ctx context.Context, target string) (response, error) {
	return c.do(ctx, c.cfg.ReadTimeout, func(g *dataflow.Gout) *dataflow.DataFlow {
		return g.GET(target).SetHeader(gout.H{
			"Accept":        "application/json, text/plain, */*",
			"Cache-Control": "no-cache",
		})
	})
}
