package remote

import (
	"context"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"github.com/vitaspro/storefront/internal/drive"
	"go.uber.org/zap"
)

const (
	StrategyJSONPost      = "json-post"
	StrategyMultipartPost = "multipart-post"
	StrategyFormPost      = "form-post"
	StrategyBlindPost     = "blind-post"
)

// UpdateRequest is the body the endpoint expects for a document rewrite.
type UpdateRequest struct {
	Action string           `json:"action"`
	Data   []domain.Product `json:"data"`
	FileID string           `json:"fileId"`
}

// Save rewrites the whole document through the serverless endpoint, trying
// a JSON body, a multipart form, a URL-encoded form and finally an
// unacknowledged POST.
func (c *Client) Save(ctx context.Context, products []domain.Product, opts catalog.SaveOptions) (catalog.WriteResult, error) {
	s, err := c.currentSettings(ctx)
	if err != nil {
		return catalog.WriteResult{}, err
	}
	endpoint := drive.EndpointURL(s.WriteEndpoint())
	if endpoint == "" {
		return catalog.WriteResult{}, errors.Wrap(catalog.ErrNotConfigured, "no update endpoint in settings")
	}
	if products == nil {
		products = []domain.Product{}
	}

	// The verify read runs under the read budgets; the write budget starts after it.
	if opts.Expected != "" && c.cfg.VerifyBeforeWrite {
		current, err := c.Load(ctx, catalog.LoadOptions{Force: true})
		if err != nil {
			return catalog.WriteResult{}, errors.Wrap(err, "verify document before write")
		}
		if current.Version != opts.Expected {
			c.logger.Warn("document changed since it was read",
				zap.String("namespace", "remote"),
				zap.String("expected", string(opts.Expected)),
				zap.String("found", string(current.Version)))
			return catalog.WriteResult{}, catalog.ErrConflict
		}
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	req := UpdateRequest{Action: "update", Data: products, FileID: s.FileID()}
	data, err := json.Marshal(products)
	if err != nil {
		return catalog.WriteResult{}, errors.Wrap(err, "encode products")
	}
	form := gout.H{"action": req.Action, "data": string(data), "fileId": req.FileID}

	strategies := []Strategy[bool]{
		{Name: StrategyJSONPost, Run: func(ctx context.Context) (bool, error) {
			return true, c.postExpectSuccess(ctx, endpoint, func(df *dataflow.DataFlow) *dataflow.DataFlow {
				return df.SetJSON(req)
			})
		}},
		{Name: StrategyMultipartPost, Run: func(ctx context.Context) (bool, error) {
			return true, c.postExpectSuccess(ctx, endpoint, func(df *dataflow.DataFlow) *dataflow.DataFlow {
				return df.SetForm(form)
			})
		}},
		{Name: StrategyFormPost, Run: func(ctx context.Context) (bool, error) {
			return true, c.postExpectSuccess(ctx, endpoint, func(df *dataflow.DataFlow) *dataflow.DataFlow {
				return df.SetWWWForm(form)
			})
		}},
	}
	if c.cfg.BlindWrite {
		body, err := json.Marshal(req)
		if err != nil {
			return catalog.WriteResult{}, errors.Wrap(err, "encode update request")
		}
		strategies = append(strategies, Strategy[bool]{Name: StrategyBlindPost, Run: func(ctx context.Context) (bool, error) {
			return false, c.postBlind(ctx, endpoint, body)
		}})
	}

	ch := chain[bool]{
		op:         "failed to update products document",
		hint:       "check the update endpoint URL in settings",
		strategies: strategies,
		breakers:   c.breakers,
		recorder:   c.recorder,
		logger:     c.logger,
	}
	confirmed, strategy, err := ch.run(ctx)
	if err != nil {
		return catalog.WriteResult{}, err
	}
	return catalog.WriteResult{
		Version:   catalog.Fingerprint(products),
		Strategy:  strategy,
		Confirmed: confirmed,
	}, nil
}

// postExpectSuccess posts and requires a 2xx reply carrying success:true.
func (c *Client) postExpectSuccess(ctx context.Context, endpoint string, body func(*dataflow.DataFlow) *dataflow.DataFlow) error {
	var reply Reply
	return c.postReply(ctx, endpoint, body, &reply, func() error {
		if !reply.Success {
			return errors.Errorf("endpoint replied success=false: %s", reply.reason())
		}
		return nil
	})
}

func (c *Client) postReply(ctx context.Context, endpoint string, body func(*dataflow.DataFlow) *dataflow.DataFlow, out interface{}, check func() error) error {
	resp, err := c.do(ctx, 0, func(g *dataflow.Gout) *dataflow.DataFlow {
		return body(g.POST(endpoint))
	})
	if err != nil {
		return err
	}
	if !resp.ok() {
		return resp.statusError()
	}
	if err := parseReply(resp.Body, out); err != nil {
		return err
	}
	return check()
}

// postBlind sends the request without reading the reply, the way a browser
// in no-cors mode would, then waits for the endpoint to finish writing.
func (c *Client) postBlind(ctx context.Context, endpoint string, body []byte) error {
	_, err := c.do(ctx, 0, func(g *dataflow.Gout) *dataflow.DataFlow {
		return g.POST(endpoint).
			SetHeader(gout.H{"Content-Type": "text/plain;charset=utf-8"}).
			SetBody(string(body))
	})
	if err != nil {
		return err
	}
	c.logger.Warn("products document sent without confirmation",
		zap.String("namespace", "remote"),
		zap.Duration("settle", c.cfg.SettleDelay))
	return c.sleep(ctx, c.cfg.SettleDelay)
}
