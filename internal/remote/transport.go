package remote

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	"github.com/pkg/errors"
)

// StatusError is a non-2xx reply.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("http %d: %s", e.Code, body)
}

// ErrTimeout marks an attempt that ran out of time.
var ErrTimeout = errors.New("request timed out")

type response struct {
	Code        int
	Body        []byte
	ContentType string
}

type responseHeader struct {
	ContentType string `header:"Content-Type"`
}

// do runs one request with its own deadline. Non-2xx replies are returned as
// a response, not an error; callers decide.
func (c *Client) do(ctx context.Context, timeout time.Duration, build func(*dataflow.Gout) *dataflow.DataFlow) (response, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	var (
		body string
		code int
		hdr  responseHeader
	)
	err := build(gout.New(c.httpClient)).
		WithContext(ctx).
		BindBody(&body).
		BindHeader(&hdr).
		Code(&code).
		Do()
	if err != nil {
		if isTimeout(ctx, err) {
			return response{}, errors.Wrap(ErrTimeout, err.Error())
		}
		return response{}, errors.Wrap(err, "transport")
	}
	return response{Code: code, Body: []byte(body), ContentType: hdr.ContentType}, nil
}

func (r response) ok() bool {
	return r.Code >= 200 && r.Code < 300
}

func (r response) statusError() error {
	return &StatusError{Code: r.Code, Body: string(r.Body)}
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// retryable reports whether the read endpoint should be asked again.
func retryable(err error) bool {
	if errors.Is(err, ErrTimeout) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		switch se.Code {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return true
		}
	}
	return false
}
