package remote

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sony/gobreaker/v2"
	"github.com/vitaspro/storefront/internal/catalog"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Strategy is one way of performing an operation. A strategy succeeds when it
// returns a nil error.
type Strategy[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

// Recorder receives the outcome of each attempt.
type Recorder interface {
	ObserveAttempt(op, strategy string, ok bool, elapsed time.Duration)
}

// ExhaustedError is returned when every strategy of a chain failed.
type ExhaustedError struct {
	Op       string
	Hint     string
	Attempts []string
	Last     error
	Errs     error
}

func (e *ExhaustedError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Last)
	if e.Hint != "" {
		msg += "; " + e.Hint
	}
	return fmt.Sprintf("%s (tried %s)", msg, strings.Join(e.Attempts, ", "))
}

// Unwrap lets errors.Is match catalog.ErrUnreachable.
func (e *ExhaustedError) Unwrap() error {
	return catalog.ErrUnreachable
}

// Causes lists the error of every attempt in order.
func (e *ExhaustedError) Causes() []error {
	return multierr.Errors(e.Errs)
}

// chain runs strategies in order and returns the first success. Strategies
// after the first success are never invoked.
type chain[T any] struct {
	op         string
	hint       string
	strategies []Strategy[T]
	breakers   *breakerSet
	recorder   Recorder
	logger     *zap.Logger
}

func (c chain[T]) run(ctx context.Context) (T, string, error) {
	var (
		zero  T
		errs  error
		last  error
		names []string
	)
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return zero, "", errors.Wrap(err, c.op)
		}
		start := time.Now()
		var result T
		err := c.breakers.execute(c.op+"/"+s.Name, func() error {
			var runErr error
			result, runErr = s.Run(ctx)
			return runErr
		})
		elapsed := time.Since(start)
		if c.recorder != nil {
			c.recorder.ObserveAttempt(c.op, s.Name, err == nil, elapsed)
		}
		if err == nil {
			c.logger.Debug("strategy succeeded",
				zap.String("namespace", "remote"),
				zap.String("op", c.op),
				zap.String("strategy", s.Name),
				zap.Duration("elapsed", elapsed))
			return result, s.Name, nil
		}
		c.logger.Warn("strategy failed",
			zap.String("namespace", "remote"),
			zap.String("op", c.op),
			zap.String("strategy", s.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		names = append(names, s.Name)
		last = errors.Wrap(err, s.Name)
		errs = multierr.Append(errs, last)
	}
	if last == nil {
		return zero, "", errors.Wrapf(catalog.ErrNotConfigured, "%s: no strategy available", c.op)
	}
	return zero, "", &ExhaustedError{Op: c.op, Hint: c.hint, Attempts: names, Last: last, Errs: errs}
}

// breakerSet keeps one circuit breaker per strategy so a transport that keeps
// failing is skipped quickly.
type breakerSet struct {
	enabled bool
	mu      sync.Mutex
	cbs     map[string]*gobreaker.CircuitBreaker[struct{}]
}

func newBreakerSet(enabled bool) *breakerSet {
	return &breakerSet{enabled: enabled, cbs: map[string]*gobreaker.CircuitBreaker[struct{}]{}}
}

func (b *breakerSet) get(name string) *gobreaker.CircuitBreaker[struct{}] {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.cbs[name]; ok {
		return cb
	}
	var st gobreaker.Settings
	st.Name = name
	st.Timeout = 30 * time.Second
	st.ReadyToTrip = func(counts gobreaker.Counts) bool {
		failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
		return counts.Requests >= 3 && failureRatio >= 0.6
	}
	st.IsSuccessful = func(err error) bool {
		return err == nil || errors.Is(err, context.Canceled)
	}
	st.OnStateChange = func(name string, from, to gobreaker.State) {
		zap.L().Info("circuit breaker state changed",
			zap.String("namespace", "remote"),
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()))
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](st)
	b.cbs[name] = cb
	return cb
}

func (b *breakerSet) execute(name string, fn func() error) error {
	if b == nil || !b.enabled {
		return fn()
	}
	_, err := b.get(name).Execute(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// States reports the state of every breaker created so far.
func (b *breakerSet) states() map[string]string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]string, len(b.cbs))
	for name, cb := range b.cbs {
		out[name] = cb.State().String()
	}
	return out
}
