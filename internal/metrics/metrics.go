package metrics

import (
	"os"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/nakabonne/tstorage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	AttemptMetric     = "remote_attempt_ms"
	CatalogSizeMetric = "catalog_size"
)

// Store keeps short-lived time series for the sync layer.
type Store struct {
	ts  tstorage.Storage
	now func() time.Time

	mu     sync.Mutex
	series map[attemptKey]struct{}
	gauges map[string]struct{}
}

type attemptKey struct {
	op, strategy, outcome string
}

// AttemptSummary aggregates attempts of one strategy of one operation.
type AttemptSummary struct {
	Op       string  `json:"op"`
	Strategy string  `json:"strategy"`
	Attempts int     `json:"attempts"`
	Failures int     `json:"failures"`
	MeanMs   float64 `json:"mean_ms"`
	P95Ms    float64 `json:"p95_ms"`
}

// New opens a store. An empty dataPath keeps everything in memory.
func New(dataPath string) (*Store, error) {
	opts := []tstorage.Option{
		tstorage.WithTimestampPrecision(tstorage.Milliseconds),
		tstorage.WithPartitionDuration(time.Hour),
		tstorage.WithRetention(7 * 24 * time.Hour),
	}
	if dataPath != "" {
		if err := os.MkdirAll(dataPath, 0o755); err != nil {
			return nil, errors.Wrap(err, "create metrics dir")
		}
		opts = append(opts, tstorage.WithDataPath(dataPath))
	}
	ts, err := tstorage.NewStorage(opts...)
	if err != nil {
		return nil, errors.Wrap(err, "open metrics storage")
	}
	return &Store{
		ts:     ts,
		now:    time.Now,
		series: make(map[attemptKey]struct{}),
		gauges: make(map[string]struct{}),
	}, nil
}

func (s *Store) insert(metric string, labels []tstorage.Label, value float64) {
	err := s.ts.InsertRows([]tstorage.Row{{
		Metric:    metric,
		Labels:    labels,
		DataPoint: tstorage.DataPoint{Timestamp: s.now().UnixMilli(), Value: value},
	}})
	if err != nil {
		zap.S().Warnf("metrics insert %s error %s", metric, err.Error())
	}
}

func (s *Store) selectPoints(metric string, labels []tstorage.Label, window time.Duration) []*tstorage.DataPoint {
	end := s.now().Add(time.Millisecond)
	points, err := s.ts.Select(metric, labels, end.Add(-window).UnixMilli(), end.UnixMilli())
	if err != nil {
		if !errors.Is(err, tstorage.ErrNoDataPoints) {
			zap.S().Warnf("metrics select %s error %s", metric, err.Error())
		}
		return nil
	}
	return points
}

func outcome(ok bool) string {
	if ok {
		return "ok"
	}
	return "failed"
}

// ObserveAttempt records how long one fallback attempt took.
func (s *Store) ObserveAttempt(op, strategy string, ok bool, elapsed time.Duration) {
	key := attemptKey{op: op, strategy: strategy, outcome: outcome(ok)}
	s.mu.Lock()
	s.series[key] = struct{}{}
	s.mu.Unlock()
	s.insert(AttemptMetric, key.labels(), float64(elapsed.Microseconds())/1000)
}

func (k attemptKey) labels() []tstorage.Label {
	return []tstorage.Label{
		{Name: "op", Value: k.op},
		{Name: "strategy", Value: k.strategy},
		{Name: "outcome", Value: k.outcome},
	}
}

// SetGauge stores the current value of a named gauge.
func (s *Store) SetGauge(name string, value int64) {
	s.mu.Lock()
	s.gauges[name] = struct{}{}
	s.mu.Unlock()
	s.insert(name, nil, float64(value))
}

// Gauge returns the latest value seen within window.
func (s *Store) Gauge(name string, window time.Duration) (int64, bool) {
	points := s.selectPoints(name, nil, window)
	if len(points) == 0 {
		return 0, false
	}
	latest := points[0]
	for _, p := range points[1:] {
		if p.Timestamp >= latest.Timestamp {
			latest = p
		}
	}
	return int64(latest.Value), true
}

// AttemptSummaries aggregates the attempts recorded within window,
// sorted by operation then strategy.
func (s *Store) AttemptSummaries(window time.Duration) []AttemptSummary {
	s.mu.Lock()
	keys := make([]attemptKey, 0, len(s.series))
	for k := range s.series {
		keys = append(keys, k)
	}
	s.mu.Unlock()

	type group struct {
		summary AttemptSummary
		values  []float64
	}
	groups := make(map[[2]string]*group)
	for _, k := range keys {
		points := s.selectPoints(AttemptMetric, k.labels(), window)
		if len(points) == 0 {
			continue
		}
		gk := [2]string{k.op, k.strategy}
		g, ok := groups[gk]
		if !ok {
			g = &group{summary: AttemptSummary{Op: k.op, Strategy: k.strategy}}
			groups[gk] = g
		}
		g.summary.Attempts += len(points)
		if k.outcome != "ok" {
			g.summary.Failures += len(points)
		}
		for _, p := range points {
			g.values = append(g.values, p.Value)
		}
	}

	result := make([]AttemptSummary, 0, len(groups))
	for _, g := range groups {
		g.summary.MeanMs, _ = stats.Mean(g.values)
		g.summary.P95Ms, _ = stats.Percentile(g.values, 95)
		result = append(result, g.summary)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Op != result[j].Op {
			return result[i].Op < result[j].Op
		}
		return result[i].Strategy < result[j].Strategy
	})
	return result
}

func (s *Store) Close() error {
	return s.ts.Close()
}

var (
	defaultStore *Store
	defaultMu    sync.Mutex
)

// InitMetrics opens the process-wide store under workdir/data/metrics.
func InitMetrics(workdir string) error {
	dataPath := ""
	if workdir != "" {
		dataPath = path.Join(workdir, "data", "metrics")
	}
	s, err := New(dataPath)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	defaultStore = s
	defaultMu.Unlock()
	return nil
}

// Default returns the process-wide store, or nil before InitMetrics.
func Default() *Store {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultStore
}

func SetGauge(name string, value int64) {
	if s := Default(); s != nil {
		s.SetGauge(name, value)
	}
}

func Close() error {
	defaultMu.Lock()
	s := defaultStore
	defaultStore = nil
	defaultMu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
