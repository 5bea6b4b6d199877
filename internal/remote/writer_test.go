package remote

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"go.uber.org/zap"
)

// stubEndpoint imitates the serverless script: GET returns the document,
// POST replaces it. reject lists content types it answers with success:false.
type stubEndpoint struct {
	mu       sync.Mutex
	document string
	reject   map[string]bool
	status   int
	posts    []string
	received []string
}

func (s *stubEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.Method == http.MethodGet {
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, s.document)
		return
	}

	kind := contentKind(r.Header.Get("Content-Type"))
	s.posts = append(s.posts, kind)
	if s.status != 0 {
		w.WriteHeader(s.status)
		_, _ = io.WriteString(w, "server error")
		return
	}
	if s.reject[kind] {
		_, _ = io.WriteString(w, `{"success":false,"message":"unsupported encoding"}`)
		return
	}

	var data string
	switch kind {
	case "json":
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Action string              `json:"action"`
			Data   jsoniter.RawMessage `json:"data"`
			FileID string              `json:"fileId"`
		}
		if err := json.Unmarshal(body, &req); err != nil || req.Action != "update" {
			_, _ = io.WriteString(w, `{"success":false,"message":"bad request"}`)
			return
		}
		s.received = append(s.received, req.FileID)
		data = string(req.Data)
	case "multipart":
		_ = r.ParseMultipartForm(1 << 20)
		s.received = append(s.received, r.FormValue("fileId"))
		data = r.FormValue("data")
	case "form":
		_ = r.ParseForm()
		s.received = append(s.received, r.FormValue("fileId"))
		data = r.FormValue("data")
	default:
		body, _ := io.ReadAll(r.Body)
		var req struct {
			Data jsoniter.RawMessage `json:"data"`
		}
		_ = json.Unmarshal(body, &req)
		data = string(req.Data)
	}
	s.document = data
	_, _ = io.WriteString(w, `{"success":true,"message":"ok","itemsCount":1}`)
}

func contentKind(ct string) string {
	switch {
	case strings.HasPrefix(ct, "application/json"):
		return "json"
	case strings.HasPrefix(ct, "multipart/form-data"):
		return "multipart"
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		return "form"
	}
	return "other"
}

func newEndpointClient(t *testing.T, cfg Config, endpoint string) *Client {
	t.Helper()
	c, err := NewClient(cfg, StaticSettings(domain.DriveSettings{
		FileURL:               testFileURL,
		ProductsJSONUpdateURL: endpoint,
	}), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	t.Cleanup(c.Close)
	return c
}

func TestSaveLoadRoundTrip(t *testing.T) {
	stub := &stubEndpoint{document: "[]"}
	srv := httptest.NewServer(stub)
	defer srv.Close()
	c := newEndpointClient(t, testConfig(), srv.URL)

	products := []domain.Product{
		{ID: "1", Name: "Šampon", Price: "1200", Image: "a.jpg", Images: domain.ImageList{"b.jpg", "c.jpg"}, Category: "KOSA", CreatedAt: "2024-05-10T12:00:00.000Z"},
		{ID: "2", Name: "Lak", Price: "450", Image: "d.jpg", Description: "Crveni"},
	}
	res, err := c.Save(context.Background(), products, catalog.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, StrategyJSONPost, res.Strategy)
	assert.True(t, res.Confirmed)
	assert.Equal(t, []string{testFileID}, stub.received)

	snap, err := c.Load(context.Background(), catalog.LoadOptions{Force: true})
	require.NoError(t, err)
	assert.Equal(t, StrategyEndpoint, snap.Source)
	assert.Equal(t, products, snap.Products)
	assert.Equal(t, res.Version, snap.Version)
}

func TestSaveFallsBackToNextEncoding(t *testing.T) {
	stub := &stubEndpoint{document: "[]", reject: map[string]bool{"json": true}}
	srv := httptest.NewServer(stub)
	defer srv.Close()
	c := newEndpointClient(t, testConfig(), srv.URL)

	res, err := c.Save(context.Background(), []domain.Product{{ID: "1", Name: "A", Price: "1"}}, catalog.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, StrategyMultipartPost, res.Strategy)
	assert.Equal(t, []string{"json", "multipart"}, stub.posts)
	assert.Contains(t, stub.document, `"name":"A"`)
}

func TestSaveUsesURLEncodedForm(t *testing.T) {
	stub := &stubEndpoint{document: "[]", reject: map[string]bool{"json": true, "multipart": true}}
	srv := httptest.NewServer(stub)
	defer srv.Close()
	c := newEndpointClient(t, testConfig(), srv.URL)

	res, err := c.Save(context.Background(), []domain.Product{{ID: "1", Name: "A", Price: "1"}}, catalog.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, StrategyFormPost, res.Strategy)
	assert.Equal(t, []string{"json", "multipart", "form"}, stub.posts)
}

func TestSaveBlindWriteIsLastResort(t *testing.T) {
	stub := &stubEndpoint{document: "[]", reject: map[string]bool{"json": true, "multipart": true, "form": true}}
	srv := httptest.NewServer(stub)
	defer srv.Close()
	cfg := testConfig()
	cfg.BlindWrite = true
	cfg.SettleDelay = time.Hour
	c := newEndpointClient(t, cfg, srv.URL)

	var slept time.Duration
	c.sleep = func(_ context.Context, d time.Duration) error { slept = d; return nil }

	res, err := c.Save(context.Background(), []domain.Product{{ID: "1", Name: "A", Price: "1"}}, catalog.SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, StrategyBlindPost, res.Strategy)
	assert.False(t, res.Confirmed)
	assert.Equal(t, time.Hour, slept)
	assert.Len(t, stub.posts, 4)
}

func TestSaveReportsLastErrorAndHint(t *testing.T) {
	stub := &stubEndpoint{document: "[]", status: http.StatusInternalServerError}
	srv := httptest.NewServer(stub)
	defer srv.Close()
	c := newEndpointClient(t, testConfig(), srv.URL)

	_, err := c.Save(context.Background(), []domain.Product{{ID: "1"}}, catalog.SaveOptions{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, catalog.ErrUnreachable))
	assert.Contains(t, err.Error(), "failed to update products document")
	assert.Contains(t, err.Error(), "http 500")
	assert.Contains(t, err.Error(), "check the update endpoint URL in settings")
	assert.Len(t, stub.posts, 3)
}

func TestSaveRequiresEndpoint(t *testing.T) {
	c, err := NewClient(testConfig(), StaticSettings(domain.DriveSettings{FileURL: testFileURL}), WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Save(context.Background(), nil, catalog.SaveOptions{})
	assert.True(t, errors.Is(err, catalog.ErrNotConfigured))
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	stub := &stubEndpoint{document: productsJSON}
	srv := httptest.NewServer(stub)
	defer srv.Close()
	cfg := testConfig()
	cfg.VerifyBeforeWrite = true
	c := newEndpointClient(t, cfg, srv.URL)

	_, err := c.Save(context.Background(), nil, catalog.SaveOptions{Expected: "0"})
	assert.True(t, errors.Is(err, catalog.ErrConflict))
	assert.Empty(t, stub.posts)

	snap, err := c.Load(context.Background(), catalog.LoadOptions{})
	require.NoError(t, err)
	_, err = c.Save(context.Background(), snap.Products[:1], catalog.SaveOptions{Expected: snap.Version})
	require.NoError(t, err)
	assert.Equal(t, []string{"json"}, stub.posts)
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestSaveVerifyReadDoesNotSpendWriteBudget(t *testing.T) {
	var mu sync.Mutex
	var posts int
	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		reply := func(ctype, body string) (*http.Response, error) {
			return &http.Response{
				StatusCode: http.StatusOK,
				Header:     http.Header{"Content-Type": []string{ctype}},
				Body:       io.NopCloser(strings.NewReader(body)),
				Request:    r,
			}, nil
		}
		switch {
		case r.URL.Host == "script.google.com" && r.Method == http.MethodGet:
			<-r.Context().Done()
			return nil, r.Context().Err()
		case r.URL.Host == "script.google.com":
			mu.Lock()
			posts++
			mu.Unlock()
			return reply("application/json", `{"success":true}`)
		case isDirect(r):
			return reply("application/json", productsJSON)
		}
		return nil, errors.New("unexpected request " + r.URL.String())
	})

	cfg := testConfig()
	cfg.ReadTimeout = 100 * time.Millisecond
	cfg.WriteTimeout = 250 * time.Millisecond
	cfg.VerifyBeforeWrite = true
	c, err := NewClient(cfg, StaticSettings(domain.DriveSettings{FileURL: testFileURL, ProductsJSONUpdateURL: testEndpoint}),
		WithHTTPClient(&http.Client{Transport: rt}),
		WithLogger(zap.NewNop()))
	require.NoError(t, err)
	defer c.Close()

	current, err := ParseDocument([]byte(productsJSON), "application/json")
	require.NoError(t, err)

	res, err := c.Save(context.Background(), current[:1], catalog.SaveOptions{Expected: catalog.Fingerprint(current)})
	require.NoError(t, err)
	assert.Equal(t, StrategyJSONPost, res.Strategy)
	assert.Equal(t, 1, posts)
}
