package webserver

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/app"
	"github.com/vitaspro/storefront/internal/catalog"
)

// configOnly satisfies app.AppContext for routes that only read the config.
type configOnly struct {
	app.AppContext
	cfg *config.AppConfig
}

func (c configOnly) Config() *config.AppConfig { return c.cfg }

func setupServer(t *testing.T) *config.AppConfig {
	t.Helper()
	cfg := config.DefaultAppConfig()
	cfg.Web.Secret = "test-secret"
	Init(configOnly{cfg: cfg})
	return cfg
}

func TestAdminRoutesRequireToken(t *testing.T) {
	cfg := setupServer(t)
	ApiGET("/whoami", func(c echo.Context) error {
		op := catalog.OperatorFrom(c.Request().Context())
		return c.String(http.StatusOK, op.Name)
	})

	req := httptest.NewRequest(http.MethodGet, AdminPrefix+"/whoami", nil)
	rec := httptest.NewRecorder()
	Root().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "UNAUTHORIZED")

	token, expires, err := IssueToken(cfg.Web.Secret, "admin", time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	req = httptest.NewRequest(http.MethodGet, AdminPrefix+"/whoami", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec = httptest.NewRecorder()
	Root().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))
}

func TestTokenSignedWithOtherSecretIsRejected(t *testing.T) {
	setupServer(t)
	ApiGET("/ping", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	token, _, err := IssueToken("another-secret", "admin", time.Hour)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, AdminPrefix+"/ping", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	rec := httptest.NewRecorder()
	Root().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPublicRoutesAndValidator(t *testing.T) {
	setupServer(t)
	type payload struct {
		Name string `json:"name" validate:"required"`
	}
	PubPOST("/echo", func(c echo.Context) error {
		var p payload
		if err := c.Bind(&p); err != nil {
			return err
		}
		if err := c.Validate(&p); err != nil {
			return c.String(http.StatusBadRequest, "invalid")
		}
		return c.String(http.StatusOK, p.Name)
	})

	req := httptest.NewRequest(http.MethodPost, ApiPrefix+"/echo", nil)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	Root().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	assert.Contains(t, Routes(), "POST "+ApiPrefix+"/echo")
}

func TestReadyAndMetrics(t *testing.T) {
	setupServer(t)
	for _, path := range []string{"/ready", "/metrics"} {
		rec := httptest.NewRecorder()
		Root().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
