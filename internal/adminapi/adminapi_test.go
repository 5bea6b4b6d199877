package adminapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/vitaspro/storefront/config"
	"github.com/vitaspro/storefront/internal/app"
	"github.com/vitaspro/storefront/internal/webserver"
	"golang.org/x/crypto/bcrypt"
)

const adminPassword = "lozinka-za-test"

type AdminAPISuite struct {
	suite.Suite
	app   *app.Application
	token string
}

func TestAdminAPISuite(t *testing.T) {
	suite.Run(t, new(AdminAPISuite))
}

func (s *AdminAPISuite) SetupTest() {
	t := s.T()
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.MinCost)
	require.NoError(t, err)

	cfg := config.DefaultAppConfig()
	cfg.System.Workdir = t.TempDir()
	cfg.Storage.Backend = config.BackendDatabase
	cfg.Catalog.RefreshDelay = time.Millisecond
	cfg.Web.Secret = "adminapi-test"
	cfg.Web.AdminPassword = string(hash)
	require.NoError(t, os.MkdirAll(cfg.GetDataDir(), 0o755))

	db, err := app.OpenDatabase(cfg.Database, cfg.System.Workdir)
	require.NoError(t, err)
	a := app.NewApplication(cfg)
	a.OverrideDB(db)
	require.NoError(t, a.MigrateDB(false))
	require.NoError(t, a.Setup(nil))
	s.app = a

	webserver.Init(a)
	Init()
	s.token = s.login(adminPassword)
}

func (s *AdminAPISuite) TearDownTest() {
	s.app.Release()
}

func (s *AdminAPISuite) login(password string) string {
	rec := s.do(http.MethodPost, "/api/v1/login", map[string]string{"password": password}, false)
	if rec.Code != http.StatusOK {
		return ""
	}
	var body struct {
		Data loginResult `json:"data"`
	}
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	return body.Data.Token
}

func (s *AdminAPISuite) do(method, target string, payload interface{}, auth bool) *httptest.ResponseRecorder {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		s.Require().NoError(err)
		body = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, body)
	if payload != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	return s.serve(req, auth)
}

func (s *AdminAPISuite) serve(req *http.Request, auth bool) *httptest.ResponseRecorder {
	if auth {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	webserver.Root().ServeHTTP(rec, req)
	return rec
}

func (s *AdminAPISuite) decode(rec *httptest.ResponseRecorder, v interface{}) {
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func (s *AdminAPISuite) createProduct(name, price, category string) map[string]interface{} {
	rec := s.do(http.MethodPost, "/api/v1/admin/products", map[string]interface{}{
		"name":     name,
		"price":    price,
		"image":    "https://drive.google.com/file/d/img" + price + "/view",
		"category": category,
	}, true)
	s.Require().Equal(http.StatusCreated, rec.Code, rec.Body.String())
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	s.decode(rec, &body)
	return body.Data
}

func (s *AdminAPISuite) TestLogin() {
	s.NotEmpty(s.token)
	s.Empty(s.login("pogresna"))

	rec := s.do(http.MethodPost, "/api/v1/login", map[string]string{"password": "pogresna"}, false)
	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), "INVALID_CREDENTIALS")

	rec = s.do(http.MethodGet, "/api/v1/admin/products", nil, false)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *AdminAPISuite) TestProductLifecycle() {
	created := s.createProduct("Krema za ruke", "990", "preparati-za-lice-i-telo")
	id := created["id"].(string)
	s.NotEmpty(id)
	s.Equal("PREPARATI ZA LICE I TELO", created["category"])
	s.NotEmpty(created["createdAt"])

	rec := s.do(http.MethodGet, "/api/v1/admin/products/"+id, nil, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Contains(rec.Body.String(), "Krema za ruke")

	rec = s.do(http.MethodPut, "/api/v1/admin/products/"+id, map[string]interface{}{"name": "Krema za ruke 100ml", "price": 1090}, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var updated struct {
		Data map[string]interface{} `json:"data"`
	}
	s.decode(rec, &updated)
	s.Equal("Krema za ruke 100ml", updated.Data["name"])
	s.Equal("1090", updated.Data["price"])
	s.Equal(created["createdAt"], updated.Data["createdAt"])

	rec = s.do(http.MethodGet, "/api/v1/admin/products", nil, true)
	s.Equal(http.StatusOK, rec.Code)
	s.Equal("2", rec.Header().Get("X-Catalog-Version"))
	var list ListResponse
	s.decode(rec, &list)
	s.Equal(int64(1), list.Meta.Total)

	rec = s.do(http.MethodDelete, "/api/v1/admin/products/"+id, nil, true)
	s.Equal(http.StatusNoContent, rec.Code)

	rec = s.do(http.MethodGet, "/api/v1/admin/products/"+id, nil, true)
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *AdminAPISuite) TestNotFoundListsKnownIDs() {
	created := s.createProduct("Lak za nokte", "450", "NOKTI")

	rec := s.do(http.MethodDelete, "/api/v1/admin/products/nepostojeci", nil, true)
	s.Equal(http.StatusNotFound, rec.Code)
	var body ErrorResponse
	s.decode(rec, &body)
	s.Equal("NOT_FOUND", body.Code)
	details := body.Details.(map[string]interface{})
	s.Equal("nepostojeci", details["id"])
	s.Equal([]interface{}{created["id"]}, details["known"])
}

func (s *AdminAPISuite) TestCreateValidation() {
	rec := s.do(http.MethodPost, "/api/v1/admin/products", map[string]interface{}{
		"name": "Bez kategorije", "price": "100", "image": "x.jpg", "category": "AUTOMOBILI",
	}, true)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "INVALID_CATEGORY")

	rec = s.do(http.MethodPost, "/api/v1/admin/products", map[string]interface{}{
		"price": "100", "image": "x.jpg", "category": "KOSA",
	}, true)
	s.Equal(http.StatusBadRequest, rec.Code)
	var body ErrorResponse
	s.decode(rec, &body)
	s.Equal("VALIDATION_ERROR", body.Code)
	s.Equal("required", body.Details.(map[string]interface{})["name"])
}

func (s *AdminAPISuite) TestReplaceWithStaleVersion() {
	s.createProduct("Fen", "7990", "KOSA")

	products := []map[string]interface{}{{"id": "1", "name": "Četka", "price": "500"}}
	rec := s.do(http.MethodPut, "/api/v1/admin/products", map[string]interface{}{
		"products": products, "version": "999",
	}, true)
	s.Equal(http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPut, "/api/v1/admin/products", map[string]interface{}{
		"products": products, "version": "1",
	}, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), `"version":"2"`)
}

func (s *AdminAPISuite) TestExport() {
	s.createProduct("Šampon", "890", "KOSA")

	rec := s.do(http.MethodGet, "/api/v1/admin/products/export?format=csv", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.True(strings.HasPrefix(rec.Body.String(), "id,name,price,category"))
	s.Contains(rec.Body.String(), "Šampon")
	s.Contains(rec.Header().Get(echo.HeaderContentDisposition), ".csv")

	rec = s.do(http.MethodGet, "/api/v1/admin/products/export?format=xlsx", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal(xlsxMIME, rec.Header().Get(echo.HeaderContentType))
	s.True(bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")))

	rec = s.do(http.MethodGet, "/api/v1/admin/products/export?format=pdf", nil, true)
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *AdminAPISuite) TestSettings() {
	rec := s.do(http.MethodPatch, "/api/v1/admin/settings", map[string]interface{}{"syncUrl": "ftp://example.com"}, true)
	s.Equal(http.StatusBadRequest, rec.Code)
	s.Contains(rec.Body.String(), "INVALID_SETTINGS")

	rec = s.do(http.MethodPatch, "/api/v1/admin/settings", map[string]interface{}{"syncUrl": "https://example.com/sync"}, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	var body struct {
		Data map[string]interface{} `json:"data"`
	}
	s.decode(rec, &body)
	s.Equal("https://example.com/sync", body.Data["readEndpoint"])
	s.Equal("1nuTKttBMej3SuIMtO3rJplsCDcJ_chnv", body.Data["fileId"])

	rec = s.do(http.MethodDelete, "/api/v1/admin/settings", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.NotContains(rec.Body.String(), "example.com/sync")
}

func (s *AdminAPISuite) TestUploadImage() {
	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"fileId":"IMG1","url":"https://drive.google.com/file/d/IMG1/view"}`)
	}))
	defer endpoint.Close()
	rec := s.do(http.MethodPatch, "/api/v1/admin/settings", map[string]interface{}{"appsScriptUrl": endpoint.URL}, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "krema.png")
	s.Require().NoError(err)
	_, _ = part.Write([]byte("\x89PNG\r\n\x1a\nimage"))
	s.Require().NoError(mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/images", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	rec = s.serve(req, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), "IMG1")

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/images", strings.NewReader("{}"))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	s.Equal(http.StatusBadRequest, s.serve(req, true).Code)
}

func (s *AdminAPISuite) TestSyncEndpoints() {
	s.createProduct("Fen", "7990", "KOSA")
	s.createProduct("Četka", "1010", "KOSA")

	rec := s.do(http.MethodPost, "/api/v1/admin/sync/refresh", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), `"status":"ok"`)

	rec = s.do(http.MethodGet, "/api/v1/admin/sync/status", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)
	var status struct {
		Data syncStatus `json:"data"`
	}
	s.decode(rec, &status)
	s.Equal(2, status.Data.Snapshot.Items)
	s.Equal(2, status.Data.Prices.Priced)
	s.Equal(1010.0, status.Data.Prices.Min)
	s.Equal(7990.0, status.Data.Prices.Max)
	s.Equal(4500.0, status.Data.Prices.Mean)

	rec = s.do(http.MethodGet, "/api/v1/admin/sync/logs?action=create", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code)
	var logs ListResponse
	s.decode(rec, &logs)
	s.Equal(int64(2), logs.Meta.Total)

	rec = s.do(http.MethodPost, "/api/v1/admin/sync/backup", nil, true)
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())
	s.Contains(rec.Body.String(), ".json")
}
