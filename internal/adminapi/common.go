package adminapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/app"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/settings"
	"github.com/vitaspro/storefront/internal/webserver"
	"gorm.io/gorm"
)

// Response is the success envelope.
type Response struct {
	Data interface{} `json:"data"`
}

// ListResponse is the paged success envelope.
type ListResponse struct {
	Data interface{} `json:"data"`
	Meta ListMeta    `json:"meta"`
}

type ListMeta struct {
	Total    int64 `json:"total"`
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
}

// ErrorResponse is the failure envelope.
type ErrorResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Init registers every admin route on the web server.
func Init() {
	registerAuthRoutes()
	registerProductRoutes()
	registerSettingsRoutes()
	registerImageRoutes()
	registerSyncRoutes()
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, Response{Data: data})
}

func created(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusCreated, Response{Data: data})
}

func paged(c echo.Context, rows interface{}, total int64, page, pageSize int) error {
	return c.JSON(http.StatusOK, ListResponse{
		Data: rows,
		Meta: ListMeta{Total: total, Page: page, PageSize: pageSize},
	})
}

func fail(c echo.Context, status int, code, message string, details interface{}) error {
	return c.JSON(status, ErrorResponse{Code: code, Message: message, Details: details})
}

// failFor maps catalog and settings errors to HTTP failures.
func failFor(c echo.Context, err error, message string) error {
	var nf *catalog.NotFoundError
	var verr *settings.ValidationError
	switch {
	case errors.As(err, &nf):
		return fail(c, http.StatusNotFound, "NOT_FOUND", message, map[string]interface{}{
			"id":    nf.ID,
			"known": nf.Known,
		})
	case errors.As(err, &verr):
		return fail(c, http.StatusBadRequest, "INVALID_SETTINGS", message, verr.Fields)
	case errors.Is(err, catalog.ErrInvalid):
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", message, err.Error())
	case errors.Is(err, catalog.ErrConflict):
		return fail(c, http.StatusConflict, "CONFLICT", message, err.Error())
	case errors.Is(err, catalog.ErrNotConfigured):
		return fail(c, http.StatusServiceUnavailable, "NOT_CONFIGURED", message, err.Error())
	case errors.Is(err, catalog.ErrUnreachable):
		return fail(c, http.StatusBadGateway, "STORE_UNREACHABLE", message, err.Error())
	}
	return fail(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, err.Error())
}

// handleValidationError reports validator failures field by field.
func handleValidationError(c echo.Context, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Invalid request parameters", err.Error())
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		fields[strings.ToLower(fe.Field())] = rule
	}
	return fail(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", fields)
}

func GetAppContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

func GetDB(c echo.Context) *gorm.DB {
	return GetAppContext(c).DB()
}

// parsePagination reads page and perPage (or the older pageSize).
func parsePagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("perPage"))
	if size == 0 {
		size, _ = strconv.Atoi(c.QueryParam("pageSize"))
	}
	if size < 1 || size > 500 {
		size = 20
	}
	return page, size
}
