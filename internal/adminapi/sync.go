package adminapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/montanaflynn/stats"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"github.com/vitaspro/storefront/internal/metrics"
	"github.com/vitaspro/storefront/internal/webserver"
)

// priceSummary describes the prices of the products being served.
type priceSummary struct {
	Priced   int     `json:"priced"`
	Unpriced int     `json:"unpriced"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
}

type syncStatus struct {
	Snapshot catalog.State            `json:"snapshot"`
	Breakers map[string]string        `json:"breakers"`
	Attempts []metrics.AttemptSummary `json:"attempts"`
	Prices   priceSummary             `json:"prices"`
}

func registerSyncRoutes() {
	webserver.ApiGET("/sync/status", SyncStatus)
	webserver.ApiPOST("/sync/refresh", RefreshCatalog)
	webserver.ApiGET("/sync/logs", ListSyncLogs)
	webserver.ApiPOST("/sync/backup", RunBackup)
}

func summarizePrices(products []domain.Product) priceSummary {
	var sum priceSummary
	data := make(stats.Float64Data, 0, len(products))
	for _, p := range products {
		if v, ok := p.Price.Float(); ok {
			data = append(data, v)
		} else {
			sum.Unpriced++
		}
	}
	sum.Priced = len(data)
	if len(data) == 0 {
		return sum
	}
	sum.Min, _ = data.Min()
	sum.Max, _ = data.Max()
	mean, _ := data.Mean()
	sum.Mean, _ = stats.Round(mean, 2)
	sum.Median, _ = data.Median()
	return sum
}

// SyncStatus reports the snapshot state, breaker states and recent attempt timings
// @Summary get sync status
// @Tags Sync
// @Success 200 {object} syncStatus
// @Router /api/v1/admin/sync/status [get]
func SyncStatus(c echo.Context) error {
	appCtx := GetAppContext(c)
	cache := appCtx.Snapshots()
	status := syncStatus{
		Snapshot: cache.State(),
		Breakers: appCtx.BreakerStates(),
		Attempts: []metrics.AttemptSummary{},
		Prices:   summarizePrices(cache.Snapshot().Products),
	}
	if m := appCtx.Metrics(); m != nil {
		if rows := m.AttemptSummaries(time.Hour); rows != nil {
			status.Attempts = rows
		}
	}
	return ok(c, status)
}

// RefreshCatalog reloads the storefront snapshot now
// @Summary refresh the storefront snapshot
// @Tags Sync
// @Success 200 {object} catalog.State
// @Router /api/v1/admin/sync/refresh [post]
func RefreshCatalog(c echo.Context) error {
	appCtx := GetAppContext(c)
	if _, err := appCtx.RefreshNow(c.Request().Context()); err != nil {
		return failFor(c, err, "Failed to refresh products")
	}
	return ok(c, appCtx.Snapshots().State())
}

// ListSyncLogs retrieves the change log
// @Summary get the sync log
// @Tags Sync
// @Param page query int false "Page number"
// @Param perPage query int false "Items per page"
// @Param order query string false "Sort direction"
// @Param action query string false "Action"
// @Param product_id query string false "Product ID"
// @Param result query string false "success or failure"
// @Success 200 {object} ListResponse
// @Router /api/v1/admin/sync/logs [get]
func ListSyncLogs(c echo.Context) error {
	db := GetDB(c)
	if db == nil {
		return fail(c, http.StatusServiceUnavailable, "NO_DATABASE", "No database is configured", nil)
	}
	page, perPage := parsePagination(c)

	order := strings.ToUpper(c.QueryParam("order"))
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	var total int64
	var logs []domain.SyncLog

	query := db.Model(&domain.SyncLog{})
	if action := strings.TrimSpace(c.QueryParam("action")); action != "" {
		query = query.Where("action = ?", action)
	}
	if pid := strings.TrimSpace(c.QueryParam("product_id")); pid != "" {
		query = query.Where("product_id = ?", pid)
	}
	if result := strings.TrimSpace(c.QueryParam("result")); result != "" {
		query = query.Where("result = ?", result)
	}

	if err := query.Count(&total).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to count sync logs", err.Error())
	}
	offset := (page - 1) * perPage
	if err := query.Order("opt_time " + order).Order("id " + order).Limit(perPage).Offset(offset).Find(&logs).Error; err != nil {
		return fail(c, http.StatusInternalServerError, "DATABASE_ERROR", "Failed to read sync logs", err.Error())
	}
	return paged(c, logs, total, page, perPage)
}

// RunBackup writes a backup of the products document
// @Summary back up the products document
// @Tags Sync
// @Success 200 {object} Response
// @Router /api/v1/admin/sync/backup [post]
func RunBackup(c echo.Context) error {
	path, err := GetAppContext(c).RunBackupNow(c.Request().Context())
	if err != nil {
		return failFor(c, err, "Backup failed")
	}
	return ok(c, map[string]string{"path": path})
}
