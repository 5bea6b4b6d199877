// Package storefront serves the public, read-only catalog from the snapshot cache.
package storefront

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/vitaspro/storefront/internal/app"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"github.com/vitaspro/storefront/internal/drive"
	"github.com/vitaspro/storefront/internal/webserver"
)

// ProductView is a product as the shop pages render it.
type ProductView struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Price       string   `json:"price"`
	Image       string   `json:"image"`
	ImageURL    string   `json:"imageUrl"`
	Images      []string `json:"images,omitempty"`
	Gallery     []string `json:"gallery,omitempty"`
	Description string   `json:"description"`
	Category    string   `json:"category,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	IsNew       bool     `json:"isNew"`
}

type categoryView struct {
	domain.Category
	Slug  string `json:"slug"`
	Items int    `json:"items"`
}

type listMeta struct {
	Total    int             `json:"total"`
	Page     int             `json:"page"`
	PageSize int             `json:"page_size"`
	Status   catalog.Status  `json:"status"`
	Version  catalog.Version `json:"version"`
}

// Init registers the public catalog routes.
func Init() {
	webserver.PubGET("/catalog/products", ListProducts)
	webserver.PubGET("/catalog/products/:id", GetProduct)
	webserver.PubGET("/catalog/categories", ListCategories)
	webserver.PubGET("/catalog/categories/:slug", GetCategory)
	webserver.PubGET("/catalog/status", Status)
}

func appContext(c echo.Context) app.AppContext {
	return c.Get(webserver.AppContextKey).(app.AppContext)
}

func imageOptions(appCtx app.AppContext) drive.ImageOptions {
	cfg := appCtx.Config().Catalog
	return drive.ImageOptions{Placeholder: cfg.PlaceholderImage, ThumbnailWidth: cfg.ThumbnailWidth}
}

func viewOf(p domain.Product, opts drive.ImageOptions, now time.Time, window time.Duration) ProductView {
	return ProductView{
		ID:          p.ID.String(),
		Name:        p.Name,
		Price:       p.Price.String(),
		Image:       p.Image,
		ImageURL:    drive.ImageURL(p.Image, opts),
		Images:      p.Images,
		Description: p.Description,
		Category:    p.Category,
		CreatedAt:   p.CreatedAt,
		IsNew:       p.IsNew(now, window),
	}
}

// inCategory matches products filed under the category itself or under one
// of its subcategories.
func inCategory(category string) func(string) bool {
	names := append([]string{category}, domain.Subcategories(category)...)
	return func(got string) bool {
		for _, n := range names {
			if domain.SameCategory(got, n) {
				return true
			}
		}
		return false
	}
}

func matcher(category, subcategory, q string) func(domain.Product) bool {
	q = strings.ToLower(strings.TrimSpace(q))
	var inCat func(string) bool
	if category = strings.TrimSpace(category); category != "" {
		inCat = inCategory(category)
	}
	subcategory = strings.TrimSpace(subcategory)
	if inCat == nil && subcategory == "" && q == "" {
		return nil
	}
	return func(p domain.Product) bool {
		if subcategory != "" {
			if !domain.SameCategory(p.Category, subcategory) {
				return false
			}
		} else if inCat != nil && !inCat(p.Category) {
			return false
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.Description), q) {
			return false
		}
		return true
	}
}

func pagination(c echo.Context) (int, int) {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(c.QueryParam("perPage"))
	if size < 1 || size > 100 {
		size = 24
	}
	return page, size
}

// ListProducts pages through the served snapshot, newest first
// @Summary list products
// @Tags Catalog
// @Param category query string false "Category name or slug"
// @Param subcategory query string false "Subcategory name"
// @Param q query string false "Name or description contains"
// @Param page query int false "Page number"
// @Param perPage query int false "Items per page"
// @Success 200 {object} ProductView
// @Router /api/v1/catalog/products [get]
func ListProducts(c echo.Context) error {
	appCtx := appContext(c)
	cache := appCtx.Snapshots()
	page, size := pagination(c)

	rows, total := cache.Newest((page-1)*size, size,
		matcher(c.QueryParam("category"), c.QueryParam("subcategory"), c.QueryParam("q")))

	opts := imageOptions(appCtx)
	now := time.Now()
	window := appCtx.Config().Catalog.NewWindow
	items := make([]ProductView, 0, len(rows))
	for _, p := range rows {
		items = append(items, viewOf(p, opts, now, window))
	}
	st := cache.State()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": items,
		"meta": listMeta{Total: total, Page: page, PageSize: size, Status: st.Status, Version: st.Version},
	})
}

// GetProduct returns one product with its gallery
// @Summary get product detail
// @Tags Catalog
// @Param id path string true "Product ID"
// @Success 200 {object} ProductView
// @Router /api/v1/catalog/products/{id} [get]
func GetProduct(c echo.Context) error {
	appCtx := appContext(c)
	p, found := appCtx.Snapshots().Find(c.Param("id"))
	if !found {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"code":    "NOT_FOUND",
			"message": "Product not found",
		})
	}
	opts := imageOptions(appCtx)
	view := viewOf(p, opts, time.Now(), appCtx.Config().Catalog.NewWindow)
	for _, img := range drive.Gallery(p) {
		view.Gallery = append(view.Gallery, drive.ImageURL(img, opts))
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"data": view})
}

// ListCategories returns the flat category list
// @Summary list categories
// @Tags Catalog
// @Success 200 {object} domain.CategorySummary
// @Router /api/v1/catalog/categories [get]
func ListCategories(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"data": domain.CategoryList()})
}

// GetCategory returns a category with its subcategories and product count
// @Summary get category detail
// @Tags Catalog
// @Param slug path string true "Category slug, key or name"
// @Success 200 {object} categoryView
// @Router /api/v1/catalog/categories/{slug} [get]
func GetCategory(c echo.Context) error {
	cat, found := domain.FindCategory(c.Param("slug"))
	if !found {
		return c.JSON(http.StatusNotFound, map[string]interface{}{
			"code":    "NOT_FOUND",
			"message": "Category not found",
		})
	}
	_, total := appContext(c).Snapshots().Newest(0, 0, matcher(cat.Name, "", ""))
	return c.JSON(http.StatusOK, map[string]interface{}{
		"data": categoryView{Category: cat, Slug: cat.Slug(), Items: total},
	})
}

// Status tells the shop whether the products it shows are current
// @Summary snapshot status
// @Tags Catalog
// @Success 200 {object} catalog.State
// @Router /api/v1/catalog/status [get]
func Status(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{"data": appContext(c).Snapshots().State()})
}
