package adminapi

import (
	"net/http"
	"sort"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
	"github.com/vitaspro/storefront/internal/webserver"
)

type productPayload struct {
	Name        string           `json:"name" validate:"required,min=1,max=200"`
	Price       domain.Price     `json:"price" validate:"required,max=32"`
	Image       string           `json:"image" validate:"required,max=2048"`
	Images      domain.ImageList `json:"images" validate:"omitempty,max=30,dive,max=2048"`
	Description string           `json:"description" validate:"omitempty,max=5000"`
	Category    string           `json:"category" validate:"required,max=100"`
}

// productUpdatePayload relaxes validation rules for partial updates
type productUpdatePayload struct {
	Name        *string           `json:"name" validate:"omitempty,min=1,max=200"`
	Price       *domain.Price     `json:"price" validate:"omitempty,min=1,max=32"`
	Image       *string           `json:"image" validate:"omitempty,max=2048"`
	Images      *domain.ImageList `json:"images"`
	Description *string           `json:"description" validate:"omitempty,max=5000"`
	Category    *string           `json:"category" validate:"omitempty,max=100"`
}

type replacePayload struct {
	Products []domain.Product `json:"products" validate:"required"`
	Version  string           `json:"version"`
}

// registerProductRoutes registers product CRUD endpoints
func registerProductRoutes() {
	webserver.ApiGET("/products", ListProducts)
	webserver.ApiGET("/products/export", ExportProducts)
	webserver.ApiGET("/products/:id", GetProduct)
	webserver.ApiPOST("/products", CreateProduct)
	webserver.ApiPUT("/products", ReplaceProducts)
	webserver.ApiPUT("/products/:id", UpdateProduct)
	webserver.ApiDELETE("/products/:id", DeleteProduct)
}

// canonicalCategory resolves a category name, key or slug to its display name.
func canonicalCategory(name string) (string, bool) {
	if c, found := domain.FindCategory(name); found {
		return c.Name, true
	}
	return "", false
}

// ListProducts retrieves the product list straight from the store
// @Summary get the product list
// @Tags Products
// @Param page query int false "Page number"
// @Param perPage query int false "Items per page"
// @Param sort query string false "Sort field: id, name, price, created_at"
// @Param order query string false "Sort direction"
// @Param q query string false "Name or description contains"
// @Param category query string false "Category name or slug"
// @Param force query bool false "Bypass caches"
// @Success 200 {object} ListResponse
// @Router /api/v1/admin/products [get]
func ListProducts(c echo.Context) error {
	page, pageSize := parsePagination(c)
	snap, err := GetAppContext(c).Catalog().List(c.Request().Context(), c.QueryParam("force") == "true")
	if err != nil {
		return failFor(c, err, "Failed to read products")
	}

	q := strings.ToLower(strings.TrimSpace(c.QueryParam("q")))
	category := strings.TrimSpace(c.QueryParam("category"))
	rows := make([]domain.Product, 0, len(snap.Products))
	for _, p := range snap.Products {
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		if category != "" && !domain.SameCategory(p.Category, category) {
			continue
		}
		rows = append(rows, p)
	}

	sortProducts(rows, c.QueryParam("sort"), strings.ToUpper(c.QueryParam("order")) != "ASC")

	total := len(rows)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	c.Response().Header().Set("X-Catalog-Version", string(snap.Version))
	return paged(c, rows[start:end], int64(total), page, pageSize)
}

// sortProducts orders rows in place; the default keeps document order.
func sortProducts(rows []domain.Product, field string, desc bool) {
	var less func(a, b domain.Product) bool
	switch field {
	case "id":
		less = func(a, b domain.Product) bool { return a.ID.String() < b.ID.String() }
	case "name":
		less = func(a, b domain.Product) bool { return strings.ToLower(a.Name) < strings.ToLower(b.Name) }
	case "price":
		less = func(a, b domain.Product) bool {
			pa, _ := a.Price.Float()
			pb, _ := b.Price.Float()
			return pa < pb
		}
	case "created_at":
		less = func(a, b domain.Product) bool {
			ta, _ := a.CreatedTime()
			tb, _ := b.CreatedTime()
			return ta.Before(tb)
		}
	default:
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if desc {
			return less(rows[j], rows[i])
		}
		return less(rows[i], rows[j])
	})
}

// GetProduct fetches a single product
// @Summary get product detail
// @Tags Products
// @Param id path string true "Product ID"
// @Success 200 {object} domain.Product
// @Router /api/v1/admin/products/{id} [get]
func GetProduct(c echo.Context) error {
	p, err := GetAppContext(c).Catalog().Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return failFor(c, err, "Product not found")
	}
	return ok(c, p)
}

// CreateProduct creates a product
// @Summary create a product
// @Tags Products
// @Param product body productPayload true "Product information"
// @Success 201 {object} domain.Product
// @Router /api/v1/admin/products [post]
func CreateProduct(c echo.Context) error {
	var payload productPayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	category, found := canonicalCategory(payload.Category)
	if !found {
		return fail(c, http.StatusBadRequest, "INVALID_CATEGORY", "Unknown category", payload.Category)
	}

	p, err := GetAppContext(c).Catalog().Create(c.Request().Context(), catalog.Draft{
		Name:        payload.Name,
		Price:       payload.Price,
		Image:       payload.Image,
		Images:      payload.Images,
		Description: payload.Description,
		Category:    category,
	})
	if err != nil {
		return failFor(c, err, "Failed to create product")
	}
	return created(c, p)
}

// UpdateProduct updates the given fields of a product
// @Summary update a product
// @Tags Products
// @Param id path string true "Product ID"
// @Param product body productUpdatePayload true "Product information"
// @Success 200 {object} domain.Product
// @Router /api/v1/admin/products/{id} [put]
func UpdateProduct(c echo.Context) error {
	var payload productUpdatePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse product", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	if payload.Category != nil && strings.TrimSpace(*payload.Category) != "" {
		category, found := canonicalCategory(*payload.Category)
		if !found {
			return fail(c, http.StatusBadRequest, "INVALID_CATEGORY", "Unknown category", *payload.Category)
		}
		payload.Category = &category
	}

	p, err := GetAppContext(c).Catalog().Update(c.Request().Context(), c.Param("id"), catalog.Patch{
		Name:        payload.Name,
		Price:       payload.Price,
		Image:       payload.Image,
		Images:      payload.Images,
		Description: payload.Description,
		Category:    payload.Category,
	})
	if err != nil {
		return failFor(c, err, "Failed to update product")
	}
	return ok(c, p)
}

// DeleteProduct deletes a product
// @Summary delete a product
// @Tags Products
// @Param id path string true "Product ID"
// @Success 204 "No Content"
// @Router /api/v1/admin/products/{id} [delete]
func DeleteProduct(c echo.Context) error {
	if err := GetAppContext(c).Catalog().Remove(c.Request().Context(), c.Param("id")); err != nil {
		return failFor(c, err, "Failed to delete product")
	}
	return c.NoContent(http.StatusNoContent)
}

// ReplaceProducts writes a whole new product list
// @Summary replace the product list
// @Tags Products
// @Param body body replacePayload true "Products and the version they were based on"
// @Success 200 {object} catalog.WriteResult
// @Router /api/v1/admin/products [put]
func ReplaceProducts(c echo.Context) error {
	var payload replacePayload
	if err := c.Bind(&payload); err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse products", err.Error())
	}
	if err := c.Validate(&payload); err != nil {
		return handleValidationError(c, err)
	}
	res, err := GetAppContext(c).Catalog().Replace(c.Request().Context(), payload.Products, catalog.Version(payload.Version))
	if err != nil {
		return failFor(c, err, "Failed to replace products")
	}
	return ok(c, res)
}
