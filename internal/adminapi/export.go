package adminapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/360EntSecGroup-Skylar/excelize"
	"github.com/gocarina/gocsv"
	"github.com/labstack/echo/v4"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
)

const xlsxMIME = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportRow is one spreadsheet line; extra images are joined with commas.
type exportRow struct {
	ID          string `csv:"id"`
	Name        string `csv:"name"`
	Price       string `csv:"price"`
	Category    string `csv:"category"`
	Image       string `csv:"image"`
	Images      string `csv:"images"`
	Description string `csv:"description"`
	CreatedAt   string `csv:"createdAt"`
}

var exportHeader = []string{"id", "name", "price", "category", "image", "images", "description", "createdAt"}

func (r exportRow) values() []interface{} {
	return []interface{}{r.ID, r.Name, r.Price, r.Category, r.Image, r.Images, r.Description, r.CreatedAt}
}

func toExportRows(products []domain.Product) []*exportRow {
	rows := make([]*exportRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, &exportRow{
			ID:          p.ID.String(),
			Name:        p.Name,
			Price:       p.Price.String(),
			Category:    p.Category,
			Image:       p.Image,
			Images:      strings.Join(p.Images, ","),
			Description: p.Description,
			CreatedAt:   p.CreatedAt,
		})
	}
	return rows
}

func encodeXLSX(rows []*exportRow) (*bytes.Buffer, error) {
	const sheet = "Sheet1"
	f := excelize.NewFile()
	for i, h := range exportHeader {
		f.SetCellValue(sheet, cellName(i, 1), h)
	}
	for r, row := range rows {
		for i, v := range row.values() {
			f.SetCellValue(sheet, cellName(i, r+2), v)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return &buf, nil
}

// cellName builds an A1 reference; exports never exceed 26 columns.
func cellName(col, row int) string {
	return fmt.Sprintf("%c%d", 'A'+col, row)
}

// ExportProducts downloads the product list
// @Summary export the product list
// @Tags Products
// @Param format query string false "json, csv or xlsx"
// @Success 200 {file} file
// @Router /api/v1/admin/products/export [get]
func ExportProducts(c echo.Context) error {
	snap, err := GetAppContext(c).Catalog().List(c.Request().Context(), true)
	if err != nil {
		return failFor(c, err, "Failed to read products")
	}
	format := strings.ToLower(c.QueryParam("format"))
	if format == "" {
		format = "json"
	}
	name := "products-" + time.Now().Format("20060102-150405") + "." + format

	var (
		body  []byte
		ctype string
	)
	switch format {
	case "json":
		body, err = catalog.EncodeDocument(snap.Products)
		ctype = echo.MIMEApplicationJSONCharsetUTF8
	case "csv":
		body, err = gocsv.MarshalBytes(toExportRows(snap.Products))
		ctype = "text/csv; charset=utf-8"
	case "xlsx":
		var buf *bytes.Buffer
		buf, err = encodeXLSX(toExportRows(snap.Products))
		if buf != nil {
			body = buf.Bytes()
		}
		ctype = xlsxMIME
	default:
		return fail(c, http.StatusBadRequest, "INVALID_FORMAT", "Format must be json, csv or xlsx", format)
	}
	if err != nil {
		return fail(c, http.StatusInternalServerError, "EXPORT_FAILED", "Failed to export products", err.Error())
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Blob(http.StatusOK, ctype, body)
}
