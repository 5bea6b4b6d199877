package adminapi

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/bytes"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/remote"
	"github.com/vitaspro/storefront/internal/webserver"
	"go.uber.org/zap"
)

const (
	maxImageSize   = 10 << 20
	maxBatchImages = 20
)

func registerImageRoutes() {
	webserver.ApiPOST("/images", UploadImage)
	webserver.ApiPOST("/images/batch", UploadImages)
}

func readUpload(fh *multipart.FileHeader) (remote.ImageUpload, error) {
	if fh.Size > maxImageSize {
		return remote.ImageUpload{}, errors.Errorf("%s is %s, the limit is %s",
			fh.Filename, bytes.Format(fh.Size), bytes.Format(maxImageSize))
	}
	f, err := fh.Open()
	if err != nil {
		return remote.ImageUpload{}, err
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxImageSize+1))
	if err != nil {
		return remote.ImageUpload{}, err
	}
	if len(data) > maxImageSize {
		return remote.ImageUpload{}, errors.Errorf("%s exceeds %s", fh.Filename, bytes.Format(maxImageSize))
	}
	ctype := fh.Header.Get(echo.HeaderContentType)
	if ctype == "" || ctype == echo.MIMEOctetStream {
		ctype = http.DetectContentType(data)
	}
	return remote.ImageUpload{FileName: fh.Filename, ContentType: ctype, Data: data}, nil
}

// UploadImage stores one image next to the products document
// @Summary upload an image
// @Tags Images
// @Param file formData file true "Image file"
// @Success 200 {object} remote.ImageResult
// @Router /api/v1/admin/images [post]
func UploadImage(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Missing image file", err.Error())
	}
	img, err := readUpload(fh)
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_IMAGE", "Image rejected", err.Error())
	}
	zap.L().Info("uploading image",
		zap.String("namespace", "adminapi"),
		zap.String("file", img.FileName),
		zap.String("size", bytes.Format(int64(len(img.Data)))))

	res, err := GetAppContext(c).Images().UploadImage(c.Request().Context(), img)
	if err != nil {
		return failFor(c, err, "Failed to upload image")
	}
	return ok(c, res)
}

// UploadImages stores several images; the reply lists the links of the stored ones
// @Summary upload images
// @Tags Images
// @Param files formData file true "Image files"
// @Success 200 {object} Response
// @Router /api/v1/admin/images/batch [post]
func UploadImages(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "Unable to parse upload", err.Error())
	}
	files := form.File["files"]
	if len(files) == 0 {
		return fail(c, http.StatusBadRequest, "INVALID_REQUEST", "No files uploaded", nil)
	}
	if len(files) > maxBatchImages {
		return fail(c, http.StatusBadRequest, "TOO_MANY_FILES", "Too many files in one upload", maxBatchImages)
	}

	imgs := make([]remote.ImageUpload, 0, len(files))
	var total int64
	for _, fh := range files {
		img, err := readUpload(fh)
		if err != nil {
			return fail(c, http.StatusBadRequest, "INVALID_IMAGE", "Image rejected", err.Error())
		}
		total += int64(len(img.Data))
		imgs = append(imgs, img)
	}
	zap.L().Info("uploading images",
		zap.String("namespace", "adminapi"),
		zap.Int("count", len(imgs)),
		zap.String("size", bytes.Format(total)))

	urls, err := GetAppContext(c).Images().UploadImages(c.Request().Context(), imgs)
	if err != nil {
		return failFor(c, err, "Failed to upload images")
	}
	return ok(c, map[string]interface{}{
		"urls":      urls,
		"requested": len(imgs),
		"uploaded":  len(urls),
	})
}
