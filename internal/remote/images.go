package remote

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"path"
	"strings"
	"sync"

	"github.com/guonaihong/gout"
	"github.com/guonaihong/gout/dataflow"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/drive"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// ImageUpload is one image file to store next to the document.
type ImageUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// DataURL encodes the image the way the endpoint expects it.
func (u ImageUpload) DataURL() string {
	ct := u.ContentType
	if ct == "" {
		ct = http.DetectContentType(u.Data)
	}
	return "data:" + ct + ";base64," + base64.StdEncoding.EncodeToString(u.Data)
}

func (u ImageUpload) name(i int, stamp int64) string {
	if n := strings.TrimSpace(path.Base(u.FileName)); n != "" && n != "." && n != "/" {
		return n
	}
	return fmt.Sprintf("image_%d_%d.jpg", stamp, i)
}

// ImageResult is the stored location of an uploaded image.
type ImageResult struct {
	FileID    string `json:"fileId,omitempty"`
	URL       string `json:"url"`
	DirectURL string `json:"directUrl,omitempty"`
}

// ImageReply is the endpoint reply to uploadImage.
type ImageReply struct {
	Reply
	FileID    string `json:"fileId"`
	URL       string `json:"url"`
	DirectURL string `json:"directUrl"`
}

type batchItem struct {
	Base64   string `json:"base64"`
	FileName string `json:"fileName"`
}

type batchResult struct {
	Success bool   `json:"success"`
	URL     string `json:"url"`
	Error   string `json:"error"`
}

// BatchImageReply is the endpoint reply to uploadImages.
type BatchImageReply struct {
	Reply
	Results []batchResult `json:"results"`
}

func (c *Client) uploadEndpoint(ctx context.Context) (string, string, error) {
	s, err := c.currentSettings(ctx)
	if err != nil {
		return "", "", err
	}
	endpoint := drive.EndpointURL(s.UploadEndpoint())
	if endpoint == "" {
		return "", "", errors.Wrap(catalog.ErrNotConfigured, "no image upload endpoint in settings")
	}
	return endpoint, s.FileID(), nil
}

// UploadImage stores one image and returns its share link.
func (c *Client) UploadImage(ctx context.Context, img ImageUpload) (ImageResult, error) {
	endpoint, fileID, err := c.uploadEndpoint(ctx)
	if err != nil {
		return ImageResult{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return c.uploadOne(ctx, endpoint, fileID, img, 0)
}

func (c *Client) uploadOne(ctx context.Context, endpoint, fileID string, img ImageUpload, i int) (ImageResult, error) {
	if len(img.Data) == 0 {
		return ImageResult{}, errors.New("image is empty")
	}
	fields := gout.H{
		"action":    "uploadImage",
		"imageBlob": img.DataURL(),
		"fileName":  img.name(i, c.now().UnixMilli()),
		"fileId":    fileID,
	}
	run := func(body func(*dataflow.DataFlow) *dataflow.DataFlow) func(context.Context) (ImageResult, error) {
		return func(ctx context.Context) (ImageResult, error) {
			var reply ImageReply
			err := c.postReply(ctx, endpoint, body, &reply, func() error {
				if !reply.Success {
					return errors.Errorf("upload rejected: %s", reply.reason())
				}
				if reply.URL == "" {
					return errors.New("upload reply has no url")
				}
				return nil
			})
			return ImageResult{FileID: reply.FileID, URL: reply.URL, DirectURL: reply.DirectURL}, err
		}
	}
	ch := chain[ImageResult]{
		op:   "failed to upload image",
		hint: "check the Apps Script URL in settings",
		strategies: []Strategy[ImageResult]{
			{Name: StrategyJSONPost, Run: run(func(df *dataflow.DataFlow) *dataflow.DataFlow { return df.SetJSON(fields) })},
			{Name: StrategyFormPost, Run: run(func(df *dataflow.DataFlow) *dataflow.DataFlow { return df.SetWWWForm(fields) })},
		},
		breakers: c.breakers,
		recorder: c.recorder,
		logger:   c.logger,
	}
	res, _, err := ch.run(ctx)
	return res, err
}

// UploadImages stores several images and returns the links of those that
// were stored, in input order. The batch action is tried first; when the
// endpoint rejects it, images are sent one by one on the worker pool.
func (c *Client) UploadImages(ctx context.Context, imgs []ImageUpload) ([]string, error) {
	if len(imgs) == 0 {
		return nil, nil
	}
	endpoint, fileID, err := c.uploadEndpoint(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()

	urls, err := c.uploadBatch(ctx, endpoint, fileID, imgs)
	if err == nil {
		return urls, nil
	}
	c.logger.Warn("batch image upload failed, uploading one by one",
		zap.String("namespace", "remote"),
		zap.Int("count", len(imgs)),
		zap.Error(err))
	return c.uploadEach(ctx, endpoint, fileID, imgs)
}

func (c *Client) uploadBatch(ctx context.Context, endpoint, fileID string, imgs []ImageUpload) ([]string, error) {
	stamp := c.now().UnixMilli()
	items := make([]batchItem, 0, len(imgs))
	for i, img := range imgs {
		items = append(items, batchItem{Base64: img.DataURL(), FileName: img.name(i, stamp)})
	}
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, errors.Wrap(err, "encode images")
	}
	jsonBody := gout.H{"action": "uploadImages", "imagesData": items, "fileId": fileID}
	formBody := gout.H{"action": "uploadImages", "imagesData": string(encoded), "fileId": fileID}

	run := func(body func(*dataflow.DataFlow) *dataflow.DataFlow) func(context.Context) ([]string, error) {
		return func(ctx context.Context) ([]string, error) {
			var reply BatchImageReply
			err := c.postReply(ctx, endpoint, body, &reply, func() error {
				if !reply.Success || reply.Results == nil {
					return errors.Errorf("batch upload rejected: %s", reply.reason())
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
			urls := make([]string, 0, len(reply.Results))
			for _, r := range reply.Results {
				if r.Success && r.URL != "" {
					urls = append(urls, r.URL)
				}
			}
			return urls, nil
		}
	}
	ch := chain[[]string]{
		op:   "failed to upload images",
		hint: "check the Apps Script URL in settings",
		strategies: []Strategy[[]string]{
			{Name: StrategyJSONPost, Run: run(func(df *dataflow.DataFlow) *dataflow.DataFlow { return df.SetJSON(jsonBody) })},
			{Name: StrategyFormPost, Run: run(func(df *dataflow.DataFlow) *dataflow.DataFlow { return df.SetWWWForm(formBody) })},
		},
		breakers: c.breakers,
		recorder: c.recorder,
		logger:   c.logger,
	}
	urls, _, err := ch.run(ctx)
	return urls, err
}

func (c *Client) uploadEach(ctx context.Context, endpoint, fileID string, imgs []ImageUpload) ([]string, error) {
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		errs    error
		results = make([]string, len(imgs))
	)
	for i := range imgs {
		i := i
		wg.Add(1)
		err := c.pool.Submit(func() {
			defer wg.Done()
			res, err := c.uploadOne(ctx, endpoint, fileID, imgs[i], i)
			if err != nil {
				mu.Lock()
				errs = multierr.Append(errs, errors.Wrapf(err, "image %d", i+1))
				mu.Unlock()
				return
			}
			results[i] = res.URL
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			errs = multierr.Append(errs, errors.Wrap(err, "submit upload"))
			mu.Unlock()
		}
	}
	wg.Wait()

	urls := make([]string, 0, len(results))
	for _, u := range results {
		if u != "" {
			urls = append(urls, u)
		}
	}
	if len(urls) == 0 {
		return nil, errors.Wrap(errs, "no image was uploaded")
	}
	if errs != nil {
		c.logger.Warn("some images were not uploaded",
			zap.String("namespace", "remote"),
			zap.Int("uploaded", len(urls)),
			zap.Int("requested", len(imgs)),
			zap.Error(errs))
	}
	return urls, nil
}
