// Package drive builds and rewrites Google Drive links.
package drive

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/vitaspro/storefront/internal/domain"
)

const (
	DefaultPlaceholder    = "/vitaspro.jpg"
	DefaultThumbnailWidth = 1000
)

// ImageOptions controls how share links are rewritten for display.
type ImageOptions struct {
	Placeholder    string
	ThumbnailWidth int
}

func (o ImageOptions) withDefaults() ImageOptions {
	if o.Placeholder == "" {
		o.Placeholder = DefaultPlaceholder
	}
	if o.ThumbnailWidth <= 0 {
		o.ThumbnailWidth = DefaultThumbnailWidth
	}
	return o
}

// ExtractFileID finds the Drive file id in a share link.
func ExtractFileID(link string) (string, bool) {
	return domain.ExtractFileID(link)
}

// IsDirect reports whether the link already serves image bytes.
func IsDirect(link string) bool {
	return strings.Contains(link, "uc?export=view") || strings.Contains(link, "/thumbnail")
}

// ImageURL turns a stored image reference into something a browser can load.
func ImageURL(link string, opts ImageOptions) string {
	opts = opts.withDefaults()
	link = strings.TrimSpace(link)
	if link == "" {
		return opts.Placeholder
	}
	if strings.HasPrefix(link, "data:") || IsDirect(link) {
		return link
	}
	if id, ok := ExtractFileID(link); ok {
		return ThumbnailURL(id, opts.ThumbnailWidth)
	}
	return link
}

// AlternativeImageURL is the uc?export=view form, used when thumbnails fail.
func AlternativeImageURL(link string) string {
	id, ok := ExtractFileID(link)
	if !ok {
		return link
	}
	return ViewURL(id)
}

func ThumbnailURL(id string, width int) string {
	if width <= 0 {
		width = DefaultThumbnailWidth
	}
	return fmt.Sprintf("https://drive.google.com/thumbnail?id=%s&sz=w%d", url.QueryEscape(id), width)
}

func ViewURL(id string) string {
	return "https://drive.google.com/uc?export=view&id=" + url.QueryEscape(id)
}

// DownloadURL is the direct download link; confirm skips the size warning
// Drive shows for large files.
func DownloadURL(id string, confirm bool) string {
	u := "https://drive.google.com/uc?export=download&id=" + url.QueryEscape(id)
	if confirm {
		u += "&confirm=t"
	}
	return u
}

// RelayURL wraps target for a raw CORS relay such as allorigins.
func RelayURL(relay, target string) string {
	return relay + url.QueryEscape(target)
}

// WithCacheBuster appends a t=<token> query parameter.
func WithCacheBuster(link, token string) string {
	if token == "" {
		return link
	}
	sep := "?"
	if strings.Contains(link, "?") {
		sep = "&"
	}
	return link + sep + "t=" + url.QueryEscape(token)
}

// EndpointURL trims the endpoint and makes Apps Script deployments end in /exec.
func EndpointURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || !strings.HasSuffix(u.Hostname(), "script.google.com") {
		return raw
	}
	p := strings.TrimRight(u.Path, "/")
	if !strings.HasSuffix(p, "/exec") {
		p += "/exec"
	}
	u.Path = p
	return u.String()
}

// Gallery lists the images shown on a product page: the extra images with
// the main image first when it is not already among them.
func Gallery(p domain.Product) []string {
	out := make([]string, 0, len(p.Images)+1)
	main := strings.TrimSpace(p.Image)
	if main != "" {
		found := false
		for _, img := range p.Images {
			if strings.TrimSpace(img) == main {
				found = true
				break
			}
		}
		if !found {
			out = append(out, main)
		}
	}
	for _, img := range p.Images {
		if s := strings.TrimSpace(img); s != "" {
			out = append(out, s)
		}
	}
	return out
}
