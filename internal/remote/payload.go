package remote

import (
	"bytes"
	"html"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/vitaspro/storefront/internal/catalog"
	"github.com/vitaspro/storefront/internal/domain"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	// ErrHTMLPayload marks an HTML page served where JSON was expected.
	ErrHTMLPayload = errors.New("response is an HTML page, not JSON")
	// ErrNotArray marks a JSON document whose top level is not an array.
	ErrNotArray = errors.New("document is not a JSON array")
	// ErrNoJSON marks a body with nothing JSON-like in it.
	ErrNoJSON = errors.New("response contains no JSON")
)

var (
	downloadLinkPattern = regexp.MustCompile(`href="([^"]*uc\?export=download[^"]*)"`)
	jsonSpanPattern     = regexp.MustCompile(`(\[[\s\S]*\]|\{[\s\S]*\})`)
)

// LooksLikeHTML spots the Drive interstitials and error pages. A body that
// starts as JSON is never HTML, whatever its strings contain.
func LooksLikeHTML(body []byte, contentType string) bool {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return false
	}
	lower := strings.ToLower(string(trimmed))
	switch {
	case strings.HasPrefix(lower, "<!doctype"):
		return true
	case strings.Contains(lower, "<html"):
		return true
	case strings.Contains(lower, "virus scan warning"):
		return true
	}
	return strings.Contains(strings.ToLower(contentType), "text/html")
}

// ScrapeDownloadLink finds the confirm link on the Drive virus-scan page.
func ScrapeDownloadLink(body []byte) (string, bool) {
	m := downloadLinkPattern.FindSubmatch(body)
	if len(m) != 2 {
		return "", false
	}
	link := html.UnescapeString(string(m[1]))
	if strings.HasPrefix(link, "/") {
		link = "https://drive.google.com" + link
	}
	return link, true
}

// ExtractJSON returns the body when it starts as JSON, otherwise the widest
// bracketed span inside it.
func ExtractJSON(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(body, []byte("\xef\xbb\xbf")))
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return trimmed, nil
	}
	span := jsonSpanPattern.Find(trimmed)
	if span == nil {
		return nil, ErrNoJSON
	}
	return span, nil
}

type endpointError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ParseDocument turns a response body into the product list.
func ParseDocument(body []byte, contentType string) ([]domain.Product, error) {
	if LooksLikeHTML(body, contentType) {
		return nil, ErrHTMLPayload
	}
	raw, err := ExtractJSON(body)
	if err != nil {
		return nil, err
	}
	if raw[0] == '{' {
		var e endpointError
		if err := json.Unmarshal(raw, &e); err == nil {
			if msg := firstNonEmpty(e.Error, e.Message); msg != "" {
				return nil, errors.Wrapf(ErrNotArray, "endpoint replied %q", msg)
			}
		}
		return nil, ErrNotArray
	}
	return catalog.DecodeDocument(raw)
}

// Reply is what the serverless endpoint answers to writes.
type Reply struct {
	Success    bool   `json:"success"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	Timestamp  string `json:"timestamp,omitempty"`
	ItemsCount int    `json:"itemsCount,omitempty"`
}

func (r Reply) reason() string {
	return firstNonEmpty(r.Message, r.Error, "no reason given")
}

// parseReply decodes a JSON reply, tolerating text around it.
func parseReply(body []byte, out interface{}) error {
	if LooksLikeHTML(body, "") {
		return ErrHTMLPayload
	}
	raw, err := ExtractJSON(body)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode endpoint reply")
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
