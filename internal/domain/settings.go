package domain

import (
	"net/url"
	"regexp"
	"strings"
)

// DriveSettings is the runtime-editable connection to the remote document.
type DriveSettings struct {
	// FileURL is the share link (or bare id) of the products document.
	FileURL string `json:"fileUrl" mapstructure:"fileUrl"`
	// AppsScriptURL receives image uploads; it is also the write fallback.
	AppsScriptURL string `json:"appsScriptUrl" mapstructure:"appsScriptUrl"`
	// ProductsJSONUpdateURL receives whole-document writes.
	ProductsJSONUpdateURL string `json:"productsJsonUpdateUrl,omitempty" mapstructure:"productsJsonUpdateUrl"`
	// SyncURL serves reads; defaults to the write endpoint.
	SyncURL string `json:"syncUrl,omitempty" mapstructure:"syncUrl"`
}

var bareFileID = regexp.MustCompile(`^[a-zA-Z0-9_-]{10,}$`)

// FileID extracts the document id from FileURL.
func (s DriveSettings) FileID() string {
	raw := strings.TrimSpace(s.FileURL)
	if id, ok := ExtractFileID(raw); ok {
		return id
	}
	if bareFileID.MatchString(raw) {
		return raw
	}
	return ""
}

// WriteEndpoint is the endpoint that receives whole-document writes.
func (s DriveSettings) WriteEndpoint() string {
	if v := strings.TrimSpace(s.ProductsJSONUpdateURL); v != "" {
		return v
	}
	return strings.TrimSpace(s.AppsScriptURL)
}

// ReadEndpoint is the optional endpoint tried before the drive links.
func (s DriveSettings) ReadEndpoint() string {
	if v := strings.TrimSpace(s.SyncURL); v != "" {
		return v
	}
	return s.WriteEndpoint()
}

// UploadEndpoint receives image uploads.
func (s DriveSettings) UploadEndpoint() string {
	if v := strings.TrimSpace(s.AppsScriptURL); v != "" {
		return v
	}
	return strings.TrimSpace(s.ProductsJSONUpdateURL)
}

// Validate checks that every non-empty URL is absolute http(s).
func (s DriveSettings) Validate() map[string]string {
	problems := map[string]string{}
	check := func(field, v string) {
		v = strings.TrimSpace(v)
		if v == "" {
			return
		}
		u, err := url.Parse(v)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems[field] = "must be an absolute http(s) URL"
		}
	}
	if strings.TrimSpace(s.FileURL) != "" && s.FileID() == "" {
		problems["fileUrl"] = "no file id found in link"
	}
	check("appsScriptUrl", s.AppsScriptURL)
	check("productsJsonUpdateUrl", s.ProductsJSONUpdateURL)
	check("syncUrl", s.SyncURL)
	return problems
}

var (
	fileIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`/file/d/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`[?&]id=([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`/open\?id=([a-zA-Z0-9_-]+)`),
	}
)

// ExtractFileID finds a Drive file id in the common share-link shapes.
func ExtractFileID(link string) (string, bool) {
	for _, re := range fileIDPatterns {
		if m := re.FindStringSubmatch(link); len(m) == 2 {
			return m[1], true
		}
	}
	return "", false
}
