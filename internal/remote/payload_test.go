package remote

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLooksLikeHTML(t *testing.T) {
	assert.True(t, LooksLikeHTML([]byte("<!DOCTYPE html><html>...</html>"), ""))
	assert.True(t, LooksLikeHTML([]byte("  <HTML><body>x</body></HTML>"), "application/json"))
	assert.True(t, LooksLikeHTML([]byte("Google Drive - Virus scan warning"), ""))
	assert.True(t, LooksLikeHTML([]byte("Sorry, unable to open the file"), "text/html; charset=utf-8"))
	assert.False(t, LooksLikeHTML([]byte(`[{"id":"1"}]`), "text/html; charset=utf-8"))
	assert.False(t, LooksLikeHTML([]byte(`[{"id":"1","description":"Google Drive"}]`), "application/json"))
	assert.False(t, LooksLikeHTML([]byte(`[{"id":"1","description":"Opis kopiran iz <html> editora"}]`), "application/json"))
	assert.False(t, LooksLikeHTML([]byte("\xef\xbb\xbf"+`{"success":true,"message":"Virus scan warning skipped"}`), ""))
	assert.True(t, LooksLikeHTML(nil, "text/html"))
}

func TestScrapeDownloadLink(t *testing.T) {
	page := []byte(`<form><a id="uc-download-link" href="/uc?export=download&amp;confirm=Xy_1&amp;id=F1">Download anyway</a></form>`)
	link, ok := ScrapeDownloadLink(page)
	require.True(t, ok)
	assert.Equal(t, "https://drive.google.com/uc?export=download&confirm=Xy_1&id=F1", link)

	_, ok = ScrapeDownloadLink([]byte(`<html>quota exceeded</html>`))
	assert.False(t, ok)
}

func TestExtractJSON(t *testing.T) {
	raw, err := ExtractJSON([]byte("  [1,2]  "))
	require.NoError(t, err)
	assert.Equal(t, "[1,2]", string(raw))

	raw, err = ExtractJSON([]byte(`)]}'` + "\n" + `[{"id":"1"}] trailing`))
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"1"}]`, string(raw))

	_, err = ExtractJSON([]byte("nothing here"))
	assert.ErrorIs(t, err, ErrNoJSON)
}

func TestParseDocument(t *testing.T) {
	products, err := ParseDocument([]byte(`[{"id":1,"name":"A","price":10,"image":""}]`), "application/json")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "1", products[0].ID.String())

	products, err = ParseDocument([]byte(`[]`), "")
	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)

	_, err = ParseDocument([]byte(`{"error":"File not found"}`), "application/json")
	assert.True(t, errors.Is(err, ErrNotArray))
	assert.Contains(t, err.Error(), "File not found")

	products, err = ParseDocument([]byte(`[{"id":"1","name":"Lak","price":"450","image":"a.jpg","description":"Opis kopiran iz <html> editora"}]`), "application/json")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Contains(t, products[0].Description, "<html>")

	_, err = ParseDocument([]byte(`<!DOCTYPE html>`), "")
	assert.True(t, errors.Is(err, ErrHTMLPayload))
}
