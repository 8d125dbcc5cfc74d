package crawler

import (
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := ParseDocument([]byte(html))
	require.NoError(t, err)
	return doc
}

func TestExtractMetadataFullPage(t *testing.T) {
	t.Parallel()

	html := `<!DOCTYPE html>
<html>
<head>
  <title>
    Acme   Plumbing
  </title>
  <meta name="description" content="Pipes fixed fast.">
  <meta name="keywords" content="plumbing, pipes">
  <meta name="viewport" content="width=device-width, initial-scale=1">
  <meta property="og:title" content="Acme Plumbing Co">
  <meta property="og:description" content="The best pipes in town.">
  <meta property="og:image" content="https://cdn.example.com/acme.png">
  <link rel="canonical" href="/home">
</head>
<body></body>
</html>`

	meta := ExtractMetadata(mustParse(t, html), "https://acme.example/landing")

	assert.Equal(t, "Acme Plumbing", meta.Title)
	assert.Equal(t, "Pipes fixed fast.", meta.Description)
	assert.Equal(t, "plumbing, pipes", meta.Keywords)
	assert.Equal(t, "width=device-width, initial-scale=1", meta.Viewport)
	assert.Equal(t, "Acme Plumbing Co", meta.OGTitle)
	assert.Equal(t, "The best pipes in town.", meta.OGDescription)
	assert.Equal(t, "https://cdn.example.com/acme.png", meta.OGImage)
	assert.Equal(t, "https://acme.example/home", meta.CanonicalURL)
}

func TestExtractMetadataAbsentTags(t *testing.T) {
	t.Parallel()

	meta := ExtractMetadata(mustParse(t, "<html><head></head><body></body></html>"), "https://acme.example/")

	assert.Equal(t, PageMetadata{}, meta)
}

func TestExtractMetadataFirstTagWins(t *testing.T) {
	t.Parallel()

	html := `<html><head>
<meta name="description" content="first">
<meta name="description" content="second">
</head></html>`

	meta := ExtractMetadata(mustParse(t, html), "https://acme.example/")
	assert.Equal(t, "first", meta.Description)
}

func TestExtractLinks(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<a href="/about">About us</a>
<a href="contact.html">Contact</a>
<a href="https://other.example/partner">Partner</a>
<a href="HTTP://acme.example/upper">Upper</a>
<a href="#section">Skip anchor</a>
<a href="mailto:info@acme.example">Mail</a>
<a href="tel:+15551234">Call</a>
<a href="javascript:void(0)">JS</a>
<a href="">Empty</a>
</body></html>`

	links := ExtractLinks(mustParse(t, html), "https://acme.example/dir/page")

	require.Len(t, links, 4)

	assert.Equal(t, "https://acme.example/about", links[0].URL)
	assert.Equal(t, "About us", links[0].AnchorText)
	assert.False(t, links[0].External)

	assert.Equal(t, "https://acme.example/dir/contact.html", links[1].URL)
	assert.False(t, links[1].External)

	assert.Equal(t, "https://other.example/partner", links[2].URL)
	assert.True(t, links[2].External)

	assert.Equal(t, "https://acme.example/upper", links[3].URL)
	assert.False(t, links[3].External)
}

func TestExtractLinksDocumentOrder(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<a href="/c">c</a>
<a href="/a">a</a>
<a href="/b">b</a>
</body></html>`

	links := ExtractLinks(mustParse(t, html), "https://acme.example/")
	require.Len(t, links, 3)
	assert.Equal(t, "https://acme.example/c", links[0].URL)
	assert.Equal(t, "https://acme.example/a", links[1].URL)
	assert.Equal(t, "https://acme.example/b", links[2].URL)
}

func TestExtractLinksMalformedSkipped(t *testing.T) {
	t.Parallel()

	html := `<html><body>
<a href="https://good.example/">good</a>
<a href="http://[::1]:namedport/">bad</a>
</body></html>`

	links := ExtractLinks(mustParse(t, html), "https://acme.example/")
	require.Len(t, links, 1)
	assert.Equal(t, "https://good.example/", links[0].URL)
}

func TestParseDocumentMalformedHTMLStillParses(t *testing.T) {
	t.Parallel()

	// html.Parse is permissive; truncated markup still yields a document.
	doc, err := ParseDocument([]byte("<html><head><title>Broken"))
	require.NoError(t, err)
	assert.Equal(t, "Broken", ExtractMetadata(doc, "https://acme.example/").Title)
}
