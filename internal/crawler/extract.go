package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ParseDocument parses an HTML body exactly once; the resulting document
// feeds both the metadata and the link extractors.
func ParseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// ExtractMetadata pulls the structured metadata out of a parsed document.
// Absent tags yield empty-string fields.
func ExtractMetadata(doc *goquery.Document, baseURL string) PageMetadata {
	meta := PageMetadata{
		Title:         normalizeText(doc.Find("title").First().Text()),
		Description:   metaByName(doc, "description"),
		Keywords:      metaByName(doc, "keywords"),
		Viewport:      metaByName(doc, "viewport"),
		OGTitle:       metaByProperty(doc, "og:title"),
		OGDescription: metaByProperty(doc, "og:description"),
		OGImage:       metaByProperty(doc, "og:image"),
	}

	if href, ok := doc.Find("link[rel='canonical']").First().Attr("href"); ok {
		if resolved, err := resolveAgainst(baseURL, href); err == nil {
			meta.CanonicalURL = resolved
		}
	}

	return meta
}

// ExtractLinks enumerates every anchor with a resolvable href, resolves it
// against baseURL, and classifies it as same-site or external. Malformed
// targets are silently skipped; a bad link is not a crawl failure. Results
// follow document order.
func ExtractLinks(doc *goquery.Document, baseURL string) []LinkRef {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}
	baseHost := strings.ToLower(base.Hostname())

	var links []LinkRef
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if skipHref(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		resolved := base.ResolveReference(ref)
		if resolved.Scheme != "http" && resolved.Scheme != "https" {
			return
		}
		normalized, err := Normalize(resolved.String())
		if err != nil {
			return
		}
		links = append(links, LinkRef{
			URL:        normalized,
			AnchorText: normalizeText(s.Text()),
			External:   strings.ToLower(resolved.Hostname()) != baseHost,
		})
	})
	return links
}

func skipHref(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") {
		return true
	}
	lower := strings.ToLower(href)
	for _, prefix := range []string{"javascript:", "mailto:", "tel:", "data:"} {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

func metaByName(doc *goquery.Document, name string) string {
	content, _ := doc.Find("meta[name='" + name + "']").First().Attr("content")
	return normalizeText(content)
}

func metaByProperty(doc *goquery.Document, property string) string {
	content, _ := doc.Find("meta[property='" + property + "']").First().Attr("content")
	return normalizeText(content)
}

func resolveAgainst(baseURL, href string) (string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", err
	}
	return Normalize(base.ResolveReference(ref).String())
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}
