package crawler

import (
	"net/http"
	"regexp"

	"github.com/PuerkitoBio/goquery"
)

// TechSignature maps a script-reference pattern to a canonical technology
// name. Patterns are deliberately specific: a false negative is acceptable,
// a false positive is not.
type TechSignature struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultTechSignatures returns the built-in fingerprint table. The table
// is configuration data; callers may supply their own.
func DefaultTechSignatures() []TechSignature {
	return []TechSignature{
		{Name: "React", Pattern: regexp.MustCompile(`(?i)(^|/)react(-dom)?(\.production|\.development)?(\.min)?\.js`)},
		{Name: "Vue.js", Pattern: regexp.MustCompile(`(?i)(^|/)vue(\.runtime)?(\.global)?(\.esm-browser)?(\.min)?\.js`)},
		{Name: "Angular", Pattern: regexp.MustCompile(`(?i)(^|/)angular(\.min)?\.js`)},
		{Name: "jQuery", Pattern: regexp.MustCompile(`(?i)(^|/)jquery([-.][0-9.]+)?(\.slim)?(\.min)?\.js`)},
		{Name: "Next.js", Pattern: regexp.MustCompile(`/_next/static/`)},
		{Name: "Nuxt", Pattern: regexp.MustCompile(`/_nuxt/`)},
		{Name: "WordPress", Pattern: regexp.MustCompile(`/wp-(content|includes)/`)},
		{Name: "Shopify", Pattern: regexp.MustCompile(`cdn\.shopify\.com`)},
		{Name: "Google Tag Manager", Pattern: regexp.MustCompile(`googletagmanager\.com/gtm\.js`)},
		{Name: "Bootstrap", Pattern: regexp.MustCompile(`(?i)(^|/)bootstrap(\.bundle)?(\.min)?\.js`)},
	}
}

// DetectTechnologies builds the technology fingerprint set for a page from
// its response headers and script references. Duplicates are collapsed;
// the result preserves first-detection order.
func DetectTechnologies(headers http.Header, doc *goquery.Document, signatures []TechSignature) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}

	if headers != nil {
		add(headers.Get("Server"))
		add(headers.Get("X-Powered-By"))
	}

	if doc != nil {
		doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			if src == "" {
				return
			}
			for _, sig := range signatures {
				if sig.Pattern.MatchString(src) {
					add(sig.Name)
				}
			}
		})
	}

	return out
}
