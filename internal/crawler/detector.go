package crawler

import (
	"bytes"
	"context"
	"strings"
)

// DefaultDetectorKeywords are markers of script-built pages whose metadata
// only exists after JavaScript runs.
func DefaultDetectorKeywords() []string {
	return []string{
		"__NEXT_DATA__",
		"data-reactroot",
		"ng-app",
		"window.__APOLLO_STATE__",
		"window.__NUXT__",
	}
}

// HeuristicDetector flags pages that look like empty script shells so the
// crawl unit can escalate them to the JS renderer.
type HeuristicDetector struct {
	minHTMLBytes int
	keywords     [][]byte
}

// NewHeuristicDetector constructs a Detector with the configured thresholds.
func NewHeuristicDetector(minBytes int, keywords []string) *HeuristicDetector {
	lowerKeywords := make([][]byte, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		lowerKeywords = append(lowerKeywords, bytes.ToLower([]byte(kw)))
	}
	return &HeuristicDetector{
		minHTMLBytes: minBytes,
		keywords:     lowerKeywords,
	}
}

// NeedsJS inspects the fetched page for signals that the served HTML is a
// script shell rather than the real document.
func (d *HeuristicDetector) NeedsJS(_ context.Context, page Page) bool {
	if d == nil || page.Rendered {
		return false
	}
	if d.minHTMLBytes > 0 && len(page.Body) < d.minHTMLBytes {
		return true
	}
	return d.containsKeywords(page.Body)
}

func (d *HeuristicDetector) containsKeywords(body []byte) bool {
	if len(body) == 0 || len(d.keywords) == 0 {
		return false
	}
	lowerBody := bytes.ToLower(body)
	for _, kw := range d.keywords {
		if bytes.Contains(lowerBody, kw) {
			return true
		}
	}
	return false
}
