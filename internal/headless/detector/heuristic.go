// Package detector decides when a statically fetched movie page should be
// rendered again in the headless browser.
package detector

import (
	"bytes"
	"net/http"
	"strings"

	"github.com/JakeFAU/quotes-crawler/internal/crawler"
)

// DefaultThreshold is the body size below which a script-heavy page is promoted.
const DefaultThreshold = 2048

// Heuristic implements rule-based promotion.
type Heuristic struct {
	BodyLengthThreshold int
}

// NewHeuristic creates a detector. A non-positive threshold uses DefaultThreshold.
func NewHeuristic(threshold int) *Heuristic {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

var spaMarkers = [][]byte{
	[]byte("__next"),
	[]byte(`id="root"`),
	[]byte(`id="app"`),
	[]byte("data-reactroot"),
}

// ShouldPromote reports whether page looks like a script-rendered shell.
// Pages that already yielded quotes, or that were not a 200, are never promoted.
func (h *Heuristic) ShouldPromote(page crawler.Page) bool {
	if page.StatusCode != http.StatusOK || len(page.Quotes) > 0 {
		return false
	}
	body := page.Body
	if len(body) == 0 {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	for _, marker := range spaMarkers {
		if bytes.Contains(body, marker) {
			return true
		}
	}
	return false
}

// scriptDensityHigh reports whether script elements cover a quarter of body.
func scriptDensityHigh(body []byte) bool {
	lower := strings.ToLower(string(body))
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	covered := 0
	pos := 0
	for {
		rel := strings.Index(lower[pos:], openTag)
		if rel == -1 {
			break
		}
		start := pos + rel
		tagEnd := strings.IndexByte(lower[start:], '>')
		if tagEnd == -1 {
			covered += total - start
			break
		}
		content := start + tagEnd + 1
		next := total
		if end := strings.Index(lower[content:], closeTag); end != -1 {
			next = content + end + len(closeTag)
		}
		covered += next - start
		pos = next
	}
	return covered*100/total >= 25
}
