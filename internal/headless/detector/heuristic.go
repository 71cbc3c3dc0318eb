// Package detector decides when a statically fetched page must be re-rendered
// in a browser before it can be parsed.
package detector

import (
	"strings"

	"github.com/JakeFAU/hackathon-harvester/internal/harvest"
)

// Heuristic flags pages that look like client-rendered shells.
type Heuristic struct {
	BodyLengthThreshold int
	// Required lists markup fragments a parseable page carries, e.g.
	// `id="app-details-left"`. A 200 page containing none of them is promoted.
	Required []string
}

// NewHeuristic creates a detector. A zero threshold defaults to 2048 bytes.
func NewHeuristic(threshold int, required ...string) *Heuristic {
	if threshold == 0 {
		threshold = 2048
	}
	return &Heuristic{BodyLengthThreshold: threshold, Required: required}
}

var spaMarkers = []string{
	"__next",
	`id="root"`,
	`data-reactroot`,
	`ng-version=`,
}

// ShouldPromote reports whether page needs a headless render.
func (h *Heuristic) ShouldPromote(page harvest.Page) bool {
	if page.StatusCode != 200 {
		return false
	}
	body := page.HTML
	if strings.TrimSpace(body) == "" {
		return true
	}
	if len(body) < h.BodyLengthThreshold && scriptDensityHigh(body) {
		return true
	}
	if len(h.Required) > 0 && !containsAny(body, h.Required) {
		return true
	}
	for _, marker := range spaMarkers {
		if strings.Contains(body, marker) {
			return true
		}
	}
	return false
}

func containsAny(body string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(body, n) {
			return true
		}
	}
	return false
}

func scriptDensityHigh(body string) bool {
	lower := strings.ToLower(body)
	total := len(lower)
	if total == 0 {
		return false
	}

	const (
		openTag  = "<script"
		closeTag = "</script>"
	)
	scriptCoverage := 0
	searchPos := 0

	for {
		relativeStart := strings.Index(lower[searchPos:], openTag)
		if relativeStart == -1 {
			break
		}
		start := searchPos + relativeStart

		tagClose := strings.IndexByte(lower[start:], '>')
		if tagClose == -1 {
			scriptCoverage += total - start
			break
		}
		contentStart := start + tagClose + 1

		relativeEnd := strings.Index(lower[contentStart:], closeTag)
		var nextSearch int
		if relativeEnd == -1 {
			nextSearch = total
		} else {
			nextSearch = contentStart + relativeEnd + len(closeTag)
		}

		scriptCoverage += nextSearch - start
		searchPos = nextSearch
	}

	if scriptCoverage == 0 {
		return false
	}
	return scriptCoverage*100/total >= 25
}
