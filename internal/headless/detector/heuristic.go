// Package detector decides when a portal page fetched over plain HTTP needs
// to be rendered in a browser before its listings can be read.
package detector

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jadaunkg/job-portal-crawler/internal/crawler"
)

const defaultMinTextChars = 200

// mountPoints are the root elements of common client-side frameworks.
var mountPoints = []string{"#__next", "#__nuxt", "#root", "#app", "[data-reactroot]", "[ng-app]"}

// Heuristic promotes pages that carry scripts but almost no rendered text.
type Heuristic struct {
	MinTextChars int
}

// NewHeuristic creates a detector. A zero threshold uses the default.
func NewHeuristic(minTextChars int) *Heuristic {
	if minTextChars <= 0 {
		minTextChars = defaultMinTextChars
	}
	return &Heuristic{MinTextChars: minTextChars}
}

// ShouldPromote reports whether resp should be fetched again headless.
func (h *Heuristic) ShouldPromote(resp crawler.FetchResponse) bool {
	if resp.UsedHeadless || resp.StatusCode != 200 {
		return false
	}
	if len(bytes.TrimSpace(resp.Body)) == 0 {
		return true
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return false
	}
	if visibleChars(doc) >= h.MinTextChars {
		return false
	}
	for _, sel := range mountPoints {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}
	return doc.Find("script").Length() > 0
}

func visibleChars(doc *goquery.Document) int {
	body := doc.Find("body").First().Clone()
	body.Find("script, style, noscript, template").Remove()
	return utf8.RuneCountInString(strings.Join(strings.Fields(body.Text()), " "))
}
