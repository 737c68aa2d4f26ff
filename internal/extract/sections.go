package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Section is one heading and the text that follows it up to the next heading.
type Section struct {
	Heading string
	Text    string
}

const minHeadingChars = 3

func isHeadingTag(tag string) bool {
	switch tag {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return true
	}
	return false
}

func isBoldTag(tag string) bool { return tag == "strong" || tag == "b" }

// Sections walks h1-h6, strong and b elements of region in document order.
// Bold text counts as a heading only when it is not nested in a real heading.
// Headings shorter than three characters and headings with no body are dropped.
func Sections(region *goquery.Selection) []Section {
	var out []Section
	region.Find("h1, h2, h3, h4, h5, h6, strong, b").Each(func(_ int, h *goquery.Selection) {
		node := h.Get(0)
		bold := isBoldTag(node.Data)
		if bold && h.ParentsFiltered("h1, h2, h3, h4, h5, h6").Length() > 0 {
			return
		}
		heading := strings.TrimSpace(strings.TrimSuffix(CleanText(h.Text()), ":"))
		if utf8.RuneCountInString(heading) < minHeadingChars {
			return
		}

		anchor := node
		if bold && node.Parent != nil && node.Parent.Type == html.ElementNode &&
			strings.TrimSuffix(nodeText(node.Parent), ":") == strings.TrimSuffix(nodeText(node), ":") {
			// <p><strong>Heading</strong></p>: the body follows the paragraph.
			anchor = node.Parent
		}

		var body []*html.Node
		for n := anchor.NextSibling; n != nil; n = n.NextSibling {
			if n.Type == html.ElementNode && endsSection(n, bold) {
				break
			}
			body = append(body, n)
		}
		text := blockText(body...)
		if text == "" {
			return
		}
		out = append(out, Section{Heading: heading, Text: text})
	})
	return out
}

// endsSection reports whether n starts the next section.
func endsSection(n *html.Node, boldHeading bool) bool {
	if isHeadingTag(n.Data) {
		return true
	}
	if !boldHeading {
		return false
	}
	if isBoldTag(n.Data) {
		return true
	}
	// A block whose whole text is a bold lead-in is the next bold heading.
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode && isBoldTag(c.Data) {
			return nodeText(c) != "" && nodeText(c) == nodeText(n)
		}
		if c.Type == html.TextNode && strings.TrimSpace(c.Data) != "" {
			return false
		}
	}
	return false
}

// SectionMap exposes sections as heading -> text. Repeated headings are
// concatenated in document order.
func SectionMap(sections []Section) map[string]string {
	out := make(map[string]string, len(sections))
	for _, s := range sections {
		if prev, ok := out[s.Heading]; ok {
			out[s.Heading] = prev + "\n" + s.Text
			continue
		}
		out[s.Heading] = s.Text
	}
	return out
}
