// Package extract turns portal HTML into structured detail records.
//
// Extraction is heuristic: it locates the main content region, splits it into
// heading-delimited sections, routes sections into known fields by keyword and
// collects tables and outbound links. Nothing here performs I/O.
package extract

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// Parse decodes body using the declared content type (or sniffed charset),
// builds a document and strips script, style and noscript elements.
func Parse(body io.Reader, contentType string) (*goquery.Document, error) {
	r, err := charset.NewReader(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode charset: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	doc.Find("script, style, noscript").Remove()
	return doc, nil
}

// ParseBytes is Parse over an in-memory body.
func ParseBytes(body []byte, contentType string) (*goquery.Document, error) {
	return Parse(bytes.NewReader(body), contentType)
}

// CleanText collapses runs of whitespace into single spaces.
func CleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Text returns the collapsed text of a selection.
func Text(sel *goquery.Selection) string {
	return CleanText(sel.Text())
}

var blockTags = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "dd": true,
	"div": true, "dl": true, "dt": true, "fieldset": true, "figure": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true, "tr": true,
	"ul": true,
}

// BlockText returns the visible text of a selection with one line per block
// element and whitespace collapsed within lines.
func BlockText(sel *goquery.Selection) string {
	return blockText(sel.Nodes...)
}

func blockText(nodes ...*html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			b.WriteString(n.Data)
			return
		case html.CommentNode, html.DoctypeNode:
			return
		case html.ElementNode:
			if n.Data == "br" {
				b.WriteByte('\n')
				return
			}
			block := blockTags[n.Data]
			if block {
				b.WriteByte('\n')
			}
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walk(c)
			}
			if block {
				b.WriteByte('\n')
			}
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range nodes {
		walk(n)
	}
	return normalizeLines(b.String())
}

func normalizeLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		if clean := CleanText(line); clean != "" {
			out = append(out, clean)
		}
	}
	return strings.Join(out, "\n")
}

// nodeText is the collapsed text content of a single node.
func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return CleanText(b.String())
}
