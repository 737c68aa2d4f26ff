package extract

import (
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MinContentChars is how much text a priority candidate needs to be accepted
// as the main content region.
const MinContentChars = 300

// ContentSelectors are tried in order when locating the main content region.
var ContentSelectors = []string{
	".entry-content",
	".post-content",
	".article-content",
	".content-area",
	".single-post",
	"article",
	"main",
	"#content",
	".site-content",
	"[role=main]",
}

var contentKeywords = []string{"content", "post", "article", "entry", "main", "body", "detail", "job"}

// MainContent locates the region of the page that holds the listing body.
//
// The first priority selector whose text exceeds MinContentChars wins. Failing
// that, the container whose class mentions a content keyword and carries the
// most text is used. The last resort is a copy of body without navigation
// chrome; the document itself is never modified.
func MainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range ContentSelectors {
		candidate := doc.Find(sel).First()
		if candidate.Length() == 0 {
			continue
		}
		if utf8.RuneCountInString(BlockText(candidate)) > MinContentChars {
			return candidate
		}
	}

	var best *goquery.Selection
	bestLen := 0
	doc.Find("div, section, article, main").Each(func(_ int, s *goquery.Selection) {
		class := strings.ToLower(s.AttrOr("class", ""))
		if class == "" || !containsAny(class, contentKeywords) {
			return
		}
		if n := utf8.RuneCountInString(BlockText(s)); n > bestLen {
			best, bestLen = s, n
		}
	})
	if best != nil {
		return best
	}

	body := doc.Find("body").First().Clone()
	body.Find("nav, header, footer, aside").Remove()
	return body
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
