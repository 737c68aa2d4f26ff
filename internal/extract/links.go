package extract

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

const minLinkTextChars = 3

var navWords = []string{"home", "menu", "search", "back", "next", "previous"}

var (
	resultLinkKeywords   = []string{"result", "merit", "cutoff", "cut off", "pdf", "drive.google.com", "scorecard"}
	downloadLinkKeywords = []string{"admit card", "hall ticket", "call letter", "admit-card", "download", "pdf"}
)

// LinkSet is the outbound links of a region, classified by purpose.
type LinkSet struct {
	Links         []model.Link
	ResultLinks   []model.Link
	DownloadLinks []model.Link
}

// Links collects anchors from region, resolved against pageURL and
// deduplicated by absolute URL (first occurrence wins). Result pages also
// fill ResultLinks, admit-card pages fill DownloadLinks, auto fills both.
func Links(region *goquery.Selection, pageURL string, ct model.ContentType) LinkSet {
	base, err := url.Parse(pageURL)
	if err != nil {
		base = &url.URL{}
	}
	var set LinkSet
	seen := map[string]bool{}
	region.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		text := Text(a)
		if utf8.RuneCountInString(text) < minLinkTextChars || isNavNoise(text) {
			return
		}
		href := strings.TrimSpace(a.AttrOr("href", ""))
		lowerHref := strings.ToLower(href)
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(lowerHref, "javascript:") {
			return
		}
		resolved, err := base.Parse(href)
		if err != nil || (resolved.Scheme != "http" && resolved.Scheme != "https") {
			return
		}
		abs := resolved.String()
		if seen[abs] {
			return
		}
		seen[abs] = true

		link := model.Link{Text: text, URL: abs}
		set.Links = append(set.Links, link)
		haystack := strings.ToLower(text + " " + abs)
		if (ct == model.ContentResult || ct == model.ContentAuto) && containsAny(haystack, resultLinkKeywords) {
			set.ResultLinks = append(set.ResultLinks, link)
		}
		if (ct == model.ContentAdmitCard || ct == model.ContentAuto) && containsAny(haystack, downloadLinkKeywords) {
			set.DownloadLinks = append(set.DownloadLinks, link)
		}
	})
	return set
}

func isNavNoise(text string) bool {
	lower := strings.ToLower(text)
	for _, w := range navWords {
		if lower == w || strings.HasPrefix(lower, w+" ") {
			return true
		}
	}
	return false
}
