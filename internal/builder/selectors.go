package builder

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"

	"github.com/Jadaunkg/job-portal-crawler/internal/config"
)

// Selectors holds compiled listing selectors. A nil matcher means the field
// is not configured.
type Selectors struct {
	Container     goquery.Matcher
	Title         goquery.Matcher
	Organization  goquery.Matcher
	Link          goquery.Matcher
	PostDate      goquery.Matcher
	LastDate      goquery.Matcher
	Location      goquery.Matcher
	Category      goquery.Matcher
	Description   goquery.Matcher
	ResultDate    goquery.Matcher
	ExamDate      goquery.Matcher
	DownloadStart goquery.Matcher
	DownloadEnd   goquery.Matcher
	NextPage      goquery.Matcher
}

// Compile validates and compiles every configured selector once, so a typo in
// portal configuration fails the portal up front instead of silently matching
// nothing on every page.
func Compile(raw config.Selectors) (Selectors, error) {
	var (
		out  Selectors
		errs []string
	)
	compile := func(name, sel string, dst *goquery.Matcher) {
		sel = strings.TrimSpace(sel)
		if sel == "" {
			return
		}
		m, err := cascadia.Compile(sel)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s %q: %v", name, sel, err))
			return
		}
		*dst = m
	}
	compile("container", raw.Container, &out.Container)
	compile("title", raw.Title, &out.Title)
	compile("organization", raw.Organization, &out.Organization)
	compile("link", raw.Link, &out.Link)
	compile("post_date", raw.PostDate, &out.PostDate)
	compile("last_date", raw.LastDate, &out.LastDate)
	compile("location", raw.Location, &out.Location)
	compile("category", raw.Category, &out.Category)
	compile("description", raw.Description, &out.Description)
	compile("result_date", raw.ResultDate, &out.ResultDate)
	compile("exam_date", raw.ExamDate, &out.ExamDate)
	compile("download_start", raw.DownloadStart, &out.DownloadStart)
	compile("download_end", raw.DownloadEnd, &out.DownloadEnd)
	compile("next_page", raw.NextPage, &out.NextPage)

	if len(errs) > 0 {
		return Selectors{}, fmt.Errorf("invalid selectors: %s", strings.Join(errs, "; "))
	}
	if out.Container == nil || out.Title == nil {
		return Selectors{}, fmt.Errorf("container and title selectors are required")
	}
	return out, nil
}
