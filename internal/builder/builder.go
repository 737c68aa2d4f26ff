// Package builder constructs typed entries from listing pages.
package builder

import (
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/extract"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// Clock stamps discovered_at.
type Clock interface {
	Now() time.Time
}

// Template describes one listing page: which portal it belongs to, where it
// was fetched from and how to read its containers.
type Template struct {
	Portal    string
	PageURL   string
	Selectors Selectors
}

// Builder turns listing containers into entries. It is stateless apart from
// its clock and logger and is safe for concurrent use.
type Builder struct {
	clock  Clock
	logger *zap.Logger
}

// New creates a Builder.
func New(clock Clock, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{clock: clock, logger: logger.Named("builder")}
}

// Stats reports how many containers were turned into entries.
type Stats struct {
	Containers int
	Built      int
	Skipped    int
}

// item is the portion of a container shared by every entry kind.
type item struct {
	base model.Base
	sel  *goquery.Selection
}

func (b *Builder) items(doc *goquery.Document, tpl Template) ([]item, Stats) {
	var (
		out   []item
		stats Stats
	)
	now := b.clock.Now()
	doc.FindMatcher(tpl.Selectors.Container).Each(func(_ int, c *goquery.Selection) {
		stats.Containers++
		title := field(c, tpl.Selectors.Title)
		if title == "" {
			stats.Skipped++
			return
		}
		link := b.link(c, tpl)
		if link == "" {
			b.logger.Debug("skipping entry without a valid link",
				zap.String("portal", tpl.Portal), zap.String("title", title))
			stats.Skipped++
			return
		}
		org := field(c, tpl.Selectors.Organization)
		out = append(out, item{
			base: model.Base{
				ID:           model.EntryID(title, org, tpl.Portal),
				PortalName:   tpl.Portal,
				Title:        title,
				Organization: org,
				URL:          link,
				Description:  field(c, tpl.Selectors.Description),
				DiscoveredAt: now,
				TimesSeen:    1,
			},
			sel: c,
		})
		stats.Built++
	})
	return out, stats
}

// Jobs builds job entries.
func (b *Builder) Jobs(doc *goquery.Document, tpl Template) ([]*model.Job, Stats) {
	items, stats := b.items(doc, tpl)
	out := make([]*model.Job, 0, len(items))
	for _, it := range items {
		out = append(out, &model.Job{
			Listing:  model.Listing{Base: it.base},
			PostDate: field(it.sel, tpl.Selectors.PostDate),
			LastDate: field(it.sel, tpl.Selectors.LastDate),
			Location: field(it.sel, tpl.Selectors.Location),
			Category: field(it.sel, tpl.Selectors.Category),
			Status:   model.StatusActive,
		})
	}
	return out, stats
}

// Results builds result entries.
func (b *Builder) Results(doc *goquery.Document, tpl Template) ([]*model.Result, Stats) {
	items, stats := b.items(doc, tpl)
	out := make([]*model.Result, 0, len(items))
	for _, it := range items {
		out = append(out, &model.Result{
			Listing:    model.Listing{Base: it.base},
			ResultDate: field(it.sel, tpl.Selectors.ResultDate),
		})
	}
	return out, stats
}

// AdmitCards builds admit card entries.
func (b *Builder) AdmitCards(doc *goquery.Document, tpl Template) ([]*model.AdmitCard, Stats) {
	items, stats := b.items(doc, tpl)
	out := make([]*model.AdmitCard, 0, len(items))
	for _, it := range items {
		out = append(out, &model.AdmitCard{
			Listing:       model.Listing{Base: it.base},
			ExamDate:      field(it.sel, tpl.Selectors.ExamDate),
			DownloadStart: field(it.sel, tpl.Selectors.DownloadStart),
			DownloadEnd:   field(it.sel, tpl.Selectors.DownloadEnd),
		})
	}
	return out, stats
}

// Notifications builds notification entries. The category selector, when
// configured, supplies notification_type.
func (b *Builder) Notifications(doc *goquery.Document, tpl Template) ([]*model.Notification, Stats) {
	items, stats := b.items(doc, tpl)
	out := make([]*model.Notification, 0, len(items))
	for _, it := range items {
		kind := field(it.sel, tpl.Selectors.Category)
		if kind == "" {
			kind = "general"
		}
		out = append(out, &model.Notification{Base: it.base, NotificationType: kind})
	}
	return out, stats
}

// NextPage returns the absolute URL of the pagination link, if any.
func (b *Builder) NextPage(doc *goquery.Document, tpl Template) (string, bool) {
	if tpl.Selectors.NextPage == nil {
		return "", false
	}
	href, ok := doc.FindMatcher(tpl.Selectors.NextPage).First().Attr("href")
	if !ok {
		return "", false
	}
	next := Normalize(href, tpl.PageURL)
	if next == "" || next == tpl.PageURL {
		return "", false
	}
	return next, true
}

func (b *Builder) link(c *goquery.Selection, tpl Template) string {
	var href string
	if tpl.Selectors.Link != nil {
		href = c.FindMatcher(tpl.Selectors.Link).First().AttrOr("href", "")
	} else if own, ok := c.Attr("href"); ok {
		href = own
	} else {
		href = c.Find("a[href]").First().AttrOr("href", "")
	}
	return Normalize(href, tpl.PageURL)
}

func field(c *goquery.Selection, m goquery.Matcher) string {
	if m == nil {
		return ""
	}
	return extract.Text(c.FindMatcher(m).First())
}

// Normalize resolves href against base and returns it only if the result is
// an absolute http(s) URL with a host.
func Normalize(href, base string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if b, err := url.Parse(base); err == nil {
		ref = b.ResolveReference(ref)
	}
	if (ref.Scheme != "http" && ref.Scheme != "https") || ref.Host == "" {
		return ""
	}
	ref.Fragment = ""
	return ref.String()
}
