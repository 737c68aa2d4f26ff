package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/builder"
	"github.com/Jadaunkg/job-portal-crawler/internal/config"
	"github.com/Jadaunkg/job-portal-crawler/internal/extract"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// ErrNoPages is returned when every listing page of a portal failed.
var ErrNoPages = errors.New("no listing page could be fetched")

type categoryTarget struct {
	category model.Category
	url      string
	template builder.Template
}

// PortalCrawler crawls the listing pages of one configured portal. A fresh
// PortalCrawler is built for every execution.
type PortalCrawler struct {
	portal   string
	targets  []categoryTarget
	session  *session
	builder  *builder.Builder
	maxPages int
	stats    model.CrawlerStats
	logger   *zap.Logger
}

// NewPortalCrawler compiles the selectors of every enabled category of p.
func NewPortalCrawler(p config.PortalConfig, fetcher Fetcher, b *builder.Builder, settings Settings, logger *zap.Logger) (*PortalCrawler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &PortalCrawler{
		portal:   p.Name,
		builder:  b,
		maxPages: settings.MaxPages,
		stats:    model.CrawlerStats{PortalName: p.Name, Errors: []string{}},
		logger:   logger.Named("portal").With(zap.String("portal", p.Name)),
	}
	for _, cat := range model.EntryCategories {
		cfg, ok := p.Category(cat)
		if !ok {
			continue
		}
		sel, err := builder.Compile(cfg.Selectors)
		if err != nil {
			return nil, fmt.Errorf("portal %s category %s: %w", p.Name, cat, err)
		}
		c.targets = append(c.targets, categoryTarget{
			category: cat,
			url:      cfg.URL,
			template: builder.Template{Portal: p.Name, PageURL: cfg.URL, Selectors: sel},
		})
	}
	c.session = newSession(fetcher, settings, portalHeaders(p.Headers), &c.stats, c.logger)
	return c, nil
}

// Categories lists the enabled categories in crawl order.
func (c *PortalCrawler) Categories() []model.Category {
	out := make([]model.Category, 0, len(c.targets))
	for _, t := range c.targets {
		out = append(out, t.category)
	}
	return out
}

// Stats returns the counters of the last Crawl.
func (c *PortalCrawler) Stats() model.CrawlerStats { return c.stats }

// Crawl fetches every enabled category, following pagination until the
// portal's page budget is spent. A failed page ends its category; the other
// categories still run.
func (c *PortalCrawler) Crawl(ctx context.Context) (model.Batch, error) {
	var (
		batch model.Batch
		pages int
	)
	for _, target := range c.targets {
		visited := make(map[string]struct{})
		next := target.url
		for next != "" {
			if err := ctx.Err(); err != nil {
				return batch, fmt.Errorf("crawl %s: %w", c.portal, err)
			}
			if c.maxPages > 0 && pages >= c.maxPages {
				c.logger.Info("page budget reached", zap.Int("pages", pages))
				return batch, nil
			}
			visited[next] = struct{}{}
			pages++

			doc, err := c.fetchPage(ctx, next)
			if err != nil {
				break
			}
			tpl := target.template
			tpl.PageURL = next
			c.collect(&batch, target.category, doc, tpl)

			following, ok := c.builder.NextPage(doc, tpl)
			if _, seen := visited[following]; !ok || seen {
				following = ""
			}
			next = following
		}
	}

	if c.stats.PagesCrawled == 0 && len(c.stats.Errors) > 0 {
		return batch, fmt.Errorf("crawl %s: %w", c.portal, ErrNoPages)
	}
	return batch, nil
}

func (c *PortalCrawler) fetchPage(ctx context.Context, pageURL string) (*goquery.Document, error) {
	resp, err := c.session.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := extract.Parse(bytes.NewReader(resp.Body), resp.ContentType())
	if err != nil {
		c.stats.AddError(fmt.Sprintf("%s: %v", pageURL, err))
		return nil, err
	}
	return doc, nil
}

func (c *PortalCrawler) collect(batch *model.Batch, category model.Category, doc *goquery.Document, tpl builder.Template) {
	var st builder.Stats
	switch category {
	case model.CategoryJobs:
		var jobs []*model.Job
		jobs, st = c.builder.Jobs(doc, tpl)
		batch.Jobs = append(batch.Jobs, jobs...)
		c.stats.JobsFound += len(jobs)
	case model.CategoryResults:
		var results []*model.Result
		results, st = c.builder.Results(doc, tpl)
		batch.Results = append(batch.Results, results...)
		c.stats.ResultsFound += len(results)
	case model.CategoryAdmitCards:
		var cards []*model.AdmitCard
		cards, st = c.builder.AdmitCards(doc, tpl)
		batch.AdmitCards = append(batch.AdmitCards, cards...)
		c.stats.AdmitCardsFound += len(cards)
	case model.CategoryNotifications:
		var notes []*model.Notification
		notes, st = c.builder.Notifications(doc, tpl)
		batch.Notifications = append(batch.Notifications, notes...)
		c.stats.NotificationsFound += len(notes)
	}
	c.stats.Skipped += st.Skipped
	c.logger.Debug("listing page parsed",
		zap.String("category", string(category)),
		zap.String("url", tpl.PageURL),
		zap.Int("containers", st.Containers),
		zap.Int("built", st.Built),
	)
}
