package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/config"
	"github.com/Jadaunkg/job-portal-crawler/internal/metrics"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// ErrUnknownPortal is returned by RunPortal for names missing from the config.
var ErrUnknownPortal = errors.New("unknown portal")

// CrawlerFactory builds a fresh listing crawler for one portal execution.
type CrawlerFactory func(p config.PortalConfig) (Crawler, error)

// DetailSource fetches detail pages; *DetailCrawler implements it.
type DetailSource interface {
	Crawler
	FetchDetails(ctx context.Context, pageURL string, hint model.ContentType) (*model.DetailedInfo, error)
}

// DetailFactory builds a detail crawler over the given targets.
type DetailFactory func(targets ...DetailTarget) DetailSource

// Coordinator runs portals sequentially and records their outcome.
type Coordinator struct {
	portals    []config.PortalConfig
	newCrawler CrawlerFactory
	newDetails DetailFactory
	processor  Processor
	ids        IDGenerator
	clock      Clock
	publisher  Publisher
	topic      string
	logger     *zap.Logger
}

// CoordinatorOption configures optional Coordinator collaborators.
type CoordinatorOption func(*Coordinator)

// WithPublisher publishes a model.CrawlEvent to topic after every portal.
func WithPublisher(p Publisher, topic string) CoordinatorOption {
	return func(c *Coordinator) {
		c.publisher = p
		c.topic = topic
	}
}

// NewCoordinator wires a Coordinator. portals may include disabled entries;
// Run skips them.
func NewCoordinator(
	portals []config.PortalConfig,
	newCrawler CrawlerFactory,
	newDetails DetailFactory,
	proc Processor,
	ids IDGenerator,
	clock Clock,
	logger *zap.Logger,
	opts ...CoordinatorOption,
) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Coordinator{
		portals:    portals,
		newCrawler: newCrawler,
		newDetails: newDetails,
		processor:  proc,
		ids:        ids,
		clock:      clock,
		logger:     logger.Named("coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Portals returns the configured portals.
func (c *Coordinator) Portals() []config.PortalConfig { return c.portals }

// Run crawls every enabled portal in configuration order. One portal failing,
// including by panic, does not stop the others.
func (c *Coordinator) Run(ctx context.Context) (model.RunSummary, error) {
	start := c.clock.Now()
	summary := model.RunSummary{
		Status:      model.RunCompleted,
		StartTime:   start,
		PortalStats: []model.CrawlerStats{},
	}

	var enabled []config.PortalConfig
	for _, p := range c.portals {
		if p.Enabled {
			enabled = append(enabled, p)
		}
	}
	if len(enabled) == 0 {
		c.logger.Warn("no enabled portals configured")
		summary.Status = model.RunNoPortals
		summary.Message = "no enabled portals configured"
		summary.EndTime = c.clock.Now()
		return summary, nil
	}

	c.logger.Info("crawl run started", zap.Int("portals", len(enabled)))
	for _, p := range enabled {
		if err := ctx.Err(); err != nil {
			c.finish(&summary)
			return summary, fmt.Errorf("crawl run: %w", err)
		}
		stats, _ := c.runPortal(ctx, p)
		summary.PortalsCrawled++
		if stats.Status == model.CrawlFailed {
			summary.Failed++
		} else {
			summary.Successful++
		}
		summary.NewItems += stats.NewEntries
		summary.PortalStats = append(summary.PortalStats, stats)
	}
	c.finish(&summary)

	c.logger.Info("crawl run finished",
		zap.Int("portals", summary.PortalsCrawled),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Int("new_items", summary.NewItems),
		zap.Float64("duration_seconds", summary.DurationSeconds),
	)
	return summary, nil
}

func (c *Coordinator) finish(s *model.RunSummary) {
	s.EndTime = c.clock.Now()
	s.DurationSeconds = s.EndTime.Sub(s.StartTime).Seconds()
}

// RunPortal crawls a single portal by name, enabled or not.
func (c *Coordinator) RunPortal(ctx context.Context, name string) (model.CrawlerStats, error) {
	for _, p := range c.portals {
		if p.Name == name {
			return c.runPortal(ctx, p)
		}
	}
	return model.CrawlerStats{}, fmt.Errorf("portal %q: %w", name, ErrUnknownPortal)
}

func (c *Coordinator) runPortal(ctx context.Context, p config.PortalConfig) (model.CrawlerStats, error) {
	logger := c.logger.With(zap.String("portal", p.Name))
	start := c.clock.Now()

	stats, categories, err := c.crawlPortal(ctx, p)
	stats.PortalName = p.Name
	stats.StartTime = start
	stats.EndTime = c.clock.Now()
	if stats.Errors == nil {
		stats.Errors = []string{}
	}

	switch {
	case err != nil:
		stats.Status = model.CrawlFailed
	case len(stats.Errors) > 0:
		stats.Status = model.CrawlPartial
	default:
		stats.Status = model.CrawlSuccess
	}
	metrics.ObservePortalRun(p.Name, string(stats.Status))

	history := &model.CrawlHistory{
		PortalName:        p.Name,
		CrawlTime:         stats.EndTime,
		Status:            stats.Status,
		ItemsFound:        stats.TotalItems(),
		NewItems:          stats.NewEntries,
		DurationSeconds:   stats.Duration().Seconds(),
		CategoriesCrawled: categories,
		Metadata: map[string]string{
			"pages_crawled": fmt.Sprint(stats.PagesCrawled),
			"skipped":       fmt.Sprint(stats.Skipped),
		},
	}
	if err != nil {
		history.ErrorMessage = err.Error()
	} else if len(stats.Errors) > 0 {
		history.ErrorMessage = fmt.Sprintf("%d page(s) failed; first: %s", len(stats.Errors), stats.Errors[0])
	}
	c.record(ctx, history, logger)

	if err != nil {
		logger.Error("portal crawl failed", zap.Error(err))
	} else {
		logger.Info("portal crawl finished",
			zap.String("status", string(stats.Status)),
			zap.Int("items", stats.TotalItems()),
			zap.Int("new", stats.NewEntries),
		)
	}
	return stats, err
}

// crawlPortal runs the crawl and process steps, converting panics to errors.
func (c *Coordinator) crawlPortal(ctx context.Context, p config.PortalConfig) (stats model.CrawlerStats, categories []model.Category, err error) {
	var cr Crawler
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("portal %s panicked: %v", p.Name, r)
			if cr != nil {
				stats = cr.Stats()
			}
		}
	}()

	cr, err = c.newCrawler(p)
	if err != nil {
		return model.CrawlerStats{}, nil, fmt.Errorf("build crawler: %w", err)
	}

	batch, crawlErr := cr.Crawl(ctx)
	stats = cr.Stats()
	categories = batch.Categories()
	if categories == nil {
		categories = []model.Category{}
	}
	if crawlErr != nil && batch.Len() == 0 {
		return stats, categories, crawlErr
	}
	if crawlErr != nil {
		stats.AddError(crawlErr.Error())
	}

	res, err := c.processor.ProcessBatch(ctx, batch)
	stats.NewEntries = res.NewItems()
	if err != nil {
		return stats, categories, fmt.Errorf("process batch: %w", err)
	}
	return stats, categories, nil
}

// record persists the history entry and publishes the crawl event. The
// history write outlives caller cancellation so aborted runs are still logged.
func (c *Coordinator) record(ctx context.Context, h *model.CrawlHistory, logger *zap.Logger) {
	id, err := c.ids.NewID()
	if err != nil {
		logger.Warn("history id generation failed", zap.Error(err))
		id = fmt.Sprintf("%s-%d", h.PortalName, h.CrawlTime.UnixNano())
	}
	h.ID = id

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := c.processor.RecordHistory(writeCtx, h); err != nil {
		logger.Error("record crawl history", zap.Error(err))
	}

	if c.publisher == nil {
		return
	}
	event := model.CrawlEvent{
		HistoryID:  h.ID,
		PortalName: h.PortalName,
		Status:     h.Status,
		ItemsFound: h.ItemsFound,
		NewItems:   h.NewItems,
		CrawlTime:  h.CrawlTime,
	}
	msgID, err := c.publisher.Publish(writeCtx, c.topic, event)
	if err != nil {
		logger.Warn("publish crawl event", zap.Error(err))
		return
	}
	logger.Debug("crawl event published", zap.String("message_id", msgID))
}

// DetailSummary reports one CrawlDetails run.
type DetailSummary struct {
	Category  model.Category `json:"category"`
	Attempted int            `json:"attempted"`
	Enriched  int            `json:"enriched"`
	Failed    int            `json:"failed"`
	Errors    []string       `json:"errors"`
}

// CrawlDetails runs a detail-fetch for up to limit stored entries of category
// that have no detailed_info yet.
func (c *Coordinator) CrawlDetails(ctx context.Context, category model.Category, limit int) (DetailSummary, error) {
	summary := DetailSummary{Category: category, Errors: []string{}}
	pending, err := c.processor.PendingDetails(ctx, category, limit)
	if err != nil {
		return summary, err
	}
	summary.Attempted = len(pending)
	if len(pending) == 0 {
		return summary, nil
	}

	targets := make([]DetailTarget, 0, len(pending))
	for _, e := range pending {
		targets = append(targets, DetailTarget{Category: category, Entry: e})
	}
	dc := c.newDetails(targets...)
	batch, crawlErr := dc.Crawl(ctx)

	for _, e := range detailedEntries(batch) {
		if err := c.processor.ApplyDetails(ctx, category, e.RecordID(), e.Details()); err != nil {
			summary.Errors = append(summary.Errors, err.Error())
			continue
		}
		summary.Enriched++
	}
	summary.Errors = append(summary.Errors, dc.Stats().Errors...)
	summary.Failed = summary.Attempted - summary.Enriched
	c.logger.Info("detail crawl finished",
		zap.String("category", string(category)),
		zap.Int("attempted", summary.Attempted),
		zap.Int("enriched", summary.Enriched),
	)
	if crawlErr != nil {
		return summary, crawlErr
	}
	return summary, nil
}

// EnrichOne runs a detail-fetch for one stored entry and persists the result.
func (c *Coordinator) EnrichOne(ctx context.Context, category model.Category, id string) (*model.DetailedInfo, error) {
	entry, err := c.processor.Lookup(ctx, category, id)
	if err != nil {
		return nil, err
	}
	info, err := c.FetchDetails(ctx, entry.Common().URL, category.ContentType())
	if err != nil {
		return nil, err
	}
	if err := c.processor.ApplyDetails(ctx, category, id, info); err != nil {
		return nil, err
	}
	return info, nil
}

// FetchDetails runs a detail-fetch for an arbitrary URL without persisting it.
func (c *Coordinator) FetchDetails(ctx context.Context, pageURL string, hint model.ContentType) (*model.DetailedInfo, error) {
	return c.newDetails().FetchDetails(ctx, pageURL, hint)
}
