package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/extract"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// ErrEmptyPage is returned when a detail page yields no description text.
var ErrEmptyPage = errors.New("detail page has no extractable content")

// DetailTarget is a stored listing scheduled for a detail-fetch.
type DetailTarget struct {
	Category model.Category
	Entry    model.Detailed
}

// DetailCrawler fetches and extracts detail pages.
type DetailCrawler struct {
	session   *session
	extractor *extract.Extractor
	targets   []DetailTarget
	stats     model.CrawlerStats
	logger    *zap.Logger
}

// NewDetailCrawler builds a crawler for the given targets. FetchDetails can be
// used without targets.
func NewDetailCrawler(fetcher Fetcher, extractor *extract.Extractor, settings Settings, logger *zap.Logger, targets ...DetailTarget) *DetailCrawler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if extractor == nil {
		extractor = extract.New()
	}
	d := &DetailCrawler{
		extractor: extractor,
		targets:   targets,
		stats:     model.CrawlerStats{PortalName: "details", Errors: []string{}},
		logger:    logger.Named("details"),
	}
	d.session = newSession(fetcher, settings, http.Header{}, &d.stats, d.logger)
	return d
}

// Stats returns the counters accumulated so far.
func (d *DetailCrawler) Stats() model.CrawlerStats { return d.stats }

// FetchDetails fetches pageURL and extracts it with the hinted strategy. With
// ContentAuto the page is extracted as a job first and then re-extracted as
// the type suggested by the fields found on it.
func (d *DetailCrawler) FetchDetails(ctx context.Context, pageURL string, hint model.ContentType) (*model.DetailedInfo, error) {
	resp, err := d.session.get(ctx, pageURL)
	if err != nil {
		return nil, err
	}
	doc, err := extract.Parse(bytes.NewReader(resp.Body), resp.ContentType())
	if err != nil {
		d.stats.AddError(fmt.Sprintf("%s: %v", pageURL, err))
		return nil, err
	}

	if hint != model.ContentAuto && hint != "" {
		info := d.extractor.Extract(doc, pageURL, hint)
		if info.FullDescription == "" {
			return nil, fmt.Errorf("extract %s: %w", pageURL, ErrEmptyPage)
		}
		return info, nil
	}

	// The description does not depend on the content type; only link
	// classification does, so one pass decides emptiness and the type.
	info := d.extractor.Extract(doc, pageURL, model.ContentJob)
	if info.FullDescription == "" {
		return nil, fmt.Errorf("extract %s: %w", pageURL, ErrEmptyPage)
	}
	if refined := extract.DetectContentType(info.FieldKeys()); refined != info.ContentType {
		info = d.extractor.Extract(doc, pageURL, refined)
	}
	return info, nil
}

// Crawl fetches details for every target and returns the enriched entries.
// Failed targets are recorded in Stats and skipped.
func (d *DetailCrawler) Crawl(ctx context.Context) (model.Batch, error) {
	var batch model.Batch
	for _, t := range d.targets {
		if err := ctx.Err(); err != nil {
			return batch, fmt.Errorf("crawl details: %w", err)
		}
		base := t.Entry.Common()
		info, err := d.FetchDetails(ctx, base.URL, t.Category.ContentType())
		if err != nil {
			if errors.Is(err, ErrEmptyPage) {
				d.stats.AddError(err.Error())
			}
			d.logger.Warn("detail fetch failed",
				zap.String("id", base.ID),
				zap.String("url", base.URL),
				zap.Error(err),
			)
			continue
		}
		t.Entry.SetDetails(info)
		switch e := t.Entry.(type) {
		case *model.Job:
			batch.Jobs = append(batch.Jobs, e)
			d.stats.JobsFound++
		case *model.Result:
			batch.Results = append(batch.Results, e)
			d.stats.ResultsFound++
		case *model.AdmitCard:
			batch.AdmitCards = append(batch.AdmitCards, e)
			d.stats.AdmitCardsFound++
		}
	}
	return batch, nil
}

// detailedEntries flattens the listing kinds of a batch.
func detailedEntries(b model.Batch) []model.Detailed {
	out := make([]model.Detailed, 0, len(b.Jobs)+len(b.Results)+len(b.AdmitCards))
	for _, j := range b.Jobs {
		out = append(out, j)
	}
	for _, r := range b.Results {
		out = append(out, r)
	}
	for _, a := range b.AdmitCards {
		out = append(out, a)
	}
	return out
}
