package crawler

import (
	"context"
	"time"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/processor"
)

// Fetcher fetches a URL and returns the body plus metadata.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// Crawler produces entries from one source. Stats is valid after Crawl returns.
type Crawler interface {
	Crawl(ctx context.Context) (model.Batch, error)
	Stats() model.CrawlerStats
}

// RetryPolicy decides whether and when a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}

// Publisher pushes crawl events to Pub/Sub, Redis or similar.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Processor is the persistence side the Coordinator depends on.
type Processor interface {
	ProcessBatch(ctx context.Context, batch model.Batch) (processor.BatchResult, error)
	RecordHistory(ctx context.Context, h *model.CrawlHistory) error
	PendingDetails(ctx context.Context, c model.Category, limit int) ([]model.Detailed, error)
	Lookup(ctx context.Context, c model.Category, id string) (model.Detailed, error)
	ApplyDetails(ctx context.Context, c model.Category, id string, info *model.DetailedInfo) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces crawl history IDs.
type IDGenerator interface {
	NewID() (string, error)
}
