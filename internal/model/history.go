package model

import "time"

// CrawlStatus is the outcome of one portal execution.
type CrawlStatus string

// Crawl outcomes. Partial means some pages failed but the portal was processed.
const (
	CrawlSuccess CrawlStatus = "success"
	CrawlPartial CrawlStatus = "partial"
	CrawlFailed  CrawlStatus = "failed"
)

// CrawlHistory is persisted once per portal execution, on success and on failure.
type CrawlHistory struct {
	ID                string            `json:"id"`
	PortalName        string            `json:"portal_name"`
	CrawlTime         time.Time         `json:"crawl_time"`
	Status            CrawlStatus       `json:"status"`
	ItemsFound        int               `json:"items_found"`
	NewItems          int               `json:"new_items"`
	DurationSeconds   float64           `json:"duration_seconds"`
	ErrorMessage      string            `json:"error_message,omitempty"`
	CategoriesCrawled []Category        `json:"categories_crawled"`
	Metadata          map[string]string `json:"metadata,omitempty"`
}

// RecordID implements Record.
func (h *CrawlHistory) RecordID() string { return h.ID }

// CrawlerStats accumulates counters for one portal execution.
type CrawlerStats struct {
	PortalName         string      `json:"portal_name"`
	StartTime          time.Time   `json:"start_time"`
	EndTime            time.Time   `json:"end_time"`
	Status             CrawlStatus `json:"status"`
	PagesCrawled       int         `json:"pages_crawled"`
	JobsFound          int         `json:"jobs_found"`
	ResultsFound       int         `json:"results_found"`
	AdmitCardsFound    int         `json:"admit_cards_found"`
	NotificationsFound int         `json:"notifications_found"`
	Skipped            int         `json:"skipped"`
	NewEntries         int         `json:"new_entries"`
	Errors             []string    `json:"errors"`
}

// TotalItems sums the per-kind counters.
func (s *CrawlerStats) TotalItems() int {
	return s.JobsFound + s.ResultsFound + s.AdmitCardsFound + s.NotificationsFound
}

// Duration is zero until EndTime is set.
func (s *CrawlerStats) Duration() time.Duration {
	if s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// AddError records a non-fatal failure.
func (s *CrawlerStats) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

// RunStatus is the overall outcome of a coordinator run.
type RunStatus string

// Run outcomes.
const (
	RunCompleted RunStatus = "completed"
	RunNoPortals RunStatus = "no_portals"
)

// RunSummary aggregates one coordinator run across portals.
type RunSummary struct {
	Status          RunStatus      `json:"status"`
	Message         string         `json:"message,omitempty"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	DurationSeconds float64        `json:"duration_seconds"`
	PortalsCrawled  int            `json:"portals_crawled"`
	Successful      int            `json:"successful"`
	Failed          int            `json:"failed"`
	NewItems        int            `json:"new_items"`
	PortalStats     []CrawlerStats `json:"portal_stats"`
}

// CrawlEvent is published after each portal execution.
type CrawlEvent struct {
	HistoryID  string      `json:"history_id"`
	PortalName string      `json:"portal_name"`
	Status     CrawlStatus `json:"status"`
	ItemsFound int         `json:"items_found"`
	NewItems   int         `json:"new_items"`
	CrawlTime  time.Time   `json:"crawl_time"`
}
