// Package processor validates, deduplicates and persists crawled entries.
//
// Listing kinds (jobs, results, admit cards) are merged under a single store
// lock: incoming entries go to the front in arrival order and existing records
// that were not seen again keep their relative order behind them. Notifications
// are append-only and deduplicated through the in-memory id cache.
package processor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/metrics"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/store"
)

// Result summarizes one processing call.
type Result struct {
	Total      int `json:"total"`
	New        int `json:"new"`
	Duplicates int `json:"duplicates"`
	Updated    int `json:"updated"`
	Skipped    int `json:"skipped"`
}

// BatchResult holds one Result per category touched by ProcessBatch.
type BatchResult map[model.Category]Result

// NewItems sums new entries across categories.
func (r BatchResult) NewItems() int {
	n := 0
	for _, res := range r {
		n += res.New
	}
	return n
}

// HistorySink mirrors crawl history somewhere outside the JSON store.
type HistorySink interface {
	RecordHistory(ctx context.Context, h *model.CrawlHistory) error
}

// Processor is safe for concurrent use; serialization of file writes is left
// to the store lock.
type Processor struct {
	store   *store.Store
	logger  *zap.Logger
	history HistorySink

	mu  sync.RWMutex
	ids map[model.Category]map[string]struct{}
}

// Option configures a Processor.
type Option func(*Processor)

// WithHistorySink mirrors every RecordHistory call to sink.
func WithHistorySink(sink HistorySink) Option {
	return func(p *Processor) { p.history = sink }
}

// New builds a Processor and loads the id cache from st.
func New(ctx context.Context, st *store.Store, logger *zap.Logger, opts ...Option) (*Processor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		store:  st,
		logger: logger.Named("processor"),
	}
	for _, opt := range opts {
		opt(p)
	}
	if err := p.RefreshCache(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// RefreshCache reloads the id cache from disk.
func (p *Processor) RefreshCache(ctx context.Context) error {
	ids := make(map[model.Category]map[string]struct{}, 4)
	for _, c := range model.EntryCategories {
		entries, err := p.Entries(ctx, c, 0)
		if err != nil {
			return fmt.Errorf("load id cache: %w", err)
		}
		set := make(map[string]struct{}, len(entries))
		for _, e := range entries {
			if id := e.RecordID(); id != "" {
				set[id] = struct{}{}
			}
		}
		ids[c] = set
	}

	p.mu.Lock()
	p.ids = ids
	p.mu.Unlock()

	total := 0
	for _, set := range ids {
		total += len(set)
	}
	p.logger.Debug("id cache loaded", zap.Int("ids", total))
	return nil
}

// CacheSizes reports how many ids are cached per category.
func (p *Processor) CacheSizes() map[model.Category]int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[model.Category]int, len(p.ids))
	for c, set := range p.ids {
		out[c] = len(set)
	}
	return out
}

func (p *Processor) known(c model.Category, id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.ids[c][id]
	return ok
}

func (p *Processor) remember(c model.Category, ids []string) {
	if len(ids) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.ids[c]
	if !ok {
		set = make(map[string]struct{}, len(ids))
		p.ids[c] = set
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
}

// ProcessJobs merges jobs into the store.
func (p *Processor) ProcessJobs(ctx context.Context, jobs []*model.Job) (Result, error) {
	return mergeListing(ctx, p, p.store.Jobs(), jobs)
}

// ProcessResults merges results into the store.
func (p *Processor) ProcessResults(ctx context.Context, results []*model.Result) (Result, error) {
	return mergeListing(ctx, p, p.store.Results(), results)
}

// ProcessAdmitCards merges admit cards into the store.
func (p *Processor) ProcessAdmitCards(ctx context.Context, cards []*model.AdmitCard) (Result, error) {
	return mergeListing(ctx, p, p.store.AdmitCards(), cards)
}

func mergeListing[T model.Detailed](ctx context.Context, p *Processor, table *store.Table[T], incoming []T) (Result, error) {
	category := table.Category()
	res := Result{Total: len(incoming)}
	if len(incoming) == 0 {
		return res, nil
	}

	var added []string
	err := table.Mutate(ctx, func(existing []T) ([]T, error) {
		index := make(map[string]T, len(existing))
		for _, e := range existing {
			index[e.RecordID()] = e
		}

		seen := make(map[string]struct{}, len(incoming))
		out := make([]T, 0, len(incoming)+len(existing))
		for _, in := range incoming {
			base := in.Common()
			if !valid(base) {
				res.Skipped++
				p.logger.Warn("invalid entry skipped",
					zap.String("category", string(category)),
					zap.String("title", base.Title),
					zap.String("url", base.URL),
				)
				continue
			}
			if _, dup := seen[base.ID]; dup {
				res.Skipped++
				continue
			}
			seen[base.ID] = struct{}{}

			if old, ok := index[base.ID]; ok {
				markDuplicate(base, old.Common())
				if !in.HasDetails() && old.HasDetails() {
					in.SetDetails(old.Details())
				}
				res.Duplicates++
				res.Updated++
			} else {
				markNew(base)
				res.New++
				added = append(added, base.ID)
			}
			out = append(out, in)
		}
		if len(out) == 0 {
			return nil, store.ErrNoChange
		}
		for _, e := range existing {
			if _, moved := seen[e.RecordID()]; !moved {
				out = append(out, e)
			}
		}
		return out, nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("process %s: %w", category, err)
	}

	p.remember(category, added)
	metrics.ObserveNewEntries(string(category), res.New)
	if res.New+res.Updated > 0 {
		p.logger.Info("entries stored",
			zap.String("category", string(category)),
			zap.Int("new", res.New),
			zap.Int("updated", res.Updated),
		)
	}
	return res, nil
}

// ProcessNotifications front-inserts notifications whose id has not been seen.
func (p *Processor) ProcessNotifications(ctx context.Context, notifications []*model.Notification) (Result, error) {
	res := Result{Total: len(notifications)}
	if len(notifications) == 0 {
		return res, nil
	}

	fresh := make([]*model.Notification, 0, len(notifications))
	ids := make([]string, 0, len(notifications))
	seen := make(map[string]struct{}, len(notifications))
	for _, n := range notifications {
		if !valid(&n.Base) {
			res.Skipped++
			continue
		}
		if _, dup := seen[n.ID]; dup || p.known(model.CategoryNotifications, n.ID) {
			res.Duplicates++
			continue
		}
		seen[n.ID] = struct{}{}
		markNew(&n.Base)
		fresh = append(fresh, n)
		ids = append(ids, n.ID)
	}

	if err := p.store.Notifications().InsertMany(ctx, fresh); err != nil {
		return Result{}, fmt.Errorf("process notifications: %w", err)
	}
	res.New = len(fresh)
	p.remember(model.CategoryNotifications, ids)
	metrics.ObserveNewEntries(string(model.CategoryNotifications), res.New)
	return res, nil
}

// ProcessBatch processes every kind in the batch. It stops at the first
// persistence error and returns what was processed so far.
func (p *Processor) ProcessBatch(ctx context.Context, batch model.Batch) (BatchResult, error) {
	out := make(BatchResult, 4)
	steps := []struct {
		category model.Category
		run      func() (Result, error)
	}{
		{model.CategoryJobs, func() (Result, error) { return p.ProcessJobs(ctx, batch.Jobs) }},
		{model.CategoryResults, func() (Result, error) { return p.ProcessResults(ctx, batch.Results) }},
		{model.CategoryAdmitCards, func() (Result, error) { return p.ProcessAdmitCards(ctx, batch.AdmitCards) }},
		{model.CategoryNotifications, func() (Result, error) { return p.ProcessNotifications(ctx, batch.Notifications) }},
	}
	for _, step := range steps {
		res, err := step.run()
		if err != nil {
			return out, err
		}
		if res.Total > 0 {
			out[step.category] = res
		}
	}
	return out, nil
}

// RecordHistory front-inserts h into crawl_history and mirrors it to the
// history sink. Mirror failures are logged, not returned.
func (p *Processor) RecordHistory(ctx context.Context, h *model.CrawlHistory) error {
	if err := p.store.History().Insert(ctx, h); err != nil {
		return fmt.Errorf("record history: %w", err)
	}
	if p.history != nil {
		if err := p.history.RecordHistory(ctx, h); err != nil {
			p.logger.Warn("history mirror failed", zap.String("id", h.ID), zap.Error(err))
		}
	}
	return nil
}

func valid(b *model.Base) bool {
	if b.ID == "" || strings.TrimSpace(b.Title) == "" || b.URL == "" {
		return false
	}
	return strings.HasPrefix(b.URL, "http://") || strings.HasPrefix(b.URL, "https://")
}

func markNew(b *model.Base) {
	b.IsNew = true
	b.IsDuplicate = false
	b.TimesSeen = 1
	b.PreviousDiscoveredAt = nil
}

func markDuplicate(b, old *model.Base) {
	b.IsNew = false
	b.IsDuplicate = true
	prev := old.DiscoveredAt
	b.PreviousDiscoveredAt = &prev
	seen := old.TimesSeen
	if seen < 1 {
		seen = 1
	}
	b.TimesSeen = seen + 1
}

// Statistics is the store-wide summary used by the stats endpoint and CLI.
type Statistics struct {
	Categories        map[model.Category]store.CategoryStats `json:"categories"`
	LastCrawl         *time.Time                             `json:"last_crawl,omitempty"`
	DatabaseSizeBytes int64                                  `json:"database_size_bytes"`
}

// Statistics summarizes every category.
func (p *Processor) Statistics(ctx context.Context) (Statistics, error) {
	cats, err := p.store.Stats(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("statistics: %w", err)
	}
	size, err := p.store.Size()
	if err != nil {
		return Statistics{}, fmt.Errorf("statistics: %w", err)
	}
	out := Statistics{Categories: cats, DatabaseSizeBytes: size}

	last, err := p.History(ctx, 1)
	if err != nil {
		return Statistics{}, err
	}
	if len(last) > 0 {
		t := last[0].CrawlTime
		out.LastCrawl = &t
	}
	return out, nil
}

// PortalStatistics counts stored entries per portal and category.
func (p *Processor) PortalStatistics(ctx context.Context) (map[string]map[model.Category]int, error) {
	out := make(map[string]map[model.Category]int)
	for _, c := range model.EntryCategories {
		entries, err := p.Entries(ctx, c, 0)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			portal := e.Common().PortalName
			if out[portal] == nil {
				out[portal] = make(map[model.Category]int, 4)
			}
			out[portal][c]++
		}
	}
	return out, nil
}
