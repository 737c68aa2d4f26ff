package processor

import (
	"context"
	"fmt"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/store"
)

// Entries returns up to limit stored entries of any entry category, newest first.
func (p *Processor) Entries(ctx context.Context, c model.Category, limit int) ([]model.Entry, error) {
	switch c {
	case model.CategoryJobs:
		return loadAs[*model.Job, model.Entry](ctx, p.store.Jobs(), limit)
	case model.CategoryResults:
		return loadAs[*model.Result, model.Entry](ctx, p.store.Results(), limit)
	case model.CategoryAdmitCards:
		return loadAs[*model.AdmitCard, model.Entry](ctx, p.store.AdmitCards(), limit)
	case model.CategoryNotifications:
		return loadAs[*model.Notification, model.Entry](ctx, p.store.Notifications(), limit)
	default:
		return nil, fmt.Errorf("entries %q: %w", c, store.ErrUnknownCategory)
	}
}

// Listings returns up to limit entries of a category that supports detail-fetch.
func (p *Processor) Listings(ctx context.Context, c model.Category, limit int) ([]model.Detailed, error) {
	switch c {
	case model.CategoryJobs:
		return loadAs[*model.Job, model.Detailed](ctx, p.store.Jobs(), limit)
	case model.CategoryResults:
		return loadAs[*model.Result, model.Detailed](ctx, p.store.Results(), limit)
	case model.CategoryAdmitCards:
		return loadAs[*model.AdmitCard, model.Detailed](ctx, p.store.AdmitCards(), limit)
	default:
		return nil, fmt.Errorf("listings %q: %w", c, store.ErrUnknownCategory)
	}
}

// Lookup returns one listing entry by id.
func (p *Processor) Lookup(ctx context.Context, c model.Category, id string) (model.Detailed, error) {
	switch c {
	case model.CategoryJobs:
		return lookup(ctx, p.store.Jobs(), id)
	case model.CategoryResults:
		return lookup(ctx, p.store.Results(), id)
	case model.CategoryAdmitCards:
		return lookup(ctx, p.store.AdmitCards(), id)
	default:
		return nil, fmt.Errorf("lookup %q: %w", c, store.ErrUnknownCategory)
	}
}

// PendingDetails returns up to limit entries without detailed_info, newest first.
func (p *Processor) PendingDetails(ctx context.Context, c model.Category, limit int) ([]model.Detailed, error) {
	all, err := p.Listings(ctx, c, 0)
	if err != nil {
		return nil, err
	}
	out := make([]model.Detailed, 0)
	for _, e := range all {
		if e.HasDetails() {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ApplyDetails stores info on the entry with the given id.
func (p *Processor) ApplyDetails(ctx context.Context, c model.Category, id string, info *model.DetailedInfo) error {
	switch c {
	case model.CategoryJobs:
		return applyDetails(ctx, p.store.Jobs(), id, info)
	case model.CategoryResults:
		return applyDetails(ctx, p.store.Results(), id, info)
	case model.CategoryAdmitCards:
		return applyDetails(ctx, p.store.AdmitCards(), id, info)
	default:
		return fmt.Errorf("apply details %q: %w", c, store.ErrUnknownCategory)
	}
}

// History returns up to limit crawl history records, newest first.
func (p *Processor) History(ctx context.Context, limit int) ([]*model.CrawlHistory, error) {
	h, err := p.store.History().All(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return h, nil
}

func lookup[T model.Detailed](ctx context.Context, table *store.Table[T], id string) (model.Detailed, error) {
	r, err := table.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func applyDetails[T model.Detailed](ctx context.Context, table *store.Table[T], id string, info *model.DetailedInfo) error {
	return table.Mutate(ctx, func(records []T) ([]T, error) {
		for _, r := range records {
			if r.RecordID() == id {
				r.SetDetails(info)
				return records, nil
			}
		}
		return nil, fmt.Errorf("%s %q: %w", table.Category(), id, store.ErrNotFound)
	})
}

func loadAs[T model.Record, U any](ctx context.Context, table *store.Table[T], limit int) ([]U, error) {
	records, err := table.All(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]U, 0, len(records))
	for _, r := range records {
		u, ok := any(r).(U)
		if !ok {
			return nil, fmt.Errorf("%s: unexpected record type %T", table.Category(), r)
		}
		out = append(out, u)
	}
	return out, nil
}
