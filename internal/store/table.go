package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// Table is a typed view over one category file. Records are kept newest first.
type Table[T model.Record] struct {
	s        *Store
	category model.Category
}

func newTable[T model.Record](s *Store, c model.Category) *Table[T] {
	return &Table[T]{s: s, category: c}
}

// Category returns the category the table reads and writes.
func (t *Table[T]) Category() model.Category { return t.category }

func (t *Table[T]) decode(cf *categoryFile) ([]T, error) {
	data, err := t.s.readRaw(cf)
	if err != nil {
		return nil, err
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode %s: %w", t.category, err)
	}
	records := make([]T, 0, len(raw))
	for i, item := range raw {
		if string(item) == "null" {
			continue
		}
		var record T
		if err := json.Unmarshal(item, &record); err != nil {
			return nil, fmt.Errorf("decode %s record %d: %w", t.category, i, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// All returns up to limit records in stored order; limit <= 0 returns every record.
func (t *Table[T]) All(ctx context.Context, limit int) ([]T, error) {
	var out []T
	err := t.Mutate(ctx, func(records []T) ([]T, error) {
		if limit > 0 && len(records) > limit {
			records = records[:limit]
		}
		out = records
		return nil, ErrNoChange
	})
	return out, err
}

// Get returns the record with the given id.
func (t *Table[T]) Get(ctx context.Context, id string) (T, error) {
	var found T
	err := t.Mutate(ctx, func(records []T) ([]T, error) {
		if i := indexOf(records, id); i >= 0 {
			found = records[i]
			return nil, ErrNoChange
		}
		return nil, fmt.Errorf("%s %q: %w", t.category, id, ErrNotFound)
	})
	return found, err
}

// Insert front-inserts one record.
func (t *Table[T]) Insert(ctx context.Context, record T) error {
	return t.InsertMany(ctx, []T{record})
}

// InsertMany front-inserts records, keeping their relative order.
func (t *Table[T]) InsertMany(ctx context.Context, records []T) error {
	if len(records) == 0 {
		return nil
	}
	return t.Mutate(ctx, func(existing []T) ([]T, error) {
		out := make([]T, 0, len(records)+len(existing))
		out = append(out, records...)
		return append(out, existing...), nil
	})
}

// Update replaces the record with the given id in place.
func (t *Table[T]) Update(ctx context.Context, id string, record T) error {
	return t.Mutate(ctx, func(records []T) ([]T, error) {
		i := indexOf(records, id)
		if i < 0 {
			return nil, fmt.Errorf("%s %q: %w", t.category, id, ErrNotFound)
		}
		records[i] = record
		return records, nil
	})
}

// Delete removes the record with the given id.
func (t *Table[T]) Delete(ctx context.Context, id string) error {
	return t.Mutate(ctx, func(records []T) ([]T, error) {
		i := indexOf(records, id)
		if i < 0 {
			return nil, fmt.Errorf("%s %q: %w", t.category, id, ErrNotFound)
		}
		return append(records[:i], records[i+1:]...), nil
	})
}

// Replace overwrites the whole category.
func (t *Table[T]) Replace(ctx context.Context, records []T) error {
	return t.Mutate(ctx, func([]T) ([]T, error) {
		if records == nil {
			return []T{}, nil
		}
		return records, nil
	})
}

// Mutate loads the category, passes it to fn and writes fn's result, all under
// the category lock. fn may return ErrNoChange to skip the write.
func (t *Table[T]) Mutate(ctx context.Context, fn func(records []T) ([]T, error)) error {
	cf, err := t.s.file(t.category)
	if err != nil {
		return err
	}
	return t.s.withLock(ctx, cf, func() error {
		records, err := t.decode(cf)
		if err != nil {
			return err
		}
		updated, err := fn(records)
		if errors.Is(err, ErrNoChange) {
			return nil
		}
		if err != nil {
			return err
		}
		return t.s.writeLocked(ctx, cf, updated)
	})
}

// Clear snapshots and empties the category.
func (t *Table[T]) Clear(ctx context.Context) error {
	return t.s.Clear(ctx, t.category)
}

func indexOf[T model.Record](records []T, id string) int {
	for i, r := range records {
		if r.RecordID() == id {
			return i
		}
	}
	return -1
}
