// Package postgres mirrors crawl history rows into Postgres for reporting.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

const defaultTable = "crawl_history"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// HistoryStoreConfig controls the Postgres connection pool used for history rows.
type HistoryStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// HistoryStore writes one row per portal execution. Rows are keyed by the
// history id, so replays are ignored.
type HistoryStore struct {
	pool  execCloser
	table string
}

// NewHistoryStore connects to Postgres using cfg.
func NewHistoryStore(ctx context.Context, cfg HistoryStoreConfig) (*HistoryStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &HistoryStore{pool: pool, table: table}, nil
}

// NewHistoryStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewHistoryStoreWithPool(pool execCloser, table string) (*HistoryStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &HistoryStore{pool: pool, table: table}, nil
}

func tableName(t string) (string, error) {
	if t == "" {
		t = defaultTable
	}
	if !validTableName.MatchString(t) {
		return "", fmt.Errorf("invalid table name %q", t)
	}
	return t, nil
}

// Close releases the underlying pool resources.
func (s *HistoryStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordHistory inserts h. It satisfies processor.HistorySink.
func (s *HistoryStore) RecordHistory(ctx context.Context, h *model.CrawlHistory) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("history store is not configured")
	}
	if h == nil || h.ID == "" {
		return fmt.Errorf("history id is required")
	}
	metadata, err := json.Marshal(normalizeMetadata(h.Metadata))
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	id,
	portal_name,
	crawl_time,
	status,
	items_found,
	new_items,
	duration_seconds,
	error_message,
	categories_crawled,
	metadata
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
) ON CONFLICT (id) DO NOTHING`, s.table)

	args := []any{
		h.ID,
		h.PortalName,
		h.CrawlTime,
		string(h.Status),
		h.ItemsFound,
		h.NewItems,
		h.DurationSeconds,
		h.ErrorMessage,
		categoryNames(h.CategoriesCrawled),
		metadata,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert crawl history: %w", err)
	}
	return nil
}

func categoryNames(cs []model.Category) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}

func normalizeMetadata(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
