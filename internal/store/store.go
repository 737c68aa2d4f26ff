// Package store persists records as one JSON array file per category.
//
// Every operation holds the category lock for its whole read-modify-write
// cycle. The lock is an in-process semaphore plus an advisory lock on
// "<file>.lock", so separate processes sharing a data directory also
// serialize. Files are replaced atomically through a temp file and rename,
// so readers never observe a partial document.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/metrics"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

var (
	// ErrNotFound is returned when no record has the requested id.
	ErrNotFound = errors.New("record not found")
	// ErrLockTimeout is returned when the category lock cannot be taken in time.
	ErrLockTimeout = errors.New("timed out waiting for category lock")
	// ErrUnknownCategory is returned for categories the store does not manage.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrNoChange may be returned by a Mutate callback to skip the write.
	ErrNoChange = errors.New("no change")
)

const (
	backupDirName     = "backups"
	backupTimeLayout  = "20060102_150405"
	lockRetryInterval = 50 * time.Millisecond
	defaultLock       = 10 * time.Second
)

// Clock supplies backup timestamps.
type Clock interface {
	Now() time.Time
}

// BackupSink receives a copy of every snapshot.
type BackupSink interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Options configures a Store.
type Options struct {
	DataDir         string
	BackupEnabled   bool
	MaxBackups      int // <= 0 keeps every snapshot
	BackupFrequency int // 0 snapshots on every write
	LockTimeout     time.Duration
	Clock           Clock
	Sink            BackupSink
	SinkPrefix      string
}

// Store is the file-backed record store.
type Store struct {
	dir       string
	backupDir string
	opts      Options
	logger    *zap.Logger
	files     map[model.Category]*categoryFile
}

type categoryFile struct {
	category model.Category
	path     string
	sem      chan struct{}
	lock     *flock.Flock
	writes   int
}

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// Open creates the data directory layout and an empty array file for every
// category that does not exist yet.
func Open(opts Options, logger *zap.Logger) (*Store, error) {
	if opts.DataDir == "" {
		return nil, fmt.Errorf("data directory is required")
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLock
	}
	if opts.Clock == nil {
		opts.Clock = utcClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		dir:       opts.DataDir,
		backupDir: filepath.Join(opts.DataDir, backupDirName),
		opts:      opts,
		logger:    logger.Named("store"),
		files:     make(map[model.Category]*categoryFile, len(model.Categories)),
	}
	if err := os.MkdirAll(s.backupDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	for _, c := range model.Categories {
		p := filepath.Join(s.dir, string(c)+".json")
		cf := &categoryFile{
			category: c,
			path:     p,
			sem:      make(chan struct{}, 1),
			lock:     flock.New(p + ".lock"),
		}
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			if err := writeAtomic(p, []byte("[]")); err != nil {
				return nil, fmt.Errorf("initialize %s: %w", c, err)
			}
		} else if err != nil {
			return nil, fmt.Errorf("stat %s: %w", c, err)
		}
		s.files[c] = cf
	}
	return s, nil
}

// Path returns the file backing a category.
func (s *Store) Path(c model.Category) string {
	if cf, ok := s.files[c]; ok {
		return cf.path
	}
	return ""
}

// Dir returns the data directory.
func (s *Store) Dir() string { return s.dir }

func (s *Store) file(c model.Category) (*categoryFile, error) {
	cf, ok := s.files[c]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, c)
	}
	return cf, nil
}

// withLock runs fn while holding the category lock.
func (s *Store) withLock(ctx context.Context, cf *categoryFile, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.opts.LockTimeout)
	defer cancel()

	select {
	case cf.sem <- struct{}{}:
	case <-lockCtx.Done():
		return lockError(ctx, cf.category)
	}
	defer func() { <-cf.sem }()

	locked, err := cf.lock.TryLockContext(lockCtx, lockRetryInterval)
	if !locked {
		if err == nil || lockCtx.Err() != nil {
			return lockError(ctx, cf.category)
		}
		return fmt.Errorf("lock %s: %w", cf.category, err)
	}
	defer func() {
		if unlockErr := cf.lock.Unlock(); unlockErr != nil {
			s.logger.Warn("release file lock failed", zap.String("category", string(cf.category)), zap.Error(unlockErr))
		}
	}()

	return fn()
}

func lockError(ctx context.Context, c model.Category) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("lock %s: %w", c, err)
	}
	return fmt.Errorf("lock %s: %w", c, ErrLockTimeout)
}

func (s *Store) readRaw(cf *categoryFile) ([]byte, error) {
	data, err := os.ReadFile(cf.path)
	if errors.Is(err, os.ErrNotExist) {
		return []byte("[]"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", cf.category, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return []byte("[]"), nil
	}
	return data, nil
}

// writeLocked replaces the category file and applies the backup policy.
// The caller holds the category lock.
func (s *Store) writeLocked(ctx context.Context, cf *categoryFile, records any) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", cf.category, err)
	}
	if bytes.Equal(data, []byte("null")) {
		data = []byte("[]")
	}
	if err := writeAtomic(cf.path, data); err != nil {
		return fmt.Errorf("write %s: %w", cf.category, err)
	}
	metrics.ObserveStoreWrite(string(cf.category))

	cf.writes++
	if s.opts.BackupEnabled && (s.opts.BackupFrequency == 0 || cf.writes%s.opts.BackupFrequency == 0) {
		if _, err := s.backupLocked(ctx, cf); err != nil {
			s.logger.Warn("backup failed", zap.String("category", string(cf.category)), zap.Error(err))
		}
	}
	return nil
}

// writeAtomic writes data to a temp file next to target, syncs it and renames it over target.
func writeAtomic(target string, data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()         //nolint:errcheck // already failing
			_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Rename(tmpName, target); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Backup snapshots a category now, regardless of the write counter.
func (s *Store) Backup(ctx context.Context, c model.Category) (string, error) {
	cf, err := s.file(c)
	if err != nil {
		return "", err
	}
	var name string
	err = s.withLock(ctx, cf, func() error {
		var backupErr error
		name, backupErr = s.backupLocked(ctx, cf)
		return backupErr
	})
	return name, err
}

func (s *Store) backupLocked(ctx context.Context, cf *categoryFile) (string, error) {
	data, err := s.readRaw(cf)
	if err != nil {
		metrics.ObserveBackup(string(cf.category), false)
		return "", err
	}
	stamp := s.opts.Clock.Now().Format(backupTimeLayout)
	base := fmt.Sprintf("%s_backup_%s", cf.category, stamp)
	existing, err := s.listBackups(cf.category)
	if err != nil {
		metrics.ObserveBackup(string(cf.category), false)
		return "", err
	}
	// Snapshots sharing a stamp get a sequence one past the highest kept, so a
	// name freed by rotation is never reused.
	seq := -1
	for _, b := range existing {
		if st, n := parseBackupName(cf.category, b); st == stamp && n > seq {
			seq = n
		}
	}
	target := filepath.Join(s.backupDir, base+".json")
	if seq >= 0 {
		target = filepath.Join(s.backupDir, fmt.Sprintf("%s_%04d.json", base, seq+1))
	}
	if err := writeAtomic(target, data); err != nil {
		metrics.ObserveBackup(string(cf.category), false)
		return "", fmt.Errorf("write backup: %w", err)
	}
	metrics.ObserveBackup(string(cf.category), true)
	s.logger.Debug("backup created", zap.String("category", string(cf.category)), zap.String("path", target))

	if err := s.rotate(cf.category); err != nil {
		s.logger.Warn("backup rotation failed", zap.String("category", string(cf.category)), zap.Error(err))
	}
	if s.opts.Sink != nil {
		objectPath := path.Join(s.opts.SinkPrefix, filepath.Base(target))
		uri, sinkErr := s.opts.Sink.PutObject(ctx, objectPath, "application/json", bytes.NewReader(data))
		if sinkErr != nil {
			s.logger.Warn("backup upload failed", zap.String("category", string(cf.category)), zap.Error(sinkErr))
		} else {
			s.logger.Debug("backup uploaded", zap.String("uri", uri))
		}
	}
	return target, nil
}

func (s *Store) rotate(c model.Category) error {
	if s.opts.MaxBackups <= 0 {
		return nil
	}
	backups, err := s.Backups(c)
	if err != nil {
		return err
	}
	if len(backups) <= s.opts.MaxBackups {
		return nil
	}
	for _, old := range backups[:len(backups)-s.opts.MaxBackups] {
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", filepath.Base(old), err)
		}
	}
	return nil
}

// Backups lists the snapshots of a category, oldest first.
func (s *Store) Backups(c model.Category) ([]string, error) {
	if _, err := s.file(c); err != nil {
		return nil, err
	}
	return s.listBackups(c)
}

func (s *Store) listBackups(c model.Category) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.backupDir, string(c)+"_backup_*.json"))
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	sort.SliceStable(matches, func(i, j int) bool {
		si, ni := parseBackupName(c, matches[i])
		sj, nj := parseBackupName(c, matches[j])
		if si != sj {
			return si < sj
		}
		return ni < nj
	})
	return matches, nil
}

// parseBackupName splits a snapshot path into its time stamp and sequence.
// The first snapshot of a stamp has no suffix and sequence 0.
func parseBackupName(c model.Category, p string) (string, int) {
	name := strings.TrimSuffix(filepath.Base(p), ".json")
	name = strings.TrimPrefix(name, string(c)+"_backup_")
	if len(name) <= len(backupTimeLayout) {
		return name, 0
	}
	stamp, rest := name[:len(backupTimeLayout)], name[len(backupTimeLayout):]
	n, err := strconv.Atoi(strings.TrimPrefix(rest, "_"))
	if err != nil {
		return name, 0
	}
	return stamp, n
}

// Clear snapshots a category and then empties it.
func (s *Store) Clear(ctx context.Context, c model.Category) error {
	cf, err := s.file(c)
	if err != nil {
		return err
	}
	return s.withLock(ctx, cf, func() error {
		if s.opts.BackupEnabled {
			if _, err := s.backupLocked(ctx, cf); err != nil {
				return fmt.Errorf("backup before clear: %w", err)
			}
		}
		if err := writeAtomic(cf.path, []byte("[]")); err != nil {
			return fmt.Errorf("clear %s: %w", c, err)
		}
		metrics.ObserveStoreWrite(string(c))
		return nil
	})
}

// Count returns the number of records in a category.
func (s *Store) Count(ctx context.Context, c model.Category) (int, error) {
	cf, err := s.file(c)
	if err != nil {
		return 0, err
	}
	var n int
	err = s.withLock(ctx, cf, func() error {
		data, err := s.readRaw(cf)
		if err != nil {
			return err
		}
		var raw []json.RawMessage
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("decode %s: %w", c, err)
		}
		n = len(raw)
		return nil
	})
	return n, err
}

// CategoryStats summarizes one category file.
type CategoryStats struct {
	Total       int   `json:"total"`
	WithDetails int   `json:"with_details"`
	SizeBytes   int64 `json:"size_bytes"`
}

// Stats summarizes every category.
func (s *Store) Stats(ctx context.Context) (map[model.Category]CategoryStats, error) {
	out := make(map[model.Category]CategoryStats, len(s.files))
	for _, c := range model.Categories {
		cf := s.files[c]
		var st CategoryStats
		err := s.withLock(ctx, cf, func() error {
			data, err := s.readRaw(cf)
			if err != nil {
				return err
			}
			var rows []struct {
				DetailedInfo json.RawMessage `json:"detailed_info"`
			}
			if err := json.Unmarshal(data, &rows); err != nil {
				return fmt.Errorf("decode %s: %w", c, err)
			}
			st.Total = len(rows)
			for _, r := range rows {
				if len(r.DetailedInfo) > 0 && !bytes.Equal(r.DetailedInfo, []byte("null")) {
					st.WithDetails++
				}
			}
			st.SizeBytes = int64(len(data))
			return nil
		})
		if err != nil {
			return nil, err
		}
		out[c] = st
	}
	return out, nil
}

// Size returns the combined size in bytes of all category files.
func (s *Store) Size() (int64, error) {
	var total int64
	for _, c := range model.Categories {
		info, err := os.Stat(s.files[c].path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("stat %s: %w", c, err)
		}
		total += info.Size()
	}
	return total, nil
}

// Jobs returns the typed view of the jobs category.
func (s *Store) Jobs() *Table[*model.Job] { return newTable[*model.Job](s, model.CategoryJobs) }

// Results returns the typed view of the results category.
func (s *Store) Results() *Table[*model.Result] {
	return newTable[*model.Result](s, model.CategoryResults)
}

// AdmitCards returns the typed view of the admit cards category.
func (s *Store) AdmitCards() *Table[*model.AdmitCard] {
	return newTable[*model.AdmitCard](s, model.CategoryAdmitCards)
}

// Notifications returns the typed view of the notifications category.
func (s *Store) Notifications() *Table[*model.Notification] {
	return newTable[*model.Notification](s, model.CategoryNotifications)
}

// History returns the typed view of the crawl history category.
func (s *Store) History() *Table[*model.CrawlHistory] {
	return newTable[*model.CrawlHistory](s, model.CategoryCrawlHistory)
}
