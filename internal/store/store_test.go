package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type recordingSink struct {
	mu    sync.Mutex
	paths []string
	err   error
}

func (s *recordingSink) PutObject(_ context.Context, path, _ string, r io.Reader) (string, error) {
	if _, err := io.Copy(io.Discard, r); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paths = append(s.paths, path)
	return "mem://" + path, s.err
}

func newTestStore(t *testing.T, opts Options) *Store {
	t.Helper()
	if opts.DataDir == "" {
		opts.DataDir = t.TempDir()
	}
	s, err := Open(opts, zap.NewNop())
	require.NoError(t, err)
	return s
}

func job(title string) *model.Job {
	j := &model.Job{Status: model.StatusActive}
	j.ID = model.EntryID(title, "org", "portal")
	j.Title = title
	j.Organization = "org"
	j.PortalName = "portal"
	j.URL = "https://example.com/" + title
	return j
}

func TestOpenCreatesEmptyCategoryFiles(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	for _, c := range model.Categories {
		data, err := os.ReadFile(s.Path(c))
		require.NoError(t, err)
		assert.JSONEq(t, "[]", string(data))
	}
	assert.DirExists(t, filepath.Join(s.Dir(), "backups"))

	size, err := s.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(2*len(model.Categories)), size)
}

func TestTableCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, Options{})
	jobs := s.Jobs()

	require.NoError(t, jobs.InsertMany(ctx, []*model.Job{job("a"), job("b")}))
	require.NoError(t, jobs.Insert(ctx, job("c")))

	all, err := jobs.All(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"c", "a", "b"}, titles(all))

	limited, err := jobs.All(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a"}, titles(limited))

	got, err := jobs.Get(ctx, job("a").ID)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", got.URL)

	got.Location = "Delhi"
	require.NoError(t, jobs.Update(ctx, got.ID, got))
	got, err = jobs.Get(ctx, got.ID)
	require.NoError(t, err)
	assert.Equal(t, "Delhi", got.Location)

	require.NoError(t, jobs.Delete(ctx, got.ID))
	_, err = jobs.Get(ctx, got.ID)
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, jobs.Update(ctx, "missing", job("x")), ErrNotFound)
	require.ErrorIs(t, jobs.Delete(ctx, "missing"), ErrNotFound)

	n, err := s.Count(ctx, model.CategoryJobs)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, jobs.Replace(ctx, nil))
	data, err := os.ReadFile(s.Path(model.CategoryJobs))
	require.NoError(t, err)
	assert.JSONEq(t, "[]", string(data))
}

func TestMutateNoChangeSkipsWrite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, Options{})
	before, err := os.Stat(s.Path(model.CategoryResults))
	require.NoError(t, err)

	err = s.Results().Mutate(ctx, func([]*model.Result) ([]*model.Result, error) {
		return nil, ErrNoChange
	})
	require.NoError(t, err)

	after, err := os.Stat(s.Path(model.CategoryResults))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestInvalidJSONIsReported(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	require.NoError(t, os.WriteFile(s.Path(model.CategoryJobs), []byte("{broken"), 0o600))

	_, err := s.Jobs().All(context.Background(), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode jobs")
}

func TestAtomicWriteNeverExposesPartialFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, Options{})
	jobs := s.Jobs()

	batch := make([]*model.Job, 0, 500)
	for i := 0; i < 500; i++ {
		batch = append(batch, job(fmt.Sprintf("job-%03d", i)))
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			data, err := os.ReadFile(s.Path(model.CategoryJobs))
			if err != nil {
				t.Errorf("read during write: %v", err)
				return
			}
			if !json.Valid(data) {
				t.Errorf("observed partial file of %d bytes", len(data))
				return
			}
		}
	}()

	for i := 0; i < 20; i++ {
		n := 1 + (i*37)%len(batch)
		require.NoError(t, jobs.Replace(ctx, batch[:n]))
	}
	close(done)
	wg.Wait()

	leftovers, err := filepath.Glob(filepath.Join(s.Dir(), ".*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestBackupRetentionKeepsNewest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	clk := &stepClock{now: time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)}
	sink := &recordingSink{}
	s := newTestStore(t, Options{
		BackupEnabled:   true,
		BackupFrequency: 1,
		MaxBackups:      3,
		Clock:           clk,
		Sink:            sink,
		SinkPrefix:      "snapshots",
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Jobs().Insert(ctx, job(fmt.Sprintf("j%d", i))))
	}

	backups, err := s.Backups(model.CategoryJobs)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	names := make([]string, 0, len(backups))
	for _, b := range backups {
		names = append(names, filepath.Base(b))
	}
	assert.Equal(t, []string{
		"jobs_backup_20240102_030403.json",
		"jobs_backup_20240102_030404.json",
		"jobs_backup_20240102_030405.json",
	}, names)

	// The newest snapshot holds the state after the fifth write.
	data, err := os.ReadFile(backups[2])
	require.NoError(t, err)
	var snap []*model.Job
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Len(t, snap, 5)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.paths, 5)
	assert.Equal(t, "snapshots/jobs_backup_20240102_030401.json", sink.paths[0])
}

func TestBackupFrequency(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, Options{BackupEnabled: true, BackupFrequency: 5, MaxBackups: 10})

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Results().Insert(ctx, &model.Result{Listing: model.Listing{Base: model.Base{ID: fmt.Sprint(i)}}}))
	}
	backups, err := s.Backups(model.CategoryResults)
	require.NoError(t, err)
	assert.Empty(t, backups)

	require.NoError(t, s.Results().Insert(ctx, &model.Result{Listing: model.Listing{Base: model.Base{ID: "5"}}}))
	backups, err = s.Backups(model.CategoryResults)
	require.NoError(t, err)
	assert.Len(t, backups, 1)
}

func TestBackupNameCollisionGetsSuffix(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, Options{Clock: fixedClock(fixed)})

	first, err := s.Backup(ctx, model.CategoryNotifications)
	require.NoError(t, err)
	second, err := s.Backup(ctx, model.CategoryNotifications)
	require.NoError(t, err)
	assert.Equal(t, "notifications_backup_20240601_000000.json", filepath.Base(first))
	assert.Equal(t, "notifications_backup_20240601_000000_0001.json", filepath.Base(second))
}

func TestBackupRotationWithinOneSecondKeepsNewest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fixed := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, Options{
		BackupEnabled:   true,
		BackupFrequency: 1,
		MaxBackups:      3,
		Clock:           fixedClock(fixed),
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Jobs().Insert(ctx, job(fmt.Sprintf("j%d", i))))
	}

	backups, err := s.Backups(model.CategoryJobs)
	require.NoError(t, err)
	require.Len(t, backups, 3)
	names := make([]string, 0, len(backups))
	sizes := make([]int, 0, len(backups))
	for _, b := range backups {
		names = append(names, filepath.Base(b))
		data, err := os.ReadFile(b)
		require.NoError(t, err)
		var snap []*model.Job
		require.NoError(t, json.Unmarshal(data, &snap))
		sizes = append(sizes, len(snap))
	}
	assert.Equal(t, []string{
		"jobs_backup_20240601_000000_0002.json",
		"jobs_backup_20240601_000000_0003.json",
		"jobs_backup_20240601_000000_0004.json",
	}, names)
	assert.Equal(t, []int{3, 4, 5}, sizes)
}

func TestBackupsOrderBySequenceNotText(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	dir := filepath.Join(s.Dir(), "backups")
	for _, name := range []string{
		"jobs_backup_20240601_000000_0010.json",
		"jobs_backup_20240601_000000_0002.json",
		"jobs_backup_20240601_000000.json",
		"jobs_backup_20240531_235959_0007.json",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0o644))
	}

	backups, err := s.Backups(model.CategoryJobs)
	require.NoError(t, err)
	names := make([]string, 0, len(backups))
	for _, b := range backups {
		names = append(names, filepath.Base(b))
	}
	assert.Equal(t, []string{
		"jobs_backup_20240531_235959_0007.json",
		"jobs_backup_20240601_000000.json",
		"jobs_backup_20240601_000000_0002.json",
		"jobs_backup_20240601_000000_0010.json",
	}, names)
}

func TestClearSnapshotsFirst(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, Options{BackupEnabled: true, BackupFrequency: 100})
	require.NoError(t, s.Jobs().InsertMany(ctx, []*model.Job{job("a"), job("b")}))

	require.NoError(t, s.Jobs().Clear(ctx))
	n, err := s.Count(ctx, model.CategoryJobs)
	require.NoError(t, err)
	assert.Zero(t, n)

	backups, err := s.Backups(model.CategoryJobs)
	require.NoError(t, err)
	require.Len(t, backups, 1)
	data, err := os.ReadFile(backups[0])
	require.NoError(t, err)
	assert.True(t, bytes.Contains(data, []byte(`"title": "a"`)))
}

func TestLockTimeout(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{LockTimeout: 150 * time.Millisecond})
	other := flock.New(s.Path(model.CategoryJobs) + ".lock")
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	t.Cleanup(func() { _ = other.Unlock() })

	_, err = s.Jobs().All(context.Background(), 0)
	require.ErrorIs(t, err, ErrLockTimeout)

	// Other categories are unaffected.
	_, err = s.Results().All(context.Background(), 0)
	require.NoError(t, err)
}

func TestCancelledContextIsNotATimeout(t *testing.T) {
	t.Parallel()

	s := newTestStore(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Jobs().All(ctx, 0)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrLockTimeout)
}

func TestStatsCountsDetails(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newTestStore(t, Options{})
	withDetails := job("detailed")
	withDetails.SetDetails(&model.DetailedInfo{URL: withDetails.URL, FullDescription: "text"})
	require.NoError(t, s.Jobs().InsertMany(ctx, []*model.Job{withDetails, job("plain")}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats[model.CategoryJobs].Total)
	assert.Equal(t, 1, stats[model.CategoryJobs].WithDetails)
	assert.Zero(t, stats[model.CategoryResults].Total)

	_, err = s.Backups(model.Category("bogus"))
	require.ErrorIs(t, err, ErrUnknownCategory)
}

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func titles(jobs []*model.Job) []string {
	out := make([]string, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, j.Title)
	}
	return out
}
