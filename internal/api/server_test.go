package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/config"
	"github.com/Jadaunkg/job-portal-crawler/internal/crawler"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
	"github.com/Jadaunkg/job-portal-crawler/internal/processor"
	"github.com/Jadaunkg/job-portal-crawler/internal/refresh"
	"github.com/Jadaunkg/job-portal-crawler/internal/store"
)

type fakeClock struct{ now time.Time }

func (c fakeClock) Now() time.Time { return c.now }

var testNow = time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

type mockEnricher struct {
	mock.Mock
}

func (m *mockEnricher) EnrichOne(ctx context.Context, c model.Category, id string) (*model.DetailedInfo, error) {
	args := m.Called(ctx, c, id)
	info, _ := args.Get(0).(*model.DetailedInfo)
	return info, args.Error(1)
}

func (m *mockEnricher) FetchDetails(ctx context.Context, pageURL string, hint model.ContentType) (*model.DetailedInfo, error) {
	args := m.Called(ctx, pageURL, hint)
	info, _ := args.Get(0).(*model.DetailedInfo)
	return info, args.Error(1)
}

type fixture struct {
	server   *Server
	proc     *processor.Processor
	enricher *mockEnricher
	guard    *refresh.Guard
}

func newFixture(t *testing.T, cfg config.Config, run refresh.RunFunc) *fixture {
	t.Helper()
	st, err := store.Open(store.Options{DataDir: t.TempDir()}, zap.NewNop())
	require.NoError(t, err)
	proc, err := processor.New(context.Background(), st, zap.NewNop())
	require.NoError(t, err)

	if run == nil {
		run = func(context.Context) (model.RunSummary, error) {
			return model.RunSummary{Status: model.RunCompleted}, nil
		}
	}
	clock := fakeClock{now: testNow}
	guard := refresh.New(run, clock, zap.NewNop())
	enricher := &mockEnricher{}
	srv := NewServer(Deps{
		Reader:    proc,
		Enricher:  enricher,
		Refresher: guard,
		Clock:     clock,
		Portals: []config.PortalConfig{{
			Name:      "sarkari",
			BaseURL:   "https://sarkari.example",
			Enabled:   true,
			FetchMode: config.FetchModeHTTP,
			Categories: map[string]config.CategoryConfig{
				"results": {Enabled: true},
				"jobs":    {Enabled: true},
				"notices": {Enabled: false},
			},
		}},
		Version: "test",
	}, cfg, zap.NewNop())
	return &fixture{server: srv, proc: proc, enricher: enricher, guard: guard}
}

func job(title, portal string, at time.Time) *model.Job {
	j := &model.Job{Status: model.StatusActive}
	j.ID = model.EntryID(title, "SSC", portal)
	j.Title = title
	j.Organization = "SSC"
	j.PortalName = portal
	j.URL = "https://" + portal + ".example/" + title
	j.DiscoveredAt = at
	return j
}

func (f *fixture) do(t *testing.T, method, target string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

type listResponse struct {
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
	Items      []map[string]any `json:"items"`
}

func titles(resp listResponse) []string {
	out := make([]string, 0, len(resp.Items))
	for _, it := range resp.Items {
		out = append(out, it["title"].(string))
	}
	return out
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.Config{}, nil)

	rec := f.do(t, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = f.do(t, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status := decode[map[string]any](t, rec)
	assert.Equal(t, "test", status["version"])
	assert.Equal(t, "idle", status["refresh"])
}

func TestListJobsFiltersAndPages(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.Config{}, nil)
	ctx := context.Background()

	day1 := time.Date(2026, 10, 1, 8, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 10, 5, 23, 0, 0, 0, time.UTC)
	_, err := f.proc.ProcessJobs(ctx, []*model.Job{
		job("SSC CGL 2026", "sarkari", day1),
		job("Railway Group D", "sarkari", day2),
		job("SSC CHSL 2026", "freejob", day2),
	})
	require.NoError(t, err)

	all := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs", nil))
	assert.Equal(t, 3, all.Total)
	assert.Equal(t, 1, all.TotalPages)
	assert.Equal(t, 10, all.Limit)

	paged := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs?limit=2&page=2", nil))
	assert.Equal(t, 3, paged.Total)
	assert.Equal(t, 2, paged.TotalPages)
	assert.Equal(t, []string{"SSC CHSL 2026"}, titles(paged))

	beyond := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs?page=9", nil))
	assert.Empty(t, beyond.Items)

	keyword := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs?keyword=ssc", nil))
	assert.Equal(t, []string{"SSC CGL 2026", "SSC CHSL 2026"}, titles(keyword))

	portal := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs?portal=freejob", nil))
	assert.Equal(t, []string{"SSC CHSL 2026"}, titles(portal))

	dated := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs?start_date=2026-10-05&end_date=2026-10-05", nil))
	assert.Equal(t, []string{"Railway Group D", "SSC CHSL 2026"}, titles(dated))

	search := f.do(t, http.MethodPost, "/api/v1/jobs/search", map[string]any{"keyword": "railway"})
	require.Equal(t, http.StatusOK, search.Code)
	assert.Equal(t, []string{"Railway Group D"}, titles(decode[listResponse](t, search)))

	for _, bad := range []string{"limit=0", "limit=101", "page=0", "page=x", "start_date=05-10-2026", "details_only=maybe"} {
		rec := f.do(t, http.MethodGet, "/api/v1/jobs?"+bad, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, bad)
	}
}

func TestEntryAndDetails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.Config{}, nil)
	ctx := context.Background()

	j := job("Bank PO", "sarkari", testNow)
	_, err := f.proc.ProcessJobs(ctx, []*model.Job{j})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/api/v1/jobs/"+j.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Bank PO", decode[map[string]any](t, rec)["title"])

	rec = f.do(t, http.MethodGet, "/api/v1/jobs/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/v1/results/"+j.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/jobs/"+j.ID+"/details", nil)
	assert.Equal(t, http.StatusPartialContent, rec.Code)

	details := decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs?details_only=true", nil))
	assert.Zero(t, details.Total)

	info := &model.DetailedInfo{ContentType: model.ContentJob, FullDescription: "Apply online"}
	require.NoError(t, f.proc.ApplyDetails(ctx, model.CategoryJobs, j.ID, info))

	rec = f.do(t, http.MethodGet, "/api/v1/jobs/"+j.ID+"/details", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]any](t, rec)
	assert.Equal(t, "Apply online", body["detailed_info"].(map[string]any)["full_description"])

	details = decode[listResponse](t, f.do(t, http.MethodGet, "/api/v1/jobs?details_only=true", nil))
	assert.Equal(t, 1, details.Total)
}

func TestEnrichEntry(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.Config{}, nil)

	info := &model.DetailedInfo{ContentType: model.ContentAdmitCard, FullDescription: "Hall ticket"}
	f.enricher.On("EnrichOne", mock.Anything, model.CategoryAdmitCards, "card-1").Return(info, nil).Once()
	f.enricher.On("EnrichOne", mock.Anything, model.CategoryAdmitCards, "missing").
		Return(nil, store.ErrNotFound).Once()
	f.enricher.On("EnrichOne", mock.Anything, model.CategoryAdmitCards, "down").
		Return(nil, errors.New("fetch failed")).Once()

	rec := f.do(t, http.MethodPost, "/api/v1/admit-cards/card-1/details", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Hall ticket")

	rec = f.do(t, http.MethodPost, "/api/v1/admit-cards/missing/details", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/admit-cards/down/details", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	f.enricher.AssertExpectations(t)
}

func TestFetchDetails(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.Config{}, nil)

	info := &model.DetailedInfo{ContentType: model.ContentResult, FullDescription: "Merit list"}
	f.enricher.On("FetchDetails", mock.Anything, "https://a.example/r", model.ContentAuto).Return(info, nil)
	f.enricher.On("FetchDetails", mock.Anything, "https://a.example/empty", model.ContentJob).
		Return(nil, crawler.ErrEmptyPage)
	f.enricher.On("FetchDetails", mock.Anything, "https://a.example/down", model.ContentAuto).
		Return(nil, errors.New("fetch failed"))

	rec := f.do(t, http.MethodPost, "/api/v1/details/fetch", map[string]string{"url": "https://a.example/r"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[map[string]any](t, rec)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "result", resp["content_type"])

	rec = f.do(t, http.MethodPost, "/api/v1/details/fetch",
		map[string]string{"url": "https://a.example/empty", "content_type": "job"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/details/fetch", map[string]string{"url": "ftp://a.example"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/details/fetch",
		map[string]string{"url": "https://a.example/r", "content_type": "video"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/details/batch", map[string]any{
		"urls": []string{"https://a.example/r", "https://a.example/down", "not a url"},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decode[batchResponse](t, rec)
	assert.Equal(t, 3, batch.Total)
	assert.Equal(t, 1, batch.Successful)
	assert.True(t, batch.Results["https://a.example/r"].Success)
	assert.Equal(t, "fetch failed", batch.Results["https://a.example/down"].Error)
	assert.Equal(t, "invalid url", batch.Results["not a url"].Error)

	rec = f.do(t, http.MethodPost, "/api/v1/details/batch", map[string]any{"urls": []string{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRefreshLifecycle(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	started := make(chan struct{})
	f := newFixture(t, config.Config{}, func(context.Context) (model.RunSummary, error) {
		close(started)
		<-release
		return model.RunSummary{Status: model.RunCompleted, NewItems: 4}, nil
	})

	rec := f.do(t, http.MethodPost, "/api/v1/refresh", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	<-started

	rec = f.do(t, http.MethodPost, "/api/v1/refresh", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/v1/refresh/reset", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	status := decode[refresh.Status](t, f.do(t, http.MethodGet, "/api/v1/refresh/status", nil))
	assert.True(t, status.Running)

	close(release)
	f.guard.Wait()

	status = decode[refresh.Status](t, f.do(t, http.MethodGet, "/api/v1/refresh/status", nil))
	assert.Equal(t, refresh.StateCompleted, status.State)
	require.NotNil(t, status.LastSummary)
	assert.Equal(t, 4, status.LastSummary.NewItems)

	rec = f.do(t, http.MethodPost, "/api/v1/refresh/reset", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	status = decode[refresh.Status](t, f.do(t, http.MethodGet, "/api/v1/refresh/status", nil))
	assert.Equal(t, refresh.StateIdle, status.State)
}

func TestStatsPortalsHistory(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.Config{}, nil)
	ctx := context.Background()

	_, err := f.proc.ProcessJobs(ctx, []*model.Job{job("Clerk", "sarkari", testNow)})
	require.NoError(t, err)
	require.NoError(t, f.proc.RecordHistory(ctx, &model.CrawlHistory{
		ID: "h-1", PortalName: "sarkari", CrawlTime: testNow, Status: model.CrawlSuccess,
	}))

	rec := f.do(t, http.MethodGet, "/api/v1/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[processor.Statistics](t, rec)
	assert.Equal(t, 1, stats.Categories[model.CategoryJobs].Total)
	require.NotNil(t, stats.LastCrawl)
	assert.True(t, stats.LastCrawl.Equal(testNow))

	rec = f.do(t, http.MethodGet, "/api/v1/stats/by-portal", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"sarkari":{"jobs":1}`)

	rec = f.do(t, http.MethodGet, "/api/v1/portals", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"categories":["jobs","results"]`)

	rec = f.do(t, http.MethodGet, "/api/v1/history?limit=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"h-1"`)
	rec = f.do(t, http.MethodGet, "/api/v1/history?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/notifications", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decode[listResponse](t, rec).Total)
}

func TestAPIKey(t *testing.T) {
	t.Parallel()
	cfg := config.Config{Auth: config.AuthConfig{Enabled: true, APIKey: "secret"}}
	f := newFixture(t, cfg, nil)

	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/v1/stats", nil).Code)
	assert.Equal(t, http.StatusForbidden, f.do(t, http.MethodGet, "/api/v1/stats", nil, "X-API-Key", "wrong").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/stats", nil, "X-API-Key", "secret").Code)
	assert.Equal(t, http.StatusOK, f.do(t, http.MethodGet, "/api/v1/stats?api_key=secret", nil).Code)
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()
	f := newFixture(t, config.Config{}, nil)
	h := f.server.recoverMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
