package crawler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/metrics"
	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// Limiter throttles requests per host.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Settings are the fetch knobs shared by portal and detail crawlers.
type Settings struct {
	Retry        RetryPolicy
	RequestDelay time.Duration
	MaxPages     int
	// Limiter is optional and shared between crawlers.
	Limiter Limiter
}

// session wraps a Fetcher with retries and the politeness delay. It is owned
// by one crawler and is not safe for concurrent use.
type session struct {
	fetcher Fetcher
	retry   RetryPolicy
	pause   pauseController
	delay   time.Duration
	limiter Limiter
	headers http.Header
	stats   *model.CrawlerStats
	logger  *zap.Logger
}

func newSession(fetcher Fetcher, settings Settings, headers http.Header, stats *model.CrawlerStats, logger *zap.Logger) *session {
	retry := settings.Retry
	if retry == nil {
		retry = NewExponentialRetryPolicy(0, 0, 0)
	}
	return &session{
		fetcher: fetcher,
		retry:   retry,
		pause:   &timerPauseController{},
		delay:   settings.RequestDelay,
		limiter: settings.Limiter,
		headers: headers,
		stats:   stats,
		logger:  logger,
	}
}

// get fetches rawURL, retrying transient failures. Exhausted failures are
// recorded on the session stats and returned.
func (s *session) get(ctx context.Context, rawURL string) (FetchResponse, error) {
	site := metrics.SanitizeSite(rawURL)
	for attempt := 0; ; attempt++ {
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx, rawURL); err != nil {
				s.stats.AddError(fmt.Sprintf("%s: %v", rawURL, err))
				return FetchResponse{}, fmt.Errorf("fetch %s: %w", rawURL, err)
			}
		}
		resp, err := s.fetcher.Fetch(ctx, FetchRequest{URL: rawURL, Headers: s.headers.Clone()})
		if err == nil && (resp.StatusCode < 200 || resp.StatusCode > 299) {
			err = &StatusError{URL: rawURL, Code: resp.StatusCode}
		}
		if err == nil {
			metrics.ObserveFetch(site, strconv.Itoa(resp.StatusCode), len(resp.Body))
			s.stats.PagesCrawled++
			s.logger.Debug("page fetched",
				zap.String("url", rawURL),
				zap.Int("status", resp.StatusCode),
				zap.Int("bytes", len(resp.Body)),
				zap.Duration("duration", resp.Duration),
			)
			s.pause.Pause(ctx, s.delay)
			return resp, nil
		}

		metrics.ObserveFetch(site, "error", 0)
		if ctx.Err() != nil || !s.retry.ShouldRetry(err, attempt) {
			s.stats.AddError(fmt.Sprintf("%s: %v", rawURL, err))
			s.logger.Warn("fetch failed",
				zap.String("url", rawURL),
				zap.Int("attempts", attempt+1),
				zap.Error(err),
			)
			return FetchResponse{}, fmt.Errorf("fetch %s after %d attempt(s): %w", rawURL, attempt+1, err)
		}

		wait := s.retry.Backoff(attempt)
		metrics.ObserveRetry(site)
		s.logger.Info("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		s.pause.Pause(ctx, wait)
	}
}

func portalHeaders(raw map[string]string) http.Header {
	h := make(http.Header, len(raw))
	for k, v := range raw {
		h.Set(k, v)
	}
	return h
}
