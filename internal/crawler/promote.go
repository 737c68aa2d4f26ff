package crawler

import (
	"context"

	"go.uber.org/zap"
)

// Detector decides whether an HTTP response needs a browser render.
type Detector interface {
	ShouldPromote(resp FetchResponse) bool
}

// PromotingFetcher fetches over HTTP first and refetches headless when the
// detector flags the page. A failed headless fetch falls back to the HTTP
// response.
type PromotingFetcher struct {
	probe    Fetcher
	headless Fetcher
	detector Detector
	logger   *zap.Logger
}

// NewPromotingFetcher builds the fetcher used by portals in auto fetch mode.
func NewPromotingFetcher(probe, headless Fetcher, detector Detector, logger *zap.Logger) *PromotingFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PromotingFetcher{probe: probe, headless: headless, detector: detector, logger: logger.Named("promote")}
}

// Fetch implements Fetcher.
func (f *PromotingFetcher) Fetch(ctx context.Context, req FetchRequest) (FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, req)
	if err != nil || f.headless == nil || !f.detector.ShouldPromote(resp) {
		return resp, err
	}
	f.logger.Debug("promoting to headless", zap.String("url", req.URL))
	rendered, herr := f.headless.Fetch(ctx, req)
	if herr != nil {
		f.logger.Warn("headless fetch failed, using http response", zap.String("url", req.URL), zap.Error(herr))
		return resp, nil
	}
	rendered.UsedHeadless = true
	return rendered, nil
}
