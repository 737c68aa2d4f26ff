// Package headless renders portal pages that build their listings with
// JavaScript, using chromedp and headless Chrome.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/Jadaunkg/job-portal-crawler/internal/crawler"
)

const defaultNavTimeout = 45 * time.Second

// blockedResources are never downloaded; listings only need the DOM.
var blockedResources = []string{"*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.svg", "*.woff", "*.woff2", "*.ttf", "*.mp4"}

// Config controls the behavior of the headless fetcher.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// WaitSelector must be present before the DOM is captured. Defaults to body.
	WaitSelector string
	// SettleDelay lets late scripts fill listing tables. Defaults to 500ms.
	SettleDelay time.Duration
	// LoadMedia disables the image and font blocking.
	LoadMedia bool
}

// Fetcher implements crawler.Fetcher. One browser process is shared; every
// Fetch opens its own tab.
type Fetcher struct {
	cfg   Config
	slots chan struct{}

	allocCancel   context.CancelFunc
	browser       context.Context
	browserCancel context.CancelFunc
	startOnce     sync.Once
	startErr      error
}

// NewChromedp prepares a fetcher. Chrome is launched on the first Fetch.
func NewChromedp(cfg Config) (*Fetcher, error) {
	if cfg.MaxParallel < 0 {
		return nil, errors.New("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if cfg.WaitSelector == "" {
		cfg.WaitSelector = "body"
	}
	if cfg.SettleDelay == 0 {
		cfg.SettleDelay = 500 * time.Millisecond
	}

	f := &Fetcher{cfg: cfg}
	if cfg.MaxParallel > 0 {
		f.slots = make(chan struct{}, cfg.MaxParallel)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	f.allocCancel = allocCancel
	f.browser, f.browserCancel = chromedp.NewContext(allocCtx)
	return f, nil
}

// Close shuts the browser down.
func (f *Fetcher) Close() {
	if f.browserCancel != nil {
		f.browserCancel()
	}
	if f.allocCancel != nil {
		f.allocCancel()
	}
}

func (f *Fetcher) start() error {
	f.startOnce.Do(func() {
		// Running with no actions launches the browser.
		if err := chromedp.Run(f.browser); err != nil {
			f.startErr = fmt.Errorf("start browser: %w", err)
		}
	})
	return f.startErr
}

// Fetch loads request.URL in a new tab and returns the rendered DOM.
func (f *Fetcher) Fetch(ctx context.Context, request crawler.FetchRequest) (crawler.FetchResponse, error) {
	if err := f.acquire(ctx); err != nil {
		return crawler.FetchResponse{}, err
	}
	defer f.release()
	if err := f.start(); err != nil {
		return crawler.FetchResponse{}, err
	}

	tab, closeTab := chromedp.NewContext(f.browser)
	defer closeTab()
	tab, cancel := context.WithTimeout(tab, f.cfg.NavigationTimeout)
	defer cancel()
	// Propagate caller cancellation into the tab.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	doc := &documentResponse{}
	chromedp.ListenTarget(tab, doc.observe)

	start := time.Now()
	var html, location string
	err := chromedp.Run(tab,
		f.prepare(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady(f.cfg.WaitSelector, chromedp.ByQuery),
		chromedp.Sleep(f.cfg.SettleDelay),
		chromedp.Location(&location),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return crawler.FetchResponse{}, fmt.Errorf("headless fetch %s: %w", request.URL, err)
	}

	status, headers, finalURL := doc.result(request.URL, location)
	return crawler.FetchResponse{
		URL:          finalURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// prepare applies the per-request network settings to the tab.
func (f *Fetcher) prepare(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network: %w", err)
		}
		if !f.cfg.LoadMedia {
			if err := network.SetBlockedURLs(blockedResources).Do(ctx); err != nil {
				return fmt.Errorf("block media: %w", err)
			}
		}
		if f.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(f.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(networkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set headers: %w", err)
			}
		}
		return nil
	})
}

func (f *Fetcher) acquire(ctx context.Context) error {
	if f.slots == nil {
		return nil
	}
	select {
	case f.slots <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for browser slot: %w", ctx.Err())
	}
}

func (f *Fetcher) release() {
	if f.slots != nil {
		<-f.slots
	}
}

// documentResponse keeps the last main-document response seen by a tab, so
// redirects report the page that was finally rendered.
type documentResponse struct {
	mu      sync.Mutex
	status  int
	url     string
	headers http.Header
}

func (d *documentResponse) observe(ev any) {
	e, ok := ev.(*network.EventResponseReceived)
	if !ok || e.Type != network.ResourceTypeDocument || e.Response == nil {
		return
	}
	h := make(http.Header, len(e.Response.Headers))
	for k, v := range e.Response.Headers {
		h.Set(k, fmt.Sprint(v))
	}
	d.mu.Lock()
	d.status = int(e.Response.Status)
	d.url = e.Response.URL
	d.headers = h
	d.mu.Unlock()
}

// result falls back to 200 and the browser location when no document
// response was observed.
func (d *documentResponse) result(requestURL, location string) (int, http.Header, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	status, url, headers := d.status, d.url, d.headers
	if status == 0 {
		status = http.StatusOK
	}
	if url == "" {
		url = location
	}
	if url == "" {
		url = requestURL
	}
	if headers == nil {
		headers = http.Header{}
	}
	return status, headers, url
}

// networkHeaders joins repeated header values with commas.
func networkHeaders(h http.Header) network.Headers {
	out := make(network.Headers, len(h))
	for k, values := range h {
		if len(values) > 0 {
			out[k] = joinValues(values)
		}
	}
	return out
}

func joinValues(values []string) string {
	out := values[0]
	for _, v := range values[1:] {
		out += ", " + v
	}
	return out
}
