// Package app builds the long-lived services from configuration and hands
// them to the CLI commands. It is the only place that knows which concrete
// fetcher, backup sink, history mirror and publisher are in use.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Jadaunkg/job-portal-crawler/internal/api"
	"github.com/Jadaunkg/job-portal-crawler/internal/builder"
	"github.com/Jadaunkg/job-portal-crawler/internal/clock/system"
	"github.com/Jadaunkg/job-portal-crawler/internal/config"
	"github.com/Jadaunkg/job-portal-crawler/internal/crawler"
	"github.com/Jadaunkg/job-portal-crawler/internal/extract"
	collyfetcher "github.com/Jadaunkg/job-portal-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/Jadaunkg/job-portal-crawler/internal/fetcher/headless"
	"github.com/Jadaunkg/job-portal-crawler/internal/hash/sha256"
	"github.com/Jadaunkg/job-portal-crawler/internal/headless/detector"
	"github.com/Jadaunkg/job-portal-crawler/internal/id/uuid"
	"github.com/Jadaunkg/job-portal-crawler/internal/policy/ratelimit"
	"github.com/Jadaunkg/job-portal-crawler/internal/processor"
	memorypublisher "github.com/Jadaunkg/job-portal-crawler/internal/publisher/memory"
	pubsubpublisher "github.com/Jadaunkg/job-portal-crawler/internal/publisher/pubsub"
	redispublisher "github.com/Jadaunkg/job-portal-crawler/internal/publisher/redis"
	"github.com/Jadaunkg/job-portal-crawler/internal/refresh"
	"github.com/Jadaunkg/job-portal-crawler/internal/scheduler"
	"github.com/Jadaunkg/job-portal-crawler/internal/storage/gcs"
	"github.com/Jadaunkg/job-portal-crawler/internal/storage/local"
	"github.com/Jadaunkg/job-portal-crawler/internal/storage/postgres"
	"github.com/Jadaunkg/job-portal-crawler/internal/store"
)

// App holds the shared services for one process.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	Store       *store.Store
	Processor   *processor.Processor
	Coordinator *crawler.Coordinator
	Refresh     *refresh.Guard
	Clock       *system.Clock

	closers []func() error
}

// New wires every service described by cfg. On error, whatever was already
// opened is closed again.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger, Clock: system.New(system.WithPrecision(time.Millisecond))}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	sink, err := a.backupSink(ctx)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(store.Options{
		DataDir:         cfg.Storage.DataDir,
		BackupEnabled:   cfg.Storage.BackupEnabled,
		MaxBackups:      cfg.Storage.MaxBackups,
		BackupFrequency: cfg.Storage.BackupFrequency,
		LockTimeout:     cfg.Storage.LockTimeout(),
		Clock:           a.Clock,
		Sink:            sink,
		SinkPrefix:      cfg.BackupSink.Prefix,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	a.Store = st

	var procOpts []processor.Option
	if cfg.Database.DSN != "" {
		history, err := postgres.NewHistoryStore(ctx, postgres.HistoryStoreConfig{
			DSN:   cfg.Database.DSN,
			Table: cfg.Database.HistoryTable,
		})
		if err != nil {
			return nil, fmt.Errorf("init history mirror: %w", err)
		}
		a.onClose(func() error { history.Close(); return nil })
		procOpts = append(procOpts, processor.WithHistorySink(history))
		logger.Info("crawl history mirrored to postgres", zap.String("table", cfg.Database.HistoryTable))
	}
	proc, err := processor.New(ctx, st, logger, procOpts...)
	if err != nil {
		return nil, fmt.Errorf("init processor: %w", err)
	}
	a.Processor = proc

	coordOpts, err := a.publisher(ctx)
	if err != nil {
		return nil, err
	}
	newCrawler, newDetails, err := a.crawlerFactories()
	if err != nil {
		return nil, err
	}
	a.Coordinator = crawler.NewCoordinator(
		cfg.Portals,
		newCrawler,
		newDetails,
		proc,
		uuid.New(),
		a.Clock,
		logger,
		coordOpts...,
	)
	a.Refresh = refresh.New(a.Coordinator.Run, a.Clock, logger)
	return a, nil
}

func (a *App) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *App) backupSink(ctx context.Context) (store.BackupSink, error) {
	cfg := a.Config.BackupSink
	switch cfg.Type {
	case "":
		return nil, nil
	case "local":
		sink, err := local.New(local.Config{BaseDir: cfg.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local backup sink: %w", err)
		}
		a.Logger.Info("backups mirrored to directory", zap.String("dir", cfg.LocalDir))
		return sink, nil
	case "gcs":
		sink, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("init gcs backup sink: %w", err)
		}
		a.onClose(sink.Close)
		a.Logger.Info("backups mirrored to gcs", zap.String("bucket", cfg.GCSBucket))
		return sink, nil
	default:
		return nil, fmt.Errorf("unknown backup sink %q", cfg.Type)
	}
}

func (a *App) publisher(ctx context.Context) ([]crawler.CoordinatorOption, error) {
	cfg := a.Config.Events
	var pub crawler.Publisher
	switch cfg.Type {
	case "":
		return nil, nil
	case "memory":
		pub = memorypublisher.New(100)
	case "redis":
		p, err := redispublisher.Open(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("init redis publisher: %w", err)
		}
		a.onClose(p.Close)
		pub = p
	case "pubsub":
		p, err := pubsubpublisher.Open(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("init pubsub publisher: %w", err)
		}
		a.onClose(p.Close)
		pub = p
	default:
		return nil, fmt.Errorf("unknown events type %q", cfg.Type)
	}
	a.Logger.Info("crawl events enabled", zap.String("type", cfg.Type), zap.String("topic", cfg.Topic))
	return []crawler.CoordinatorOption{crawler.WithPublisher(pub, cfg.Topic)}, nil
}

// crawlerFactories builds the fetchers once and returns constructors for
// per-execution crawlers. The headless browser is only prepared when some
// enabled portal uses headless or auto mode.
func (a *App) crawlerFactories() (crawler.CrawlerFactory, crawler.DetailFactory, error) {
	cfg := a.Config
	httpFetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.Crawler.FetchTimeout(),
	})

	var headless crawler.Fetcher
	for _, p := range cfg.Portals {
		if p.Enabled && p.FetchMode != config.FetchModeHTTP {
			hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
				MaxParallel:       cfg.Headless.MaxParallel,
				UserAgent:         cfg.Crawler.UserAgent,
				NavigationTimeout: cfg.Headless.NavTimeout(),
			})
			if err != nil {
				return nil, nil, fmt.Errorf("init headless fetcher: %w", err)
			}
			a.onClose(func() error { hf.Close(); return nil })
			headless = hf
			break
		}
	}

	settings := Settings(cfg.Crawler)
	settings.Limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.HostRPS, Burst: cfg.Crawler.HostBurst})
	promote := detector.NewHeuristic(cfg.Headless.PromotionMinText)
	b := builder.New(a.Clock, a.Logger)
	ex := extract.New(extract.WithHasher(sha256.New()), extract.WithClock(a.Clock))

	newCrawler := func(p config.PortalConfig) (crawler.Crawler, error) {
		var f crawler.Fetcher = httpFetcher
		switch p.FetchMode {
		case config.FetchModeHeadless:
			if headless == nil {
				return nil, errors.New("headless fetcher is not available")
			}
			f = headless
		case config.FetchModeAuto:
			f = crawler.NewPromotingFetcher(httpFetcher, headless, promote, a.Logger)
		}
		return crawler.NewPortalCrawler(p, f, b, settings, a.Logger)
	}
	newDetails := func(targets ...crawler.DetailTarget) crawler.DetailSource {
		return crawler.NewDetailCrawler(httpFetcher, ex, settings, a.Logger, targets...)
	}
	return newCrawler, newDetails, nil
}

// Settings converts the crawler config into session settings.
func Settings(c config.CrawlerConfig) crawler.Settings {
	return crawler.Settings{
		Retry: crawler.NewExponentialRetryPolicy(
			c.MaxRetries,
			c.BackoffInitial(),
			c.BackoffMax(),
		),
		RequestDelay: c.RequestDelay(),
		MaxPages:     c.MaxPagesPerRun,
	}
}

// Scheduler builds the interval scheduler over the refresh guard.
func (a *App) Scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(a.Refresh, a.Config.Scheduler.Interval(), a.Config.Scheduler.RunOnStartup, a.Logger)
}

// APIServer builds the HTTP API.
func (a *App) APIServer(version string) *api.Server {
	return api.NewServer(api.Deps{
		Reader:    a.Processor,
		Enricher:  a.Coordinator,
		Refresher: a.Refresh,
		Clock:     a.Clock,
		Portals:   a.Config.Portals,
		Version:   version,
	}, a.Config, a.Logger)
}

// Close releases clients in reverse order of creation and flushes the logger.
func (a *App) Close() {
	if a == nil {
		return
	}
	if a.Refresh != nil {
		a.Refresh.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warn("close service", zap.Error(err))
		}
	}
	a.closers = nil
	_ = a.Logger.Sync()
}
