// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Headless   HeadlessConfig   `mapstructure:"headless"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	BackupSink BackupSinkConfig `mapstructure:"backup_sink"`
	Events     EventsConfig     `mapstructure:"events"`
	Portals    []PortalConfig   `mapstructure:"portals"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs fetch behavior shared by every portal.
type CrawlerConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
	RequestDelayMs   int    `mapstructure:"request_delay_ms"`
	MaxPagesPerRun   int    `mapstructure:"max_pages_per_run"`
	// HostRPS caps requests per second to a single host; 0 disables it.
	HostRPS   float64 `mapstructure:"host_rps"`
	HostBurst int     `mapstructure:"host_burst"`
}

// HeadlessConfig configures the chromedp fetcher used by headless portals.
type HeadlessConfig struct {
	MaxParallel   int `mapstructure:"max_parallel"`
	NavTimeoutSec int `mapstructure:"nav_timeout_seconds"`
	// PromotionMinText is the visible-text threshold below which auto mode
	// renders a page headless.
	PromotionMinText int `mapstructure:"promotion_min_text"`
}

// StorageConfig locates the JSON store and its backup policy.
type StorageConfig struct {
	DataDir            string `mapstructure:"data_dir"`
	BackupEnabled      bool   `mapstructure:"backup_enabled"`
	MaxBackups         int    `mapstructure:"max_backups"`
	BackupFrequency    int    `mapstructure:"backup_frequency"`
	LockTimeoutSeconds int    `mapstructure:"lock_timeout_seconds"`
}

// SchedulerConfig controls periodic refreshes.
type SchedulerConfig struct {
	IntervalMinutes int  `mapstructure:"interval_minutes"`
	RunOnStartup    bool `mapstructure:"run_on_startup"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// DatabaseConfig enables the Postgres crawl-history mirror when DSN is set.
type DatabaseConfig struct {
	DSN          string `mapstructure:"dsn"`
	HistoryTable string `mapstructure:"history_table"`
}

// BackupSinkConfig selects where store snapshots are copied after rotation.
type BackupSinkConfig struct {
	Type      string `mapstructure:"type"` // "", local, gcs
	LocalDir  string `mapstructure:"local_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig selects the crawl event publisher.
type EventsConfig struct {
	Type      string `mapstructure:"type"` // "", memory, redis, pubsub
	Topic     string `mapstructure:"topic"`
	RedisURL  string `mapstructure:"redis_url"`
	ProjectID string `mapstructure:"project_id"`
}

// PortalConfig describes one recruitment portal.
type PortalConfig struct {
	Name       string                    `mapstructure:"name"`
	BaseURL    string                    `mapstructure:"base_url"`
	Enabled    bool                      `mapstructure:"enabled"`
	FetchMode  string                    `mapstructure:"fetch_mode"`
	Headers    map[string]string         `mapstructure:"headers"`
	Categories map[string]CategoryConfig `mapstructure:"categories"`
}

// CategoryConfig points at one listing page of a portal.
type CategoryConfig struct {
	Enabled   bool      `mapstructure:"enabled"`
	URL       string    `mapstructure:"url"`
	Selectors Selectors `mapstructure:"selectors"`
}

// Selectors are the CSS selectors used to build entries from a listing page.
type Selectors struct {
	Container     string `mapstructure:"container"`
	Title         string `mapstructure:"title"`
	Organization  string `mapstructure:"organization"`
	Link          string `mapstructure:"link"`
	PostDate      string `mapstructure:"post_date"`
	LastDate      string `mapstructure:"last_date"`
	Location      string `mapstructure:"location"`
	Category      string `mapstructure:"category"`
	Description   string `mapstructure:"description"`
	ResultDate    string `mapstructure:"result_date"`
	ExamDate      string `mapstructure:"exam_date"`
	DownloadStart string `mapstructure:"download_start"`
	DownloadEnd   string `mapstructure:"download_end"`
	NextPage      string `mapstructure:"next_page"`
}

// Fetch modes.
const (
	FetchModeHTTP     = "http"
	FetchModeHeadless = "headless"
	// FetchModeAuto probes over HTTP and renders headless when the page
	// looks client-side rendered.
	FetchModeAuto = "auto"
)

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.job-portal-crawler")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 120)
	v.SetDefault("crawler.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36")
	v.SetDefault("crawler.timeout_seconds", 30)
	v.SetDefault("crawler.max_retries", 3)
	v.SetDefault("crawler.backoff_initial_ms", 2000)
	v.SetDefault("crawler.backoff_max_ms", 30000)
	v.SetDefault("crawler.request_delay_ms", 1000)
	v.SetDefault("crawler.max_pages_per_run", 50)
	v.SetDefault("crawler.host_rps", 0)
	v.SetDefault("crawler.host_burst", 1)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.promotion_min_text", 200)
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("storage.backup_enabled", true)
	v.SetDefault("storage.max_backups", 10)
	v.SetDefault("storage.backup_frequency", 5)
	v.SetDefault("storage.lock_timeout_seconds", 10)
	v.SetDefault("scheduler.interval_minutes", 15)
	v.SetDefault("scheduler.run_on_startup", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("database.history_table", "crawl_history")
	v.SetDefault("backup_sink.prefix", "backups")
	v.SetDefault("events.topic", "crawl-events")
}

func (c *Config) normalize() {
	for i := range c.Portals {
		p := &c.Portals[i]
		if p.FetchMode == "" {
			p.FetchMode = FetchModeHTTP
		}
		p.FetchMode = strings.ToLower(p.FetchMode)
		normalized := make(map[string]CategoryConfig, len(p.Categories))
		for name, cat := range p.Categories {
			normalized[strings.ReplaceAll(strings.ToLower(name), "-", "_")] = cat
		}
		p.Categories = normalized
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.MaxRetries < 0 {
		return fmt.Errorf("crawler.max_retries must be >= 0")
	}
	if c.Crawler.HostRPS < 0 {
		return fmt.Errorf("crawler.host_rps must be >= 0")
	}
	if c.Crawler.MaxPagesPerRun <= 0 {
		return fmt.Errorf("crawler.max_pages_per_run must be > 0")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}
	if c.Storage.MaxBackups < 0 || c.Storage.BackupFrequency < 0 {
		return fmt.Errorf("storage.max_backups and storage.backup_frequency must be >= 0")
	}
	if c.Scheduler.IntervalMinutes <= 0 {
		return fmt.Errorf("scheduler.interval_minutes must be > 0")
	}
	switch c.BackupSink.Type {
	case "":
	case "local":
		if c.BackupSink.LocalDir == "" {
			return fmt.Errorf("backup_sink.local_dir is required for the local sink")
		}
	case "gcs":
		if c.BackupSink.GCSBucket == "" {
			return fmt.Errorf("backup_sink.gcs_bucket is required for the gcs sink")
		}
	default:
		return fmt.Errorf("backup_sink.type %q is not supported", c.BackupSink.Type)
	}
	switch c.Events.Type {
	case "", "memory":
	case "redis":
		if c.Events.RedisURL == "" {
			return fmt.Errorf("events.redis_url is required for the redis publisher")
		}
	case "pubsub":
		if c.Events.ProjectID == "" {
			return fmt.Errorf("events.project_id is required for the pubsub publisher")
		}
	default:
		return fmt.Errorf("events.type %q is not supported", c.Events.Type)
	}
	seen := make(map[string]struct{}, len(c.Portals))
	for _, p := range c.Portals {
		if err := p.Validate(); err != nil {
			return err
		}
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("portal %q is defined twice", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}

// Validate checks a single portal definition.
func (p PortalConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("portal name is required")
	}
	if p.FetchMode != FetchModeHTTP && p.FetchMode != FetchModeHeadless && p.FetchMode != FetchModeAuto {
		return fmt.Errorf("portal %q: fetch_mode %q is not supported", p.Name, p.FetchMode)
	}
	for name, cat := range p.Categories {
		c, ok := model.ParseCategory(name)
		if !ok || c == model.CategoryCrawlHistory {
			return fmt.Errorf("portal %q: unknown category %q", p.Name, name)
		}
		if cat.Enabled && (cat.URL == "" || cat.Selectors.Container == "" || cat.Selectors.Title == "") {
			return fmt.Errorf("portal %q: category %q needs url, container and title", p.Name, name)
		}
	}
	return nil
}

// Category returns the settings for c and whether it is enabled.
func (p PortalConfig) Category(c model.Category) (CategoryConfig, bool) {
	cat, ok := p.Categories[string(c)]
	return cat, ok && cat.Enabled
}

// EnabledPortals filters out disabled portals, preserving config order.
func (c Config) EnabledPortals() []PortalConfig {
	out := make([]PortalConfig, 0, len(c.Portals))
	for _, p := range c.Portals {
		if p.Enabled {
			out = append(out, p)
		}
	}
	return out
}

// Portal looks up a portal by name.
func (c Config) Portal(name string) (PortalConfig, bool) {
	for _, p := range c.Portals {
		if p.Name == name {
			return p, true
		}
	}
	return PortalConfig{}, false
}

// FetchTimeout converts the crawler timeout into a duration.
func (c CrawlerConfig) FetchTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial is the first retry delay.
func (c CrawlerConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax caps the retry delay.
func (c CrawlerConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// NavTimeout bounds one headless navigation.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// RequestDelay is the pause after every successful fetch.
func (c CrawlerConfig) RequestDelay() time.Duration {
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// LockTimeout bounds how long a store operation waits for a file lock.
func (c StorageConfig) LockTimeout() time.Duration {
	return time.Duration(c.LockTimeoutSeconds) * time.Second
}

// Interval is the scheduler period.
func (c SchedulerConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}
