package extract

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// Hasher fingerprints the full description.
type Hasher interface {
	HashText(text string) string
}

// Clock stamps crawled_at.
type Clock interface {
	Now() time.Time
}

// Extractor composes region detection, sections, rules, tables and links.
type Extractor struct {
	rules  []Rule
	hasher Hasher
	clock  Clock
}

// Option customizes an Extractor.
type Option func(*Extractor)

// WithRules replaces DefaultRules.
func WithRules(rules []Rule) Option { return func(e *Extractor) { e.rules = rules } }

// WithHasher sets the content_hash function.
func WithHasher(h Hasher) Option { return func(e *Extractor) { e.hasher = h } }

// WithClock sets the crawled_at source.
func WithClock(c Clock) Option { return func(e *Extractor) { e.clock = c } }

type utcClock struct{}

func (utcClock) Now() time.Time { return time.Now().UTC() }

// New builds an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{rules: DefaultRules, clock: utcClock{}}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract builds the detail record of a parsed page. It never fails; an
// unrecognizable page yields an empty FullDescription.
func (e *Extractor) Extract(doc *goquery.Document, pageURL string, ct model.ContentType) *model.DetailedInfo {
	region := MainContent(doc)
	full := BlockText(region)
	sections := Sections(region)
	derived := Derive(sections, full, e.rules)
	links := Links(region, pageURL, ct)

	info := &model.DetailedInfo{
		URL:             pageURL,
		ContentType:     ct,
		FullDescription: full,
		Sections:        SectionMap(sections),
		Tables:          Tables(region, doc),
		Links:           links.Links,
		ImportantDates:  derived.ImportantDates,
		Eligibility:     derived.Eligibility,
		ApplicationFee:  derived.ApplicationFee,
		HowToApply:      derived.HowToApply,
		KeyDetails:      derived.KeyDetails,
		ResultLinks:     links.ResultLinks,
		DownloadLinks:   links.DownloadLinks,
		CrawledAt:       e.clock.Now(),
	}
	if e.hasher != nil && full != "" {
		info.ContentHash = e.hasher.HashText(full)
	}
	return info
}
