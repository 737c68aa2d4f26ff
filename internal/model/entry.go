// Package model defines the records produced by the ingestion pipeline.
package model

import (
	"crypto/md5" // #nosec G501 -- identity digest, not a security boundary.
	"encoding/hex"
	"strings"
	"time"
)

// Kind identifies one variant of the entry union.
type Kind string

// Entry kinds.
const (
	KindJob          Kind = "job"
	KindResult       Kind = "result"
	KindAdmitCard    Kind = "admit_card"
	KindNotification Kind = "notification"
)

// Category names one partition of the Store.
type Category string

// Store categories.
const (
	CategoryJobs          Category = "jobs"
	CategoryResults       Category = "results"
	CategoryAdmitCards    Category = "admit_cards"
	CategoryNotifications Category = "notifications"
	CategoryCrawlHistory  Category = "crawl_history"
)

// Categories lists every store partition in file-creation order.
var Categories = []Category{
	CategoryJobs,
	CategoryResults,
	CategoryAdmitCards,
	CategoryNotifications,
	CategoryCrawlHistory,
}

// EntryCategories are the categories holding entries, in crawl order.
var EntryCategories = []Category{CategoryJobs, CategoryResults, CategoryAdmitCards, CategoryNotifications}

// ListingCategories are the categories whose records support a detail-fetch.
var ListingCategories = []Category{CategoryJobs, CategoryResults, CategoryAdmitCards}

// ParseCategory accepts both the store name and the hyphenated API form.
func ParseCategory(raw string) (Category, bool) {
	normalized := Category(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_"))
	for _, c := range Categories {
		if c == normalized {
			return c, true
		}
	}
	return "", false
}

// Kind returns the entry kind stored in the category, if any.
func (c Category) Kind() (Kind, bool) {
	switch c {
	case CategoryJobs:
		return KindJob, true
	case CategoryResults:
		return KindResult, true
	case CategoryAdmitCards:
		return KindAdmitCard, true
	case CategoryNotifications:
		return KindNotification, true
	default:
		return "", false
	}
}

// ContentType returns the detail extraction strategy for a listing category.
func (c Category) ContentType() ContentType {
	switch c {
	case CategoryResults:
		return ContentResult
	case CategoryAdmitCards:
		return ContentAdmitCard
	default:
		return ContentJob
	}
}

// EntryStatus is the lifecycle state of a job posting.
type EntryStatus string

// Entry status values.
const (
	StatusActive   EntryStatus = "active"
	StatusExpired  EntryStatus = "expired"
	StatusClosed   EntryStatus = "closed"
	StatusArchived EntryStatus = "archived"
)

// EntryID derives the deterministic identity of a record.
// The URL is not part of the identity.
func EntryID(title, organization, portal string) string {
	key := strings.ToLower(title + "_" + organization + "_" + portal)
	sum := md5.Sum([]byte(key)) // #nosec G401 -- see import note.
	return hex.EncodeToString(sum[:])
}

// Record is anything the Store can index by id.
type Record interface {
	RecordID() string
}

// Entry is the closed union of Job, Result, AdmitCard and Notification.
type Entry interface {
	Record
	Common() *Base
	Kind() Kind
	entry()
}

// Detailed is implemented by the listing kinds that support a detail-fetch.
type Detailed interface {
	Entry
	Details() *DetailedInfo
	SetDetails(info *DetailedInfo)
	HasDetails() bool
}

// Base holds the fields shared by every entry kind.
type Base struct {
	ID                   string            `json:"id"`
	PortalName           string            `json:"portal_name"`
	Title                string            `json:"title"`
	Organization         string            `json:"organization"`
	URL                  string            `json:"url"`
	Description          string            `json:"description,omitempty"`
	DiscoveredAt         time.Time         `json:"discovered_at"`
	Metadata             map[string]string `json:"metadata,omitempty"`
	IsNew                bool              `json:"is_new"`
	IsDuplicate          bool              `json:"is_duplicate"`
	TimesSeen            int               `json:"times_seen"`
	PreviousDiscoveredAt *time.Time        `json:"previous_discovered_at,omitempty"`
}

// RecordID implements Record.
func (b *Base) RecordID() string { return b.ID }

// Common exposes the shared fields for mutation by the processor.
func (b *Base) Common() *Base { return b }

func (b *Base) entry() {}

// Listing is the shared shape of entries that can be enriched by a detail-fetch.
type Listing struct {
	Base
	DetailedInfo *DetailedInfo `json:"detailed_info,omitempty"`
}

// Details returns the detail-fetch payload or nil.
func (l *Listing) Details() *DetailedInfo { return l.DetailedInfo }

// SetDetails replaces the detail-fetch payload.
func (l *Listing) SetDetails(info *DetailedInfo) { l.DetailedInfo = info }

// HasDetails reports whether a detail-fetch has run for the entry.
func (l *Listing) HasDetails() bool { return l.DetailedInfo != nil }

// Job is a recruitment posting.
type Job struct {
	Listing
	PostDate string      `json:"post_date,omitempty"`
	LastDate string      `json:"last_date,omitempty"`
	Location string      `json:"location,omitempty"`
	Category string      `json:"category,omitempty"`
	Status   EntryStatus `json:"status"`
}

// Kind implements Entry.
func (*Job) Kind() Kind { return KindJob }

// Result is an exam result announcement.
type Result struct {
	Listing
	ResultDate string `json:"result_date,omitempty"`
}

// Kind implements Entry.
func (*Result) Kind() Kind { return KindResult }

// AdmitCard is an admit card or hall ticket release.
type AdmitCard struct {
	Listing
	ExamDate      string `json:"exam_date,omitempty"`
	DownloadStart string `json:"download_start,omitempty"`
	DownloadEnd   string `json:"download_end,omitempty"`
}

// Kind implements Entry.
func (*AdmitCard) Kind() Kind { return KindAdmitCard }

// Notification is the catch-all kind. It has no detail-fetch phase.
type Notification struct {
	Base
	NotificationType string `json:"notification_type"`
}

// Kind implements Entry.
func (*Notification) Kind() Kind { return KindNotification }

// Batch groups the entries produced by one crawl.
type Batch struct {
	Jobs          []*Job
	Results       []*Result
	AdmitCards    []*AdmitCard
	Notifications []*Notification
}

// Len returns the number of entries across all kinds.
func (b Batch) Len() int {
	return len(b.Jobs) + len(b.Results) + len(b.AdmitCards) + len(b.Notifications)
}

// Categories lists the categories with at least one entry, in store order.
func (b Batch) Categories() []Category {
	var out []Category
	if len(b.Jobs) > 0 {
		out = append(out, CategoryJobs)
	}
	if len(b.Results) > 0 {
		out = append(out, CategoryResults)
	}
	if len(b.AdmitCards) > 0 {
		out = append(out, CategoryAdmitCards)
	}
	if len(b.Notifications) > 0 {
		out = append(out, CategoryNotifications)
	}
	return out
}
