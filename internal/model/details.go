package model

import (
	"strings"
	"time"
)

// ContentType selects the detail extraction strategy.
type ContentType string

// Detail content types. ContentAuto asks the extractor to pick one.
const (
	ContentJob       ContentType = "job"
	ContentResult    ContentType = "result"
	ContentAdmitCard ContentType = "admit_card"
	ContentAuto      ContentType = "auto"
)

// ParseContentType normalizes a hint; empty input means auto.
func ParseContentType(raw string) (ContentType, bool) {
	switch ContentType(strings.ToLower(strings.TrimSpace(raw))) {
	case "", ContentAuto:
		return ContentAuto, true
	case ContentJob:
		return ContentJob, true
	case ContentResult:
		return ContentResult, true
	case ContentAdmitCard, "admit-card", "admitcard":
		return ContentAdmitCard, true
	default:
		return "", false
	}
}

// Link is an outbound anchor kept by the extractor.
type Link struct {
	Text string `json:"text"`
	URL  string `json:"url"`
}

// Table is one extracted HTML table. Rows keep source order.
type Table struct {
	Index   int                 `json:"index"`
	Headers []string            `json:"headers,omitempty"`
	Rows    []map[string]string `json:"rows"`
}

// DetailedInfo is the payload produced by a detail-fetch.
type DetailedInfo struct {
	URL             string            `json:"url"`
	ContentType     ContentType       `json:"content_type"`
	FullDescription string            `json:"full_description"`
	Sections        map[string]string `json:"sections,omitempty"`
	Tables          []Table           `json:"tables,omitempty"`
	Links           []Link            `json:"links,omitempty"`
	ImportantDates  string            `json:"important_dates,omitempty"`
	Eligibility     string            `json:"eligibility,omitempty"`
	ApplicationFee  string            `json:"application_fee,omitempty"`
	HowToApply      string            `json:"how_to_apply,omitempty"`
	KeyDetails      map[string]string `json:"key_details,omitempty"`
	ResultLinks     []Link            `json:"result_links,omitempty"`
	DownloadLinks   []Link            `json:"download_links,omitempty"`
	ContentHash     string            `json:"content_hash,omitempty"`
	CrawledAt       time.Time         `json:"crawled_at"`
}

// FieldKeys returns the section and key-detail headings as snake_case keys.
// "Exam Date:" becomes "exam_date".
func (d *DetailedInfo) FieldKeys() map[string]string {
	out := make(map[string]string, len(d.Sections)+len(d.KeyDetails))
	for heading, text := range d.Sections {
		out[FieldKey(heading)] = text
	}
	for heading, text := range d.KeyDetails {
		out[FieldKey(heading)] = text
	}
	for _, table := range d.Tables {
		for _, h := range table.Headers {
			if _, ok := out[FieldKey(h)]; !ok {
				out[FieldKey(h)] = ""
			}
		}
	}
	return out
}

// FieldKey lowercases a heading and joins its words with underscores.
func FieldKey(heading string) string {
	fields := strings.FieldsFunc(strings.ToLower(heading), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	return strings.Join(fields, "_")
}
