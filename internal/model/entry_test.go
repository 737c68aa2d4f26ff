package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryIDIgnoresCase(t *testing.T) {
	t.Parallel()

	a := EntryID("SSC CGL 2024", "Staff Selection Commission", "Sarkari_Result")
	b := EntryID("ssc cgl 2024", "STAFF SELECTION COMMISSION", "sarkari_result")
	require.Equal(t, a, b)
	require.Len(t, a, 32)
	require.Equal(t, a, EntryID("SSC CGL 2024", "Staff Selection Commission", "Sarkari_Result"))
}

func TestEntryIDDependsOnEveryPart(t *testing.T) {
	t.Parallel()

	base := EntryID("title", "org", "portal")
	assert.NotEqual(t, base, EntryID("title2", "org", "portal"))
	assert.NotEqual(t, base, EntryID("title", "org2", "portal"))
	assert.NotEqual(t, base, EntryID("title", "org", "portal2"))
}

func TestJobJSONIsFlat(t *testing.T) {
	t.Parallel()

	job := &Job{
		Listing: Listing{Base: Base{
			ID:           "abc",
			PortalName:   "p",
			Title:        "Clerk",
			URL:          "https://example.com/clerk",
			DiscoveredAt: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			TimesSeen:    1,
		}},
		LastDate: "12-12-2024",
		Status:   StatusActive,
	}
	raw, err := json.Marshal(job)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Equal(t, "abc", fields["id"])
	assert.Equal(t, "12-12-2024", fields["last_date"])
	assert.Equal(t, "active", fields["status"])
	assert.NotContains(t, fields, "detailed_info")
	assert.NotContains(t, fields, "Listing")

	var decoded Job
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.False(t, decoded.HasDetails())
	assert.Equal(t, KindJob, decoded.Kind())
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	c, ok := ParseCategory("admit-cards")
	require.True(t, ok)
	assert.Equal(t, CategoryAdmitCards, c)

	_, ok = ParseCategory("unknown")
	assert.False(t, ok)

	kind, ok := CategoryCrawlHistory.Kind()
	assert.False(t, ok)
	assert.Empty(t, kind)
}

func TestFieldKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "exam_date", FieldKey("Exam Date:"))
	assert.Equal(t, "roll_number", FieldKey("  Roll   Number "))
	assert.Equal(t, "admit_card_date", FieldKey("Admit-Card Date"))
}

func TestBatchCategories(t *testing.T) {
	t.Parallel()

	b := Batch{Jobs: []*Job{{}}, AdmitCards: []*AdmitCard{{}}}
	assert.Equal(t, []Category{CategoryJobs, CategoryAdmitCards}, b.Categories())
	assert.Equal(t, 2, b.Len())
}
