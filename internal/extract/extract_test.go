package extract

import (
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

var padding = strings.Repeat("Lorem ipsum dolor sit amet. ", 15)

var detailPage = `<html><head><title>SSC CGL</title><script>var tracking = 1;</script><style>p{}</style></head>
<body>
<nav><a href="/">Home</a> <a href="/jobs">Latest Jobs</a></nav>
<div class="entry-content">
<p>` + padding + `</p>
<h2>Important Dates</h2>
<p>Application Begin: 01/01/2024</p>
<p>Last Date: 31/01/2024</p>
<h2>Application Fee:</h2>
<p>General: 100</p>
<h3>Eligibility</h3>
<ul><li>Graduate</li></ul>
<p><strong>Age Limit:</strong></p>
<p>18-27 Years</p>
<h2>Vacancy Details</h2>
<table>
  <tr><th>Post</th><th>Vacancies</th></tr>
  <tr><td>Clerk</td><td>10</td></tr>
  <tr><td>PO</td><td>5</td></tr>
</table>
<h2>How to Apply</h2>
<p>Apply online before the last date.</p>
<p>
  <a href="https://example.com/apply">Apply Online</a>
  <a href="/notice.pdf">Download Notification</a>
  <a href="#top">Top of page</a>
  <a href="javascript:void(0)">Print this</a>
  <a href="/apply">Apply Online Again</a>
  <a href="/">Home</a>
  <a href="/x">Go</a>
  <a href="mailto:help@example.com">Mail us</a>
</p>
</div>
<footer><a href="/privacy">Privacy Policy</a></footer>
</body></html>`

func mustParse(t *testing.T, page string) *goquery.Document {
	t.Helper()
	doc, err := ParseBytes([]byte(page), "text/html; charset=utf-8")
	require.NoError(t, err)
	return doc
}

type staticHasher struct{}

func (staticHasher) HashText(text string) string { return "hash-" + strings.Fields(text)[0] }

type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

func TestParseStripsScriptsAndDecodesCharset(t *testing.T) {
	t.Parallel()

	latin1 := []byte("<html><body><p>caf\xe9</p><script>alert(1)</script><noscript>x</noscript></body></html>")
	doc, err := ParseBytes(latin1, "text/html; charset=iso-8859-1")
	require.NoError(t, err)
	assert.Equal(t, "café", Text(doc.Find("p")))
	assert.Zero(t, doc.Find("script, noscript").Length())
}

func TestBlockTextKeepsBlocksOnSeparateLines(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div><p>One   <b>bold</b> line</p><ul><li>A</li><li>B</li></ul>Tail<br>End</div>`)
	assert.Equal(t, "One bold line\nA\nB\nTail\nEnd", BlockText(doc.Find("div")))
}

func TestMainContentPrefersPrioritySelector(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, detailPage)
	region := MainContent(doc)
	assert.True(t, region.Is(".entry-content"))
}

func TestMainContentKeywordFallback(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<body>
<div class="entry-content"><p>short</p></div>
<div class="job-detail"><p>`+padding+`</p></div>
<div class="sidebar"><p>`+padding+padding+`</p></div>
</body>`)
	region := MainContent(doc)
	assert.True(t, region.Is(".job-detail"))
}

func TestMainContentBodyFallbackLeavesDocumentIntact(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<body><header>Site</header><nav>Menu</nav><p>Body text</p><footer>Footer</footer></body>`)
	region := MainContent(doc)
	assert.Equal(t, "Body text", BlockText(region))
	assert.Equal(t, 1, doc.Find("nav").Length())
}

func TestSections(t *testing.T) {
	t.Parallel()

	region := MainContent(mustParse(t, detailPage))
	sections := SectionMap(Sections(region))

	assert.Equal(t, "Application Begin: 01/01/2024\nLast Date: 31/01/2024", sections["Important Dates"])
	assert.Equal(t, "General: 100", sections["Application Fee"])
	assert.Contains(t, sections["Eligibility"], "Graduate")
	assert.Equal(t, "18-27 Years", sections["Age Limit"])
	assert.Contains(t, sections["How to Apply"], "Apply online before the last date.")
	assert.NotContains(t, sections["Important Dates"], "General")
}

func TestSectionsInlineBoldAndShortHeadings(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div>
<p><b>Note:</b> Carry a photo ID. <b>Venue:</b> Delhi</p>
<h4>Ok</h4><p>ignored heading</p>
<h2><strong>Nested Bold</strong></h2><p>belongs to the h2</p>
<h3>Empty</h3>
<h3>Repeated</h3><p>first</p>
<h3>Repeated</h3><p>second</p>
</div>`)
	sections := Sections(doc.Find("div"))
	m := SectionMap(sections)

	assert.Equal(t, "Carry a photo ID.", m["Note"])
	assert.Equal(t, "Delhi", m["Venue"])
	assert.NotContains(t, m, "Ok")
	assert.Equal(t, "belongs to the h2", m["Nested Bold"])
	assert.NotContains(t, m, "Empty")
	assert.Equal(t, "first\nsecond", m["Repeated"])

	headings := make([]string, 0, len(sections))
	for _, s := range sections {
		headings = append(headings, s.Heading)
	}
	assert.Equal(t, []string{"Note", "Venue", "Nested Bold", "Repeated", "Repeated"}, headings)
}

func TestDeriveRoutesByRuleOrder(t *testing.T) {
	t.Parallel()

	sections := []Section{
		{Heading: "Important Dates", Text: "Start: 01-01-2024"},
		{Heading: "Educational Qualification", Text: "10+2"},
		{Heading: "Application Fee", Text: "Rs 100"},
		{Heading: "Fee Details", Text: "SC/ST: Nil"},
		{Heading: "How to Fill Form", Text: "Step 1"},
		{Heading: "Age Limit", Text: "18-27"},
	}
	d := Derive(sections, "", nil)

	assert.Equal(t, "Start: 01-01-2024", d.ImportantDates)
	assert.Equal(t, "10+2", d.Eligibility)
	assert.Equal(t, "Rs 100\nSC/ST: Nil", d.ApplicationFee)
	assert.Equal(t, "Step 1", d.HowToApply)
	assert.Equal(t, map[string]string{"Age Limit": "18-27"}, d.KeyDetails)
}

func TestDeriveFallsBackToDatePatterns(t *testing.T) {
	t.Parallel()

	text := "Apply soon. Last Date for apply: 15-02-2024\nApplication Start 01/02/2024 and EXAM DATE 20/03/2024"
	d := Derive(nil, text, nil)
	assert.Equal(t, "Last Date: 15-02-2024\nApplication Start: 01/02/2024\nExam Date: 20/03/2024", d.ImportantDates)
	assert.Empty(t, d.KeyDetails)

	assert.Empty(t, DatesFromText("no dates here"))
}

func TestTables(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, detailPage)
	tables := Tables(MainContent(doc), doc)
	require.Len(t, tables, 1)
	assert.Equal(t, []string{"Post", "Vacancies"}, tables[0].Headers)
	assert.Equal(t, []map[string]string{
		{"Post": "Clerk", "Vacancies": "10"},
		{"Post": "PO", "Vacancies": "5"},
	}, tables[0].Rows)
}

func TestTablesMismatchedAndNested(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div id="r"><table>
<thead><tr><td>Name</td><td>Date</td></tr></thead>
<tr><td>A</td><td>1</td><td>extra</td></tr>
<tr><td>B</td><td><table><tr><td>inner</td></tr></table></td></tr>
</table>
<table><tr><td></td></tr></table>
<table></table>
</div>`)
	tables := Tables(doc.Find("#r"), doc)
	require.Len(t, tables, 3)

	outer := tables[0]
	assert.Equal(t, 0, outer.Index)
	assert.Equal(t, []string{"Name", "Date"}, outer.Headers)
	require.Len(t, outer.Rows, 2)
	assert.Equal(t, map[string]string{"column_0": "A", "column_1": "1", "column_2": "extra"}, outer.Rows[0])
	assert.Equal(t, "B", outer.Rows[1]["Name"])

	// The nested table is reported on its own, not merged into the outer rows.
	assert.Equal(t, 1, tables[1].Index)
	assert.Equal(t, []map[string]string{{"column_0": "inner"}}, tables[1].Rows)
	assert.Equal(t, 2, tables[2].Index)
}

func TestTablesFallBackToPage(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<div id="r"><p>text</p></div><table><tr><td>x</td></tr></table>`)
	tables := Tables(doc.Find("#r"), doc)
	require.Len(t, tables, 1)
	assert.Equal(t, "x", tables[0].Rows[0]["column_0"])
}

func TestLinks(t *testing.T) {
	t.Parallel()

	region := MainContent(mustParse(t, detailPage))
	const page = "https://example.com/jobs/ssc-cgl"

	set := Links(region, page, model.ContentJob)
	assert.Equal(t, []model.Link{
		{Text: "Apply Online", URL: "https://example.com/apply"},
		{Text: "Download Notification", URL: "https://example.com/notice.pdf"},
	}, set.Links)
	assert.Empty(t, set.ResultLinks)
	assert.Empty(t, set.DownloadLinks)

	results := Links(region, page, model.ContentResult)
	assert.Equal(t, []model.Link{{Text: "Download Notification", URL: "https://example.com/notice.pdf"}}, results.ResultLinks)

	admit := Links(region, page, model.ContentAdmitCard)
	assert.Equal(t, []model.Link{{Text: "Download Notification", URL: "https://example.com/notice.pdf"}}, admit.DownloadLinks)
	assert.Empty(t, admit.ResultLinks)
}

func TestAdmitCardPDFLinksAreDownloads(t *testing.T) {
	t.Parallel()

	doc := mustParse(t, `<main>
		<a href="/files/schedule">Exam City Slip PDF</a>
		<a href="/files/centre.pdf">Centre List</a>
		<a href="/about">About the board</a>
	</main>`)
	set := Links(doc.Find("main"), "https://example.com/admit/ssc", model.ContentAdmitCard)
	assert.Equal(t, []model.Link{
		{Text: "Exam City Slip PDF", URL: "https://example.com/files/schedule"},
		{Text: "Centre List", URL: "https://example.com/files/centre.pdf"},
	}, set.DownloadLinks)
	assert.Len(t, set.Links, 3)
}

func TestNavNoise(t *testing.T) {
	t.Parallel()

	assert.True(t, isNavNoise("Home"))
	assert.True(t, isNavNoise("next page"))
	assert.True(t, isNavNoise("Back to top"))
	assert.False(t, isNavNoise("Homeopathy Officer"))
	assert.False(t, isNavNoise("Researcher Post"))
}

func TestDetectContentType(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.ContentResult, DetectContentType(map[string]string{"exam_date": ""}))
	assert.Equal(t, model.ContentResult, DetectContentType(map[string]string{"result_date": "x"}))
	assert.Equal(t, model.ContentAdmitCard, DetectContentType(map[string]string{"roll_number": ""}))
	assert.Equal(t, model.ContentJob, DetectContentType(map[string]string{"age_limit": ""}))
	assert.Equal(t, model.ContentJob, DetectContentType(nil))
}

func TestExtract(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	e := New(WithHasher(staticHasher{}), WithClock(fixedClock(now)))
	info := e.Extract(mustParse(t, detailPage), "https://example.com/jobs/ssc-cgl", model.ContentJob)

	assert.Equal(t, "https://example.com/jobs/ssc-cgl", info.URL)
	assert.Equal(t, model.ContentJob, info.ContentType)
	assert.True(t, strings.HasPrefix(info.FullDescription, "Lorem ipsum"))
	assert.NotContains(t, info.FullDescription, "tracking")
	assert.NotContains(t, info.FullDescription, "Privacy Policy")
	assert.Equal(t, "Application Begin: 01/01/2024\nLast Date: 31/01/2024", info.ImportantDates)
	assert.Equal(t, "General: 100", info.ApplicationFee)
	assert.Contains(t, info.Eligibility, "Graduate")
	assert.Contains(t, info.HowToApply, "Apply online before the last date.")
	assert.Equal(t, "18-27 Years", info.KeyDetails["Age Limit"])
	assert.Contains(t, info.KeyDetails, "Vacancy Details")
	assert.Len(t, info.Tables, 1)
	assert.Len(t, info.Links, 2)
	assert.Equal(t, "hash-Lorem", info.ContentHash)
	assert.Equal(t, now, info.CrawledAt)
	assert.Equal(t, model.ContentJob, DetectContentType(info.FieldKeys()))
}
