package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Jadaunkg/job-portal-crawler/internal/crawler"
)

func TestShouldPromote(t *testing.T) {
	t.Parallel()

	longText := "<p>" + strings.Repeat("Recruitment notice for the post of clerk. ", 10) + "</p>"
	tests := []struct {
		name string
		resp crawler.FetchResponse
		want bool
	}{
		{"empty body", crawler.FetchResponse{StatusCode: 200}, true},
		{"next mount point", crawler.FetchResponse{StatusCode: 200, Body: []byte(`<body><div id="__next"></div></body>`)}, true},
		{"script shell", crawler.FetchResponse{StatusCode: 200, Body: []byte(`<body><script src="/app.js"></script><p>Loading</p></body>`)}, true},
		{"static listing", crawler.FetchResponse{StatusCode: 200, Body: []byte(`<body><div id="app">` + longText + `<script>var x=1</script></div></body>`)}, false},
		{"short page without scripts", crawler.FetchResponse{StatusCode: 200, Body: []byte(`<body><p>No vacancies</p></body>`)}, false},
		{"non 200", crawler.FetchResponse{StatusCode: 404}, false},
		{"already headless", crawler.FetchResponse{StatusCode: 200, UsedHeadless: true}, false},
	}
	h := NewHeuristic(0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, h.ShouldPromote(tt.resp))
		})
	}
}
