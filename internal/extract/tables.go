package extract

import (
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/Jadaunkg/job-portal-crawler/internal/model"
)

// Tables extracts the tables inside region, or the whole page's tables when
// the region has none. Tables without data rows are skipped.
func Tables(region *goquery.Selection, doc *goquery.Document) []model.Table {
	tables := region.Find("table")
	if tables.Length() == 0 && doc != nil {
		tables = doc.Find("table")
	}
	var out []model.Table
	tables.Each(func(i int, t *goquery.Selection) {
		if table, ok := parseTable(i, t); ok {
			out = append(out, table)
		}
	})
	return out
}

func parseTable(index int, t *goquery.Selection) (model.Table, bool) {
	own := t.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
		return tr.Closest("table").Get(0) == t.Get(0)
	})

	var headers []string
	if thead := t.ChildrenFiltered("thead").First(); thead.Length() > 0 {
		thead.Find("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, Text(c))
		})
	} else if first := own.First(); first.ChildrenFiltered("th").Length() > 0 {
		first.ChildrenFiltered("th, td").Each(func(_ int, c *goquery.Selection) {
			headers = append(headers, Text(c))
		})
	}

	table := model.Table{Index: index, Headers: headers, Rows: []map[string]string{}}
	own.Each(func(_ int, tr *goquery.Selection) {
		if tr.Parent().Is("thead") {
			return
		}
		if len(headers) > 0 && tr.ChildrenFiltered("th").Length() > 0 {
			return
		}
		cells := tr.ChildrenFiltered("td, th")
		if cells.Length() == 0 {
			return
		}
		row := make(map[string]string, cells.Length())
		keyed := len(headers) == cells.Length()
		cells.Each(func(j int, c *goquery.Selection) {
			key := "column_" + strconv.Itoa(j)
			if keyed && headers[j] != "" {
				key = headers[j]
			}
			row[key] = Text(c)
		})
		table.Rows = append(table.Rows, row)
	})
	if len(table.Rows) == 0 {
		return model.Table{}, false
	}
	return table, true
}
