package source

import (
	"html"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"roebot/internal/schedule"
)

var (
	reDateCell = regexp.MustCompile(`^\d{2}\.\d{2}\.\d{4}$`)
	reBreak    = regexp.MustCompile(`(?i)<br\s*/?>`)
	reTag      = regexp.MustCompile(`<[^>]+>`)
)

// Extract pulls per-day schedules out of the page's first table.
//
// Layout contract: two header rows, then one row per day. Column 0 is the
// date, columns 1..12 follow the queue order of schedule.Queues. Rows whose
// first cell is not a dd.mm.yyyy date are decoration and skipped; a data row
// with fewer than 13 cells is malformed and skipped. The rest of the page is
// ignored.
func Extract(doc *goquery.Document) ([]*schedule.Daily, error) {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, ErrNoTable
	}

	var days []*schedule.Daily
	table.Find("tr").Each(func(i int, row *goquery.Selection) {
		if i < 2 {
			return
		}
		cells := row.Find("td")
		if cells.Length() < len(schedule.Queues)+1 {
			return
		}
		date := strings.TrimSpace(cells.First().Text())
		if !reDateCell.MatchString(date) {
			return
		}

		day := schedule.NewDaily(date)
		for col, q := range schedule.Queues {
			day.SetQueueHours(q, schedule.ParseHours(cellText(cells.Eq(col+1))))
		}
		days = append(days, day)
	})

	return days, nil
}

// cellText extracts a cell's text with <br> boundaries preserved as
// newlines. Plain .Text() would glue adjacent ranges together, hiding the
// separator the hour parser needs.
func cellText(cell *goquery.Selection) string {
	raw, err := cell.Html()
	if err != nil {
		return cell.Text()
	}
	raw = reBreak.ReplaceAllString(raw, "\n")
	raw = reTag.ReplaceAllString(raw, "")
	return strings.ReplaceAll(html.UnescapeString(raw), "\u00a0", " ")
}
