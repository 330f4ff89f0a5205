package source

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"roebot/internal/schedule"
)

func docFromHTML(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		t.Fatalf("parse test html: %v", err)
	}
	return doc
}

// buildTable renders a schedule table with two header rows and the given
// data rows; each row is a date plus 12 queue cells.
func buildTable(rows [][]string) string {
	var b strings.Builder
	b.WriteString("<html><body><table>")
	b.WriteString("<tr><th>Дата</th><th colspan=\"12\">Черги</th></tr>")
	b.WriteString("<tr><td></td>")
	for _, q := range schedule.Queues {
		b.WriteString("<td>" + q + "</td>")
	}
	b.WriteString("</tr>")
	for _, row := range rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			b.WriteString("<td>" + cell + "</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</table></body></html>")
	return b.String()
}

func TestExtractSingleDay(t *testing.T) {
	row := make([]string, 0, 13)
	row = append(row, "16.01.2026")
	row = append(row, "08:00 - 12:00")
	for i := 1; i < len(schedule.Queues); i++ {
		row = append(row, "")
	}
	doc := docFromHTML(t, buildTable([][]string{row}))

	days, err := Extract(doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(days) != 1 {
		t.Fatalf("got %d days, want 1", len(days))
	}
	day := days[0]
	if day.Date != "16.01.2026" {
		t.Fatalf("date = %q", day.Date)
	}
	if hours, ok := day.HoursForQueue("1.1"); !ok || !reflect.DeepEqual(hours, []string{"08:00 - 12:00"}) {
		t.Fatalf("queue 1.1 hours = %v, %v", hours, ok)
	}
	if hours, ok := day.HoursForQueue("1.2"); !ok || len(hours) != 0 {
		t.Fatalf("blank cell should give confirmed-empty hours, got %v, %v", hours, ok)
	}
}

func TestExtractMultiRangeCellWithBreaks(t *testing.T) {
	row := make([]string, 0, 13)
	row = append(row, "16.01.2026")
	row = append(row, "08:00 - 12:00<br>20:00 - 23:59")
	for i := 1; i < len(schedule.Queues); i++ {
		row = append(row, "")
	}
	doc := docFromHTML(t, buildTable([][]string{row}))

	days, err := Extract(doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	want := []string{"08:00 - 12:00", "20:00 - 23:59"}
	if hours, _ := days[0].HoursForQueue("1.1"); !reflect.DeepEqual(hours, want) {
		t.Fatalf("queue 1.1 hours = %v, want %v", hours, want)
	}
}

func TestExtractSkipsNonDateAndShortRows(t *testing.T) {
	full := make([]string, 13)
	full[0] = "17.01.2026"
	rows := [][]string{
		{"Разом", "x", "x", "x", "x", "x", "x", "x", "x", "x", "x", "x", "x"},
		{"16.01.2026", "08:00 - 12:00"}, // too few cells
		full,
	}
	doc := docFromHTML(t, buildTable(rows))

	days, err := Extract(doc)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(days) != 1 || days[0].Date != "17.01.2026" {
		t.Fatalf("days = %v", days)
	}
}

func TestExtractNoTable(t *testing.T) {
	doc := docFromHTML(t, "<html><body><p>maintenance</p></body></html>")
	if _, err := Extract(doc); !errors.Is(err, ErrNoTable) {
		t.Fatalf("err = %v, want ErrNoTable", err)
	}
}
