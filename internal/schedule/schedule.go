// Package schedule holds the outage schedule domain model: queue
// identifiers, per-day schedules and the free-text hour range parser.
// Everything here is pure; no I/O.
package schedule

import (
	"fmt"
	"time"
)

// Queues lists the power queue identifiers in the order they appear as
// columns in the source table. This is a deployment constant, not derived
// from the page.
var Queues = []string{
	"1.1", "1.2", "2.1", "2.2", "3.1", "3.2",
	"4.1", "4.2", "5.1", "5.2", "6.1", "6.2",
}

// DateFormat is the external date form used by the source site and as the
// storage key ("dd.mm.yyyy").
const DateFormat = "02.01.2006"

// IsKnownQueue reports whether q is one of the deployment's queue ids.
func IsKnownQueue(q string) bool {
	for _, known := range Queues {
		if known == q {
			return true
		}
	}
	return false
}

// Daily is the outage schedule for a single day.
//
// QueueHours distinguishes absent from empty: a queue missing from the map
// means "not yet published / pending", a queue mapped to an empty list means
// "confirmed no outage". The map is only ever replaced wholesale per queue
// during a refresh, never merged.
type Daily struct {
	Date       string              `json:"date"`
	QueueHours map[string][]string `json:"queue_hours"`
}

func NewDaily(date string) *Daily {
	return &Daily{Date: date, QueueHours: map[string][]string{}}
}

// SetQueueHours replaces the hour list for a queue (last write wins).
func (d *Daily) SetQueueHours(queue string, hours []string) {
	d.QueueHours[queue] = hours
}

// HoursForQueue returns the outage ranges for a queue. ok is false when the
// queue has no entry yet (data pending), which is distinct from an empty
// list (no outage scheduled).
func (d *Daily) HoursForQueue(queue string) (hours []string, ok bool) {
	hours, ok = d.QueueHours[queue]
	return hours, ok
}

// HasData reports whether any queue has an entry for this day.
func (d *Daily) HasData() bool {
	return d != nil && len(d.QueueHours) > 0
}

// Clone returns a deep copy, so cached snapshots can be handed out without
// aliasing the cache's own maps.
func (d *Daily) Clone() *Daily {
	if d == nil {
		return nil
	}
	cp := NewDaily(d.Date)
	for q, hours := range d.QueueHours {
		if hours == nil {
			cp.QueueHours[q] = nil
			continue
		}
		cp.QueueHours[q] = append([]string(nil), hours...)
	}
	return cp
}

var ukrMonths = [...]string{
	"січня", "лютого", "березня", "квітня", "травня", "червня",
	"липня", "серпня", "вересня", "жовтня", "листопада", "грудня",
}

// DisplayDate renders "dd.mm.yyyy" as "17 січня 2026 р.". Falls back to the
// raw string when the date does not parse.
func (d *Daily) DisplayDate() string {
	t, err := time.Parse(DateFormat, d.Date)
	if err != nil {
		return d.Date
	}
	return fmt.Sprintf("%d %s %d р.", t.Day(), ukrMonths[int(t.Month())-1], t.Year())
}
