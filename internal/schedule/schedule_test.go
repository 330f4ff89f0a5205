package schedule

import (
	"strings"
	"testing"
)

func TestHoursForQueueAbsentVsEmpty(t *testing.T) {
	d := NewDaily("16.01.2026")
	d.SetQueueHours("1.1", []string{})

	if _, ok := d.HoursForQueue("1.1"); !ok {
		t.Fatal("confirmed-empty queue reported as absent")
	}
	if hours, ok := d.HoursForQueue("2.1"); ok {
		t.Fatalf("absent queue reported as present: %v", hours)
	}
}

func TestHasData(t *testing.T) {
	d := NewDaily("16.01.2026")
	if d.HasData() {
		t.Fatal("fresh Daily reports data")
	}
	d.SetQueueHours("1.1", []string{"08:00 - 12:00"})
	if !d.HasData() {
		t.Fatal("Daily with one queue reports no data")
	}
	var nilDay *Daily
	if nilDay.HasData() {
		t.Fatal("nil Daily reports data")
	}
}

func TestCloneIsDeep(t *testing.T) {
	d := NewDaily("16.01.2026")
	d.SetQueueHours("1.1", []string{"08:00 - 12:00"})
	d.SetQueueHours("1.2", nil)
	d.SetQueueHours("2.1", []string{})

	cp := d.Clone()
	cp.QueueHours["1.1"][0] = "mutated"
	cp.SetQueueHours("3.1", []string{"x"})

	if d.QueueHours["1.1"][0] != "08:00 - 12:00" {
		t.Fatal("clone aliases the original hour slice")
	}
	if _, ok := d.HoursForQueue("3.1"); ok {
		t.Fatal("clone aliases the original map")
	}
	if hours, ok := cp.HoursForQueue("1.2"); !ok || hours != nil {
		t.Fatalf("nil hour list not preserved: %v, %v", hours, ok)
	}
	if hours, ok := cp.HoursForQueue("2.1"); !ok || hours == nil || len(hours) != 0 {
		t.Fatalf("empty hour list not preserved: %v, %v", hours, ok)
	}
}

func TestDisplayDate(t *testing.T) {
	d := &Daily{Date: "16.01.2026"}
	if got := d.DisplayDate(); got != "16 січня 2026 р." {
		t.Fatalf("DisplayDate = %q", got)
	}
	bad := &Daily{Date: "not-a-date"}
	if got := bad.DisplayDate(); got != "not-a-date" {
		t.Fatalf("unparseable date not passed through: %q", got)
	}
}

func TestIsKnownQueue(t *testing.T) {
	if !IsKnownQueue("1.1") || !IsKnownQueue("6.2") {
		t.Fatal("known queue rejected")
	}
	if IsKnownQueue("7.1") || IsKnownQueue("") {
		t.Fatal("unknown queue accepted")
	}
}

func TestFormatAll(t *testing.T) {
	d := NewDaily("16.01.2026")
	d.SetQueueHours("1.1", []string{"08:00 - 12:00"})
	d.SetQueueHours("2.1", []string{})

	out := d.FormatAll("1.1")
	if !strings.Contains(out, "16 січня 2026 р.") {
		t.Fatalf("missing display date:\n%s", out)
	}
	if !strings.Contains(out, "Черга 1.1") {
		t.Fatalf("user queue not highlighted:\n%s", out)
	}
	if !strings.Contains(out, "2.1:* ⏳ очікується") {
		t.Fatalf("empty queue not marked pending:\n%s", out)
	}

	empty := NewDaily("17.01.2026")
	if out := empty.FormatAll(""); !strings.Contains(out, "Графік очікується") {
		t.Fatalf("empty day missing pending marker:\n%s", out)
	}
}

func TestFormatForQueue(t *testing.T) {
	d := NewDaily("16.01.2026")
	d.SetQueueHours("2.1", []string{"10:00 - 14:00", "18:00 - 20:00"})

	out := d.FormatForQueue("2.1")
	if !strings.Contains(out, "Черга *2.1*") {
		t.Fatalf("queue header missing:\n%s", out)
	}
	if !strings.Contains(out, "10:00 - 14:00") || !strings.Contains(out, "18:00 - 20:00") {
		t.Fatalf("ranges missing:\n%s", out)
	}

	if out := d.FormatForQueue("3.1"); !strings.Contains(out, "Очікується") {
		t.Fatalf("pending state missing:\n%s", out)
	}
}
