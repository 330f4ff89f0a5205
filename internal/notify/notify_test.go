package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"roebot/internal/schedule"
	"roebot/internal/storage"
	kit "roebot/internal/transport"
	logx "roebot/pkg/logx"
)

type fakeSchedules struct {
	days map[string]*schedule.Daily
}

func (f *fakeSchedules) ScheduleForDate(date string) *schedule.Daily {
	if d, ok := f.days[date]; ok {
		return d
	}
	return schedule.NewDaily(date)
}

type fakeSubs struct {
	subs []storage.Subscriber
}

func (f *fakeSubs) NotifySubscribers(context.Context) ([]storage.Subscriber, error) {
	return f.subs, nil
}

type fakeSender struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (f *fakeSender) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeSender) Stop(context.Context) error                    { return nil }
func (f *fakeSender) EditText(context.Context, kit.MessageRef, string, *kit.SendOptions) error {
	return nil
}
func (f *fakeSender) AnswerCallback(context.Context, string, string) error { return nil }

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	return kit.MessageRef{}, f.err
}

func (f *fakeSender) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

func withHours(date, queue string, hours ...string) *schedule.Daily {
	d := schedule.NewDaily(date)
	d.SetQueueHours(queue, hours)
	return d
}

func newTestService(scheds *fakeSchedules, sender *fakeSender, at time.Time) (*Service, Config) {
	subs := &fakeSubs{subs: []storage.Subscriber{{ChatID: 7, Queue: "1.1", NotificationsEnabled: true}}}
	cfg := Config{Enabled: true, CheckInterval: time.Minute, LeadTimes: []int{30, 5}, RatePerSec: 100, Timezone: time.UTC}
	svc := New(cfg, scheds, subs, sender, logx.Nop())
	svc.now = func() time.Time { return at }
	return svc, svc.config()
}

func TestTickDedupAcrossTicks(t *testing.T) {
	// 2026-01-16 07:31 UTC, outage starts 08:00: 29 minutes out, inside the
	// 30-minute window on two consecutive ticks.
	at := time.Date(2026, 1, 16, 7, 31, 0, 0, time.UTC)
	scheds := &fakeSchedules{days: map[string]*schedule.Daily{
		"16.01.2026": withHours("16.01.2026", "1.1", "08:00 - 12:00"),
	}}
	sender := &fakeSender{}
	svc, cfg := newTestService(scheds, sender, at)

	svc.tick(context.Background(), cfg)
	svc.now = func() time.Time { return at.Add(time.Minute) }
	svc.tick(context.Background(), cfg)

	if got := sender.count(); got != 1 {
		t.Fatalf("sent %d messages, want 1", got)
	}
	if !strings.Contains(sender.texts[0], "30 хв") {
		t.Fatalf("message missing lead time: %q", sender.texts[0])
	}
}

func TestTickUrgentLead(t *testing.T) {
	at := time.Date(2026, 1, 16, 7, 56, 0, 0, time.UTC) // 4 minutes out
	scheds := &fakeSchedules{days: map[string]*schedule.Daily{
		"16.01.2026": withHours("16.01.2026", "1.1", "08:00 - 12:00"),
	}}
	sender := &fakeSender{}
	svc, cfg := newTestService(scheds, sender, at)

	svc.tick(context.Background(), cfg)
	if got := sender.count(); got != 1 {
		t.Fatalf("sent %d messages, want 1", got)
	}
	if !strings.Contains(sender.texts[0], "ТЕРМІНОВО") {
		t.Fatalf("short-lead message not urgent: %q", sender.texts[0])
	}
}

func TestTickOutsideWindowSendsNothing(t *testing.T) {
	at := time.Date(2026, 1, 16, 7, 0, 0, 0, time.UTC) // 60 minutes out
	scheds := &fakeSchedules{days: map[string]*schedule.Daily{
		"16.01.2026": withHours("16.01.2026", "1.1", "08:00 - 12:00"),
	}}
	sender := &fakeSender{}
	svc, cfg := newTestService(scheds, sender, at)

	svc.tick(context.Background(), cfg)
	if got := sender.count(); got != 0 {
		t.Fatalf("sent %d messages, want 0", got)
	}
}

func TestTomorrowEarlyOutageWarnsTonight(t *testing.T) {
	// 23:35 tonight, tomorrow's outage starts 00:04: 29 minutes out.
	at := time.Date(2026, 1, 16, 23, 35, 0, 0, time.UTC)
	scheds := &fakeSchedules{days: map[string]*schedule.Daily{
		"17.01.2026": withHours("17.01.2026", "1.1", "00:04 - 04:00"),
	}}
	sender := &fakeSender{}
	svc, cfg := newTestService(scheds, sender, at)

	svc.tick(context.Background(), cfg)
	if got := sender.count(); got != 1 {
		t.Fatalf("sent %d messages, want 1", got)
	}
}

func TestMidnightContinuationSuppressed(t *testing.T) {
	// Today's outage runs into midnight; tomorrow starts at 00:00. The
	// midnight start is the same outage still running, not a new one.
	at := time.Date(2026, 1, 16, 23, 31, 0, 0, time.UTC)
	scheds := &fakeSchedules{days: map[string]*schedule.Daily{
		"16.01.2026": withHours("16.01.2026", "1.1", "22:00 - 00:00"),
		"17.01.2026": withHours("17.01.2026", "1.1", "00:00 - 04:00"),
	}}
	sender := &fakeSender{}
	svc, cfg := newTestService(scheds, sender, at)

	svc.tick(context.Background(), cfg)
	if got := sender.count(); got != 0 {
		t.Fatalf("sent %d messages, want 0 (continuation)", got)
	}
}

func TestMidnightStartWithoutContinuationWarns(t *testing.T) {
	cases := []struct {
		name     string
		todayDay *schedule.Daily
	}{
		{"previous outage ends before midnight", withHours("16.01.2026", "1.1", "18:00 - 22:00")},
		{"previous outage on another queue", withHours("16.01.2026", "1.2", "22:00 - 00:00")},
		{"no previous data", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			at := time.Date(2026, 1, 16, 23, 31, 0, 0, time.UTC)
			days := map[string]*schedule.Daily{
				"17.01.2026": withHours("17.01.2026", "1.1", "00:00 - 04:00"),
			}
			if tc.todayDay != nil {
				days["16.01.2026"] = tc.todayDay
			}
			sender := &fakeSender{}
			svc, cfg := newTestService(&fakeSchedules{days: days}, sender, at)

			svc.tick(context.Background(), cfg)
			if got := sender.count(); got != 1 {
				t.Fatalf("sent %d messages, want 1", got)
			}
		})
	}
}

func TestSendFailureStillMarksSent(t *testing.T) {
	at := time.Date(2026, 1, 16, 7, 31, 0, 0, time.UTC)
	scheds := &fakeSchedules{days: map[string]*schedule.Daily{
		"16.01.2026": withHours("16.01.2026", "1.1", "08:00 - 12:00"),
	}}
	sender := &fakeSender{err: errors.New("telegram 502")}
	svc, cfg := newTestService(scheds, sender, at)

	svc.tick(context.Background(), cfg)
	svc.tick(context.Background(), cfg)
	if got := sender.count(); got != 1 {
		t.Fatalf("made %d send attempts, want 1", got)
	}
}

func TestPruneDropsRolledOffDates(t *testing.T) {
	at := time.Date(2026, 1, 16, 12, 0, 0, 0, time.UTC)
	sender := &fakeSender{}
	svc, cfg := newTestService(&fakeSchedules{days: map[string]*schedule.Daily{}}, sender, at)

	svc.mu.Lock()
	svc.sent["7:08:00 - 12:00:30:14.01.2026"] = "14.01.2026"
	svc.sent["7:08:00 - 12:00:30:16.01.2026"] = "16.01.2026"
	svc.mu.Unlock()

	svc.tick(context.Background(), cfg)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	if _, ok := svc.sent["7:08:00 - 12:00:30:14.01.2026"]; ok {
		t.Fatal("stale key survived prune")
	}
	if _, ok := svc.sent["7:08:00 - 12:00:30:16.01.2026"]; !ok {
		t.Fatal("current key pruned")
	}
}
