package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"roebot/internal/schedule"
	"roebot/internal/source"
	kit "roebot/internal/transport"
	logx "roebot/pkg/logx"
)

type fakeAdapter struct {
	mu      sync.Mutex
	sent    []string
	edited  []string
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                    { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) EditText(_ context.Context, _ kit.MessageRef, text string, _ *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, text)
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

type fakeCache struct {
	today       *schedule.Daily
	tomorrow    *schedule.Daily
	hasData     bool
	lastUpdate  time.Time
	hasUpdate   bool
	unavailable bool
	refreshErr  error
	refreshes   int
}

func (f *fakeCache) TodaySchedule() *schedule.Daily {
	if f.today == nil {
		return schedule.NewDaily("16.01.2026")
	}
	return f.today
}
func (f *fakeCache) TomorrowSchedule() *schedule.Daily { return f.tomorrow }
func (f *fakeCache) HasData() bool                     { return f.hasData }
func (f *fakeCache) LastUpdate() (time.Time, bool)     { return f.lastUpdate, f.hasUpdate }
func (f *fakeCache) SourceUnavailable() bool           { return f.unavailable }

func (f *fakeCache) Refresh(context.Context) error {
	f.refreshes++
	return f.refreshErr
}

type fakeSettings struct {
	mu      sync.Mutex
	queues  map[int64]string
	enabled map[int64]bool
}

func newFakeSettings() *fakeSettings {
	return &fakeSettings{queues: map[int64]string{}, enabled: map[int64]bool{}}
}

func (f *fakeSettings) SetQueue(_ context.Context, chatID int64, queue string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queues[chatID] = queue
	return nil
}

func (f *fakeSettings) Queue(_ context.Context, chatID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queues[chatID], nil
}

func (f *fakeSettings) SetNotificationsEnabled(_ context.Context, chatID int64, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.enabled[chatID] = enabled
	return nil
}

func (f *fakeSettings) NotificationsEnabled(_ context.Context, chatID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	on, ok := f.enabled[chatID]
	if !ok {
		return true, nil
	}
	return on, nil
}

type fakeChecker struct{ statuses []source.PathStatus }

func (f *fakeChecker) CheckAll(context.Context) []source.PathStatus { return f.statuses }

func testService(cache Cache, settings Settings, checker Checker) (*Service, *fakeAdapter) {
	ad := &fakeAdapter{}
	svc := New(Config{AdminChatID: 99, Timezone: time.UTC}, ad, cache, settings, checker, logx.Nop())
	return svc, ad
}

func msg(chatID int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: chatID, Text: text}}
}

func freshDay(date string) *schedule.Daily {
	d := schedule.NewDaily(date)
	d.SetQueueHours("1.1", []string{"08:00 - 12:00"})
	return d
}

func TestTodayShowsScheduleWithUserQueue(t *testing.T) {
	settings := newFakeSettings()
	_ = settings.SetQueue(context.Background(), 5, "1.1")
	cache := &fakeCache{today: freshDay("16.01.2026"), hasData: true, hasUpdate: true, lastUpdate: time.Now()}
	svc, ad := testService(cache, settings, nil)

	svc.dispatch(context.Background(), msg(5, "/today"))

	out := ad.lastSent()
	if !strings.Contains(out, "Черга 1.1") {
		t.Fatalf("user queue not highlighted:\n%s", out)
	}
	if strings.Contains(out, "Джерело недоступне") {
		t.Fatalf("staleness shown while source is fine:\n%s", out)
	}
}

func TestTodayShowsStalenessIndicator(t *testing.T) {
	cache := &fakeCache{
		today:       freshDay("16.01.2026"),
		hasData:     true,
		hasUpdate:   true,
		lastUpdate:  time.Date(2026, 1, 16, 7, 30, 0, 0, time.UTC),
		unavailable: true,
	}
	svc, ad := testService(cache, newFakeSettings(), nil)

	svc.dispatch(context.Background(), msg(5, "/today"))

	out := ad.lastSent()
	if !strings.Contains(out, "Джерело недоступне") {
		t.Fatalf("staleness indicator missing:\n%s", out)
	}
	if !strings.Contains(out, "07:30 16.01.2026") {
		t.Fatalf("staleness timestamp missing:\n%s", out)
	}
}

func TestTomorrowPendingState(t *testing.T) {
	cache := &fakeCache{tomorrow: schedule.NewDaily("17.01.2026")}
	svc, ad := testService(cache, newFakeSettings(), nil)

	svc.dispatch(context.Background(), msg(5, "/tomorrow"))
	if !strings.Contains(ad.lastSent(), "Графік очікується") {
		t.Fatalf("pending state missing:\n%s", ad.lastSent())
	}
}

func TestQueueCallbackStoresSelection(t *testing.T) {
	settings := newFakeSettings()
	svc, ad := testService(&fakeCache{}, settings, nil)

	svc.dispatch(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb1", ChatID: 5, MessageID: 10, Data: "queue:3.2"},
	})

	if q, _ := settings.Queue(context.Background(), 5); q != "3.2" {
		t.Fatalf("queue = %q", q)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.answers) != 1 || !strings.Contains(ad.answers[0], "3.2") {
		t.Fatalf("answers = %v", ad.answers)
	}
	if len(ad.edited) != 1 {
		t.Fatalf("edited = %v", ad.edited)
	}
}

func TestQueueCallbackShowsTodayForQueue(t *testing.T) {
	d := schedule.NewDaily("16.01.2026")
	d.SetQueueHours("2.1", []string{"10:00 - 14:00"})
	svc, ad := testService(&fakeCache{today: d}, newFakeSettings(), nil)

	svc.dispatch(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb1", ChatID: 5, MessageID: 10, Data: "queue:2.1"},
	})

	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.edited) != 1 {
		t.Fatalf("edited = %v", ad.edited)
	}
	if !strings.Contains(ad.edited[0], "Черга *2.1*") || !strings.Contains(ad.edited[0], "10:00 - 14:00") {
		t.Fatalf("selection reply missing the queue's day:\n%s", ad.edited[0])
	}
}

func TestQueueCallbackRejectsUnknown(t *testing.T) {
	settings := newFakeSettings()
	svc, ad := testService(&fakeCache{}, settings, nil)

	svc.dispatch(context.Background(), kit.Update{
		Kind:     kit.UpdateCallback,
		Callback: &kit.Callback{ID: "cb1", ChatID: 5, Data: "queue:9.9"},
	})

	if q, _ := settings.Queue(context.Background(), 5); q != "" {
		t.Fatalf("unknown queue stored: %q", q)
	}
	ad.mu.Lock()
	defer ad.mu.Unlock()
	if len(ad.answers) != 1 || !strings.Contains(ad.answers[0], "Невідома") {
		t.Fatalf("answers = %v", ad.answers)
	}
}

func TestNotifyToggles(t *testing.T) {
	settings := newFakeSettings()
	_ = settings.SetQueue(context.Background(), 5, "1.1")
	svc, ad := testService(&fakeCache{}, settings, nil)

	svc.dispatch(context.Background(), msg(5, "/notify"))
	if on, _ := settings.NotificationsEnabled(context.Background(), 5); on {
		t.Fatal("first toggle should disable")
	}
	if !strings.Contains(ad.lastSent(), "вимкнено") {
		t.Fatalf("disable reply = %q", ad.lastSent())
	}

	svc.dispatch(context.Background(), msg(5, "/notify"))
	if on, _ := settings.NotificationsEnabled(context.Background(), 5); !on {
		t.Fatal("second toggle should enable")
	}
	if !strings.Contains(ad.lastSent(), "увімкнено") {
		t.Fatalf("enable reply = %q", ad.lastSent())
	}
}

func TestStatusAdminSeesPathChecks(t *testing.T) {
	checker := &fakeChecker{statuses: []source.PathStatus{
		{Path: "direct", Reachable: true, HasTable: true, TableRows: 5},
		{Path: "proxy 10.0.0.1:1080", Err: "connect timeout"},
	}}
	cache := &fakeCache{hasData: true, hasUpdate: true, lastUpdate: time.Now()}
	svc, ad := testService(cache, newFakeSettings(), checker)

	svc.dispatch(context.Background(), msg(99, "/status"))
	out := ad.lastSent()
	if !strings.Contains(out, "direct") || !strings.Contains(out, "connect timeout") {
		t.Fatalf("admin status missing path checks:\n%s", out)
	}

	svc.dispatch(context.Background(), msg(5, "/status"))
	if strings.Contains(ad.lastSent(), "direct") {
		t.Fatalf("non-admin saw path checks:\n%s", ad.lastSent())
	}
}

func TestRefreshAdminOnly(t *testing.T) {
	cache := &fakeCache{}
	svc, ad := testService(cache, newFakeSettings(), nil)

	svc.dispatch(context.Background(), msg(5, "/refresh"))
	if cache.refreshes != 0 {
		t.Fatal("non-admin triggered a refresh")
	}
	if ad.lastSent() != "" {
		t.Fatalf("non-admin got a reply: %q", ad.lastSent())
	}

	svc.dispatch(context.Background(), msg(99, "/refresh"))
	if cache.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", cache.refreshes)
	}
	if !strings.Contains(ad.lastSent(), "оновлено") {
		t.Fatalf("success reply = %q", ad.lastSent())
	}
}

func TestRefreshReportsFailure(t *testing.T) {
	cache := &fakeCache{refreshErr: errors.New("all connection attempts failed")}
	svc, ad := testService(cache, newFakeSettings(), nil)

	svc.dispatch(context.Background(), msg(99, "/refresh"))
	if !strings.Contains(ad.lastSent(), "Не вдалося") {
		t.Fatalf("failure reply = %q", ad.lastSent())
	}
}

func TestCommandWithBotSuffix(t *testing.T) {
	cache := &fakeCache{today: freshDay("16.01.2026"), hasData: true}
	svc, ad := testService(cache, newFakeSettings(), nil)

	svc.dispatch(context.Background(), msg(5, "/today@roebot"))
	if ad.lastSent() == "" {
		t.Fatal("suffixed command ignored")
	}
}
