// Package cache keeps the last known good schedule in memory, refreshes it
// from the source on a cron schedule and mirrors every fetched day to
// persistent storage so restarts do not lose data.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"roebot/internal/eventbus"
	"roebot/internal/schedule"
	logx "roebot/pkg/logx"
)

// Loader produces fresh day schedules from the source.
type Loader interface {
	Load(ctx context.Context) ([]*schedule.Daily, error)
}

// Store is the slice of the storage contract the cache needs.
type Store interface {
	SaveSchedule(ctx context.Context, date string, hours map[string][]string) error
	LoadAllSchedules(ctx context.Context) (map[string]map[string][]string, error)
	LastScheduleUpdate(ctx context.Context) (time.Time, bool, error)
}

type Config struct {
	// RefreshSpec is a cron expression for periodic refresh, e.g.
	// "*/30 * * * *".
	RefreshSpec string
	// Timezone the deployment's dates are interpreted in.
	Timezone *time.Location
}

// snapshot is the immutable cache state. Refresh builds a new one and swaps
// it in; readers never see a partially updated map.
type snapshot struct {
	days          map[string]*schedule.Daily
	lastUpdate    time.Time
	hasLastUpdate bool
}

type Service struct {
	cfg    Config
	loader Loader
	store  Store
	bus    eventbus.Bus
	log    logx.Logger

	snap       atomic.Value // *snapshot
	fetchFail  atomic.Bool
	refreshMu  sync.Mutex
	cron       *cron.Cron
	cronCancel context.CancelFunc

	now func() time.Time
}

func New(cfg Config, loader Loader, store Store, bus eventbus.Bus, log logx.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if cfg.RefreshSpec == "" {
		cfg.RefreshSpec = "*/30 * * * *"
	}
	s := &Service{
		cfg:    cfg,
		loader: loader,
		store:  store,
		bus:    bus,
		log:    log,
		now:    time.Now,
	}
	s.snap.Store(&snapshot{days: map[string]*schedule.Daily{}})
	return s
}

// Start rehydrates from storage, does one eager refresh and arms the
// periodic cron refresh. A failed eager refresh is logged, not fatal; the
// rehydrated data keeps serving.
func (s *Service) Start(ctx context.Context) error {
	s.rehydrate(ctx)

	if err := s.Refresh(ctx); err != nil {
		s.log.Warn("initial refresh failed, serving persisted data", logx.Err(err))
	}

	cronCtx, cancel := context.WithCancel(context.Background())
	s.cronCancel = cancel
	s.cron = cron.New(cron.WithLocation(s.cfg.Timezone))
	_, err := s.cron.AddFunc(s.cfg.RefreshSpec, func() {
		if err := s.Refresh(cronCtx); err != nil {
			s.log.Error("scheduled refresh failed", logx.Err(err))
		}
	})
	if err != nil {
		cancel()
		return fmt.Errorf("cache: bad refresh spec %q: %w", s.cfg.RefreshSpec, err)
	}
	s.cron.Start()
	s.log.Info("cache started", logx.String("refresh", s.cfg.RefreshSpec))
	return nil
}

func (s *Service) Stop(ctx context.Context) error {
	if s.cronCancel != nil {
		s.cronCancel()
	}
	if s.cron == nil {
		return nil
	}
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) rehydrate(ctx context.Context) {
	if s.store == nil {
		return
	}
	stored, err := s.store.LoadAllSchedules(ctx)
	if err != nil {
		s.log.Warn("rehydrate failed", logx.Err(err))
		return
	}
	if len(stored) == 0 {
		return
	}

	next := &snapshot{days: make(map[string]*schedule.Daily, len(stored))}
	for date, hours := range stored {
		day := schedule.NewDaily(date)
		for q, h := range hours {
			day.SetQueueHours(q, h)
		}
		next.days[date] = day
	}
	// The persisted timestamp, not boot time: the data really is that old.
	if ts, ok, err := s.store.LastScheduleUpdate(ctx); err == nil && ok {
		next.lastUpdate = ts
		next.hasLastUpdate = true
	}
	s.snap.Store(next)
	s.log.Info("rehydrated schedules from storage", logx.Int("days", len(stored)))
}

// errEmptyFetch marks a load that produced zero days. A reachable page with
// nothing extractable counts as a failure, not as an empty schedule.
var errEmptyFetch = errors.New("source returned no day schedules")

// Refresh fetches the source and swaps in a new snapshot. On failure,
// including a fetch that yields zero days, the previous snapshot and its
// timestamp stay untouched; only the failure flag flips, and an unreachable
// event is published for admin alerting. The rebuilt snapshot keeps
// yesterday's day (the notifier looks back one day for outages crossing
// midnight) and drops anything older.
func (s *Service) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	days, err := s.loader.Load(ctx)
	if err == nil && len(days) == 0 {
		err = errEmptyFetch
	}
	if err != nil {
		s.fetchFail.Store(true)
		if s.bus != nil {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeSourceUnreachable, Data: err.Error()})
		}
		return fmt.Errorf("cache: refresh: %w", err)
	}

	recovered := s.fetchFail.Swap(false)

	cur := s.current()
	next := &snapshot{
		days:          make(map[string]*schedule.Daily, len(cur.days)+len(days)),
		lastUpdate:    s.now(),
		hasLastUpdate: true,
	}
	y, m, d := s.now().In(s.cfg.Timezone).AddDate(0, 0, -1).Date()
	cutoff := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	for date, day := range cur.days {
		if olderThan(date, cutoff) {
			continue
		}
		next.days[date] = day
	}
	updated := make([]string, 0, len(days))
	for _, day := range days {
		next.days[day.Date] = day
		updated = append(updated, day.Date)
	}
	s.snap.Store(next)

	s.persistAsync(days)

	if s.bus != nil {
		if recovered {
			s.bus.Publish(eventbus.Event{Type: eventbus.TypeSourceRecovered})
		}
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeScheduleUpdated, Data: updated})
	}
	s.log.Info("schedule refreshed", logx.Int("days", len(days)))
	return nil
}

// persistAsync mirrors fetched days to storage off the refresh path. A
// storage hiccup never blocks or fails a refresh.
func (s *Service) persistAsync(days []*schedule.Daily) {
	if s.store == nil || len(days) == 0 {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, day := range days {
			if err := s.store.SaveSchedule(ctx, day.Date, day.QueueHours); err != nil {
				s.log.Warn("persist schedule failed",
					logx.String("date", day.Date), logx.Err(err))
			}
		}
	}()
}

// olderThan reports whether a "dd.mm.yyyy" key falls before cutoff.
// Unparseable keys count as old; nothing can ever read them.
func olderThan(date string, cutoff time.Time) bool {
	t, err := time.Parse(schedule.DateFormat, date)
	if err != nil {
		return true
	}
	return t.Before(cutoff)
}

func (s *Service) current() *snapshot {
	if v, ok := s.snap.Load().(*snapshot); ok {
		return v
	}
	return &snapshot{days: map[string]*schedule.Daily{}}
}

// ScheduleForDate returns the day schedule for a "dd.mm.yyyy" date. Never
// nil: an unknown date yields an empty Daily so callers can render
// "pending" without nil checks.
func (s *Service) ScheduleForDate(date string) *schedule.Daily {
	if day, ok := s.current().days[date]; ok {
		return day.Clone()
	}
	return schedule.NewDaily(date)
}

func (s *Service) TodaySchedule() *schedule.Daily {
	return s.ScheduleForDate(s.todayDate())
}

func (s *Service) TomorrowSchedule() *schedule.Daily {
	return s.ScheduleForDate(s.tomorrowDate())
}

func (s *Service) todayDate() string {
	return s.now().In(s.cfg.Timezone).Format(schedule.DateFormat)
}

func (s *Service) tomorrowDate() string {
	return s.now().In(s.cfg.Timezone).AddDate(0, 0, 1).Format(schedule.DateFormat)
}

// HasData reports whether any cached day carries queue entries.
func (s *Service) HasData() bool {
	for _, day := range s.current().days {
		if day.HasData() {
			return true
		}
	}
	return false
}

// LastUpdate returns when the snapshot was last replaced (or the persisted
// timestamp after rehydration). ok is false before any data exists.
func (s *Service) LastUpdate() (time.Time, bool) {
	cur := s.current()
	return cur.lastUpdate, cur.hasLastUpdate
}

// SourceUnavailable reports the stale-data condition: the last fetch failed
// while older data is still being served. Before any data exists a failing
// source reads as "no data yet", not "unavailable".
func (s *Service) SourceUnavailable() bool {
	return s.fetchFail.Load() && s.HasData()
}
