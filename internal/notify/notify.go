// Package notify sends outage warnings to subscribed chats ahead of each
// scheduled power cut.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"roebot/internal/schedule"
	"roebot/internal/storage"
	kit "roebot/internal/transport"
	logx "roebot/pkg/logx"
)

// Schedules is the slice of the cache the notifier reads.
type Schedules interface {
	ScheduleForDate(date string) *schedule.Daily
}

// Subscribers lists chats that want outage warnings.
type Subscribers interface {
	NotifySubscribers(ctx context.Context) ([]storage.Subscriber, error)
}

type Config struct {
	Enabled bool
	// CheckInterval is the tick period; the send window below assumes it is
	// not longer than 3 minutes.
	CheckInterval time.Duration
	// LeadTimes are the minutes-before-start marks a warning is sent at.
	LeadTimes []int
	// RatePerSec caps outgoing Telegram sends.
	RatePerSec int
	Timezone   *time.Location
}

func (c *Config) normalize() {
	if c.CheckInterval <= 0 {
		c.CheckInterval = time.Minute
	}
	if len(c.LeadTimes) == 0 {
		c.LeadTimes = []int{30, 5}
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 20
	}
	if c.Timezone == nil {
		c.Timezone = time.UTC
	}
}

type Service struct {
	schedules Schedules
	subs      Subscribers
	sender    kit.Adapter
	log       logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	// sent maps dedup key to the outage date it belongs to, so pruning can
	// drop keys for days that have rolled off.
	sent map[string]string

	now func() time.Time
}

func New(cfg Config, schedules Schedules, subs Subscribers, sender kit.Adapter, log logx.Logger) *Service {
	cfg.normalize()
	return &Service{
		schedules: schedules,
		subs:      subs,
		sender:    sender,
		log:       log,
		cfg:       cfg,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		sent:      map[string]string{},
		now:       time.Now,
	}
}

// Apply swaps the runtime config. Takes effect on the next tick.
func (s *Service) Apply(cfg Config) {
	cfg.normalize()
	s.mu.Lock()
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	s.mu.Unlock()
}

func (s *Service) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Run is the notifier loop; it ticks until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	for {
		interval := s.config().CheckInterval
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		if cfg := s.config(); cfg.Enabled {
			s.tick(ctx, cfg)
		}
	}
}

// candidate is one upcoming outage start for one subscriber.
type candidate struct {
	rng          string
	date         string // outage day, dd.mm.yyyy
	minutesUntil int
}

func (s *Service) tick(ctx context.Context, cfg Config) {
	now := s.now().In(cfg.Timezone)

	today := now.Format(schedule.DateFormat)
	tomorrow := now.AddDate(0, 0, 1).Format(schedule.DateFormat)
	s.prune(today, tomorrow)

	subs, err := s.subs.NotifySubscribers(ctx)
	if err != nil {
		s.log.Error("load subscribers failed", logx.Err(err))
		return
	}
	if len(subs) == 0 {
		return
	}

	nowMin := now.Hour()*60 + now.Minute()

	for _, sub := range subs {
		for _, c := range s.candidates(sub.Queue, today, tomorrow, nowMin) {
			for _, lead := range cfg.LeadTimes {
				// The window is three ticks wide so a missed minute tick
				// still fires, while the next lead mark never double-sends.
				if c.minutesUntil > lead || c.minutesUntil <= lead-3 {
					continue
				}
				key := fmt.Sprintf("%d:%s:%d:%s", sub.ChatID, c.rng, lead, c.date)
				if s.alreadySent(key, c.date) {
					continue
				}
				s.send(ctx, sub, c, lead)
			}
		}
	}
}

// candidates collects today's outage starts plus tomorrow's early starts
// (within two hours after midnight), so a 30-minute warning for a 00:30
// outage fires before the day rolls over.
func (s *Service) candidates(queue, today, tomorrow string, nowMin int) []candidate {
	var out []candidate

	todaySched := s.schedules.ScheduleForDate(today)
	if hours, ok := todaySched.HoursForQueue(queue); ok {
		yesterday := s.dateBefore(today)
		for _, rng := range hours {
			start, ok := schedule.RangeStart(rng)
			if !ok {
				continue
			}
			if start == 0 && s.continuesPreviousDay(queue, yesterday) {
				continue
			}
			out = append(out, candidate{rng: rng, date: today, minutesUntil: start - nowMin})
		}
	}

	tomorrowSched := s.schedules.ScheduleForDate(tomorrow)
	if hours, ok := tomorrowSched.HoursForQueue(queue); ok {
		for _, rng := range hours {
			start, ok := schedule.RangeStart(rng)
			if !ok || start >= 120 {
				continue
			}
			if start == 0 && s.continuesPreviousDay(queue, today) {
				continue
			}
			out = append(out, candidate{rng: rng, date: tomorrow, minutesUntil: start + 24*60 - nowMin})
		}
	}
	return out
}

// continuesPreviousDay reports whether the queue's previous day ends with an
// outage running into midnight. A midnight start that merely continues it
// is not a new outage and gets no warning.
func (s *Service) continuesPreviousDay(queue, prevDate string) bool {
	prev := s.schedules.ScheduleForDate(prevDate)
	hours, ok := prev.HoursForQueue(queue)
	if !ok {
		return false
	}
	for _, rng := range hours {
		if end, ok := schedule.RangeEnd(rng); ok && end == 0 {
			return true
		}
	}
	return false
}

func (s *Service) dateBefore(date string) string {
	t, err := time.Parse(schedule.DateFormat, date)
	if err != nil {
		return ""
	}
	return t.AddDate(0, 0, -1).Format(schedule.DateFormat)
}

// alreadySent marks the key and reports whether it was already marked. Keys
// are marked before the send attempt: a Telegram failure must not turn into
// a repeat warning a minute later.
func (s *Service) alreadySent(key, date string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sent[key]; ok {
		return true
	}
	s.sent[key] = date
	return false
}

func (s *Service) prune(today, tomorrow string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, date := range s.sent {
		if date != today && date != tomorrow {
			delete(s.sent, key)
		}
	}
}

func (s *Service) send(ctx context.Context, sub storage.Subscriber, c candidate, lead int) {
	s.mu.Lock()
	lim := s.limiter
	s.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		return
	}

	day := schedule.Daily{Date: c.date}
	var text string
	if lead <= 5 {
		text = fmt.Sprintf("🚨 *ТЕРМІНОВО!*\nЧерез %d хв відключення електроенергії\n\n🔌 Черга *%s*\n📅 %s\n⏰ *%s*",
			lead, sub.Queue, day.DisplayDate(), c.rng)
	} else {
		text = fmt.Sprintf("⚠️ *Увага!*\nЧерез %d хв відключення електроенергії\n\n🔌 Черга *%s*\n📅 %s\n⏰ *%s*",
			lead, sub.Queue, day.DisplayDate(), c.rng)
	}

	_, err := s.sender.SendText(ctx, kit.ChatTarget{ChatID: sub.ChatID}, text,
		&kit.SendOptions{ParseMode: "Markdown", DisablePreview: true})
	if err != nil {
		s.log.Warn("notification send failed",
			logx.Int64("chat", sub.ChatID), logx.Err(err))
		return
	}
	s.log.Debug("notification sent",
		logx.Int64("chat", sub.ChatID),
		logx.String("queue", sub.Queue),
		logx.String("range", c.rng),
		logx.Int("lead", lead))
}
