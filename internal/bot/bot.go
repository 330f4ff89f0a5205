// Package bot is the Telegram chat front-end. It reads the schedule cache
// and subscriber settings; the only schedule write it can trigger is the
// admin's manual refresh.
package bot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"roebot/internal/schedule"
	"roebot/internal/source"
	kit "roebot/internal/transport"
	logx "roebot/pkg/logx"
)

const callbackQueuePrefix = "queue:"

// Cache is the schedule surface the front-end consumes. Refresh backs the
// admin's manual /refresh only.
type Cache interface {
	TodaySchedule() *schedule.Daily
	TomorrowSchedule() *schedule.Daily
	HasData() bool
	LastUpdate() (time.Time, bool)
	SourceUnavailable() bool
	Refresh(ctx context.Context) error
}

// Settings is the subscriber-preferences slice of the storage contract.
type Settings interface {
	SetQueue(ctx context.Context, chatID int64, queue string) error
	Queue(ctx context.Context, chatID int64) (string, error)
	SetNotificationsEnabled(ctx context.Context, chatID int64, enabled bool) error
	NotificationsEnabled(ctx context.Context, chatID int64) (bool, error)
}

// Checker runs the per-path source diagnostics behind the admin /status.
type Checker interface {
	CheckAll(ctx context.Context) []source.PathStatus
}

type Config struct {
	AdminChatID int64
	Timezone    *time.Location
}

type Service struct {
	cfg      Config
	adapter  kit.Adapter
	cache    Cache
	settings Settings
	checker  Checker
	log      logx.Logger
}

func New(cfg Config, adapter kit.Adapter, cache Cache, settings Settings, checker Checker, log logx.Logger) *Service {
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	return &Service{
		cfg:      cfg,
		adapter:  adapter,
		cache:    cache,
		settings: settings,
		checker:  checker,
		log:      log,
	}
}

// Run starts the adapter and dispatches updates until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	updates := make(chan kit.Update, 64)
	if err := s.adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("bot: start adapter: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up := <-updates:
			s.dispatch(ctx, up)
		}
	}
}

func (s *Service) dispatch(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			s.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			s.handleCallback(ctx, up.Callback)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, m *kit.Message) {
	cmd := m.Text
	if i := strings.IndexByte(cmd, ' '); i > 0 {
		cmd = cmd[:i]
	}
	// Commands in groups arrive as /cmd@botname.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/start":
		s.cmdStart(ctx, m.ChatID)
	case "/today":
		s.sendDay(ctx, m.ChatID, s.cache.TodaySchedule())
	case "/tomorrow":
		s.sendDay(ctx, m.ChatID, s.cache.TomorrowSchedule())
	case "/queue":
		s.cmdQueue(ctx, m.ChatID)
	case "/notify":
		s.cmdNotify(ctx, m.ChatID)
	case "/status":
		s.cmdStatus(ctx, m.ChatID)
	case "/refresh":
		s.cmdRefresh(ctx, m.ChatID)
	default:
		// Non-command chatter is ignored on purpose.
	}
}

func (s *Service) cmdStart(ctx context.Context, chatID int64) {
	text := "👋 Привіт! Я показую графіки відключень електроенергії.\n\n" +
		"Команди:\n" +
		"/today - графік на сьогодні\n" +
		"/tomorrow - графік на завтра\n" +
		"/queue - обрати свою чергу\n" +
		"/notify - увімкнути/вимкнути попередження\n" +
		"/status - стан даних\n\n" +
		"Оберіть свою чергу, щоб отримувати попередження про відключення:"
	s.reply(ctx, chatID, text, queueKeyboard())
}

func (s *Service) sendDay(ctx context.Context, chatID int64, day *schedule.Daily) {
	queue, err := s.settings.Queue(ctx, chatID)
	if err != nil {
		s.log.Warn("load queue failed", logx.Int64("chat", chatID), logx.Err(err))
	}
	text := day.FormatAll(queue)
	if suffix := s.stalenessSuffix(); suffix != "" {
		text += suffix
	}
	s.reply(ctx, chatID, text, nil)
}

// stalenessSuffix renders the stale-data indicator: data exists but the last
// fetch failed.
func (s *Service) stalenessSuffix() string {
	if !s.cache.SourceUnavailable() {
		return ""
	}
	if ts, ok := s.cache.LastUpdate(); ok {
		return fmt.Sprintf("\n\n⚠️ _Джерело недоступне, показано збережені дані (оновлено %s)_",
			ts.In(s.cfg.Timezone).Format("15:04 02.01.2006"))
	}
	return "\n\n⚠️ _Джерело недоступне, показано збережені дані_"
}

func (s *Service) cmdQueue(ctx context.Context, chatID int64) {
	current, err := s.settings.Queue(ctx, chatID)
	if err != nil {
		s.log.Warn("load queue failed", logx.Int64("chat", chatID), logx.Err(err))
	}
	text := "🔌 Оберіть свою чергу:"
	if current != "" {
		text = fmt.Sprintf("🔌 Ваша черга: *%s*\nОберіть іншу:", current)
	}
	s.reply(ctx, chatID, text, queueKeyboard())
}

func (s *Service) cmdNotify(ctx context.Context, chatID int64) {
	enabled, err := s.settings.NotificationsEnabled(ctx, chatID)
	if err != nil {
		s.log.Warn("load notify flag failed", logx.Int64("chat", chatID), logx.Err(err))
		s.reply(ctx, chatID, "⚠️ Не вдалося завантажити налаштування, спробуйте пізніше.", nil)
		return
	}
	if err := s.settings.SetNotificationsEnabled(ctx, chatID, !enabled); err != nil {
		s.log.Warn("toggle notify failed", logx.Int64("chat", chatID), logx.Err(err))
		s.reply(ctx, chatID, "⚠️ Не вдалося зберегти налаштування, спробуйте пізніше.", nil)
		return
	}
	if enabled {
		s.reply(ctx, chatID, "🔕 Попередження вимкнено.", nil)
		return
	}
	queue, _ := s.settings.Queue(ctx, chatID)
	if queue == "" {
		s.reply(ctx, chatID, "🔔 Попередження увімкнено.\nОберіть чергу командою /queue, інакше надсилати нічого.", nil)
		return
	}
	s.reply(ctx, chatID, "🔔 Попередження увімкнено.", nil)
}

func (s *Service) cmdStatus(ctx context.Context, chatID int64) {
	var b strings.Builder
	b.WriteString("📊 *Стан даних*\n\n")

	if ts, ok := s.cache.LastUpdate(); ok {
		fmt.Fprintf(&b, "🕐 Останнє оновлення: %s\n", ts.In(s.cfg.Timezone).Format("15:04 02.01.2006"))
	} else {
		b.WriteString("🕐 Дані ще не завантажено\n")
	}
	switch {
	case s.cache.SourceUnavailable():
		b.WriteString("🔴 Джерело недоступне, показуються збережені дані\n")
	case s.cache.HasData():
		b.WriteString("🟢 Джерело доступне\n")
	default:
		b.WriteString("⏳ Очікується перше завантаження графіка\n")
	}

	// Per-path probes are slow and only for the operator.
	if chatID == s.cfg.AdminChatID && s.checker != nil {
		b.WriteString("\n*Перевірка з'єднань:*\n")
		cctx, cancel := context.WithTimeout(ctx, 90*time.Second)
		defer cancel()
		for _, st := range s.checker.CheckAll(cctx) {
			if st.Reachable {
				fmt.Fprintf(&b, "✅ %s: %d рядків (%dms)\n", st.Path, st.TableRows, st.Elapsed.Milliseconds())
			} else {
				fmt.Fprintf(&b, "❌ %s: %s\n", st.Path, st.Err)
			}
		}
	}
	s.reply(ctx, chatID, b.String(), nil)
}

// cmdRefresh triggers an immediate cache refresh. Admin only; everyone else
// is ignored like an unknown command.
func (s *Service) cmdRefresh(ctx context.Context, chatID int64) {
	if chatID != s.cfg.AdminChatID {
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 90*time.Second)
	defer cancel()
	if err := s.cache.Refresh(cctx); err != nil {
		s.reply(ctx, chatID, fmt.Sprintf("❌ Не вдалося оновити графік: %v", err), nil)
		return
	}
	s.reply(ctx, chatID, "✅ Графік оновлено.", nil)
}

func (s *Service) handleCallback(ctx context.Context, cb *kit.Callback) {
	if !strings.HasPrefix(cb.Data, callbackQueuePrefix) {
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "")
		return
	}
	queue := strings.TrimPrefix(cb.Data, callbackQueuePrefix)
	if !schedule.IsKnownQueue(queue) {
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "Невідома черга")
		return
	}
	if err := s.settings.SetQueue(ctx, cb.ChatID, queue); err != nil {
		s.log.Warn("set queue failed", logx.Int64("chat", cb.ChatID), logx.Err(err))
		_ = s.adapter.AnswerCallback(ctx, cb.ID, "Не вдалося зберегти, спробуйте ще раз")
		return
	}
	_ = s.adapter.AnswerCallback(ctx, cb.ID, fmt.Sprintf("Черга %s обрана", queue))

	today := strings.TrimRight(s.cache.TodaySchedule().FormatForQueue(queue), "\n")
	text := today + "\n\nТепер /today покаже всі черги, а /notify керує попередженнями."
	err := s.adapter.EditText(ctx, kit.MessageRef{ChatID: cb.ChatID, MessageID: cb.MessageID}, text,
		&kit.SendOptions{ParseMode: "Markdown"})
	if err != nil {
		s.reply(ctx, cb.ChatID, text, nil)
	}
}

func (s *Service) reply(ctx context.Context, chatID int64, text string, kb *kit.InlineKeyboard) {
	opt := &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true}
	if kb != nil {
		opt.ReplyMarkupAdapter = kb
	}
	if _, err := s.adapter.SendText(ctx, kit.ChatTarget{ChatID: chatID}, text, opt); err != nil {
		s.log.Warn("send failed", logx.Int64("chat", chatID), logx.Err(err))
	}
}

// queueKeyboard lays the 12 queues out two per row, in column order.
func queueKeyboard() *kit.InlineKeyboard {
	kb := &kit.InlineKeyboard{}
	for i := 0; i < len(schedule.Queues); i += 2 {
		row := []kit.InlineButton{{
			Text: schedule.Queues[i],
			Data: callbackQueuePrefix + schedule.Queues[i],
		}}
		if i+1 < len(schedule.Queues) {
			row = append(row, kit.InlineButton{
				Text: schedule.Queues[i+1],
				Data: callbackQueuePrefix + schedule.Queues[i+1],
			})
		}
		kb.Rows = append(kb.Rows, row)
	}
	return kb
}
