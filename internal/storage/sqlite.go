package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS schedules (
	schedule_date TEXT PRIMARY KEY,
	schedule_data TEXT NOT NULL,
	updated_at    INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
	chat_id               INTEGER PRIMARY KEY,
	queue                 TEXT NOT NULL DEFAULT '',
	notifications_enabled INTEGER NOT NULL DEFAULT 1
);
`

type sqliteStore struct {
	db *sql.DB
}

func openSQLite(ctx context.Context, cfg Config) (Store, error) {
	path := cfg.Path
	if path == "" {
		path = "./roebot.db"
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)",
		path, busy.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open sqlite: %w", err)
	}
	// The modernc driver is not safe for concurrent writers on one file.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: migrate sqlite: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) SaveSchedule(ctx context.Context, date string, hours map[string][]string) error {
	data, err := encodeHours(hours)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (schedule_date, schedule_data, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (schedule_date)
		DO UPDATE SET schedule_data = excluded.schedule_data, updated_at = excluded.updated_at`,
		date, data, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("storage: save schedule %s: %w", date, err)
	}
	return nil
}

func (s *sqliteStore) LoadAllSchedules(ctx context.Context) (map[string]map[string][]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT schedule_date, schedule_data FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("storage: load schedules: %w", err)
	}
	defer rows.Close()

	out := map[string]map[string][]string{}
	for rows.Next() {
		var date, data string
		if err := rows.Scan(&date, &data); err != nil {
			return nil, fmt.Errorf("storage: scan schedule: %w", err)
		}
		hours, err := decodeHours(data)
		if err != nil {
			return nil, err
		}
		out[date] = hours
	}
	return out, rows.Err()
}

func (s *sqliteStore) LastScheduleUpdate(ctx context.Context) (time.Time, bool, error) {
	// MAX over an empty table yields NULL, hence the nullable scan target.
	var ts sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(updated_at) FROM schedules`).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !ts.Valid) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("storage: last update: %w", err)
	}
	return time.Unix(ts.Int64, 0).UTC(), true, nil
}

func (s *sqliteStore) SetQueue(ctx context.Context, chatID int64, queue string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (chat_id, queue) VALUES (?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET queue = excluded.queue`,
		chatID, queue)
	if err != nil {
		return fmt.Errorf("storage: set queue: %w", err)
	}
	return nil
}

func (s *sqliteStore) Queue(ctx context.Context, chatID int64) (string, error) {
	var q string
	err := s.db.QueryRowContext(ctx, `SELECT queue FROM user_settings WHERE chat_id = ?`, chatID).Scan(&q)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: get queue: %w", err)
	}
	return q, nil
}

func (s *sqliteStore) SetNotificationsEnabled(ctx context.Context, chatID int64, enabled bool) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO user_settings (chat_id, notifications_enabled) VALUES (?, ?)
		ON CONFLICT (chat_id) DO UPDATE SET notifications_enabled = excluded.notifications_enabled`,
		chatID, enabled)
	if err != nil {
		return fmt.Errorf("storage: set notifications: %w", err)
	}
	return nil
}

func (s *sqliteStore) NotificationsEnabled(ctx context.Context, chatID int64) (bool, error) {
	var enabled bool
	err := s.db.QueryRowContext(ctx,
		`SELECT notifications_enabled FROM user_settings WHERE chat_id = ?`, chatID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: get notifications: %w", err)
	}
	return enabled, nil
}

func (s *sqliteStore) NotifySubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chat_id, queue, notifications_enabled
		FROM user_settings
		WHERE notifications_enabled = 1 AND queue <> ''`)
	if err != nil {
		return nil, fmt.Errorf("storage: list subscribers: %w", err)
	}
	defer rows.Close()

	var subs []Subscriber
	for rows.Next() {
		var sub Subscriber
		if err := rows.Scan(&sub.ChatID, &sub.Queue, &sub.NotificationsEnabled); err != nil {
			return nil, fmt.Errorf("storage: scan subscriber: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

func (s *sqliteStore) Close() error { return s.db.Close() }
