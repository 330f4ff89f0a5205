package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS schedules (
	schedule_date TEXT PRIMARY KEY,
	schedule_data TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS user_settings (
	chat_id               BIGINT PRIMARY KEY,
	queue                 TEXT NOT NULL DEFAULT '',
	notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE
);
`

type postgresStore struct {
	pool *pgxpool.Pool
}

func openPostgres(ctx context.Context, cfg Config) (Store, error) {
	if cfg.DSN == "" {
		return nil, errors.New("storage: postgres driver requires a DSN")
	}
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("storage: open postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: migrate postgres: %w", err)
	}
	return &postgresStore{pool: pool}, nil
}

func (s *postgresStore) SaveSchedule(ctx context.Context, date string, hours map[string][]string) error {
	data, err := encodeHours(hours)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO schedules (schedule_date, schedule_data, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (schedule_date)
		DO UPDATE SET schedule_data = EXCLUDED.schedule_data, updated_at = EXCLUDED.updated_at`,
		date, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("storage: save schedule %s: %w", date, err)
	}
	return nil
}

func (s *postgresStore) LoadAllSchedules(ctx context.Context) (map[string]map[string][]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT schedule_date, schedule_data FROM schedules`)
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

func (s *postgresStore) LastScheduleUpdate(ctx context.Context) (time.Time, bool, error) {
	var ts *time.Time
	err := s.pool.QueryRow(ctx, `SELECT MAX(updated_at) FROM schedules`).Scan(&ts)
	if errors.Is(err, pgx.ErrNoRows) || (err == nil && ts == nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("storage: last update: %w", err)
	}
	return *ts, true, nil
}

func (s *postgresStore) SetQueue(ctx context.Context, chatID int64, queue string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_settings (chat_id, queue) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET queue = EXCLUDED.queue`,
		chatID, queue)
	if err != nil {
		return fmt.Errorf("storage: set queue: %w", err)
	}
	return nil
}

func (s *postgresStore) Queue(ctx context.Context, chatID int64) (string, error) {
	var q string
	err := s.pool.QueryRow(ctx, `SELECT queue FROM user_settings WHERE chat_id = $1`, chatID).Scan(&q)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("storage: get queue: %w", err)
	}
	return q, nil
}

func (s *postgresStore) SetNotificationsEnabled(ctx context.Context, chatID int64, enabled bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO user_settings (chat_id, notifications_enabled) VALUES ($1, $2)
		ON CONFLICT (chat_id) DO UPDATE SET notifications_enabled = EXCLUDED.notifications_enabled`,
		chatID, enabled)
	if err != nil {
		return fmt.Errorf("storage: set notifications: %w", err)
	}
	return nil
}

func (s *postgresStore) NotificationsEnabled(ctx context.Context, chatID int64) (bool, error) {
	var enabled bool
	err := s.pool.QueryRow(ctx,
		`SELECT notifications_enabled FROM user_settings WHERE chat_id = $1`, chatID).Scan(&enabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("storage: get notifications: %w", err)
	}
	return enabled, nil
}

func (s *postgresStore) NotifySubscribers(ctx context.Context) ([]Subscriber, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT chat_id, queue, notifications_enabled
		FROM user_settings
		WHERE notifications_enabled AND queue <> ''`)
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

func (s *postgresStore) Close() error {
	s.pool.Close()
	return nil
}
