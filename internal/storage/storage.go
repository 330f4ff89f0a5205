// Package storage persists day schedules and per-chat subscriber settings.
// Two drivers are supported: embedded SQLite for single-host deployments and
// PostgreSQL for anything shared.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type Config struct {
	// Driver selects the backend: "sqlite" (default) or "postgres".
	Driver string
	// Path is the SQLite database file.
	Path string
	// DSN is the PostgreSQL connection string.
	DSN string
	// BusyTimeout is SQLite's lock wait budget.
	BusyTimeout time.Duration
}

// Subscriber is one chat's settings.
type Subscriber struct {
	ChatID               int64
	Queue                string
	NotificationsEnabled bool
}

// Store is the persistence contract shared by both drivers. Schedules are
// stored per day, keyed by the "dd.mm.yyyy" date string; hour maps keep the
// absent-vs-empty distinction through the JSON round trip.
type Store interface {
	SaveSchedule(ctx context.Context, date string, hours map[string][]string) error
	LoadAllSchedules(ctx context.Context) (map[string]map[string][]string, error)
	LastScheduleUpdate(ctx context.Context) (time.Time, bool, error)

	SetQueue(ctx context.Context, chatID int64, queue string) error
	Queue(ctx context.Context, chatID int64) (string, error)
	SetNotificationsEnabled(ctx context.Context, chatID int64, enabled bool) error
	NotificationsEnabled(ctx context.Context, chatID int64) (bool, error)
	NotifySubscribers(ctx context.Context) ([]Subscriber, error)

	Close() error
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "sqlite":
		return openSQLite(ctx, cfg)
	case "postgres", "postgresql":
		return openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("storage: unknown driver %q", cfg.Driver)
	}
}

// encodeHours serializes a day's queue map. A nil slice marshals to JSON
// null and an empty slice to [], so "confirmed no outage" survives storage.
func encodeHours(hours map[string][]string) (string, error) {
	b, err := json.Marshal(hours)
	if err != nil {
		return "", fmt.Errorf("storage: encode hours: %w", err)
	}
	return string(b), nil
}

func decodeHours(data string) (map[string][]string, error) {
	var hours map[string][]string
	if err := json.Unmarshal([]byte(data), &hours); err != nil {
		return nil, fmt.Errorf("storage: decode hours: %w", err)
	}
	if hours == nil {
		hours = map[string][]string{}
	}
	return hours, nil
}
