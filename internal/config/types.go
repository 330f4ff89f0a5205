// Package config loads and watches the bot configuration. YAML and JSON are
// both accepted; unknown fields are rejected so typos fail loudly.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Telegram      TelegramConfig      `json:"telegram"`
	Logging       LoggingConfig       `json:"logging"`
	Source        SourceConfig        `json:"source"`
	Notifications NotificationsConfig `json:"notifications"`
	Storage       StorageConfig       `json:"storage"`
}

type TelegramConfig struct {
	// Token may be empty in the file; the environment override below then
	// has to supply it.
	Token       string `json:"token"`
	AdminChatID int64  `json:"admin_chat_id"`
	PollTimeout string `json:"poll_timeout"`
}

type LoggingConfig struct {
	Level    string            `json:"level"`
	Console  bool              `json:"console"`
	File     FileLogConfig     `json:"file"`
	Telegram TelegramLogConfig `json:"telegram"`
}

type FileLogConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramLogConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

type SourceConfig struct {
	URL string `json:"url"`
	// RefreshSpec is a cron expression; defaults to every 30 minutes.
	RefreshSpec  string   `json:"refresh_spec"`
	FetchTimeout string   `json:"fetch_timeout"`
	Timezone     string   `json:"timezone"`
	Proxies      []string `json:"proxies"`
	// NotifyAdminOnFailure forwards unreachable-source events to the admin
	// chat.
	NotifyAdminOnFailure bool `json:"notify_admin_on_failure"`
}

type NotificationsConfig struct {
	Enabled          bool   `json:"enabled"`
	CheckInterval    string `json:"check_interval"`
	LeadTimesMinutes []int  `json:"lead_times_minutes"`
	RatePerSec       int    `json:"rate_per_sec"`
}

type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	DSN         string `json:"dsn"`
	BusyTimeout string `json:"busy_timeout"`
}

// LoadEnv pulls overrides from the process environment, reading an optional
// .env file first. The Telegram token is the only secret and is expected
// from the environment in production.
func (c *Config) LoadEnv() {
	_ = godotenv.Load()
	for _, key := range []string{"ROEBOT_BOT_TOKEN", "BOT_TOKEN"} {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			c.Telegram.Token = v
			break
		}
	}
	if v := strings.TrimSpace(os.Getenv("ROEBOT_DB_DSN")); v != "" {
		c.Storage.DSN = v
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Telegram.Token) == "" {
		return errors.New("telegram.token is required (file or ROEBOT_BOT_TOKEN)")
	}
	if _, err := ParseDurationField("telegram.poll_timeout", c.Telegram.PollTimeout); err != nil {
		return err
	}

	if strings.TrimSpace(c.Source.URL) == "" {
		return errors.New("source.url is required")
	}
	if u, err := url.Parse(c.Source.URL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("source.url: invalid URL %q", c.Source.URL)
	}
	for _, p := range c.Source.Proxies {
		if u, err := url.Parse(p); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("source.proxies: invalid proxy URL %q", p)
		}
	}
	if _, err := ParseDurationField("source.fetch_timeout", c.Source.FetchTimeout); err != nil {
		return err
	}
	if tz := strings.TrimSpace(c.Source.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("source.timezone: %w", err)
		}
	}

	if _, err := ParseDurationField("notifications.check_interval", c.Notifications.CheckInterval); err != nil {
		return err
	}
	for _, lead := range c.Notifications.LeadTimesMinutes {
		if lead <= 0 {
			return fmt.Errorf("notifications.lead_times_minutes: %d must be positive", lead)
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite":
	case "postgres", "postgresql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			return errors.New("storage.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver)
	}
	if _, err := ParseDurationField("storage.busy_timeout", c.Storage.BusyTimeout); err != nil {
		return err
	}
	return nil
}

// Location resolves the configured timezone. Defaults to Europe/Kyiv, the
// deployment's home zone; falls back to UTC when the zone database lacks it.
func (c *Config) Location() *time.Location {
	tz := strings.TrimSpace(c.Source.Timezone)
	if tz == "" {
		tz = "Europe/Kyiv"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}
