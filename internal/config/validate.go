package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rickgao/tradewatch/internal/lane"
	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/poller"
)

// Validate checks that all required fields are set and values are valid.
func (c *DashboardConfig) Validate() error {
	switch strings.ToLower(c.Session.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("session.log_level must be one of debug, info, warn, error, got %q", c.Session.LogLevel)
	}

	if c.API.BaseURL == "" {
		return errors.New("api.base_url is required")
	}
	if u, err := url.Parse(c.API.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("api.base_url must be an http or https URL, got %q", c.API.BaseURL)
	}
	if c.API.Timeout <= 0 {
		return errors.New("api.timeout must be > 0")
	}
	if c.API.MaxRetries < 0 {
		return errors.New("api.max_retries must be >= 0")
	}

	if !c.Push.Disabled {
		u, err := url.Parse(c.Push.URL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("push.url must be a ws or wss URL, got %q", c.Push.URL)
		}
	}
	if c.Push.PingTimeout <= c.Push.PingInterval {
		return fmt.Errorf("push.ping_timeout (%s) must exceed push.ping_interval (%s)", c.Push.PingTimeout, c.Push.PingInterval)
	}
	if c.Push.BufferSize < 1 {
		return errors.New("push.buffer_size must be >= 1")
	}

	for name, lc := range c.Lanes {
		if _, err := model.ParseCategory(name); err != nil {
			return fmt.Errorf("lanes.%s: %w", name, err)
		}
		if lc.MaxCount < 1 {
			return fmt.Errorf("lanes.%s.max_count must be >= 1", name)
		}
		if lc.MaxWait <= 0 {
			return fmt.Errorf("lanes.%s.max_wait must be > 0", name)
		}
		if _, err := parsePolicy(lc.Policy); err != nil {
			return fmt.Errorf("lanes.%s.policy: %w", name, err)
		}
	}

	if c.Polling.FetchTimeout <= 0 {
		return errors.New("polling.fetch_timeout must be > 0")
	}
	for name, pc := range c.Polling.Schedule {
		cat, err := model.ParseCategory(name)
		if err != nil {
			return fmt.Errorf("polling.schedule.%s: %w", name, err)
		}
		entry := poller.ScheduleEntry{Category: cat, Interval: pc.Interval, InitialDelay: pc.InitialDelay}
		if err := entry.Validate(); err != nil {
			return fmt.Errorf("polling.schedule.%s: %w", name, err)
		}
	}

	if c.Bootstrap.FirstDelay < 0 || c.Bootstrap.Stagger < 0 {
		return errors.New("bootstrap delays must be >= 0")
	}

	switch c.Archive.Driver {
	case ArchiveNone:
	case ArchivePostgres:
		if err := c.Archive.Postgres.validate("archive.postgres"); err != nil {
			return err
		}
	case ArchiveSQLite:
		if c.Archive.SQLitePath == "" {
			return errors.New("archive.sqlite_path is required")
		}
	default:
		return fmt.Errorf("archive.driver must be one of none, postgres, sqlite, got %q", c.Archive.Driver)
	}
	if c.Archive.BatchSize < 1 {
		return errors.New("archive.batch_size must be >= 1")
	}
	if c.Archive.BufferSize < 1 {
		return errors.New("archive.buffer_size must be >= 1")
	}

	if c.Status.Port < 0 || c.Status.Port > 65535 {
		return fmt.Errorf("status.port must be between 0 and 65535, got %d", c.Status.Port)
	}

	if c.UI.LatestRows < 1 {
		return errors.New("ui.latest_rows must be >= 1")
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}

func parsePolicy(s string) (lane.Policy, error) {
	switch strings.ToLower(s) {
	case "replace":
		return lane.Replace, nil
	case "accumulate":
		return lane.Accumulate, nil
	default:
		return 0, fmt.Errorf("unknown policy %q", s)
	}
}
