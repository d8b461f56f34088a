package config

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/rickgao/tradewatch/internal/connection"
	"github.com/rickgao/tradewatch/internal/lane"
	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/poller"
)

// LaneConfigs returns the per-category lane thresholds.
// Call after Validate; unparseable entries are skipped.
func (c *DashboardConfig) LaneConfigs() map[model.Category]lane.Config {
	out := make(map[model.Category]lane.Config, len(c.Lanes))
	for name, lc := range c.Lanes {
		cat, err := model.ParseCategory(name)
		if err != nil {
			continue
		}
		policy, err := parsePolicy(lc.Policy)
		if err != nil {
			continue
		}
		cfg := lane.DefaultConfig(cat)
		cfg.MaxCount = lc.MaxCount
		cfg.MaxWait = lc.MaxWait
		cfg.Policy = policy
		out[cat] = cfg
	}
	return out
}

// Schedule returns the poll schedule in category order.
func (c *DashboardConfig) Schedule() []poller.ScheduleEntry {
	entries := make([]poller.ScheduleEntry, 0, len(c.Polling.Schedule))
	for name, pc := range c.Polling.Schedule {
		cat, err := model.ParseCategory(name)
		if err != nil {
			continue
		}
		entries = append(entries, poller.ScheduleEntry{
			Category:     cat,
			Interval:     pc.Interval,
			InitialDelay: pc.InitialDelay,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Category < entries[j].Category
	})
	return entries
}

// ScheduleFor returns the poll entry of one category.
func (c *DashboardConfig) ScheduleFor(cat model.Category) (poller.ScheduleEntry, bool) {
	pc, ok := c.Polling.Schedule[cat.String()]
	if !ok {
		return poller.DefaultEntry(cat)
	}
	return poller.ScheduleEntry{Category: cat, Interval: pc.Interval, InitialDelay: pc.InitialDelay}, true
}

// ClientConfig returns the push client settings.
func (c *DashboardConfig) ClientConfig(userAgent string) connection.ClientConfig {
	return connection.ClientConfig{
		URL:              c.Push.URL,
		UserAgent:        userAgent,
		HandshakeTimeout: c.Push.HandshakeTimeout,
		PingInterval:     c.Push.PingInterval,
		PingTimeout:      c.Push.PingTimeout,
		BufferSize:       c.Push.BufferSize,
	}
}

// LogLevel returns the slog level named by session.log_level.
func (c *DashboardConfig) LogLevel() slog.Level {
	switch strings.ToLower(c.Session.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
