package config

import (
	"time"

	"github.com/rickgao/tradewatch/internal/lane"
	"github.com/rickgao/tradewatch/internal/model"
	"github.com/rickgao/tradewatch/internal/poller"
)

// Default values for optional configuration fields.
const (
	DefaultSessionName      = "tradewatch"
	DefaultLogLevel         = "info"
	DefaultBaseURL          = "http://localhost:6696/v1"
	DefaultPushURL          = "ws://localhost:6696/v1/ws"
	DefaultAPITimeout       = 10 * time.Second
	DefaultRetryBackoff     = 500 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
	DefaultPingInterval     = 30 * time.Second
	DefaultPingTimeout      = 90 * time.Second
	DefaultPushBufferSize   = 1024
	DefaultFetchTimeout     = 10 * time.Second
	DefaultFirstDelay       = 250 * time.Millisecond
	DefaultStagger          = 250 * time.Millisecond
	DefaultGeodataDelay     = 5 * time.Second
	DefaultReadyDelay       = 1 * time.Second
	DefaultDBPort           = 5432
	DefaultDBSSLMode        = "prefer"
	DefaultMaxConns         = 4
	DefaultMinConns         = 1
	DefaultSQLitePath       = "tradewatch-archive.db"
	DefaultBatchSize        = 100
	DefaultFlushInterval    = 2 * time.Second
	DefaultBufferSize       = 1000
	DefaultLatestRows       = 50
)

// Archive drivers.
const (
	ArchiveNone     = "none"
	ArchivePostgres = "postgres"
	ArchiveSQLite   = "sqlite"
)

func (c *DashboardConfig) applyDefaults() {
	// Session defaults
	if c.Session.Name == "" {
		c.Session.Name = DefaultSessionName
	}
	if c.Session.LogLevel == "" {
		c.Session.LogLevel = DefaultLogLevel
	}

	// API defaults
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultAPITimeout
	}
	if c.API.RetryBackoff == 0 {
		c.API.RetryBackoff = DefaultRetryBackoff
	}

	// Push defaults
	if c.Push.URL == "" {
		c.Push.URL = DefaultPushURL
	}
	if c.Push.HandshakeTimeout == 0 {
		c.Push.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Push.PingInterval == 0 {
		c.Push.PingInterval = DefaultPingInterval
	}
	if c.Push.PingTimeout == 0 {
		c.Push.PingTimeout = DefaultPingTimeout
	}
	if c.Push.BufferSize == 0 {
		c.Push.BufferSize = DefaultPushBufferSize
	}

	// Lane defaults, per category
	if c.Lanes == nil {
		c.Lanes = make(map[string]LaneConfig)
	}
	for _, cat := range model.Categories() {
		def := lane.DefaultConfig(cat)
		lc := c.Lanes[cat.String()]
		if lc.MaxCount == 0 {
			lc.MaxCount = def.MaxCount
		}
		if lc.MaxWait == 0 {
			lc.MaxWait = def.MaxWait
		}
		if lc.Policy == "" {
			lc.Policy = def.Policy.String()
		}
		c.Lanes[cat.String()] = lc
	}

	// Polling defaults, per category
	if c.Polling.FetchTimeout == 0 {
		c.Polling.FetchTimeout = DefaultFetchTimeout
	}
	if c.Polling.Schedule == nil {
		c.Polling.Schedule = make(map[string]PollConfig)
	}
	for _, def := range poller.DefaultSchedule() {
		pc, ok := c.Polling.Schedule[def.Category.String()]
		if pc.Interval == 0 {
			pc.Interval = def.Interval
		}
		if !ok {
			pc.InitialDelay = def.InitialDelay
		}
		c.Polling.Schedule[def.Category.String()] = pc
	}

	// Bootstrap defaults
	if c.Bootstrap.FirstDelay == 0 {
		c.Bootstrap.FirstDelay = DefaultFirstDelay
	}
	if c.Bootstrap.Stagger == 0 {
		c.Bootstrap.Stagger = DefaultStagger
	}
	if c.Bootstrap.GeodataDelay == 0 {
		c.Bootstrap.GeodataDelay = DefaultGeodataDelay
	}
	if c.Bootstrap.ReadyDelay == 0 {
		c.Bootstrap.ReadyDelay = DefaultReadyDelay
	}

	// Archive defaults
	if c.Archive.Driver == "" {
		c.Archive.Driver = ArchiveNone
	}
	if c.Archive.SQLitePath == "" {
		c.Archive.SQLitePath = DefaultSQLitePath
	}
	if c.Archive.BatchSize == 0 {
		c.Archive.BatchSize = DefaultBatchSize
	}
	if c.Archive.FlushInterval == 0 {
		c.Archive.FlushInterval = DefaultFlushInterval
	}
	if c.Archive.BufferSize == 0 {
		c.Archive.BufferSize = DefaultBufferSize
	}
	applyDBDefaults(&c.Archive.Postgres)

	// UI defaults
	if c.UI.LatestRows == 0 {
		c.UI.LatestRows = DefaultLatestRows
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
