package config

import "time"

// DashboardConfig is the root configuration for a dashboard session.
type DashboardConfig struct {
	Session   SessionConfig         `yaml:"session"`
	API       APIConfig             `yaml:"api"`
	Push      PushConfig            `yaml:"push"`
	Lanes     map[string]LaneConfig `yaml:"lanes"`   // Keyed by category name, e.g. "sell_volume"
	Polling   PollingConfig         `yaml:"polling"`
	Bootstrap BootstrapConfig       `yaml:"bootstrap"`
	Archive   ArchiveConfig         `yaml:"archive"`
	Status    StatusConfig          `yaml:"status"`
	UI        UIConfig              `yaml:"ui"`
}

// SessionConfig identifies this dashboard and its log output.
type SessionConfig struct {
	Name     string `yaml:"name"`
	LogFile  string `yaml:"log_file"`  // Used by the terminal UI so logs do not garble the screen
	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// APIConfig holds REST settings.
type APIConfig struct {
	BaseURL      string        `yaml:"base_url"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff"`
}

// PushConfig holds WebSocket settings.
type PushConfig struct {
	URL               string        `yaml:"url"`
	Disabled          bool          `yaml:"disabled"`
	SharedLanes       bool          `yaml:"shared_lanes"`        // Lanes may not run isolated; forces polling
	FallbackToPolling bool          `yaml:"fallback_to_polling"` // Poll every push category after the channel is lost
	HandshakeTimeout  time.Duration `yaml:"handshake_timeout"`
	PingInterval      time.Duration `yaml:"ping_interval"`
	PingTimeout       time.Duration `yaml:"ping_timeout"`
	BufferSize        int           `yaml:"buffer_size"`
}

// LaneConfig holds the flush thresholds of one category.
type LaneConfig struct {
	MaxCount int           `yaml:"max_count"`
	MaxWait  time.Duration `yaml:"max_wait"`
	Policy   string        `yaml:"policy"` // replace or accumulate
}

// PollingConfig holds the poll schedule.
type PollingConfig struct {
	FetchTimeout time.Duration         `yaml:"fetch_timeout"`
	Schedule     map[string]PollConfig `yaml:"schedule"` // Keyed by category name
}

// PollConfig is the schedule of one category.
type PollConfig struct {
	Interval     time.Duration `yaml:"interval"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// BootstrapConfig holds the initial load timings.
type BootstrapConfig struct {
	FirstDelay   time.Duration `yaml:"first_delay"`
	Stagger      time.Duration `yaml:"stagger"`
	GeodataDelay time.Duration `yaml:"geodata_delay"` // Wait after the country-code load before geodata polling
	ReadyDelay   time.Duration `yaml:"ready_delay"`   // How long the loading view lingers after ready
}

// ArchiveConfig holds the optional flush archive.
type ArchiveConfig struct {
	Driver        string        `yaml:"driver"` // "", none, postgres, sqlite
	Postgres      DBConfig      `yaml:"postgres"`
	SQLitePath    string        `yaml:"sqlite_path"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// StatusConfig holds the local status endpoint. Port 0 disables it.
type StatusConfig struct {
	Port int `yaml:"port"`
}

// UIConfig holds terminal dashboard settings.
type UIConfig struct {
	Headless   bool `yaml:"headless"`
	LatestRows int  `yaml:"latest_rows"`
}
