package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Tracker  TrackerConfig  `json:"tracker"`
	Notifier NotifierConfig `json:"notifier,omitempty"`
	Storage  StorageConfig  `json:"storage,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// TrackerConfig controls the deadline engine.
//
// All durations are Go duration strings (e.g. "20s", "1m", "24h").
//
// Defaults (when fields are omitted/zero):
//   - timezone: "America/Sao_Paulo"
//   - sweep_interval: "20s" (must stay under 1m, tiers are minute-granular)
//   - tiers: [60, 45, 30, 15, 5, 1] (strictly descending)
//   - min_alert_spacing: "1m"
//   - dispatch_timeout: "10s"
//   - prune_schedule: "0 4 * * *" (cron, tracker timezone)
//   - retention: "24h" (expired records older than this are pruned)
type TrackerConfig struct {
	Timezone        string `json:"timezone,omitempty"`
	SweepInterval   string `json:"sweep_interval,omitempty"`
	Tiers           []int  `json:"tiers,omitempty"`
	MinAlertSpacing string `json:"min_alert_spacing,omitempty"`
	DispatchTimeout string `json:"dispatch_timeout,omitempty"`
	PruneSchedule   string `json:"prune_schedule,omitempty"`
	Retention       string `json:"retention,omitempty"`
}

// NotifierConfig controls outbound message pacing.
type NotifierConfig struct {
	RatePerSec int `json:"rate_per_sec,omitempty"` // default 3
}

// StorageConfig controls registry persistence.
//
// Example:
//
//	"storage": { "driver": "file", "path": "./romabot_registry.json" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}
