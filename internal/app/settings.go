package app

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"romabot/internal/config"
	"romabot/internal/manifest"
	"romabot/internal/notify"
	"romabot/internal/sweep"
)

const (
	defaultTimezone      = "America/Sao_Paulo"
	defaultPollTimeout   = 10 * time.Second
	defaultRetention     = 24 * time.Hour
	defaultPruneSchedule = "0 4 * * *"
)

// settings is the parsed, validated view of the raw config. Building it is
// also the hot-reload validator: a config that doesn't resolve never commits.
type settings struct {
	loc         *time.Location
	pollTimeout time.Duration

	sweep  sweep.Config
	notify notify.Config

	pruneSchedule string
	retention     time.Duration

	storageBusy time.Duration
}

func resolveSettings(cfg *config.Config) (settings, error) {
	var s settings

	tz := cfg.Tracker.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return s, fmt.Errorf("tracker.timezone: %w", err)
	}
	s.loc = loc

	s.pollTimeout, err = config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, defaultPollTimeout)
	if err != nil {
		return s, err
	}

	interval, err := config.ParseDurationOrDefault("tracker.sweep_interval", cfg.Tracker.SweepInterval, 20*time.Second)
	if err != nil {
		return s, err
	}
	// Tiers are minute-granular; a cadence of a minute or more can step clean
	// over the 1-minute tier's window.
	if interval >= time.Minute {
		return s, fmt.Errorf("tracker.sweep_interval: must be under 1m, got %s", interval)
	}

	tiers := cfg.Tracker.Tiers
	if len(tiers) == 0 {
		tiers = manifest.DefaultTiers
	}
	if err := manifest.ValidateTiers(tiers); err != nil {
		return s, fmt.Errorf("tracker.tiers: %w", err)
	}

	spacing, err := config.ParseDurationOrDefault("tracker.min_alert_spacing", cfg.Tracker.MinAlertSpacing, manifest.DefaultMinSpacing)
	if err != nil {
		return s, err
	}
	dispatchTimeout, err := config.ParseDurationOrDefault("tracker.dispatch_timeout", cfg.Tracker.DispatchTimeout, 10*time.Second)
	if err != nil {
		return s, err
	}
	s.sweep = sweep.Config{
		Interval:        interval,
		Tiers:           tiers,
		MinSpacing:      spacing,
		DispatchTimeout: dispatchTimeout,
	}

	s.notify = notify.Config{RatePerSec: cfg.Notifier.RatePerSec}

	s.pruneSchedule = cfg.Tracker.PruneSchedule
	if s.pruneSchedule == "" {
		s.pruneSchedule = defaultPruneSchedule
	}
	if _, err := cron.ParseStandard(s.pruneSchedule); err != nil {
		return s, fmt.Errorf("tracker.prune_schedule: %w", err)
	}
	s.retention, err = config.ParseDurationOrDefault("tracker.retention", cfg.Tracker.Retention, defaultRetention)
	if err != nil {
		return s, err
	}

	s.storageBusy, err = config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return s, err
	}

	return s, nil
}
