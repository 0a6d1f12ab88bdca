package storage

import (
	"errors"
	"strings"
	"time"

	"romabot/pkg/logx"
)

// Open initializes the configured store.
// It returns (nil, nil) if persistence is disabled.
//
// loc is the civil timezone used to interpret persisted timestamps that lack
// an explicit offset (older snapshots stored naive local times).
func Open(cfg Config, loc *time.Location, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	if loc == nil {
		loc = time.Local
	}

	switch driver {
	case "file":
		return openFile(cfg, loc, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, loc, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
