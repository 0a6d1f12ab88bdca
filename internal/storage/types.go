package storage

import (
	"context"
	"errors"
	"time"

	"romabot/internal/manifest"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures registry persistence.
//
// Driver values:
//   - "file": JSON full-snapshot file (write-to-temp-then-rename)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", persistence is disabled and the registry
// lives only in memory for the process lifetime.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store persists the full registry as one snapshot. Saves replace the whole
// previous state; there is no incremental write path, so a failed save is
// retried in full by the next successful one.
type Store interface {
	// Load reconstructs the registry at process start. A missing snapshot is
	// a fresh start (empty registry, nil error); a corrupt one is logged and
	// also yields an empty registry rather than failing startup.
	Load(ctx context.Context) (manifest.Registry, error)
	Save(ctx context.Context, reg manifest.Registry) error
	Close() error
}
