package storage

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"romabot/internal/manifest"
	"romabot/pkg/logx"
)

// fileStore keeps the registry in a single JSON snapshot file. Saves write to
// a temp file in the same directory and rename it into place, so a reader (or
// a crash mid-write) never observes a half-written snapshot.
type fileStore struct {
	mu   sync.Mutex
	path string
	loc  *time.Location
	log  logx.Logger
}

func openFile(cfg Config, loc *time.Location, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &fileStore{path: path, loc: loc, log: log}, nil
}

func (s *fileStore) Load(ctx context.Context) (manifest.Registry, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return manifest.Registry{}, nil
	}
	if err != nil {
		return nil, err
	}

	var dto registryDTO
	if err := json.Unmarshal(b, &dto); err != nil {
		// Corrupt snapshot: start empty rather than refusing to start.
		// Operators can re-register; a bot that won't boot cannot.
		s.log.Warn("registry snapshot unreadable; starting empty", logx.String("path", s.path), logx.Err(err))
		return manifest.Registry{}, nil
	}
	return decodeRegistry(dto, s.loc, s.log), nil
}

func (s *fileStore) Save(ctx context.Context, reg manifest.Registry) error {
	_ = ctx
	b, err := json.MarshalIndent(encodeRegistry(reg), "", "  ")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error { return nil }
