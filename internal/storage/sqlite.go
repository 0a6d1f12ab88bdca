package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"romabot/internal/manifest"
	"romabot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	loc *time.Location
	log logx.Logger
}

func openSQLite(cfg Config, loc *time.Location, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, loc: loc, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (manifest.Registry, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, client, deadline, status, last_alert_tier, last_alert_at, created_at
		 FROM manifests ORDER BY seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reg := manifest.Registry{}
	for rows.Next() {
		var (
			d      recordDTO
			chatID int64
		)
		if err := rows.Scan(&d.ID, &chatID, &d.Client, &d.Deadline, &d.Status, &d.LastTier, &d.LastAlertAt, &d.CreatedAt); err != nil {
			return nil, err
		}
		rec, err := decodeRecord(&d, s.loc)
		if err != nil {
			s.log.Warn("skipping unreadable record row", logx.Int64("chat", chatID), logx.String("id", d.ID), logx.Err(err))
			continue
		}
		reg[chatID] = append(reg[chatID], rec)
	}
	return reg, rows.Err()
}

// Save replaces the whole table in one transaction; the registry is small by
// design and full snapshots keep crash recovery trivial.
func (s *sqliteStore) Save(ctx context.Context, reg manifest.Registry) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM manifests`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO manifests(id, chat_id, client, deadline, status, last_alert_tier, last_alert_at, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for chatID, recs := range reg {
		for _, rec := range recs {
			d := encodeRecord(rec)
			if _, err := stmt.ExecContext(ctx, d.ID, chatID, d.Client, d.Deadline, d.Status, d.LastTier, d.LastAlertAt, d.CreatedAt); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}
