package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"romabot/internal/manifest"
	"romabot/pkg/logx"
)

func testRegistry(loc *time.Location) manifest.Registry {
	base := time.Date(2026, 3, 2, 12, 0, 0, 0, loc)
	return manifest.Registry{
		10: {
			{
				ID:          "a1",
				Client:      "HONDA",
				Deadline:    base.Add(50 * time.Minute),
				Status:      manifest.StatusActive,
				LastTier:    manifest.TierNone,
				LastAlertAt: base,
				CreatedAt:   base,
			},
			{
				ID:          "a2",
				Client:      "FIAT",
				Deadline:    base.Add(20 * time.Minute),
				Status:      manifest.StatusExpired,
				LastTier:    5,
				LastAlertAt: base.Add(15 * time.Minute),
				CreatedAt:   base,
			},
		},
		20: {
			{
				ID:          "b1",
				Client:      "VOLVO",
				Deadline:    base.Add(2 * time.Hour),
				Status:      manifest.StatusActive,
				LastTier:    60,
				LastAlertAt: base.Add(time.Hour),
				CreatedAt:   base,
			},
		},
	}
}

func TestFileSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("-03", -3*60*60)
	path := filepath.Join(t.TempDir(), "registry.json")

	st, err := Open(Config{Driver: "file", Path: path}, loc, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()

	want := testRegistry(loc)
	if err := st.Save(context.Background(), want); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// No temp residue after a successful save.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}

	got, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("chats = %d, want %d", len(got), len(want))
	}
	for chatID, wrecs := range want {
		grecs := got[chatID]
		if len(grecs) != len(wrecs) {
			t.Fatalf("chat %d: %d records, want %d", chatID, len(grecs), len(wrecs))
		}
		for i := range wrecs {
			w, g := wrecs[i], grecs[i]
			if g.ID != w.ID || g.Client != w.Client || g.Status != w.Status || g.LastTier != w.LastTier {
				t.Fatalf("chat %d record %d: got %+v, want %+v", chatID, i, g, w)
			}
			if !g.Deadline.Equal(w.Deadline) || !g.LastAlertAt.Equal(w.LastAlertAt) || !g.CreatedAt.Equal(w.CreatedAt) {
				t.Fatalf("chat %d record %d: timestamps drifted: got %+v, want %+v", chatID, i, g, w)
			}
		}
	}
}

func TestFileLoadMissingIsFreshStart(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "registry.json")
	st, err := Open(Config{Driver: "file", Path: path}, time.UTC, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reg, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg) != 0 {
		t.Fatalf("fresh start registry = %+v, want empty", reg)
	}
}

func TestFileLoadCorruptStartsEmpty(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, time.UTC, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reg, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load on corrupt snapshot must not fail, got %v", err)
	}
	if len(reg) != 0 {
		t.Fatalf("registry = %+v, want empty", reg)
	}
}

func TestFileLoadOffsetlessTimestamps(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("-03", -3*60*60)
	path := filepath.Join(t.TempDir(), "registry.json")

	snapshot := `{
	  "10": [
	    {
	      "id": "a1",
	      "client": "HONDA",
	      "deadline": "2026-03-02 14:30:00",
	      "status": "active",
	      "last_alert_tier": 0,
	      "last_alert_at": "2026-03-02T13:40:00",
	      "created_at": "2026-03-02T13:40:00"
	    }
	  ]
	}`
	if err := os.WriteFile(path, []byte(snapshot), 0o600); err != nil {
		t.Fatal(err)
	}

	st, err := Open(Config{Driver: "file", Path: path}, loc, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reg, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	recs := reg[10]
	if len(recs) != 1 {
		t.Fatalf("records = %+v, want 1", recs)
	}
	want := time.Date(2026, 3, 2, 14, 30, 0, 0, loc)
	if !recs[0].Deadline.Equal(want) {
		t.Fatalf("deadline = %v, want %v (interpreted in %v)", recs[0].Deadline, want, loc)
	}
}

func TestFileLoadSkipsBrokenRecords(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "registry.json")
	snapshot := `{
	  "10": [
	    {"id": "bad", "client": "X", "deadline": "not-a-time", "status": "active", "last_alert_at": "also-bad", "created_at": "nope"},
	    {"id": "ok", "client": "HONDA", "deadline": "2026-03-02T14:30:00-03:00", "status": "active", "last_alert_tier": 0, "last_alert_at": "2026-03-02T13:40:00-03:00", "created_at": "2026-03-02T13:40:00-03:00"}
	  ]
	}`
	if err := os.WriteFile(path, []byte(snapshot), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := Open(Config{Driver: "file", Path: path}, time.UTC, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	reg, err := st.Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(reg[10]) != 1 || reg[10][0].ID != "ok" {
		t.Fatalf("registry = %+v, want only the readable record", reg[10])
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{}, time.UTC, logx.Nop())
	if err != nil || st != nil {
		t.Fatalf("disabled Open = (%v, %v), want (nil, nil)", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, time.UTC, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}
