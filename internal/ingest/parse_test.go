package ingest

import (
	"testing"
	"time"
)

func TestSplitCommand(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text     string
		wantCmd  string
		wantArgs int
		wantOK   bool
	}{
		{text: "/romaneio ACME 17:30", wantCmd: "romaneio", wantArgs: 2, wantOK: true},
		{text: "/LISTAR", wantCmd: "listar", wantOK: true},
		{text: "/status@RomaBot", wantCmd: "status", wantOK: true},
		{text: "  /cancelar   acme  ", wantCmd: "cancelar", wantArgs: 1, wantOK: true},
		{text: "bom dia", wantOK: false},
		{text: "/", wantOK: false},
		{text: "", wantOK: false},
	}
	for _, tt := range tests {
		cmd, args, ok := splitCommand(tt.text)
		if ok != tt.wantOK {
			t.Fatalf("splitCommand(%q) ok = %v, want %v", tt.text, ok, tt.wantOK)
		}
		if !ok {
			continue
		}
		if cmd != tt.wantCmd || len(args) != tt.wantArgs {
			t.Fatalf("splitCommand(%q) = (%q, %d args)", tt.text, cmd, len(args))
		}
	}
}

func TestNormalizeClient(t *testing.T) {
	t.Parallel()
	if got, err := normalizeClient([]string{"acme"}, 64); err != nil || got != "ACME" {
		t.Fatalf("normalizeClient = (%q, %v)", got, err)
	}
	if got, err := normalizeClient([]string{"Mercado", "do", "Zé"}, 64); err != nil || got != "MERCADO DO ZÉ" {
		t.Fatalf("multi-word = (%q, %v)", got, err)
	}
	if _, err := normalizeClient(nil, 64); err == nil {
		t.Fatal("empty client accepted")
	}
	if _, err := normalizeClient([]string{"   "}, 64); err == nil {
		t.Fatal("blank client accepted")
	}
	if _, err := normalizeClient([]string{"AAAAAAAAAA"}, 5); err == nil {
		t.Fatal("oversize client accepted")
	}
}

func TestParseDeadline(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("-03", -3*60*60)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)

	got, err := parseDeadline("17:30", now, loc)
	if err != nil {
		t.Fatalf("parseDeadline: %v", err)
	}
	want := time.Date(2026, 3, 10, 17, 30, 0, 0, loc)
	if !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestParseDeadlineRollsToTomorrow(t *testing.T) {
	t.Parallel()
	loc := time.FixedZone("-03", -3*60*60)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)

	// Already passed today.
	got, err := parseDeadline("08:00", now, loc)
	if err != nil {
		t.Fatalf("parseDeadline: %v", err)
	}
	if want := time.Date(2026, 3, 11, 8, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}

	// Exactly now also rolls: a deadline must be in the future.
	got, err = parseDeadline("14:00", now, loc)
	if err != nil {
		t.Fatalf("parseDeadline: %v", err)
	}
	if want := time.Date(2026, 3, 11, 14, 0, 0, 0, loc); !got.Equal(want) {
		t.Fatalf("deadline = %v, want %v", got, want)
	}
}

func TestParseDeadlineRejectsGarbage(t *testing.T) {
	t.Parallel()
	loc := time.UTC
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, loc)
	for _, raw := range []string{"25:00", "12:61", "meio-dia", "1730", ""} {
		if _, err := parseDeadline(raw, now, loc); err == nil {
			t.Fatalf("parseDeadline(%q) accepted", raw)
		}
	}
}
