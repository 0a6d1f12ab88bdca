package ingest

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	errEmptyClient   = errors.New("client name is empty")
	errClientTooLong = errors.New("client name too long")
)

// splitCommand breaks a raw message into a command name and its arguments.
// The "@BotName" suffix Telegram appends in groups is stripped, and command
// names are case-insensitive.
func splitCommand(text string) (cmd string, args []string, ok bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") || len(fields[0]) < 2 {
		return "", nil, false
	}
	cmd = strings.ToLower(fields[0][1:])
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", nil, false
	}
	return cmd, fields[1:], true
}

// normalizeClient canonicalizes a client name so /cancelar matches whatever
// casing /romaneio was typed with. Multi-word names collapse to single spaces.
func normalizeClient(fields []string, maxLen int) (string, error) {
	name := strings.ToUpper(strings.TrimSpace(strings.Join(fields, " ")))
	if name == "" {
		return "", errEmptyClient
	}
	if maxLen > 0 && len(name) > maxLen {
		return "", errClientTooLong
	}
	return name, nil
}

// parseDeadline resolves an HH:MM wall-clock time against "now" in loc. A
// clock time that already passed today means tomorrow: operators register
// evening manifests for the next morning.
func parseDeadline(arg string, now time.Time, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation("15:04", strings.TrimSpace(arg), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid clock time %q: %w", arg, err)
	}
	now = now.In(loc)
	deadline := time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, loc)
	if !deadline.After(now) {
		deadline = deadline.AddDate(0, 0, 1)
	}
	return deadline, nil
}
