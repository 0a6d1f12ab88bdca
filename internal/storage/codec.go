package storage

import (
	"fmt"
	"strconv"
	"time"

	"romabot/internal/manifest"
	"romabot/pkg/logx"
)

// Wire format: chat id -> ordered record list. Timestamps are RFC3339 with
// explicit offset on the way out; on the way in, offset-less values are
// interpreted in the configured civil timezone instead of being rejected.

type recordDTO struct {
	ID          string `json:"id"`
	Client      string `json:"client"`
	Deadline    string `json:"deadline"`
	Status      string `json:"status"`
	LastTier    int    `json:"last_alert_tier"`
	LastAlertAt string `json:"last_alert_at"`
	CreatedAt   string `json:"created_at"`
}

type registryDTO map[string][]recordDTO

func encodeRegistry(reg manifest.Registry) registryDTO {
	out := make(registryDTO, len(reg))
	for chatID, recs := range reg {
		list := make([]recordDTO, 0, len(recs))
		for _, rec := range recs {
			list = append(list, encodeRecord(rec))
		}
		out[strconv.FormatInt(chatID, 10)] = list
	}
	return out
}

func encodeRecord(rec *manifest.Record) recordDTO {
	return recordDTO{
		ID:          rec.ID,
		Client:      rec.Client,
		Deadline:    rec.Deadline.Format(time.RFC3339),
		Status:      string(rec.Status),
		LastTier:    rec.LastTier,
		LastAlertAt: rec.LastAlertAt.Format(time.RFC3339),
		CreatedAt:   rec.CreatedAt.Format(time.RFC3339),
	}
}

// decodeRegistry converts the wire form back. Individually broken records are
// skipped with a warning; losing one reminder beats refusing to start.
func decodeRegistry(dto registryDTO, loc *time.Location, log logx.Logger) manifest.Registry {
	reg := manifest.Registry{}
	for key, list := range dto {
		chatID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			log.Warn("skipping registry entry with bad chat id", logx.String("chat", key), logx.Err(err))
			continue
		}
		recs := make([]*manifest.Record, 0, len(list))
		for i := range list {
			rec, err := decodeRecord(&list[i], loc)
			if err != nil {
				log.Warn("skipping unreadable record", logx.Int64("chat", chatID), logx.String("id", list[i].ID), logx.Err(err))
				continue
			}
			recs = append(recs, rec)
		}
		if len(recs) > 0 {
			reg[chatID] = recs
		}
	}
	return reg
}

func decodeRecord(d *recordDTO, loc *time.Location) (*manifest.Record, error) {
	deadline, err := parseStoredTime(d.Deadline, loc)
	if err != nil {
		return nil, fmt.Errorf("deadline: %w", err)
	}
	lastAlertAt, err := parseStoredTime(d.LastAlertAt, loc)
	if err != nil {
		return nil, fmt.Errorf("last_alert_at: %w", err)
	}
	createdAt, err := parseStoredTime(d.CreatedAt, loc)
	if err != nil {
		return nil, fmt.Errorf("created_at: %w", err)
	}

	status := manifest.Status(d.Status)
	switch status {
	case manifest.StatusActive, manifest.StatusExpired:
	default:
		return nil, fmt.Errorf("unknown status %q", d.Status)
	}

	return &manifest.Record{
		ID:          d.ID,
		Client:      d.Client,
		Deadline:    deadline.In(loc),
		Status:      status,
		LastTier:    d.LastTier,
		LastAlertAt: lastAlertAt.In(loc),
		CreatedAt:   createdAt.In(loc),
	}, nil
}

var offsetlessLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseStoredTime(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	for _, layout := range offsetlessLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
}
