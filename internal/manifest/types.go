// Package manifest holds the deadline registry and the tier evaluation rules
// for romaneio (delivery manifest) reminders.
//
// A Record tracks one registered departure deadline for a client inside one
// chat. Records are created by command ingestion, mutated by the sweep
// (alert bookkeeping, expiry) or by an explicit cancel, and removed only by
// pruning, so /listar can still show recently expired manifests.
package manifest

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// TierNone marks a record that has not fired any alert tier yet. Tiers are
// positive minute thresholds, so zero never collides with a real tier.
const TierNone = 0

// Record is one registered romaneio deadline.
//
// LastTier is the tightest (smallest) remaining-minutes threshold already
// alerted for; it only ever decreases while the record is active.
// LastAlertAt starts at CreatedAt and acts as a minimum-spacing guard
// between alerts.
type Record struct {
	ID          string
	Client      string
	Deadline    time.Time
	Status      Status
	LastTier    int
	LastAlertAt time.Time
	CreatedAt   time.Time
}

func newRecord(client string, deadline, now time.Time) *Record {
	return &Record{
		ID:          uuid.NewString(),
		Client:      client,
		Deadline:    deadline,
		Status:      StatusActive,
		LastTier:    TierNone,
		LastAlertAt: now,
		CreatedAt:   now,
	}
}

// Registry maps a chat ID to its manifests in insertion order.
type Registry map[int64][]*Record

// Clone returns a deep copy safe to hand to persistence or callers.
func (r Registry) Clone() Registry {
	if r == nil {
		return Registry{}
	}
	out := make(Registry, len(r))
	for chatID, recs := range r {
		cp := make([]*Record, len(recs))
		for i, rec := range recs {
			c := *rec
			cp[i] = &c
		}
		out[chatID] = cp
	}
	return out
}

// Entry pairs a record copy with the chat that owns it.
type Entry struct {
	ChatID int64
	Record Record
}
