package manifest

import (
	"sync"
	"time"
)

// Store is the mutation-guarded registry of manifests.
//
// The lock covers in-memory updates only; persistence and notification I/O
// always happen outside it, against deep copies. The OnChange hook (used for
// write-through persistence) therefore receives an exported clone after the
// lock is released.
type Store struct {
	mu  sync.Mutex
	reg Registry

	onChange func(Registry)
}

func NewStore() *Store {
	return &Store{reg: Registry{}}
}

// SetOnChange installs a hook called with a registry clone after every
// command-driven mutation (insert/cancel/prune). Sweep mutations are batched
// by the caller instead, one save per tick.
func (s *Store) SetOnChange(fn func(Registry)) {
	s.mu.Lock()
	s.onChange = fn
	s.mu.Unlock()
}

// Insert appends a new active record for the chat. Input validation (client
// format, deadline rollover) is the caller's job; Insert never fails on the
// values it is given.
func (s *Store) Insert(chatID int64, client string, deadline, now time.Time) Record {
	rec := newRecord(client, deadline, now)

	s.mu.Lock()
	s.reg[chatID] = append(s.reg[chatID], rec)
	cp := *rec
	snap, fn := s.reg.Clone(), s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return cp
}

// Cancel expires the first active record matching client in insertion order.
// It reports whether a match was found; cancellation is silent by design
// (no overdue notice is emitted for a cancelled manifest).
func (s *Store) Cancel(chatID int64, client string) (Record, bool) {
	s.mu.Lock()
	var hit *Record
	for _, rec := range s.reg[chatID] {
		if rec.Status == StatusActive && rec.Client == client {
			hit = rec
			break
		}
	}
	if hit == nil {
		s.mu.Unlock()
		return Record{}, false
	}
	hit.Status = StatusExpired
	cp := *hit
	snap, fn := s.reg.Clone(), s.onChange
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return cp, true
}

// List returns copies of all records for the chat in insertion order,
// expired ones included (they stay visible until pruned).
func (s *Store) List(chatID int64) []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.reg[chatID]
	out := make([]Record, len(recs))
	for i, rec := range recs {
		out[i] = *rec
	}
	return out
}

// SnapshotActive returns a point-in-time copy of every active record so the
// sweep can evaluate without holding the store locked during dispatch.
func (s *Store) SnapshotActive() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Entry
	for chatID, recs := range s.reg {
		for _, rec := range recs {
			if rec.Status == StatusActive {
				out = append(out, Entry{ChatID: chatID, Record: *rec})
			}
		}
	}
	return out
}

// ApplyMutation atomically updates one record's alert bookkeeping and/or
// status. It is a no-op if the record no longer exists or was expired
// concurrently (e.g. a cancel raced the sweep).
func (s *Store) ApplyMutation(id string, tier int, status Status, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, recs := range s.reg {
		for _, rec := range recs {
			if rec.ID != id {
				continue
			}
			if rec.Status == StatusExpired {
				// Expired is terminal.
				return false
			}
			if tier != TierNone {
				rec.LastTier = tier
				rec.LastAlertAt = now
			}
			if status != "" {
				rec.Status = status
			}
			return true
		}
	}
	return false
}

// Prune drops expired records created before the cutoff. Returns the number
// of records removed.
func (s *Store) Prune(olderThan time.Time) int {
	s.mu.Lock()
	removed := 0
	for chatID, recs := range s.reg {
		kept := recs[:0]
		for _, rec := range recs {
			if rec.Status == StatusExpired && rec.CreatedAt.Before(olderThan) {
				removed++
				continue
			}
			kept = append(kept, rec)
		}
		if len(kept) == 0 {
			delete(s.reg, chatID)
		} else {
			s.reg[chatID] = kept
		}
	}
	var (
		snap Registry
		fn   func(Registry)
	)
	if removed > 0 {
		snap, fn = s.reg.Clone(), s.onChange
	}
	s.mu.Unlock()

	if fn != nil {
		fn(snap)
	}
	return removed
}

// ReplaceAll swaps the whole registry, used once at startup after load.
func (s *Store) ReplaceAll(reg Registry) {
	s.mu.Lock()
	s.reg = reg.Clone()
	s.mu.Unlock()
}

// Export returns a deep copy of the full registry for persistence.
func (s *Store) Export() Registry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reg.Clone()
}

// Counts reports active/expired record totals (for /status).
func (s *Store) Counts() (active, expired int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, recs := range s.reg {
		for _, rec := range recs {
			if rec.Status == StatusActive {
				active++
			} else {
				expired++
			}
		}
	}
	return active, expired
}
