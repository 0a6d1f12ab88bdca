package manifest

import (
	"fmt"
	"math"
	"time"
)

// DefaultTiers is the descending remaining-minutes ladder that gates alert
// frequency. Each tier fires at most once per record.
var DefaultTiers = []int{60, 45, 30, 15, 5, 1}

// DefaultMinSpacing damps duplicate fires within the same sweep cadence.
const DefaultMinSpacing = time.Minute

type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionAlert
	ActionExpire
)

// Action is the outcome of evaluating one active record at one instant.
type Action struct {
	Kind      ActionKind
	Tier      int // set for ActionAlert
	Remaining int // whole minutes left (floor); <= 0 for ActionExpire
}

// ValidateTiers checks that the configured ladder is strictly descending and
// positive. The monotonic at-most-once-per-tier guarantee depends on it.
func ValidateTiers(tiers []int) error {
	if len(tiers) == 0 {
		return fmt.Errorf("tier ladder is empty")
	}
	prev := math.MaxInt
	for i, t := range tiers {
		if t <= 0 {
			return fmt.Errorf("tier[%d]: must be a positive minute count, got %d", i, t)
		}
		if t >= prev {
			return fmt.Errorf("tier[%d]: ladder must be strictly descending, got %d after %d", i, t, prev)
		}
		prev = t
	}
	return nil
}

// Evaluate decides what the sweep should do with one active record at "now".
//
// Rules:
//   - remaining <= 0 minutes: Expire. The status transition itself guarantees
//     at most one overdue notice, because expired records are never
//     re-evaluated.
//   - Otherwise fire the tightest tier t that the record has crossed
//     (t >= remaining), that is strictly tighter than the last fired tier,
//     and that the record actually had lead time for: a manifest registered
//     50 minutes before its deadline never fires the 60-minute tier.
//   - A record waking up past several tiers (process slept) fires only that
//     single tightest tier, not one alert per skipped tier.
//   - The spacing guard (now - LastAlertAt >= minSpacing) suppresses the fire
//     for this tick only; the tier stays eligible because LastTier has not
//     advanced.
func Evaluate(rec Record, now time.Time, tiers []int, minSpacing time.Duration) Action {
	if rec.Status != StatusActive {
		return Action{Kind: ActionNone}
	}

	remaining := int(math.Floor(rec.Deadline.Sub(now).Minutes()))
	if remaining <= 0 {
		return Action{Kind: ActionExpire, Remaining: remaining}
	}

	lead := rec.Deadline.Sub(rec.CreatedAt)

	tier := TierNone
	for _, t := range tiers {
		if t < remaining {
			continue // not crossed yet
		}
		if rec.LastTier != TierNone && t >= rec.LastTier {
			continue // already fired this tier or a tighter one
		}
		if time.Duration(t)*time.Minute >= lead {
			continue // record never had that much lead time
		}
		// Ladder is descending, so the last match is the tightest.
		tier = t
	}
	if tier == TierNone {
		return Action{Kind: ActionNone}
	}

	if now.Sub(rec.LastAlertAt) < minSpacing {
		return Action{Kind: ActionNone}
	}

	return Action{Kind: ActionAlert, Tier: tier, Remaining: remaining}
}
