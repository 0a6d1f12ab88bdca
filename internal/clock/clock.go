// Package clock abstracts "now" so the sweep and command handlers can be
// tested with synthetic time. All times the bot reasons about are pinned to a
// single civil timezone (romaneio deadlines are wall-clock times, not UTC).
package clock

import "time"

// Clock supplies the current time in a fixed location.
type Clock interface {
	Now() time.Time
	Location() *time.Location
}

type systemClock struct {
	loc *time.Location
}

// System returns a wall clock pinned to loc.
func System(loc *time.Location) Clock {
	if loc == nil {
		loc = time.Local
	}
	return systemClock{loc: loc}
}

func (c systemClock) Now() time.Time           { return time.Now().In(c.loc) }
func (c systemClock) Location() *time.Location { return c.loc }
