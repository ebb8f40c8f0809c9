// Package story holds the narrative unit model shared by every engine component.
package story

import (
	"fmt"
	"time"

	"github.com/dusk-indust/narrative/internal/apperr"
)

// UnitID identifies a narrative unit (chapter or scene key).
type UnitID = string

// Unit is a discrete, ordered piece of the story. Units are immutable once
// registered; edges and state snapshots refer to them by ID.
type Unit struct {
	ID       UnitID    `json:"id"`
	Ordinal  int       `json:"ordinal"`
	Title    string    `json:"title,omitempty"`
	Time     time.Time `json:"time,omitzero"`     // story-clock time, zero when unknown
	Location string    `json:"location,omitempty"` // primary setting, empty when unknown
}

// HasTime reports whether the unit carries story-clock metadata.
func (u Unit) HasTime() bool { return !u.Time.IsZero() }

// Validate checks the fields required to register a unit.
func (u Unit) Validate() error {
	if u.ID == "" {
		return apperr.Invalid("unit id is required")
	}
	if u.Ordinal < 0 {
		return apperr.Invalid("unit %s: ordinal must be >= 0, got %d", u.ID, u.Ordinal)
	}
	return nil
}

// Equal reports whether two units carry identical metadata.
func (u Unit) Equal(o Unit) bool {
	return u.ID == o.ID && u.Ordinal == o.Ordinal && u.Title == o.Title &&
		u.Time.Equal(o.Time) && u.Location == o.Location
}

func (u Unit) String() string {
	if u.Title != "" {
		return fmt.Sprintf("%s (#%d %s)", u.ID, u.Ordinal, u.Title)
	}
	return fmt.Sprintf("%s (#%d)", u.ID, u.Ordinal)
}

// UnitIndex resolves unit IDs to their registered metadata.
// The dependency manager is the canonical implementation.
type UnitIndex interface {
	Unit(id UnitID) (Unit, bool)
}
