// Package reminder provides the Reminder domain entity.
package reminder

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidHour   = errors.New("hour must be between 0 and 23")
	ErrInvalidMinute = errors.New("minute must be between 0 and 59")
	ErrEmptyPatch    = errors.New("patch has no fields")
)

// Reminder is a daily alarm that suggests listening to a track.
type Reminder struct {
	ID      int  // Reminder ID
	Hour    int  // 0-23
	Minute  int  // 0-59
	TrackID int  // Catalog music ID
	Enabled bool // Only enabled reminders are scheduled
}

// Patch is a partial update of a reminder. Nil fields are left unchanged.
type Patch struct {
	Hour    *int
	Minute  *int
	Enabled *bool
}

// Validate checks the time of day.
func (r *Reminder) Validate() error {
	if r.Hour < 0 || r.Hour > 23 {
		return ErrInvalidHour
	}
	if r.Minute < 0 || r.Minute > 59 {
		return ErrInvalidMinute
	}
	return nil
}

// Clock returns the time of day as HH:MM.
func (r *Reminder) Clock() string {
	return fmt.Sprintf("%02d:%02d", r.Hour, r.Minute)
}

// NextFire returns the next occurrence of HH:MM:00 strictly after now,
// in now's location.
func (r *Reminder) NextFire(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), r.Hour, r.Minute, 0, 0, now.Location())
	if !next.After(now) {
		next = time.Date(now.Year(), now.Month(), now.Day()+1, r.Hour, r.Minute, 0, 0, now.Location())
	}
	return next
}

// Apply returns a copy of r with the patch applied.
func (r Reminder) Apply(p Patch) Reminder {
	if p.Hour != nil {
		r.Hour = *p.Hour
	}
	if p.Minute != nil {
		r.Minute = *p.Minute
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	return r
}

// IsEmpty returns true if the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Hour == nil && p.Minute == nil && p.Enabled == nil
}

// Validate checks the fields that are set.
func (p Patch) Validate() error {
	if p.IsEmpty() {
		return ErrEmptyPatch
	}
	if p.Hour != nil && (*p.Hour < 0 || *p.Hour > 23) {
		return ErrInvalidHour
	}
	if p.Minute != nil && (*p.Minute < 0 || *p.Minute > 59) {
		return ErrInvalidMinute
	}
	return nil
}
