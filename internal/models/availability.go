// Package models defines the typed domain entities shared across the
// meetmate services. Rows coming back from the store are decoded into these
// structs at the boundary; unknown or missing fields get explicit defaults.
package models

import (
	"fmt"
	"strings"
	"time"
)

// AvailabilityStatus represents the kind of availability a window advertises
type AvailabilityStatus string

const (
	StatusAvailable    AvailabilityStatus = "available"
	StatusIdle         AvailabilityStatus = "idle"
	StatusDoNotDisturb AvailabilityStatus = "do-not-disturb"
)

// IsValid reports whether the status is one of the known values
func (s AvailabilityStatus) IsValid() bool {
	switch s {
	case StatusAvailable, StatusIdle, StatusDoNotDisturb:
		return true
	}
	return false
}

// AvailabilityWindow is one recurring weekly slot published by its owner.
// StartTime and EndTime are wall-clock "HH:mm" strings local to Timezone.
type AvailabilityWindow struct {
	ID        string             `json:"id"`
	OwnerID   string             `json:"owner_id"`
	DayOfWeek int                `json:"day_of_week"` // 0=Sunday .. 6=Saturday
	StartTime string             `json:"start_time"`
	EndTime   string             `json:"end_time"`
	Status    AvailabilityStatus `json:"status"`
	Timezone  string             `json:"timezone"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Validate checks the window invariants: day in range, parseable clock
// strings, start strictly before end within the same day, known status.
func (w *AvailabilityWindow) Validate() error {
	if w.OwnerID == "" {
		return fmt.Errorf("owner id is required")
	}
	if w.DayOfWeek < 0 || w.DayOfWeek > 6 {
		return fmt.Errorf("day of week must be in [0,6], got %d", w.DayOfWeek)
	}

	start, err := ParseClock(w.StartTime)
	if err != nil {
		return fmt.Errorf("invalid start time %q: %w", w.StartTime, err)
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return fmt.Errorf("invalid end time %q: %w", w.EndTime, err)
	}
	if !start.Before(end) {
		return fmt.Errorf("start time %s must be before end time %s", w.StartTime, w.EndTime)
	}

	if !w.Status.IsValid() {
		return fmt.Errorf("unknown availability status %q", w.Status)
	}
	if w.Timezone == "" {
		return fmt.Errorf("timezone is required")
	}

	return nil
}

// Clock is a minute-granularity time of day
type Clock struct {
	Hour   int
	Minute int
}

// Before reports whether c is strictly earlier in the day than other
func (c Clock) Before(other Clock) bool {
	if c.Hour != other.Hour {
		return c.Hour < other.Hour
	}
	return c.Minute < other.Minute
}

// String formats the clock as "HH:mm"
func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:mm" or "HH:mm:ss" into a Clock. Seconds are dropped;
// windows are minute-granularity by contract.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 && len(parts) != 3 {
		return Clock{}, fmt.Errorf("expected HH:mm or HH:mm:ss")
	}

	var hour, minute int
	if _, err := fmt.Sscanf(parts[0], "%d", &hour); err != nil {
		return Clock{}, fmt.Errorf("invalid hour %q", parts[0])
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &minute); err != nil {
		return Clock{}, fmt.Errorf("invalid minute %q", parts[1])
	}

	if hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("hour %d out of range", hour)
	}
	if minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("minute %d out of range", minute)
	}

	return Clock{Hour: hour, Minute: minute}, nil
}

// NormalizeClock reduces "HH:mm:ss" input to the canonical "HH:mm" form.
// Invalid input is returned unchanged; validation rejects it elsewhere.
func NormalizeClock(s string) string {
	c, err := ParseClock(s)
	if err != nil {
		return s
	}
	return c.String()
}
