// Package timezone converts recurring weekly availability windows between
// IANA timezones. Conversion is anchored to a reference date in the current
// real-world week so daylight-saving rules apply as they do "this week";
// the same window can therefore convert differently in different weeks.
package timezone

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Maken-HQ-Team/meetmate/internal/models"
)

// ConvertedWindow is a window projected into a display timezone. Original
// carries the pre-conversion window so callers can show both without a
// second lookup. When Converted is false the projection failed and
// ConversionError says why; the caller decides whether to display the
// original or omit.
type ConvertedWindow struct {
	Original  models.AvailabilityWindow `json:"original"`
	DayOfWeek int                       `json:"day_of_week"`
	StartTime string                    `json:"start_time"`
	EndTime   string                    `json:"end_time"`
	Timezone  string                    `json:"timezone"`
	Converted bool                      `json:"converted"`

	// ZoneFallback is set when the window's own timezone was unresolvable
	// and the owner profile's zone (or UTC) was used instead.
	ZoneFallback    bool   `json:"zone_fallback,omitempty"`
	ConversionError string `json:"conversion_error,omitempty"`
}

// Converter projects windows between timezones. It is an injectable
// instance; tests pin the clock for deterministic week references.
type Converter struct {
	logger *zap.Logger
	now    func() time.Time
}

// NewConverter creates a converter
func NewConverter(logger *zap.Logger) *Converter {
	return &Converter{
		logger: logger,
		now:    time.Now,
	}
}

// Convert projects one window into the target timezone. Day-of-week
// rollover is intended behavior: a late-evening slot can legitimately land
// on the next or previous calendar day after conversion.
func (c *Converter) Convert(w models.AvailabilityWindow, target string) ConvertedWindow {
	return c.ConvertWithProfileZone(w, "", target)
}

// ConvertWithProfileZone is Convert with a fallback source zone: the
// window's own timezone is preferred when resolvable, then the owner
// profile's declared zone, then UTC.
func (c *Converter) ConvertWithProfileZone(w models.AvailabilityWindow, profileZone, target string) ConvertedWindow {
	out := ConvertedWindow{Original: w}

	srcLoc, usedFallback, err := c.resolveSourceZone(w, profileZone)
	if err != nil {
		out.ConversionError = err.Error()
		return out
	}
	out.ZoneFallback = usedFallback

	targetLoc, err := time.LoadLocation(target)
	if err != nil {
		out.ConversionError = fmt.Sprintf("unresolvable target timezone %q", target)
		return out
	}

	start, err := models.ParseClock(w.StartTime)
	if err != nil {
		out.ConversionError = fmt.Sprintf("invalid start time %q", w.StartTime)
		return out
	}
	end, err := models.ParseClock(w.EndTime)
	if err != nil {
		out.ConversionError = fmt.Sprintf("invalid end time %q", w.EndTime)
		return out
	}

	// Reference date: the date in the current real-world week that falls
	// on the window's day, computed in the source zone so DST rules for
	// this week apply.
	ref := c.referenceDate(w.DayOfWeek, srcLoc)

	startInstant := time.Date(ref.Year(), ref.Month(), ref.Day(), start.Hour, start.Minute, 0, 0, srcLoc)
	endInstant := time.Date(ref.Year(), ref.Month(), ref.Day(), end.Hour, end.Minute, 0, 0, srcLoc)

	convStart := startInstant.In(targetLoc)
	convEnd := endInstant.In(targetLoc)

	out.DayOfWeek = int(convStart.Weekday())
	out.StartTime = convStart.Format("15:04")
	out.EndTime = convEnd.Format("15:04")
	out.Timezone = target
	out.Converted = true

	return out
}

// ConvertAll projects every window; failed conversions are carried through
// marked unconverted, never dropped.
func (c *Converter) ConvertAll(windows []models.AvailabilityWindow, profiles map[string]models.ProfileSnapshot, target string) []ConvertedWindow {
	out := make([]ConvertedWindow, 0, len(windows))
	for _, w := range windows {
		profileZone := ""
		if p, ok := profiles[w.OwnerID]; ok {
			profileZone = p.Timezone
		}

		cw := c.ConvertWithProfileZone(w, profileZone, target)
		if !cw.Converted {
			c.logger.Warn("window conversion failed",
				zap.String("window_id", w.ID),
				zap.String("source_timezone", w.Timezone),
				zap.String("target_timezone", target),
				zap.String("reason", cw.ConversionError),
			)
		}
		out = append(out, cw)
	}
	return out
}

// resolveSourceZone applies the zone precedence: window zone, then profile
// zone, then UTC.
func (c *Converter) resolveSourceZone(w models.AvailabilityWindow, profileZone string) (*time.Location, bool, error) {
	if loc, err := time.LoadLocation(w.Timezone); err == nil && w.Timezone != "" {
		return loc, false, nil
	}

	if profileZone != "" {
		if loc, err := time.LoadLocation(profileZone); err == nil {
			c.logger.Warn("window timezone unresolvable, using profile timezone",
				zap.String("window_id", w.ID),
				zap.String("window_timezone", w.Timezone),
				zap.String("profile_timezone", profileZone),
			)
			return loc, true, nil
		}
	}

	if w.Timezone == "" || profileZone == "" {
		c.logger.Warn("window timezone unresolvable, falling back to UTC",
			zap.String("window_id", w.ID),
			zap.String("window_timezone", w.Timezone),
		)
		return time.UTC, true, nil
	}

	return nil, false, fmt.Errorf("unresolvable source timezone %q (profile zone %q)", w.Timezone, profileZone)
}

// referenceDate returns midnight-ish "today shifted to dayOfWeek" in loc for
// the current week, Sunday-based to match the stored day numbering.
func (c *Converter) referenceDate(dayOfWeek int, loc *time.Location) time.Time {
	now := c.now().In(loc)
	diff := dayOfWeek - int(now.Weekday())
	return now.AddDate(0, 0, diff)
}
