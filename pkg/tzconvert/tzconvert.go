// Package tzconvert provides foolproof timezone conversion utilities.
// Every conversion between an instant and a civil (wall clock) time goes through
// the three primitives here: CivilHour, CivilMinute and AnchorFor.
// Nothing else in the codebase should add or subtract offsets by hand.
package tzconvert

import (
	"errors"
	"fmt"
	"sync"
	"time"

	_ "time/tzdata" // zone names resolve the same way on every OS
)

var (
	// ErrUnknownZone is returned for identifiers the tz database does not know.
	ErrUnknownZone = errors.New("unrecognized time zone")
	// ErrHourOutOfRange is returned for hours outside 0-23.
	ErrHourOutOfRange = errors.New("hour out of range")
)

var locations sync.Map // zone ID -> *time.Location

// Load returns the location for an IANA zone identifier.
// "Local" and the empty string are rejected: they name the host, not a place.
func Load(zoneID string) (*time.Location, error) {
	if zoneID == "" || zoneID == "Local" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, zoneID)
	}
	if cached, ok := locations.Load(zoneID); ok {
		loc, ok := cached.(*time.Location)
		if ok {
			return loc, nil
		}
	}
	loc, err := time.LoadLocation(zoneID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnknownZone, zoneID)
	}
	locations.Store(zoneID, loc)
	return loc, nil
}

// Recognized reports whether zoneID is a known IANA zone.
func Recognized(zoneID string) bool {
	_, err := Load(zoneID)
	return err == nil
}

// CivilHour returns the hour of day (0-23) that instant shows in zoneID.
// Unrecognized zones report 0; callers validate with Recognized first.
func CivilHour(zoneID string, instant time.Time) int {
	loc, err := Load(zoneID)
	if err != nil {
		return 0
	}
	return instant.In(loc).Hour()
}

// CivilMinute returns the minute (0-59) that instant shows in zoneID.
func CivilMinute(zoneID string, instant time.Time) int {
	loc, err := Load(zoneID)
	if err != nil {
		return 0
	}
	return instant.In(loc).Minute()
}

// AnchorFor returns the instant whose civil time in zoneID is hour:00:00 on the
// calendar date that reference has in zoneID.
//
// Daylight-saving policy: when the wall time occurs twice (fall-back overlap) the
// earliest instant wins. When it does not occur at all (spring-forward gap) the
// result is the transition instant that closes the gap, which is the earliest
// instant whose wall clock is at or after the requested time.
func AnchorFor(zoneID string, hour int, reference time.Time) (time.Time, error) {
	if hour < 0 || hour > 23 {
		return time.Time{}, fmt.Errorf("%w: %d", ErrHourOutOfRange, hour)
	}
	loc, err := Load(zoneID)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := reference.In(loc).Date()
	return resolveWallClock(loc, time.Date(y, m, d, hour, 0, 0, 0, time.UTC)), nil
}

// resolveWallClock maps a wall clock reading (carried as a UTC-labelled time) to
// an instant in loc using the DST policy documented on AnchorFor.
func resolveWallClock(loc *time.Location, wall time.Time) time.Time {
	var exact, later time.Time
	var foundExact, foundLater bool

	for _, offset := range candidateOffsets(loc, wall) {
		candidate := wall.Add(-time.Duration(offset) * time.Second)
		shown := wallClock(candidate.In(loc))
		switch {
		case shown.Equal(wall):
			if !foundExact || candidate.Before(exact) {
				exact, foundExact = candidate, true
			}
		case shown.After(wall):
			if !foundLater || candidate.Before(later) {
				later, foundLater = candidate, true
			}
		}
	}

	if foundExact {
		return exact
	}
	if foundLater {
		// Inside a gap: walk back to the transition that opened this zone period.
		if start, _ := later.In(loc).ZoneBounds(); !start.IsZero() && start.Before(later) {
			return start.UTC()
		}
		return later
	}
	return time.Date(wall.Year(), wall.Month(), wall.Day(), wall.Hour(), 0, 0, 0, loc).UTC()
}

// candidateOffsets collects the UTC offsets loc uses around the wall time.
// 36 hours on either side covers the widest real-world offset spread.
func candidateOffsets(loc *time.Location, wall time.Time) []int {
	var offsets []int
	for _, probe := range []time.Time{wall.Add(-36 * time.Hour), wall, wall.Add(36 * time.Hour)} {
		_, offset := probe.In(loc).Zone()
		seen := false
		for _, o := range offsets {
			if o == offset {
				seen = true
				break
			}
		}
		if !seen {
			offsets = append(offsets, offset)
		}
	}
	return offsets
}

func wallClock(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
}

// UTCOffsetLabel renders the offset zoneID has at instant, e.g. "UTC+2", "UTC-3:30", "UTC".
// It is for display only.
func UTCOffsetLabel(zoneID string, instant time.Time) string {
	loc, err := Load(zoneID)
	if err != nil {
		return ""
	}
	_, offset := instant.In(loc).Zone()
	if offset == 0 {
		return "UTC"
	}

	sign := "+"
	if offset < 0 {
		sign = "-"
		offset = -offset
	}
	hours := offset / 3600
	minutes := (offset % 3600) / 60
	if minutes == 0 {
		return fmt.Sprintf("UTC%s%d", sign, hours)
	}
	return fmt.Sprintf("UTC%s%d:%02d", sign, hours, minutes)
}
