package whenthere

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/whenthere/pkg/share"
	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

// Row is a display-ready location.
type Row struct {
	Location      zones.Location `json:"location"`
	ProjectedHour *int           `json:"projectedHour"`
	Time          string         `json:"time"`
	Offset        string         `json:"offset"`
	Index         int            `json:"index"`
	CurrentHour   int            `json:"currentHour"`
	CurrentMinute int            `json:"currentMinute"`
	Source        bool           `json:"source"`
}

// Uses24HourClock reports the active clock style.
func (s *Store) Uses24HourClock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.style == Clock24
}

func (s *Store) layout() string {
	if s.style == Clock24 {
		return "15:04"
	}
	return "3:04 PM"
}

func inZone(zone string, t time.Time) time.Time {
	loc, err := tzconvert.Load(zone)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}

// ShortTime formats t in zone as "15:04" or "3:04 PM".
func (s *Store) ShortTime(zone string, t time.Time) string {
	s.mu.Lock()
	layout := s.layout()
	s.mu.Unlock()
	return inZone(zone, t).Format(layout)
}

// CompactTime is ShortTime without the space before AM/PM.
func (s *Store) CompactTime(zone string, t time.Time) string {
	return strings.ReplaceAll(s.ShortTime(zone, t), " ", "")
}

// HourLabel formats an hour-strip cell: "09" or "9  AM". Hours before ten
// get an extra space in 12-hour style so the strip stays aligned.
func (s *Store) HourLabel(hour int) string {
	if s.Uses24HourClock() {
		return fmt.Sprintf("%02d", hour)
	}
	period := "AM"
	if hour >= 12 {
		period = "PM"
	}
	h := hour % 12
	if h == 0 {
		h = 12
	}
	pad := ""
	if hour < 10 {
		pad = " "
	}
	return fmt.Sprintf("%d%s %s", h, pad, period)
}

// MenuBarLabel is the compact time of the last location, or of the system
// zone when there are none.
func (s *Store) MenuBarLabel() string {
	s.mu.Lock()
	zone := s.system.TimeZone
	if n := s.registry.Len(); n > 0 {
		last, _ := s.registry.At(n - 1)
		zone = last.TimeZone
	}
	now := s.now
	s.mu.Unlock()
	return s.CompactTime(zone, now)
}

// Rows returns every location with its current time and projected hour.
func (s *Store) Rows() []Row {
	s.mu.Lock()
	locs := s.registry.All()
	now := s.now
	layout := s.layout()
	var sel *Selection
	if s.selection != nil {
		copied := *s.selection
		sel = &copied
	}
	s.mu.Unlock()

	rows := make([]Row, 0, len(locs))
	for i, loc := range locs {
		row := Row{
			Index:         i,
			Location:      loc,
			CurrentHour:   tzconvert.CivilHour(loc.TimeZone, now),
			CurrentMinute: tzconvert.CivilMinute(loc.TimeZone, now),
			Time:          inZone(loc.TimeZone, now).Format(layout),
			Offset:        tzconvert.UTCOffsetLabel(loc.TimeZone, now),
		}
		if sel != nil {
			h := tzconvert.CivilHour(loc.TimeZone, sel.Anchor)
			row.ProjectedHour = &h
			row.Source = sel.SourceID == loc.ID
		}
		rows = append(rows, row)
	}
	return rows
}

// ShareLink encodes the locations and selection onto base.
func (s *Store) ShareLink(base string) string {
	s.mu.Lock()
	locs := s.registry.All()
	var sel *share.Selection
	if s.selection != nil {
		sel = &share.Selection{SourceID: s.selection.SourceID, TimeZone: s.selection.TimeZone, LocalHour: s.selection.LocalHour}
	}
	s.mu.Unlock()
	return share.Link(base, locs, sel)
}

// SourceID returns the selection's source location id, or uuid.Nil.
func (s *Store) SourceID() uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return uuid.Nil
	}
	return s.selection.SourceID
}
