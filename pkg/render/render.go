// Package render draws the tracked locations and their hour strips for a terminal.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
	"github.com/codeGROOVE-dev/whenthere/pkg/whenthere"
)

var (
	selectedColor = color.New(color.FgYellow, color.Bold)
	currentColor  = color.New(color.FgGreen)
	sourceColor   = color.New(color.FgCyan, color.Bold)
	dimColor      = color.New(color.FgHiBlack)
)

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

// Table renders one line per row: index, title, subtitle, current time,
// UTC offset, and the projected hour when an hour is pinned.
func Table(rows []whenthere.Row, hourLabel func(int) string) string {
	var out strings.Builder
	if len(rows) == 0 {
		out.WriteString("No locations. Add one with: whenthere add <zone> <title>\n")
		return out.String()
	}

	for _, row := range rows {
		marker := "  "
		title := fmt.Sprintf("%-16s", truncate(row.Location.Title, 16))
		if row.Source {
			marker = sourceColor.Sprint("▸ ")
			title = sourceColor.Sprint(title)
		}
		line := fmt.Sprintf("%2d %s%s %s %8s  %s",
			row.Index+1,
			marker,
			title,
			dimColor.Sprintf("%-22s", truncate(row.Location.Subtitle, 22)),
			row.Time,
			dimColor.Sprintf("%-9s", row.Offset))
		if row.ProjectedHour != nil {
			line += selectedColor.Sprint(hourLabel(*row.ProjectedHour))
		}
		out.WriteString(strings.TrimRight(line, " ") + "\n")
	}
	return out.String()
}

// DayStart is midnight of now's date in zone, the first column of a strip.
func DayStart(zone string, now time.Time) time.Time {
	start, err := tzconvert.AnchorFor(zone, 0, now)
	if err != nil {
		return now.UTC().Truncate(24 * time.Hour)
	}
	return start
}

// Strip renders 24 hour columns per row, aligned by instant from start.
// The projected hour is highlighted, the current hour marked.
func Strip(rows []whenthere.Row, start time.Time, hourLabel func(int) string) string {
	var out strings.Builder
	if len(rows) == 0 {
		return ""
	}

	width := len(hourLabel(0))
	for _, row := range rows {
		out.WriteString(fmt.Sprintf("%-12s ", truncate(row.Location.Title, 12)))
		for col := range 24 {
			hour := tzconvert.CivilHour(row.Location.TimeZone, start.Add(time.Duration(col)*time.Hour))
			cell := fmt.Sprintf("%*s", width, hourLabel(hour))
			switch {
			case row.ProjectedHour != nil && hour == *row.ProjectedHour:
				cell = selectedColor.Sprint(cell)
			case hour == row.CurrentHour:
				cell = currentColor.Sprint(cell)
			default:
				cell = dimColor.Sprint(cell)
			}
			out.WriteString(cell)
			if col < 23 {
				out.WriteString(" ")
			}
		}
		out.WriteString("\n")
	}
	return out.String()
}

// Search renders numbered search hits and the status line.
func Search(places []PlaceLine, status string) string {
	var out strings.Builder
	for i, p := range places {
		out.WriteString(fmt.Sprintf("%2d %-20s %s %s\n", i+1, truncate(p.Title, 20), dimColor.Sprintf("%-28s", truncate(p.Subtitle, 28)), p.TimeZone))
	}
	if status != "" {
		out.WriteString(status + "\n")
	}
	return out.String()
}

// PlaceLine is one search hit.
type PlaceLine struct {
	Title    string
	Subtitle string
	TimeZone string
}
