// Package zones holds the ordered list of tracked locations.
package zones

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
)

var (
	// ErrUnknownZone is returned when a time zone identifier is not recognized.
	ErrUnknownZone = errors.New("unrecognized time zone")
	// ErrEmptyTitle is returned when a title is blank after trimming.
	ErrEmptyTitle = errors.New("title is empty")
	// ErrNotFound is returned when no location has the requested id.
	ErrNotFound = errors.New("location not found")
)

// Location is one tracked place.
type Location struct {
	ID       uuid.UUID `json:"id"`
	TimeZone string    `json:"timeZone"`
	Title    string    `json:"title"`
	Subtitle string    `json:"subtitle"`
}

// New validates and normalizes a location, assigning it a fresh id.
func New(timeZone, title, subtitle string) (Location, error) {
	return build(uuid.New(), timeZone, title, subtitle)
}

func build(id uuid.UUID, timeZone, title, subtitle string) (Location, error) {
	if !tzconvert.Recognized(timeZone) {
		return Location{}, fmt.Errorf("%w: %q", ErrUnknownZone, timeZone)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return Location{}, ErrEmptyTitle
	}
	return Location{
		ID:       id,
		TimeZone: timeZone,
		Title:    title,
		Subtitle: strings.TrimSpace(subtitle),
	}, nil
}

// Registry is an ordered collection of locations. Order is display order only.
// It is not safe for concurrent use; the owner serializes access.
type Registry struct {
	items []Location
}

// NewRegistry returns a registry holding a copy of locs.
func NewRegistry(locs ...Location) *Registry {
	return &Registry{items: slices.Clone(locs)}
}

// Len returns the number of locations.
func (r *Registry) Len() int {
	return len(r.items)
}

// All returns a copy of the locations in display order.
func (r *Registry) All() []Location {
	return slices.Clone(r.items)
}

// At returns the location at index i.
func (r *Registry) At(i int) (Location, bool) {
	if i < 0 || i >= len(r.items) {
		return Location{}, false
	}
	return r.items[i], true
}

// Index returns the position of id, or -1.
func (r *Registry) Index(id uuid.UUID) int {
	return slices.IndexFunc(r.items, func(l Location) bool { return l.ID == id })
}

// Get returns the location with id.
func (r *Registry) Get(id uuid.UUID) (Location, bool) {
	i := r.Index(id)
	if i < 0 {
		return Location{}, false
	}
	return r.items[i], true
}

// First returns the first location.
func (r *Registry) First() (Location, bool) {
	return r.At(0)
}

// Add appends a new location.
func (r *Registry) Add(timeZone, title, subtitle string) (Location, error) {
	loc, err := New(timeZone, title, subtitle)
	if err != nil {
		return Location{}, err
	}
	r.items = append(r.items, loc)
	return loc, nil
}

// Replace swaps the zone and labels of id in place, keeping its identity and
// position. It returns the previous and the new value.
func (r *Registry) Replace(id uuid.UUID, timeZone, title, subtitle string) (prev, next Location, err error) {
	i := r.Index(id)
	if i < 0 {
		return Location{}, Location{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next, err = build(id, timeZone, title, subtitle)
	if err != nil {
		return Location{}, Location{}, err
	}
	prev = r.items[i]
	r.items[i] = next
	return prev, next, nil
}

// Remove deletes id and returns the removed location and its former index.
func (r *Registry) Remove(id uuid.UUID) (Location, int, bool) {
	i := r.Index(id)
	if i < 0 {
		return Location{}, -1, false
	}
	removed := r.items[i]
	r.items = slices.Delete(r.items, i, i+1)
	return removed, i, true
}

// MoveTo moves id to an insertion index expressed against the current order,
// as a drag-and-drop gesture reports it. The index is clamped to [0, Len()].
// Insertion index Len() means "after the last row".
// Dropping to the right of the original slot shifts the target left by one so
// the item lands where it was dropped. It reports whether the order changed.
func (r *Registry) MoveTo(id uuid.UUID, insertionIndex int) bool {
	from := r.Index(id)
	if from < 0 {
		return false
	}

	reordered := slices.Clone(r.items)
	moved := reordered[from]
	reordered = slices.Delete(reordered, from, from+1)

	target := max(0, min(insertionIndex, len(r.items)))
	if insertionIndex > from {
		target--
	}
	target = max(0, min(target, len(reordered)))
	reordered = slices.Insert(reordered, target, moved)

	if slices.EqualFunc(reordered, r.items, func(a, b Location) bool { return a.ID == b.ID }) {
		return false
	}
	r.items = reordered
	return true
}

// FallbackTitle derives a title from a zone identifier: its last path segment
// with underscores as spaces ("America/New_York" -> "New York").
func FallbackTitle(timeZone string) string {
	parts := strings.Split(timeZone, "/")
	last := parts[len(parts)-1]
	if last == "" {
		return timeZone
	}
	return strings.ReplaceAll(last, "_", " ")
}

// FallbackSubtitle derives a subtitle from the remaining segments
// ("America/Argentina/Buenos_Aires" -> "America / Argentina").
func FallbackSubtitle(timeZone string) string {
	parts := strings.Split(timeZone, "/")
	if len(parts) < 2 {
		return ""
	}
	return strings.ReplaceAll(strings.Join(parts[:len(parts)-1], " / "), "_", " ")
}
