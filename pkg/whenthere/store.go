// Package whenthere owns the tracked locations and the pinned hour, projects
// that hour onto every location, and keeps both persisted.
package whenthere

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/whenthere/pkg/locale"
	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
	"github.com/codeGROOVE-dev/whenthere/pkg/persist"
	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

// Selection is the pinned hour: a local hour in a source location and the
// instant it denotes.
type Selection struct {
	Anchor    time.Time `json:"anchor"`
	TimeZone  string    `json:"timeZone"`
	LocalHour int       `json:"localHour"`
	SourceID  uuid.UUID `json:"sourceId"`
}

// Store is the single authoritative registry and selection. All methods are
// safe for concurrent use; observers are notified after the lock is released.
type Store struct {
	now       time.Time
	ctx       context.Context //nolint:containedctx // persistence context for mutations
	clock     func() time.Time
	logger    *slog.Logger
	gateway   *persist.Gateway
	viewer    ViewerLookup
	registry  *zones.Registry
	selection *Selection
	observers map[int]func(Event)
	cancel    context.CancelFunc
	system    lookup.Place
	style     ClockStyle

	tickInterval   time.Duration
	upgradeTimeout time.Duration
	wg             sync.WaitGroup
	nextObserver   int
	mu             sync.Mutex
	obsMu          sync.Mutex
	restored       bool
	viewerUpgrade  bool
	upgradeTried   bool
	started        bool
}

// New creates a store with the default logger.
func New(ctx context.Context, opts ...Option) *Store {
	return NewWithLogger(ctx, slog.Default(), opts...)
}

// NewWithLogger restores persisted state or, failing that, seeds the default
// locations with the system location first and pins its current hour.
func NewWithLogger(ctx context.Context, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	holder := &OptionHolder{
		clock:          time.Now,
		defaults:       DefaultLocations,
		clockStyle:     ClockAuto,
		tickInterval:   time.Second,
		upgradeTimeout: lookup.DefaultTimeout,
		viewerUpgrade:  true,
	}
	for _, opt := range opts {
		opt(holder)
	}

	s := &Store{
		ctx:            context.WithoutCancel(ctx),
		clock:          holder.clock,
		logger:         logger,
		gateway:        holder.gateway,
		viewer:         holder.viewer,
		registry:       zones.NewRegistry(),
		observers:      make(map[int]func(Event)),
		style:          holder.clockStyle,
		tickInterval:   holder.tickInterval,
		upgradeTimeout: holder.upgradeTimeout,
		viewerUpgrade:  holder.viewerUpgrade,
	}
	s.now = s.clock()

	var info *locale.Info
	detect := func() locale.Info {
		if info == nil {
			detected := locale.Detect()
			info = &detected
		}
		return *info
	}

	if holder.systemLocation != nil {
		s.system = *holder.systemLocation
	} else {
		zone := locale.SystemZone()
		title, subtitle := locale.DefaultLocation(zone, detect())
		s.system = lookup.Place{TimeZone: zone, Title: title, Subtitle: subtitle}
	}
	if s.style != Clock12 && s.style != Clock24 {
		s.style = Clock12
		if detect().Uses24HourClock() {
			s.style = Clock24
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.restore() {
		s.restored = true
		logger.Debug("restored state", "zones", s.registry.Len(), "selected", s.selection != nil)
		return s
	}
	s.seed(holder.defaults)
	s.applySystemLocation()
	s.ensureDefaultSelection()
	logger.Debug("seeded default state", "zones", s.registry.Len(), "system_zone", s.system.TimeZone)
	return s
}

// Restored reports whether the store started from persisted state.
func (s *Store) Restored() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restored
}

// restore applies the persisted snapshot. Caller holds mu.
func (s *Store) restore() bool {
	snap, ok := s.gateway.Load(s.ctx)
	if !ok {
		return false
	}
	s.registry = zones.NewRegistry(snap.Zones...)

	if snap.Selected != nil {
		if loc, found := s.registry.Get(snap.Selected.SourceZoneID); found {
			if anchor, err := tzconvert.AnchorFor(loc.TimeZone, snap.Selected.LocalHour, s.clock()); err == nil {
				s.selection = &Selection{SourceID: loc.ID, TimeZone: loc.TimeZone, LocalHour: snap.Selected.LocalHour, Anchor: anchor}
				return true
			}
		}
	}
	s.selection = nil
	s.ensureDefaultSelection()
	return true
}

func (s *Store) seed(places []lookup.Place) {
	for _, p := range places {
		if _, err := s.registry.Add(p.TimeZone, p.Title, p.Subtitle); err != nil {
			s.logger.Warn("skipping invalid default location", "zone", p.TimeZone, "title", p.Title, "error", err)
		}
	}
}

// applySystemLocation overwrites the first row with the system location,
// keeping its identity. With no rows the system location becomes the only one.
func (s *Store) applySystemLocation() {
	p := s.system
	if !tzconvert.Recognized(p.TimeZone) {
		return
	}
	if p.Title == "" {
		p.Title = zones.FallbackTitle(p.TimeZone)
	}
	first, ok := s.registry.First()
	if !ok {
		if _, err := s.registry.Add(p.TimeZone, p.Title, p.Subtitle); err != nil {
			s.logger.Debug("system location rejected", "zone", p.TimeZone, "error", err)
		}
		return
	}
	if _, _, err := s.registry.Replace(first.ID, p.TimeZone, p.Title, p.Subtitle); err != nil {
		s.logger.Debug("system location rejected", "zone", p.TimeZone, "error", err)
	}
}

// ensureDefaultSelection pins the current hour of the first row. Caller holds mu.
func (s *Store) ensureDefaultSelection() bool {
	first, ok := s.registry.First()
	if !ok {
		return false
	}
	now := s.clock()
	return s.selectLocked(first, tzconvert.CivilHour(first.TimeZone, now), now) == nil
}

// selectLocked pins hour in loc and persists. Caller holds mu.
func (s *Store) selectLocked(loc zones.Location, hour int, now time.Time) error {
	anchor, err := tzconvert.AnchorFor(loc.TimeZone, hour, now)
	if err != nil {
		return err
	}
	s.selection = &Selection{SourceID: loc.ID, TimeZone: loc.TimeZone, LocalHour: hour, Anchor: anchor}
	s.persist()
	return nil
}

// reanchorLocked moves the selection to loc at the same local hour. When the
// anchor cannot be recomputed the previous instant is kept.
func (s *Store) reanchorLocked(loc zones.Location) {
	if s.selection == nil {
		return
	}
	next := *s.selection
	next.SourceID = loc.ID
	next.TimeZone = loc.TimeZone
	if anchor, err := tzconvert.AnchorFor(loc.TimeZone, next.LocalHour, s.clock()); err == nil {
		next.Anchor = anchor
	} else {
		s.logger.Debug("re-anchor failed, keeping previous instant", "zone", loc.TimeZone, "error", err)
	}
	s.selection = &next
}

// persist saves the current state. Caller holds mu.
func (s *Store) persist() {
	snap := persist.Snapshot{Zones: s.registry.All()}
	if s.selection != nil {
		snap.Selected = &persist.SelectedRecord{SourceZoneID: s.selection.SourceID, LocalHour: s.selection.LocalHour}
	}
	s.gateway.Save(s.ctx, snap)
}

// SelectHour pins hour in the location with id.
func (s *Store) SelectHour(id uuid.UUID, hour int) error {
	s.mu.Lock()
	loc, ok := s.registry.Get(id)
	if !ok {
		s.mu.Unlock()
		return zones.ErrNotFound
	}
	err := s.selectLocked(loc, hour, s.clock())
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("select %d in %s: %w", hour, loc.TimeZone, err)
	}
	s.notify(EventSelection)
	return nil
}

// ResetToCurrentHour pins the current hour of the first location.
func (s *Store) ResetToCurrentHour() bool {
	s.mu.Lock()
	ok := s.ensureDefaultSelection()
	s.mu.Unlock()
	if ok {
		s.notify(EventSelection)
	}
	return ok
}

// ClearSelection removes the pinned hour.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	if s.selection == nil {
		s.mu.Unlock()
		return
	}
	s.selection = nil
	s.persist()
	s.mu.Unlock()
	s.notify(EventSelection)
}

// Selection returns the pinned hour, if any.
func (s *Store) Selection() (Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selection == nil {
		return Selection{}, false
	}
	return *s.selection, true
}

// ProjectedHour returns the pinned instant's hour in the location with id.
func (s *Store) ProjectedHour(id uuid.UUID) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	loc, ok := s.registry.Get(id)
	if !ok || s.selection == nil {
		return 0, false
	}
	return tzconvert.CivilHour(loc.TimeZone, s.selection.Anchor), true
}

// AddZone appends a location.
func (s *Store) AddZone(timeZone, title, subtitle string) (zones.Location, error) {
	s.mu.Lock()
	loc, err := s.registry.Add(timeZone, title, subtitle)
	if err == nil {
		s.persist()
	}
	s.mu.Unlock()
	if err != nil {
		return zones.Location{}, err
	}
	s.notify(EventZones)
	return loc, nil
}

// ReplaceZone swaps the zone and labels of the location with id, keeping its
// identity and position. A selection sourced from it is re-anchored.
func (s *Store) ReplaceZone(id uuid.UUID, timeZone, title, subtitle string) (zones.Location, error) {
	s.mu.Lock()
	prev, next, err := s.registry.Replace(id, timeZone, title, subtitle)
	reanchored := false
	if err == nil {
		if s.selection != nil && s.selection.SourceID == prev.ID {
			s.reanchorLocked(next)
			reanchored = true
		}
		s.persist()
	}
	s.mu.Unlock()
	if err != nil {
		return zones.Location{}, err
	}
	s.notify(EventZones)
	if reanchored {
		s.notify(EventSelection)
	}
	return next, nil
}

// RemoveZone deletes the location with id. A selection sourced from it moves
// to the location now at the same index (or the new last one) at the same
// local hour. Unknown ids are ignored.
func (s *Store) RemoveZone(id uuid.UUID) bool {
	s.mu.Lock()
	removed, index, ok := s.registry.Remove(id)
	if !ok {
		s.mu.Unlock()
		return false
	}
	selectionChanged := false
	switch {
	case s.registry.Len() == 0:
		selectionChanged = s.selection != nil
		s.selection = nil
		s.persist()
	case s.selection != nil && s.selection.SourceID == removed.ID:
		selectionChanged = true
		fallback, _ := s.registry.At(min(index, s.registry.Len()-1))
		if anchor, err := tzconvert.AnchorFor(fallback.TimeZone, s.selection.LocalHour, s.clock()); err == nil {
			s.selection = &Selection{SourceID: fallback.ID, TimeZone: fallback.TimeZone, LocalHour: s.selection.LocalHour, Anchor: anchor}
			s.persist()
		} else {
			s.selection = nil
			if !s.ensureDefaultSelection() {
				s.persist()
			}
		}
	default:
		s.persist()
	}
	s.mu.Unlock()

	s.notify(EventZones)
	if selectionChanged {
		s.notify(EventSelection)
	}
	return true
}

// MoveZone moves the location with id to insertionIndex, an index into the
// list as it was before the move. The selection is untouched.
func (s *Store) MoveZone(id uuid.UUID, insertionIndex int) bool {
	s.mu.Lock()
	moved := s.registry.MoveTo(id, insertionIndex)
	if moved {
		s.persist()
	}
	s.mu.Unlock()
	if moved {
		s.notify(EventZones)
	}
	return moved
}

// Zones returns the locations in display order.
func (s *Store) Zones() []zones.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.All()
}

// Location returns the location with id.
func (s *Store) Location(id uuid.UUID) (zones.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.Get(id)
}

// LocationAt returns the location at display index i.
func (s *Store) LocationAt(i int) (zones.Location, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.At(i)
}

// Now returns the instant of the last tick.
func (s *Store) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// CurrentHour is the civil hour in loc at the last tick.
func (s *Store) CurrentHour(loc zones.Location) int {
	return tzconvert.CivilHour(loc.TimeZone, s.Now())
}

// CurrentMinute is the civil minute in loc at the last tick.
func (s *Store) CurrentMinute(loc zones.Location) int {
	return tzconvert.CivilMinute(loc.TimeZone, s.Now())
}

// UpgradeFromViewer replaces the first row with the viewer's place when the
// lookup yields one. It never fails; the result reports whether anything changed.
// Once called, Start no longer launches its own attempt.
func (s *Store) UpgradeFromViewer(ctx context.Context) bool {
	if s.viewer == nil {
		return false
	}
	s.mu.Lock()
	s.upgradeTried = true
	s.mu.Unlock()
	if s.upgradeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.upgradeTimeout)
		defer cancel()
	}
	place, ok := s.viewer.ViewerPlace(ctx)
	if !ok || ctx.Err() != nil {
		return false
	}
	return s.applyViewerPlace(place)
}

func (s *Store) applyViewerPlace(p lookup.Place) bool {
	s.mu.Lock()
	first, ok := s.registry.First()
	if !ok {
		s.mu.Unlock()
		return false
	}
	prev, next, err := s.registry.Replace(first.ID, p.TimeZone, p.Title, p.Subtitle)
	if err != nil {
		s.mu.Unlock()
		s.logger.Debug("viewer place rejected", "zone", p.TimeZone, "error", err)
		return false
	}
	reanchored := false
	if s.selection != nil && s.selection.SourceID == prev.ID {
		s.reanchorLocked(next)
		reanchored = true
	}
	s.persist()
	s.mu.Unlock()

	s.logger.Info("upgraded default location from viewer lookup", "zone", next.TimeZone, "title", next.Title)
	s.notify(EventZones)
	if reanchored {
		s.notify(EventSelection)
	}
	return true
}

// Start runs the tick and, on a first run, the viewer upgrade. It returns
// immediately; Close stops both.
func (s *Store) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	upgrade := s.viewerUpgrade && !s.restored && !s.upgradeTried && s.viewer != nil
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.tickLoop(ctx)
	}()

	if upgrade {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.UpgradeFromViewer(ctx)
		}()
	}
}

func (s *Store) tickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick advances the rendering clock. It never touches locations or the selection.
func (s *Store) Tick() {
	s.mu.Lock()
	s.now = s.clock()
	s.mu.Unlock()
	s.notify(EventTick)
}

// Close stops background work started by Start.
func (s *Store) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()
	return nil
}
