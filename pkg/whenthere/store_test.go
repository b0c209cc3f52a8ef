package whenthere

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
	"github.com/codeGROOVE-dev/whenthere/pkg/persist"
	"github.com/codeGROOVE-dev/whenthere/pkg/share"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

type fakeClock struct {
	t  time.Time
	mu sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

var (
	warsaw = lookup.Place{TimeZone: "Europe/Warsaw", Title: "Warsaw", Subtitle: "Poland"}
	nyc    = lookup.Place{TimeZone: "America/New_York", Title: "New York", Subtitle: "United States, NY"}
	tokyo  = lookup.Place{TimeZone: "Asia/Tokyo", Title: "Tokyo", Subtitle: "Japan"}
)

// summer is 2024-07-15 10:00 UTC: noon in Warsaw, 06:00 in New York.
var summer = time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)

func newStore(t *testing.T, kv persist.KV, opts ...Option) (*Store, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: summer}
	if kv == nil {
		kv = persist.NewMemoryKV()
	}
	base := []Option{
		WithClock(clock.Now),
		WithGateway(persist.NewGateway(kv, nil)),
		WithSystemLocation(warsaw),
		WithDefaultLocations(warsaw),
		WithClockStyle(Clock24),
	}
	s := NewWithLogger(context.Background(), nil, append(base, opts...)...)
	t.Cleanup(func() { require.NoError(t, s.Close()) })
	return s, clock
}

func projected(t *testing.T, s *Store, loc zones.Location) int {
	t.Helper()
	h, ok := s.ProjectedHour(loc.ID)
	require.True(t, ok, "no projection for %s", loc.Title)
	return h
}

func TestWarsawNewYorkScenario(t *testing.T) {
	s, _ := newStore(t, nil)
	a, ok := s.LocationAt(0)
	require.True(t, ok)
	require.Equal(t, "Europe/Warsaw", a.TimeZone)

	require.NoError(t, s.SelectHour(a.ID, 9))
	assert.Equal(t, 9, projected(t, s, a))

	b, err := s.AddZone(nyc.TimeZone, nyc.Title, nyc.Subtitle)
	require.NoError(t, err)
	assert.Equal(t, 3, projected(t, s, b))

	require.True(t, s.RemoveZone(a.ID))
	sel, ok := s.Selection()
	require.True(t, ok)
	assert.Equal(t, b.ID, sel.SourceID)
	assert.Equal(t, 9, sel.LocalHour, "fallback keeps the pinned local hour")
	assert.Equal(t, 9, projected(t, s, b))
}

func TestSelectThenProjectSameLocation(t *testing.T) {
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc, tokyo,
		lookup.Place{TimeZone: "Asia/Kathmandu", Title: "Kathmandu"},
		lookup.Place{TimeZone: "Australia/Lord_Howe", Title: "Lord Howe"}))
	for _, loc := range s.Zones() {
		for hour := 0; hour < 24; hour++ {
			require.NoError(t, s.SelectHour(loc.ID, hour))
			assert.Equal(t, hour, projected(t, s, loc), "%s hour %d", loc.TimeZone, hour)
		}
	}
}

func TestSelectHourFailuresLeaveState(t *testing.T) {
	s, _ := newStore(t, nil)
	a, _ := s.LocationAt(0)
	require.NoError(t, s.SelectHour(a.ID, 7))
	before, _ := s.Selection()

	require.ErrorIs(t, s.SelectHour(zones.Location{}.ID, 3), zones.ErrNotFound)
	require.Error(t, s.SelectHour(a.ID, 24))

	after, _ := s.Selection()
	assert.Equal(t, before, after)
}

func TestInvalidAdds(t *testing.T) {
	s, _ := newStore(t, nil)
	before := s.Zones()

	_, err := s.AddZone("Not/AZone", "X", "")
	require.ErrorIs(t, err, zones.ErrUnknownZone)
	_, err = s.AddZone("Europe/Warsaw", "   ", "")
	require.ErrorIs(t, err, zones.ErrEmptyTitle)

	assert.Equal(t, before, s.Zones())
}

func TestFirstRunSeedsDefaults(t *testing.T) {
	kv := persist.NewMemoryKV()
	s, _ := newStore(t, kv,
		WithDefaultLocations(DefaultLocations...),
		WithSystemLocation(lookup.Place{TimeZone: "Asia/Tokyo", Title: "Tokyo", Subtitle: "Japan, JP"}))

	assert.False(t, s.Restored())
	locs := s.Zones()
	require.Len(t, locs, 5)
	assert.Equal(t, "Asia/Tokyo", locs[0].TimeZone)
	assert.Equal(t, "Japan, JP", locs[0].Subtitle)
	assert.Equal(t, "Calgary", locs[1].Title)
	assert.Equal(t, "Warsaw", locs[4].Title)

	sel, ok := s.Selection()
	require.True(t, ok)
	assert.Equal(t, locs[0].ID, sel.SourceID)
	assert.Equal(t, 19, sel.LocalHour, "current hour in Tokyo")

	snap, ok := persist.NewGateway(kv, nil).Load(context.Background())
	require.True(t, ok, "seeded state is persisted")
	assert.Len(t, snap.Zones, 5)
}

func TestSystemLocationWithoutTitle(t *testing.T) {
	s, _ := newStore(t, nil, WithSystemLocation(lookup.Place{TimeZone: "America/Argentina/Buenos_Aires"}))
	first, _ := s.LocationAt(0)
	assert.Equal(t, "Buenos Aires", first.Title)
}

func TestRestoreRoundTrip(t *testing.T) {
	kv := persist.NewMemoryKV()
	s, _ := newStore(t, kv, WithDefaultLocations(warsaw, nyc, tokyo))
	locs := s.Zones()
	require.NoError(t, s.SelectHour(locs[2].ID, 18))

	later := summer.Add(20 * time.Hour)
	clock := &fakeClock{t: later}
	restored := NewWithLogger(context.Background(), nil,
		WithClock(clock.Now),
		WithGateway(persist.NewGateway(kv, nil)),
		WithSystemLocation(lookup.Place{TimeZone: "UTC", Title: "Ignored"}),
		WithClockStyle(Clock24))

	assert.True(t, restored.Restored())
	assert.Equal(t, locs, restored.Zones())
	sel, ok := restored.Selection()
	require.True(t, ok)
	assert.Equal(t, locs[2].ID, sel.SourceID)
	assert.Equal(t, 18, sel.LocalHour)
	assert.Equal(t, time.Date(2024, 7, 16, 9, 0, 0, 0, time.UTC), sel.Anchor, "re-anchored to the new date")
}

func TestRestoreMissingSourceSelectsFirstRow(t *testing.T) {
	kv := persist.NewMemoryKV()
	first, err := zones.New("Asia/Tokyo", "Tokyo", "Japan")
	require.NoError(t, err)
	persist.NewGateway(kv, nil).Save(context.Background(), persist.Snapshot{
		Zones:    []zones.Location{first},
		Selected: &persist.SelectedRecord{SourceZoneID: zones.Location{}.ID, LocalHour: 4},
	})

	s, _ := newStore(t, kv)
	require.True(t, s.Restored())
	sel, ok := s.Selection()
	require.True(t, ok)
	assert.Equal(t, first.ID, sel.SourceID)
	assert.Equal(t, 19, sel.LocalHour)
}

func TestReplaceReanchorsSource(t *testing.T) {
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc))
	a, _ := s.LocationAt(0)
	b, _ := s.LocationAt(1)
	require.NoError(t, s.SelectHour(a.ID, 9))

	next, err := s.ReplaceZone(a.ID, tokyo.TimeZone, " Tokyo ", tokyo.Subtitle)
	require.NoError(t, err)
	assert.Equal(t, a.ID, next.ID)
	assert.Equal(t, "Tokyo", next.Title)

	got, _ := s.LocationAt(0)
	assert.Equal(t, next, got, "position preserved")

	sel, _ := s.Selection()
	assert.Equal(t, a.ID, sel.SourceID)
	assert.Equal(t, "Asia/Tokyo", sel.TimeZone)
	assert.Equal(t, 9, projected(t, s, next))
	assert.Equal(t, 20, projected(t, s, b), "09:00 Tokyo is 20:00 the day before in New York")
}

func TestReplaceNonSourceKeepsAnchor(t *testing.T) {
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc))
	a, _ := s.LocationAt(0)
	b, _ := s.LocationAt(1)
	require.NoError(t, s.SelectHour(a.ID, 9))
	before, _ := s.Selection()

	_, err := s.ReplaceZone(b.ID, tokyo.TimeZone, tokyo.Title, tokyo.Subtitle)
	require.NoError(t, err)
	after, _ := s.Selection()
	assert.Equal(t, before, after)
}

func TestReplaceFailures(t *testing.T) {
	s, _ := newStore(t, nil)
	a, _ := s.LocationAt(0)
	before := s.Zones()

	_, err := s.ReplaceZone(a.ID, "Not/AZone", "X", "")
	require.ErrorIs(t, err, zones.ErrUnknownZone)
	_, err = s.ReplaceZone(a.ID, "Asia/Tokyo", "", "")
	require.ErrorIs(t, err, zones.ErrEmptyTitle)
	_, err = s.ReplaceZone(zones.Location{}.ID, "Asia/Tokyo", "Tokyo", "")
	require.ErrorIs(t, err, zones.ErrNotFound)

	assert.Equal(t, before, s.Zones())
}

func TestRemove(t *testing.T) {
	t.Run("unknown id is a no-op", func(t *testing.T) {
		s, _ := newStore(t, nil)
		assert.False(t, s.RemoveZone(zones.Location{}.ID))
		assert.Len(t, s.Zones(), 1)
	})

	t.Run("last location clears selection", func(t *testing.T) {
		s, _ := newStore(t, nil)
		a, _ := s.LocationAt(0)
		require.True(t, s.RemoveZone(a.ID))
		_, ok := s.Selection()
		assert.False(t, ok)
	})

	t.Run("non-source keeps selection", func(t *testing.T) {
		s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc, tokyo))
		locs := s.Zones()
		require.NoError(t, s.SelectHour(locs[0].ID, 9))
		before, _ := s.Selection()
		require.True(t, s.RemoveZone(locs[1].ID))
		after, _ := s.Selection()
		assert.Equal(t, before, after)
	})

	t.Run("source at end falls back to new last", func(t *testing.T) {
		s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc, tokyo))
		locs := s.Zones()
		require.NoError(t, s.SelectHour(locs[2].ID, 21))
		require.True(t, s.RemoveZone(locs[2].ID))
		sel, _ := s.Selection()
		assert.Equal(t, locs[1].ID, sel.SourceID)
		assert.Equal(t, 21, projected(t, s, locs[1]))
	})

	t.Run("source in middle falls back to same index", func(t *testing.T) {
		s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc, tokyo))
		locs := s.Zones()
		require.NoError(t, s.SelectHour(locs[1].ID, 5))
		require.True(t, s.RemoveZone(locs[1].ID))
		sel, _ := s.Selection()
		assert.Equal(t, locs[2].ID, sel.SourceID)
		assert.Equal(t, 5, projected(t, s, locs[2]))
	})
}

func TestMovePreservesSelection(t *testing.T) {
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc, tokyo))
	locs := s.Zones()
	require.NoError(t, s.SelectHour(locs[1].ID, 14))
	before, _ := s.Selection()

	require.True(t, s.MoveZone(locs[0].ID, 3))
	assert.ElementsMatch(t, locs, s.Zones())
	assert.Equal(t, []zones.Location{locs[1], locs[2], locs[0]}, s.Zones())

	after, _ := s.Selection()
	assert.Equal(t, before, after)

	assert.False(t, s.MoveZone(locs[1].ID, 0), "unchanged order is a no-op")
}

func TestMutationsArePersisted(t *testing.T) {
	kv := persist.NewMemoryKV()
	s, _ := newStore(t, kv)
	gateway := persist.NewGateway(kv, nil)

	b, err := s.AddZone(tokyo.TimeZone, tokyo.Title, tokyo.Subtitle)
	require.NoError(t, err)
	require.NoError(t, s.SelectHour(b.ID, 22))

	snap, ok := gateway.Load(context.Background())
	require.True(t, ok)
	require.Len(t, snap.Zones, 2)
	require.NotNil(t, snap.Selected)
	assert.Equal(t, b.ID, snap.Selected.SourceZoneID)
	assert.Equal(t, 22, snap.Selected.LocalHour)

	require.True(t, s.MoveZone(b.ID, 0))
	snap, _ = gateway.Load(context.Background())
	assert.Equal(t, b.ID, snap.Zones[0].ID)
}

func TestResetToCurrentHour(t *testing.T) {
	s, clock := newStore(t, nil, WithDefaultLocations(warsaw, nyc))
	b, _ := s.LocationAt(1)
	require.NoError(t, s.SelectHour(b.ID, 1))

	clock.Set(summer.Add(3 * time.Hour))
	require.True(t, s.ResetToCurrentHour())
	sel, _ := s.Selection()
	a, _ := s.LocationAt(0)
	assert.Equal(t, a.ID, sel.SourceID)
	assert.Equal(t, 15, sel.LocalHour)

	s.ClearSelection()
	_, ok := s.ProjectedHour(a.ID)
	assert.False(t, ok)
}

type stubViewer struct {
	place lookup.Place
	calls atomic.Int32
	ok    bool
}

func (v *stubViewer) ViewerPlace(context.Context) (lookup.Place, bool) {
	v.calls.Add(1)
	return v.place, v.ok
}

func TestUpgradeFromViewer(t *testing.T) {
	viewer := &stubViewer{place: lookup.Place{TimeZone: "America/Edmonton", Title: "Calgary", Subtitle: "CA, AB"}, ok: true}
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, tokyo), WithViewer(viewer))
	a, _ := s.LocationAt(0)
	sel, _ := s.Selection()
	require.Equal(t, a.ID, sel.SourceID)

	require.True(t, s.UpgradeFromViewer(context.Background()))
	first, _ := s.LocationAt(0)
	assert.Equal(t, a.ID, first.ID)
	assert.Equal(t, "Calgary", first.Title)
	assert.Equal(t, "America/Edmonton", first.TimeZone)

	after, _ := s.Selection()
	assert.Equal(t, sel.LocalHour, after.LocalHour)
	assert.Equal(t, sel.LocalHour, projected(t, s, first))
}

func TestUpgradeFromViewerFailureKeepsDefault(t *testing.T) {
	s, _ := newStore(t, nil, WithViewer(&stubViewer{ok: false}))
	before := s.Zones()
	assert.False(t, s.UpgradeFromViewer(context.Background()))
	assert.Equal(t, before, s.Zones())

	invalid, _ := newStore(t, nil, WithViewer(&stubViewer{place: lookup.Place{TimeZone: "Not/AZone", Title: "X"}, ok: true}))
	assert.False(t, invalid.UpgradeFromViewer(context.Background()))

	none, _ := newStore(t, nil)
	assert.False(t, none.UpgradeFromViewer(context.Background()))
}

func TestStartRunsUpgradeOnlyOnFirstRun(t *testing.T) {
	kv := persist.NewMemoryKV()
	viewer := &stubViewer{place: tokyo, ok: true}

	s, _ := newStore(t, kv, WithViewer(viewer), WithTickInterval(time.Hour))
	upgraded := make(chan struct{}, 1)
	cancel := s.Subscribe(func(e Event) {
		if e == EventZones {
			select {
			case upgraded <- struct{}{}:
			default:
			}
		}
	})
	s.Start(context.Background())
	select {
	case <-upgraded:
	case <-time.After(5 * time.Second):
		t.Fatal("viewer upgrade was not applied")
	}
	cancel()
	require.NoError(t, s.Close())
	assert.Equal(t, int32(1), viewer.calls.Load())
	first, _ := s.LocationAt(0)
	assert.Equal(t, "Tokyo", first.Title)

	again, _ := newStore(t, kv, WithViewer(viewer), WithTickInterval(time.Hour))
	again.Start(context.Background())
	require.NoError(t, again.Close())
	assert.Equal(t, int32(1), viewer.calls.Load(), "restored state is not upgraded")

	disabled, _ := newStore(t, nil, WithViewer(viewer), WithViewerUpgrade(false), WithTickInterval(time.Hour))
	disabled.Start(context.Background())
	require.NoError(t, disabled.Close())
	assert.Equal(t, int32(1), viewer.calls.Load())
}

func TestStartSkipsUpgradeAfterExplicitCall(t *testing.T) {
	viewer := &stubViewer{place: tokyo, ok: true}
	s, _ := newStore(t, nil, WithViewer(viewer), WithTickInterval(time.Hour))

	require.True(t, s.UpgradeFromViewer(context.Background()))
	s.Start(context.Background())
	require.NoError(t, s.Close())

	assert.Equal(t, int32(1), viewer.calls.Load())
	first, _ := s.LocationAt(0)
	assert.Equal(t, "Tokyo", first.Title)
}

func TestTickNeverMutatesState(t *testing.T) {
	s, clock := newStore(t, nil, WithDefaultLocations(warsaw, nyc))
	a, _ := s.LocationAt(0)
	require.NoError(t, s.SelectHour(a.ID, 9))
	zonesBefore := s.Zones()
	selBefore, _ := s.Selection()

	var ticks atomic.Int32
	cancel := s.Subscribe(func(e Event) {
		if e == EventTick {
			ticks.Add(1)
		}
	})
	defer cancel()

	clock.Set(summer.Add(90 * time.Minute))
	s.Tick()
	assert.Equal(t, int32(1), ticks.Load())
	assert.Equal(t, summer.Add(90*time.Minute), s.Now())
	assert.Equal(t, 13, s.CurrentHour(a))
	assert.Equal(t, 30, s.CurrentMinute(a))
	assert.Equal(t, zonesBefore, s.Zones())
	selAfter, _ := s.Selection()
	assert.Equal(t, selBefore, selAfter)
}

func TestStartTicks(t *testing.T) {
	s, _ := newStore(t, nil, WithTickInterval(5*time.Millisecond), WithViewerUpgrade(false))
	ticked := make(chan struct{}, 1)
	s.Subscribe(func(e Event) {
		if e == EventTick {
			select {
			case ticked <- struct{}{}:
			default:
			}
		}
	})
	s.Start(context.Background())
	select {
	case <-ticked:
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
}

func TestSubscribe(t *testing.T) {
	s, _ := newStore(t, nil)
	var mu sync.Mutex
	var events []Event
	cancel := s.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
		// Observers may read the store.
		_ = s.Rows()
	})

	b, err := s.AddZone(tokyo.TimeZone, tokyo.Title, tokyo.Subtitle)
	require.NoError(t, err)
	require.NoError(t, s.SelectHour(b.ID, 1))
	a, _ := s.LocationAt(0)
	_, err = s.ReplaceZone(b.ID, nyc.TimeZone, nyc.Title, nyc.Subtitle)
	require.NoError(t, err)
	s.MoveZone(a.ID, 2)

	cancel()
	s.RemoveZone(a.ID)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Event{EventZones, EventSelection, EventZones, EventSelection, EventZones}, events)
}

func TestFormatting(t *testing.T) {
	s24, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc))
	s12, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc), WithClockStyle(Clock12))

	at := time.Date(2024, 7, 15, 7, 5, 0, 0, time.UTC)
	assert.Equal(t, "09:05", s24.ShortTime("Europe/Warsaw", at))
	assert.Equal(t, "9:05 AM", s12.ShortTime("Europe/Warsaw", at))
	assert.Equal(t, "9:05AM", s12.CompactTime("Europe/Warsaw", at))
	assert.Equal(t, "3:05AM", s12.CompactTime("America/New_York", at))

	tests := []struct {
		hour   int
		want24 string
		want12 string
	}{
		{0, "00", "12  AM"},
		{9, "09", "9  AM"},
		{10, "10", "10 AM"},
		{12, "12", "12 PM"},
		{21, "21", "9 PM"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want24, s24.HourLabel(tt.hour))
		assert.Equal(t, tt.want12, s12.HourLabel(tt.hour))
	}

	assert.Equal(t, "06:00", s24.MenuBarLabel(), "last row is New York")
	assert.Equal(t, "6:00AM", s12.MenuBarLabel())
}

func TestMenuBarLabelWithoutLocations(t *testing.T) {
	s, _ := newStore(t, nil)
	a, _ := s.LocationAt(0)
	s.RemoveZone(a.ID)
	assert.Equal(t, "12:00", s.MenuBarLabel(), "system zone is Warsaw")
}

func TestRows(t *testing.T) {
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc))
	rows := s.Rows()
	require.Len(t, rows, 2)
	assert.Equal(t, "12:00", rows[0].Time)
	assert.Equal(t, "UTC+2", rows[0].Offset)
	assert.Equal(t, 6, rows[1].CurrentHour)
	assert.Equal(t, "UTC-4", rows[1].Offset)
	require.NotNil(t, rows[0].ProjectedHour)
	assert.True(t, rows[0].Source)
	assert.False(t, rows[1].Source)
	assert.Equal(t, 6, *rows[1].ProjectedHour)

	s.ClearSelection()
	for _, row := range s.Rows() {
		assert.Nil(t, row.ProjectedHour)
		assert.False(t, row.Source)
	}
}

func TestShareLink(t *testing.T) {
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc))
	b, _ := s.LocationAt(1)
	require.NoError(t, s.SelectHour(b.ID, 3))

	u, err := url.Parse(s.ShareLink(""))
	require.NoError(t, err)
	p, err := share.Decode(u.Query().Get("state"))
	require.NoError(t, err)
	require.Len(t, p.Zones, 2)
	require.NotNil(t, p.Selected)
	assert.Equal(t, "z2", *p.Selected.ZoneID)
	assert.Equal(t, "America/New_York", p.Selected.TimeZone)
	assert.Equal(t, 3, p.Selected.LocalHour)
}

func TestConcurrentUse(t *testing.T) {
	s, _ := newStore(t, nil, WithDefaultLocations(warsaw, nyc, tokyo))
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			loc, err := s.AddZone(tokyo.TimeZone, tokyo.Title, tokyo.Subtitle)
			if err != nil {
				t.Error(err)
				return
			}
			_ = s.SelectHour(loc.ID, i)
			s.MoveZone(loc.ID, 0)
			_ = s.Rows()
			s.Tick()
			s.RemoveZone(loc.ID)
		}(i)
	}
	wg.Wait()
	assert.Len(t, s.Zones(), 3)
}
