package whenthere

import (
	"context"
	"time"

	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
	"github.com/codeGROOVE-dev/whenthere/pkg/persist"
)

// ClockStyle selects 12- or 24-hour formatting.
type ClockStyle string

// Clock styles.
const (
	ClockAuto ClockStyle = "auto"
	Clock12   ClockStyle = "12h"
	Clock24   ClockStyle = "24h"
)

// DefaultLocations seed a store that has nothing to restore. The first entry
// is replaced by the system location.
var DefaultLocations = []lookup.Place{
	{TimeZone: "America/Los_Angeles", Title: "Portland", Subtitle: "United States, OR"},
	{TimeZone: "America/Edmonton", Title: "Calgary", Subtitle: "Canada, AB"},
	{TimeZone: "America/Chicago", Title: "Houston", Subtitle: "United States, TX"},
	{TimeZone: "America/New_York", Title: "Miami", Subtitle: "United States, FL"},
	{TimeZone: "Europe/Warsaw", Title: "Warsaw", Subtitle: "Poland"},
}

// ViewerLookup resolves the viewer's place from a remote service.
type ViewerLookup interface {
	ViewerPlace(ctx context.Context) (lookup.Place, bool)
}

// Option is a functional option for configuring the store.
type Option func(*OptionHolder)

// OptionHolder holds all configuration options.
type OptionHolder struct {
	clock          func() time.Time
	gateway        *persist.Gateway
	viewer         ViewerLookup
	systemLocation *lookup.Place
	defaults       []lookup.Place
	clockStyle     ClockStyle
	tickInterval   time.Duration
	upgradeTimeout time.Duration
	viewerUpgrade  bool
}

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *OptionHolder) { o.clock = clock }
}

// WithGateway sets where state is saved and restored from.
func WithGateway(g *persist.Gateway) Option {
	return func(o *OptionHolder) { o.gateway = g }
}

// WithViewer sets the viewer lookup used to upgrade the seeded first row.
func WithViewer(v ViewerLookup) Option {
	return func(o *OptionHolder) { o.viewer = v }
}

// WithViewerUpgrade toggles the first-run viewer lookup.
func WithViewerUpgrade(enabled bool) Option {
	return func(o *OptionHolder) { o.viewerUpgrade = enabled }
}

// WithDefaultLocations replaces DefaultLocations.
func WithDefaultLocations(places ...lookup.Place) Option {
	return func(o *OptionHolder) { o.defaults = places }
}

// WithSystemLocation skips operating-system detection for the seeded first row.
func WithSystemLocation(p lookup.Place) Option {
	return func(o *OptionHolder) { o.systemLocation = &p }
}

// WithClockStyle forces 12- or 24-hour formatting. ClockAuto follows the locale.
func WithClockStyle(style ClockStyle) Option {
	return func(o *OptionHolder) { o.clockStyle = style }
}

// WithTickInterval overrides the one-second tick.
func WithTickInterval(d time.Duration) Option {
	return func(o *OptionHolder) { o.tickInterval = d }
}

// WithUpgradeTimeout bounds the first-run viewer lookup.
func WithUpgradeTimeout(d time.Duration) Option {
	return func(o *OptionHolder) { o.upgradeTimeout = d }
}
