// Package persist saves and restores the tracked locations and the pinned hour.
package persist

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

// StateKey is the single versioned key the snapshot lives under.
const StateKey = "whenthere.clock_store_state.v1"

// Snapshot is the persisted form of the store.
// The anchor instant is deliberately absent: restore re-anchors against "now".
type Snapshot struct {
	Zones    []zones.Location `json:"zones"`
	Selected *SelectedRecord  `json:"selected"`
}

// SelectedRecord is the minimal persisted selection.
type SelectedRecord struct {
	SourceZoneID uuid.UUID `json:"sourceZoneID"`
	LocalHour    int       `json:"localHour"`
}

// Gateway reads and writes snapshots through a KV backend.
// Failures never reach the caller; they are logged and the round is skipped.
type Gateway struct {
	kv     KV
	logger *slog.Logger
	key    string
}

// NewGateway returns a gateway over kv. A nil logger uses slog.Default().
func NewGateway(kv KV, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{kv: kv, logger: logger, key: StateKey}
}

// Save writes the snapshot. Errors are logged and swallowed; the next successful
// mutation retries.
func (g *Gateway) Save(ctx context.Context, snap Snapshot) {
	if g == nil || g.kv == nil {
		return
	}
	if snap.Zones == nil {
		snap.Zones = []zones.Location{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		g.logger.Warn("failed to encode state snapshot", "error", err)
		return
	}
	if err := g.kv.Set(ctx, g.key, data); err != nil {
		g.logger.Warn("failed to persist state snapshot", "key", g.key, "error", err)
		return
	}
	g.logger.Debug("state snapshot saved", "zones", len(snap.Zones), "has_selection", snap.Selected != nil)
}

// Load returns the stored snapshot and whether it is usable. A missing, malformed
// or empty snapshot reports false so the caller seeds defaults instead.
//
// Entries that no longer validate (unknown zone, blank title, nil or duplicate
// id) are dropped. A selection with an hour outside 0-23 is discarded.
func (g *Gateway) Load(ctx context.Context) (Snapshot, bool) {
	if g == nil || g.kv == nil {
		return Snapshot{}, false
	}
	data, err := g.kv.Get(ctx, g.key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			g.logger.Warn("failed to read state snapshot", "key", g.key, "error", err)
		}
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		g.logger.Warn("discarding malformed state snapshot", "key", g.key, "error", err)
		return Snapshot{}, false
	}

	seen := make(map[uuid.UUID]bool, len(snap.Zones))
	valid := snap.Zones[:0]
	for _, z := range snap.Zones {
		if z.ID == uuid.Nil || seen[z.ID] || !tzconvert.Recognized(z.TimeZone) || strings.TrimSpace(z.Title) == "" {
			g.logger.Warn("dropping invalid stored location", "id", z.ID, "zone", z.TimeZone, "title", z.Title)
			continue
		}
		seen[z.ID] = true
		valid = append(valid, z)
	}
	snap.Zones = valid
	if len(snap.Zones) == 0 {
		return Snapshot{}, false
	}

	if snap.Selected != nil && (snap.Selected.LocalHour < 0 || snap.Selected.LocalHour > 23) {
		g.logger.Warn("discarding stored selection with invalid hour", "hour", snap.Selected.LocalHour)
		snap.Selected = nil
	}
	return snap, true
}

// Close releases the backend.
func (g *Gateway) Close() error {
	if g == nil || g.kv == nil {
		return nil
	}
	return g.kv.Close()
}
