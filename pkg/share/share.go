// Package share encodes the tracked locations and the pinned hour into a
// link that the web viewer can open.
package share

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/google/uuid"

	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

// DefaultBaseURL is the web viewer.
const DefaultBaseURL = "https://time.yaosamo.com/"

// Payload is the JSON carried in the state parameter.
type Payload struct {
	Selected *Selected `json:"selected"`
	Zones    []Zone    `json:"zones"`
}

// Zone is one shared location. IDs are positional ("z1", "z2", ...).
type Zone struct {
	ID       string `json:"id"`
	TimeZone string `json:"timeZone"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// Selected is the shared pinned hour. ZoneID is nil when the source row is
// not among the shared zones.
type Selected struct {
	ZoneID    *string `json:"zoneId"`
	TimeZone  string  `json:"timeZone"`
	LocalHour int     `json:"localHour"`
}

// Selection is the pinned hour being shared.
type Selection struct {
	SourceID  uuid.UUID
	TimeZone  string
	LocalHour int
}

// Build assembles the payload for locs and an optional selection.
func Build(locs []zones.Location, sel *Selection) Payload {
	p := Payload{Zones: make([]Zone, 0, len(locs))}
	var sourceZoneID *string
	for i, loc := range locs {
		id := "z" + strconv.Itoa(i+1)
		p.Zones = append(p.Zones, Zone{ID: id, TimeZone: loc.TimeZone, Title: loc.Title, Subtitle: loc.Subtitle})
		if sel != nil && loc.ID == sel.SourceID && sourceZoneID == nil {
			sourceZoneID = &id
		}
	}
	if sel != nil {
		p.Selected = &Selected{ZoneID: sourceZoneID, TimeZone: sel.TimeZone, LocalHour: sel.LocalHour}
	}
	return p
}

// Encode returns the unpadded base64url JSON form of p.
func Encode(p Payload) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encoding share payload: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// Link returns base with the encoded state query parameter. Any failure
// yields base unchanged.
func Link(base string, locs []zones.Location, sel *Selection) string {
	if base == "" {
		base = DefaultBaseURL
	}
	state, err := Encode(Build(locs, sel))
	if err != nil {
		return base
	}
	u, err := url.Parse(base)
	if err != nil {
		return base
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String()
}

// Decode parses a state parameter. Padded input is accepted.
func Decode(state string) (Payload, error) {
	data, err := base64.RawURLEncoding.DecodeString(trimPadding(state))
	if err != nil {
		return Payload{}, fmt.Errorf("decoding share state: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, fmt.Errorf("parsing share state: %w", err)
	}
	return p, nil
}

func trimPadding(s string) string {
	for len(s) > 0 && s[len(s)-1] == '=' {
		s = s[:len(s)-1]
	}
	return s
}
