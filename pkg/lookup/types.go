package lookup

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Place is a resolved location: a recognized time zone plus display labels.
type Place struct {
	ID       string `json:"id,omitempty"`
	TimeZone string `json:"timeZone"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// ViewerResponse is the viewer-context payload.
type ViewerResponse struct {
	City          string       `json:"city,omitempty"`
	CountryCode   string       `json:"countryCode,omitempty"`
	RegionCode    string       `json:"regionCode,omitempty"`
	TimeZone      string       `json:"timeZone,omitempty"`
	HourFormat    string       `json:"hourFormat,omitempty"`
	GeoapifyPlace *ViewerPlace `json:"geoapifyPlace,omitempty"`
}

// ViewerPlace is the geocoded place attached to a viewer response.
type ViewerPlace struct {
	Title    string `json:"title,omitempty"`
	Subtitle string `json:"subtitle,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// AutocompleteResponse is the city-search payload.
type AutocompleteResponse struct {
	Results []RawResult `json:"results"`
}

// RawResult is one unnormalized city-search hit.
type RawResult struct {
	Timezone      *TimeZoneValue `json:"timezone,omitempty"`
	AddressLine1  string         `json:"address_line1,omitempty"`
	City          string         `json:"city,omitempty"`
	Country       string         `json:"country,omitempty"`
	CountryCode   string         `json:"country_code,omitempty"`
	County        string         `json:"county,omitempty"`
	Formatted     string         `json:"formatted,omitempty"`
	Hamlet        string         `json:"hamlet,omitempty"`
	Name          string         `json:"name,omitempty"`
	Region        string         `json:"region,omitempty"`
	State         string         `json:"state,omitempty"`
	StateCode     string         `json:"state_code,omitempty"`
	StateDistrict string         `json:"state_district,omitempty"`
	Suburb        string         `json:"suburb,omitempty"`
	Town          string         `json:"town,omitempty"`
	Village       string         `json:"village,omitempty"`
}

// TimeZoneValue holds a "timezone" field that arrives either as a bare
// identifier string or as an object with id/name members.
type TimeZoneValue struct {
	Object *TimeZoneObject
	String string
	IsText bool
}

// TimeZoneObject is the object form of TimeZoneValue.
type TimeZoneObject struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON tries the string form first, then the object form.
func (v *TimeZoneValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("timezone string: %w", err)
		}
		*v = TimeZoneValue{String: s, IsText: true}
		return nil
	}
	var obj TimeZoneObject
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("timezone object: %w", err)
	}
	*v = TimeZoneValue{Object: &obj}
	return nil
}

// MarshalJSON writes back whichever form was decoded.
func (v TimeZoneValue) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.String)
	}
	if v.Object == nil {
		return []byte("null"), nil
	}
	return json.Marshal(v.Object)
}

// Identifier returns the zone name: the string form, else the object's name, else its id.
func (v *TimeZoneValue) Identifier() string {
	if v == nil {
		return ""
	}
	if v.IsText {
		return v.String
	}
	if v.Object == nil {
		return ""
	}
	if v.Object.Name != "" {
		return v.Object.Name
	}
	return v.Object.ID
}
