package lookup

import (
	"strings"

	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// Normalize converts raw hits into places. Hits without a recognized zone
// or a city-like name are dropped, as are repeats of title, subtitle and zone.
func Normalize(raw []RawResult) []Place {
	places := make([]Place, 0, len(raw))
	seen := make(map[string]bool, len(raw))

	for i := range raw {
		item := &raw[i]
		zone := item.Timezone.Identifier()
		if !tzconvert.Recognized(zone) {
			continue
		}
		title := strings.TrimSpace(firstNonEmpty(item.City, item.Town, item.Village, item.Hamlet, item.Suburb, item.Name, item.AddressLine1))
		if title == "" {
			continue
		}
		subtitle := subtitleFor(item)
		key := title + "|" + subtitle + "|" + zone
		if seen[key] {
			continue
		}
		seen[key] = true
		places = append(places, Place{ID: key, TimeZone: zone, Title: title, Subtitle: subtitle})
	}
	return places
}

func subtitleFor(item *RawResult) string {
	country := item.Country
	if country == "" {
		country = strings.ToUpper(item.CountryCode)
	}
	region := firstNonEmpty(item.StateCode, item.State, item.County, item.Region, item.StateDistrict)
	switch {
	case country != "" && region != "":
		return country + ", " + region
	case country != "":
		return country
	case region != "":
		return region
	default:
		return item.Formatted
	}
}

func trimmed(s string) string { return strings.TrimSpace(s) }

// ResolveViewer picks a place from a viewer response. The geocoded place
// wins when its zone is recognized; the top-level zone is the fallback.
func ResolveViewer(resp *ViewerResponse) (Place, bool) {
	if resp == nil {
		return Place{}, false
	}

	if geo := resp.GeoapifyPlace; geo != nil {
		if zone := trimmed(geo.TimeZone); tzconvert.Recognized(zone) {
			title := trimmed(geo.Title)
			if title == "" {
				title = zones.FallbackTitle(zone)
			}
			subtitle := trimmed(geo.Subtitle)
			if subtitle == "" {
				subtitle = zones.FallbackSubtitle(zone)
			}
			return Place{TimeZone: zone, Title: title, Subtitle: subtitle}, true
		}
	}

	zone := trimmed(resp.TimeZone)
	if !tzconvert.Recognized(zone) {
		return Place{}, false
	}
	title := trimmed(resp.City)
	if title == "" {
		title = zones.FallbackTitle(zone)
	}
	country := strings.ToUpper(trimmed(resp.CountryCode))
	region := strings.ToUpper(trimmed(resp.RegionCode))
	var subtitle string
	switch {
	case country != "" && region != "":
		subtitle = country + ", " + region
	case country != "":
		subtitle = country
	default:
		subtitle = zones.FallbackSubtitle(zone)
	}
	return Place{TimeZone: zone, Title: title, Subtitle: subtitle}, true
}
