// Package locale inspects the operating environment: the system time zone,
// the user's region and language, and whether the region reads a 24-hour clock.
package locale

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	golocale "github.com/jeandeaual/go-locale"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
	"github.com/codeGROOVE-dev/whenthere/pkg/zones"
)

// Info describes the user's locale.
type Info struct {
	Tag    language.Tag
	Region string // ISO 3166-1 alpha-2, upper case; empty when unknown
}

// Detect reads the user's locale from the operating system.
func Detect() Info {
	raw, err := golocale.GetLocale()
	if err != nil || raw == "" {
		raw = os.Getenv("LANG")
	}
	info := Parse(raw)
	if info.Region == "" {
		if region, err := golocale.GetRegion(); err == nil {
			info.Region = strings.ToUpper(strings.TrimSpace(region))
		}
	}
	return info
}

// Parse interprets a locale string such as "en_US.UTF-8" or "pl-PL".
func Parse(raw string) Info {
	raw, _, _ = strings.Cut(strings.TrimSpace(raw), ".")
	raw, _, _ = strings.Cut(raw, "@")
	raw = strings.ReplaceAll(raw, "_", "-")
	if raw == "" || raw == "C" || raw == "POSIX" {
		return Info{Tag: language.Und}
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return Info{Tag: language.Und}
	}
	info := Info{Tag: tag}
	if region, confidence := tag.Region(); confidence == language.Exact {
		info.Region = region.String()
	}
	return info
}

// CountryName returns the region's name in the user's language, falling
// back to English. Unknown regions yield "".
func (i Info) CountryName() string {
	if i.Region == "" {
		return ""
	}
	region, err := language.ParseRegion(i.Region)
	if err != nil {
		return ""
	}
	if namer := display.Regions(i.Tag); namer != nil {
		if name := namer.Name(region); name != "" {
			return name
		}
	}
	return display.English.Regions().Name(region)
}

// Subtitle builds "Country, CC" for the seeded row. Missing pieces degrade to
// whichever part exists, then to the zone-derived subtitle.
func (i Info) Subtitle(zone string) string {
	country := i.CountryName()
	switch {
	case country != "" && i.Region != "":
		return country + ", " + i.Region
	case country != "":
		return country
	case i.Region != "":
		return i.Region
	default:
		return zones.FallbackSubtitle(zone)
	}
}

// twelveHourRegions read clock times on a 12-hour dial by default.
var twelveHourRegions = map[string]bool{
	"US": true, "CA": true, "AU": true, "NZ": true, "IN": true, "PH": true,
	"PK": true, "EG": true, "SA": true, "MY": true, "BD": true, "CO": true,
	"MX": true, "JO": true, "SV": true, "HN": true, "NI": true, "PR": true,
}

// Uses24HourClock reports whether the locale prefers a 24-hour clock.
func (i Info) Uses24HourClock() bool {
	if !twelveHourRegions[i.Region] {
		return true
	}
	// French-speaking Canada uses 24-hour time.
	base, _ := i.Tag.Base()
	return i.Region == "CA" && base.String() == "fr"
}

// SystemZone returns the IANA name of the system time zone, or "UTC" when it
// cannot be determined.
func SystemZone() string {
	return detectZone(os.LookupEnv, os.ReadFile, os.Readlink, time.Local.String())
}

func detectZone(
	lookupEnv func(string) (string, bool),
	readFile func(string) ([]byte, error),
	readlink func(string) (string, error),
	localName string,
) string {
	if tz, ok := lookupEnv("TZ"); ok {
		tz = strings.TrimPrefix(strings.TrimSpace(tz), ":")
		if tz == "" {
			return "UTC"
		}
		if tzconvert.Recognized(tz) {
			return tz
		}
	}
	if localName != "" && localName != "Local" && tzconvert.Recognized(localName) {
		return localName
	}
	if data, err := readFile("/etc/timezone"); err == nil {
		if tz := strings.TrimSpace(string(data)); tzconvert.Recognized(tz) {
			return tz
		}
	}
	if target, err := readlink("/etc/localtime"); err == nil {
		if tz := zoneFromPath(target); tzconvert.Recognized(tz) {
			return tz
		}
	}
	return "UTC"
}

// zoneFromPath extracts "Europe/Warsaw" from ".../zoneinfo/Europe/Warsaw".
func zoneFromPath(path string) string {
	path = filepath.ToSlash(path)
	const marker = "zoneinfo/"
	if idx := strings.LastIndex(path, marker); idx != -1 {
		return path[idx+len(marker):]
	}
	return ""
}

// DefaultLocation is the seeded first row: the system zone titled by its
// city segment and subtitled from locale region metadata.
func DefaultLocation(zone string, info Info) (title, subtitle string) {
	return zones.FallbackTitle(zone), info.Subtitle(zone)
}
