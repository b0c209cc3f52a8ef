package gemini

import (
	"fmt"
	"strings"
)

const placePrompt = `A user of a world-clock app typed the text below while searching for a city to add.
Return up to 5 real populated places the text most plausibly refers to, best match first.

RULES:
- time_zone MUST be a canonical IANA identifier (e.g. "America/Los_Angeles", "Asia/Kolkata"), never an abbreviation or UTC offset
- title is the city name in English, without the country
- subtitle is the country name in English; for the United States, Canada and Australia append the state or province code ("United States, OR")
- If the text is a misspelling, correct it ("Warsw" -> Warsaw)
- If the text names a country or region rather than a city, return its capital or largest city
- If nothing plausible matches, return an empty places array

TEXT:
%s`

// BuildPrompt returns the place-resolution prompt for query.
func BuildPrompt(query string) string {
	return fmt.Sprintf(placePrompt, strings.TrimSpace(query))
}
