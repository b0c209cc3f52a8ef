// Package googlemaps resolves city names to time zones with the Google
// Geocoding and Time Zone APIs.
package googlemaps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
)

const (
	defaultBaseURL = "https://maps.googleapis.com/maps/api"
	maxResults     = 3
)

// ErrNoAPIKey is returned when the client was built without a key.
var ErrNoAPIKey = errors.New("google maps API key not configured")

// Location represents a geographic location with coordinates.
type Location struct {
	Latitude  float64
	Longitude float64
}

// HTTPClient interface for making HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client handles Google Maps API operations.
type Client struct {
	httpClient HTTPClient
	logger     *slog.Logger
	now        func() time.Time
	apiKey     string
	baseURL    string
}

// NewClient creates a new Google Maps API client.
func NewClient(apiKey string, httpClient HTTPClient, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
		baseURL:    defaultBaseURL,
		now:        time.Now,
	}
}

// Name identifies the resolver in search attempt notes.
func (*Client) Name() string { return "google-maps" }

type addressComponent struct {
	LongName  string   `json:"long_name"`
	ShortName string   `json:"short_name"`
	Types     []string `json:"types"`
}

type geocodeResult struct {
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []addressComponent `json:"address_components"`
	Types             []string           `json:"types"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
		LocationType string `json:"location_type"`
	} `json:"geometry"`
}

// ResolvePlace geocodes query and looks up the zone of each of the first few hits.
func (c *Client) ResolvePlace(ctx context.Context, query string) ([]lookup.Place, error) {
	results, err := c.geocode(ctx, query)
	if err != nil {
		return nil, err
	}

	var places []lookup.Place
	for i := range results {
		if len(places) == maxResults {
			break
		}
		r := &results[i]
		if imprecise(r) {
			c.logger.Debug("rejecting imprecise geocoding result", "query", query, "address", r.FormattedAddress)
			continue
		}
		zone, err := c.TimezoneForCoordinates(ctx, r.Geometry.Location.Lat, r.Geometry.Location.Lng)
		if err != nil {
			c.logger.Debug("timezone lookup failed", "address", r.FormattedAddress, "error", err)
			continue
		}
		title, subtitle := labels(r)
		places = append(places, lookup.Place{TimeZone: zone, Title: title, Subtitle: subtitle})
	}
	if len(places) == 0 {
		return nil, fmt.Errorf("no usable geocoding results for %q", query)
	}
	return places, nil
}

// GeocodeLocation converts a location string to coordinates of the best match.
func (c *Client) GeocodeLocation(ctx context.Context, location string) (*Location, error) {
	results, err := c.geocode(ctx, location)
	if err != nil {
		return nil, err
	}
	if imprecise(&results[0]) {
		return nil, fmt.Errorf("location too imprecise for reliable timezone detection: %s", location)
	}
	return &Location{
		Latitude:  results[0].Geometry.Location.Lat,
		Longitude: results[0].Geometry.Location.Lng,
	}, nil
}

func (c *Client) geocode(ctx context.Context, location string) ([]geocodeResult, error) {
	if c.apiKey == "" {
		return nil, ErrNoAPIKey
	}

	params := url.Values{}
	params.Set("address", location)
	params.Set("key", c.apiKey)
	var result struct {
		Status       string          `json:"status"`
		ErrorMessage string          `json:"error_message"`
		Results      []geocodeResult `json:"results"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/geocode/json?"+params.Encode(), &result); err != nil {
		return nil, fmt.Errorf("geocoding %q: %w", location, err)
	}
	if result.Status != "OK" || len(result.Results) == 0 {
		c.logger.Debug("geocoding failed", "location", location, "status", result.Status, "results_count", len(result.Results))
		if result.ErrorMessage != "" {
			return nil, fmt.Errorf("geocoding failed for %s: %s", location, result.ErrorMessage)
		}
		return nil, fmt.Errorf("geocoding failed for %s: %s", location, result.Status)
	}
	return result.Results, nil
}

// TimezoneForCoordinates gets the timezone for given coordinates using Google Timezone API.
func (c *Client) TimezoneForCoordinates(ctx context.Context, lat, lng float64) (string, error) {
	if c.apiKey == "" {
		return "", ErrNoAPIKey
	}

	params := url.Values{}
	params.Set("location", strconv.FormatFloat(lat, 'f', 6, 64)+","+strconv.FormatFloat(lng, 'f', 6, 64))
	params.Set("timestamp", strconv.FormatInt(c.now().Unix(), 10))
	params.Set("key", c.apiKey)

	var result struct {
		TimeZoneID   string `json:"timeZoneId"`
		Status       string `json:"status"`
		ErrorMessage string `json:"error_message"`
	}
	if err := c.getJSON(ctx, c.baseURL+"/timezone/json?"+params.Encode(), &result); err != nil {
		return "", err
	}
	if result.Status != "OK" {
		if result.ErrorMessage != "" {
			return "", fmt.Errorf("timezone API failed: %s", result.ErrorMessage)
		}
		return "", fmt.Errorf("timezone API failed with status: %s", result.Status)
	}
	return result.TimeZoneID, nil
}

func (c *Client) getJSON(ctx context.Context, apiURL string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, http.NoBody)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Debug("failed to close response body", "error", err)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

// imprecise reports country-level approximate matches.
func imprecise(r *geocodeResult) bool {
	if !strings.EqualFold(r.Geometry.LocationType, "approximate") {
		return false
	}
	hasCountry, hasPrecise := false, false
	for _, t := range r.Types {
		switch t {
		case "country":
			hasCountry = true
		case "locality", "administrative_area_level_1", "administrative_area_level_2":
			hasPrecise = true
		}
	}
	return hasCountry && !hasPrecise
}

func component(r *geocodeResult, kind string) (addressComponent, bool) {
	for _, ac := range r.AddressComponents {
		for _, t := range ac.Types {
			if t == kind {
				return ac, true
			}
		}
	}
	return addressComponent{}, false
}

// labels builds "City" and "Country, REGION" from the address components.
func labels(r *geocodeResult) (title, subtitle string) {
	for _, kind := range []string{"locality", "postal_town", "administrative_area_level_2", "administrative_area_level_1"} {
		if ac, ok := component(r, kind); ok {
			title = ac.LongName
			break
		}
	}
	if title == "" {
		title, _, _ = strings.Cut(r.FormattedAddress, ",")
	}

	country, _ := component(r, "country")
	region, _ := component(r, "administrative_area_level_1")
	switch {
	case country.LongName != "" && region.ShortName != "" && region.LongName != title:
		subtitle = country.LongName + ", " + region.ShortName
	case country.LongName != "":
		subtitle = country.LongName
	default:
		subtitle = r.FormattedAddress
	}
	return strings.TrimSpace(title), strings.TrimSpace(subtitle)
}
