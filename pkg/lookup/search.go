package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/codeGROOVE-dev/whenthere/pkg/tzconvert"
)

// MinQueryLength is the shortest query sent to the search hosts.
const MinQueryLength = 2

var (
	// ErrQueryTooShort is returned for queries under MinQueryLength characters.
	ErrQueryTooShort = errors.New("query too short")
	// ErrAllHostsFailed is wrapped by AttemptsError.
	ErrAllHostsFailed = errors.New("all lookup hosts failed")
)

// AttemptsError carries one note per failed host or resolver.
type AttemptsError struct {
	Notes []string
}

func (e *AttemptsError) Error() string {
	if len(e.Notes) == 0 {
		return ErrAllHostsFailed.Error()
	}
	return strings.Join(e.Notes, " | ")
}

func (*AttemptsError) Unwrap() error { return ErrAllHostsFailed }

// Search status texts.
const (
	StatusTooShort    = "Type at least 2 characters"
	StatusNoMatches   = "No city matches"
	StatusUnavailable = "Search unavailable"
)

// SearchResult is a successful search.
type SearchResult struct {
	Source string  `json:"source"`
	Places []Place `json:"results"`
}

// Status returns the user-facing status line for a search outcome, or "" when
// there are results to show.
func Status(res SearchResult, err error) string {
	switch {
	case errors.Is(err, ErrQueryTooShort):
		return StatusTooShort
	case err != nil:
		return StatusUnavailable
	case len(res.Places) == 0:
		return StatusNoMatches
	default:
		return ""
	}
}

// Search resolves free text into places. Hosts are tried in order; the first
// one that answers with a decodable payload wins, even with zero matches.
// Fallback resolvers run only when every host failed.
func (c *Client) Search(ctx context.Context, query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if utf8.RuneCountInString(query) < MinQueryLength {
		return SearchResult{}, ErrQueryTooShort
	}

	var notes []string
	for _, base := range c.hosts {
		places, err := c.searchHost(ctx, base, query)
		if err != nil {
			if isCanceled(ctx, err) {
				return SearchResult{}, err
			}
			c.logger.Debug("search host failed", "host", base, "error", err)
			notes = append(notes, base+": "+err.Error())
			continue
		}
		return SearchResult{Source: hostName(base), Places: places}, nil
	}

	for _, r := range c.fallbacks {
		places, err := c.searchFallback(ctx, r, query)
		if err != nil {
			if isCanceled(ctx, err) {
				return SearchResult{}, err
			}
			c.logger.Debug("search fallback failed", "resolver", r.Name(), "error", err)
			notes = append(notes, r.Name()+": "+err.Error())
			continue
		}
		c.logger.Info("search served by fallback resolver", "resolver", r.Name(), "query", query, "results", len(places))
		return SearchResult{Source: r.Name(), Places: places}, nil
	}

	return SearchResult{}, &AttemptsError{Notes: notes}
}

func (c *Client) searchHost(ctx context.Context, base, query string) ([]Place, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	params := url.Values{}
	params.Set("text", query)
	params.Set("limit", strconv.Itoa(searchLimit))
	body, err := c.get(ctx, base+searchPath+"?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var decoded AutocompleteResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	return Normalize(decoded.Results), nil
}

func (c *Client) searchFallback(ctx context.Context, r PlaceResolver, query string) ([]Place, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	found, err := r.ResolvePlace(ctx, query)
	if err != nil {
		return nil, err
	}
	places := make([]Place, 0, len(found))
	seen := make(map[string]bool, len(found))
	for _, p := range found {
		p.Title = strings.TrimSpace(p.Title)
		p.Subtitle = strings.TrimSpace(p.Subtitle)
		if p.Title == "" || !tzconvert.Recognized(p.TimeZone) {
			continue
		}
		key := p.Title + "|" + p.Subtitle + "|" + p.TimeZone
		if seen[key] {
			continue
		}
		seen[key] = true
		p.ID = key
		places = append(places, p)
	}
	return places, nil
}
