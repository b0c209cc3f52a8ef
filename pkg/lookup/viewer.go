package lookup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Viewer fetches the viewer-context payload.
func (c *Client) Viewer(ctx context.Context) (*ViewerResponse, error) {
	if c.viewerURL == "" {
		return nil, errors.New("viewer lookup disabled")
	}
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	body, err := c.get(ctx, c.viewerURL)
	if err != nil {
		return nil, err
	}
	var resp ViewerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding viewer response: %w", err)
	}
	return &resp, nil
}

// ViewerPlace returns the viewer's place when the lookup succeeds and yields a
// recognized zone. Failures are logged, never returned.
func (c *Client) ViewerPlace(ctx context.Context) (Place, bool) {
	resp, err := c.Viewer(ctx)
	if err != nil {
		c.logger.Debug("viewer lookup failed", "url", c.viewerURL, "error", err)
		return Place{}, false
	}
	place, ok := ResolveViewer(resp)
	if !ok {
		c.logger.Debug("viewer lookup returned no usable zone", "url", c.viewerURL)
		return Place{}, false
	}
	c.logger.Debug("viewer lookup resolved", "zone", place.TimeZone, "title", place.Title)
	return place, true
}
