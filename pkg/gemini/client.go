// Package gemini resolves free-text place names to IANA time zones with
// Google's Gemini API. It is the last resort when the search hosts fail.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"google.golang.org/genai"

	"github.com/codeGROOVE-dev/whenthere/pkg/lookup"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash-lite"

// ErrNotConfigured is returned when neither an API key nor a GCP project is set.
var ErrNotConfigured = errors.New("gemini is not configured")

// Response is the structured answer requested from the model.
type Response struct {
	Places []PlaceAnswer `json:"places"`
}

// PlaceAnswer is one candidate place in a Response.
type PlaceAnswer struct {
	TimeZone string `json:"time_zone"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}

// generator produces the raw model text for a prompt.
type generator func(ctx context.Context, prompt string) (string, error)

// Client represents a Gemini API client.
type Client struct {
	cache      AnswerCache
	logger     Logger
	generate   generator
	apiKey     string
	model      string
	gcpProject string
}

// NewClient creates a new Gemini API client. cache and logger may be nil.
func NewClient(apiKey, model, gcpProject string, cache AnswerCache, logger Logger) *Client {
	if model == "" {
		model = DefaultModel
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		apiKey:     apiKey,
		model:      strings.TrimPrefix(model, "models/"),
		gcpProject: gcpProject,
		cache:      cache,
		logger:     logger,
	}
	c.generate = c.generateWithSDK
	return c
}

// Configured reports whether the client has credentials to try.
func (c *Client) Configured() bool {
	return c.apiKey != "" || c.projectID() != ""
}

// Name identifies the resolver in search attempt notes.
func (*Client) Name() string { return "gemini" }

// ResolvePlace asks the model for places matching query.
func (c *Client) ResolvePlace(ctx context.Context, query string) ([]lookup.Place, error) {
	resp, err := c.Call(ctx, BuildPrompt(query))
	if err != nil {
		return nil, err
	}
	places := make([]lookup.Place, 0, len(resp.Places))
	for _, p := range resp.Places {
		places = append(places, lookup.Place{TimeZone: p.TimeZone, Title: p.Title, Subtitle: p.Subtitle})
	}
	return places, nil
}

// Call runs prompt through the model, consulting the cache first.
func (c *Client) Call(ctx context.Context, prompt string) (*Response, error) {
	if cached := c.checkCache(prompt); cached != nil {
		return cached, nil
	}
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	var text string
	err := retry.Do(
		func() error {
			var err error
			text, err = c.generate(ctx, prompt)
			if err != nil && !isTransientError(err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("Retrying Gemini API call", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("gemini API call failed: %w", err)
	}

	resp, err := c.parseResponse(text)
	if err != nil {
		return nil, err
	}
	c.storeCache(prompt, resp)
	return resp, nil
}

func (c *Client) cacheKey() string {
	return "genai:" + c.model
}

func (c *Client) checkCache(prompt string) *Response {
	if c.cache == nil {
		return nil
	}
	data, found := c.cache.APICall(c.cacheKey(), []byte(prompt))
	if !found {
		return nil
	}
	var result Response
	if err := json.Unmarshal(data, &result); err != nil {
		c.logger.Debug("Failed to unmarshal cached Gemini response", "error", err)
		return nil
	}
	if len(result.Places) == 0 {
		return nil
	}
	c.logger.Debug("Gemini cache hit", "places", len(result.Places))
	return &result
}

func (c *Client) storeCache(prompt string, resp *Response) {
	if c.cache == nil {
		return
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := c.cache.SetAPICall(c.cacheKey(), []byte(prompt), data); err != nil {
		c.logger.Debug("Failed to cache Gemini response", "error", err)
	}
}

func (c *Client) projectID() string {
	if c.gcpProject != "" {
		return c.gcpProject
	}
	if projectID := os.Getenv("GCP_PROJECT"); projectID != "" {
		return projectID
	}
	return os.Getenv("GOOGLE_CLOUD_PROJECT")
}

func (c *Client) createClient(ctx context.Context) (*genai.Client, error) {
	var config *genai.ClientConfig
	if c.apiKey != "" {
		config = &genai.ClientConfig{
			Backend: genai.BackendGeminiAPI,
			APIKey:  c.apiKey,
		}
	} else {
		config = &genai.ClientConfig{
			Backend:  genai.BackendVertexAI,
			Project:  c.projectID(),
			Location: "us-central1",
		}
		c.logger.Debug("Using Vertex AI with Application Default Credentials", "project", config.Project)
	}
	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return client, nil
}

func (c *Client) generateWithSDK(ctx context.Context, prompt string) (string, error) {
	client, err := c.createClient(ctx)
	if err != nil {
		return "", err
	}

	temperature := float32(0.1)
	config := &genai.GenerateContentConfig{
		Temperature:      &temperature,
		MaxOutputTokens:  800,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: prompt}}}}

	resp, err := client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", err
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", errors.New("empty response from Gemini API")
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", errors.New("no content in Gemini response")
	}
	return candidate.Content.Parts[0].Text, nil
}

func responseSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"places": {
				Type: genai.TypeArray,
				Items: &genai.Schema{
					Type: genai.TypeObject,
					Properties: map[string]*genai.Schema{
						"time_zone": {
							Type:        genai.TypeString,
							Description: "IANA time zone identifier, e.g. 'Europe/Warsaw'",
						},
						"title": {
							Type:        genai.TypeString,
							Description: "City name in English",
						},
						"subtitle": {
							Type:        genai.TypeString,
							Description: "Country, optionally followed by a state or province code, e.g. 'United States, OR'",
						},
					},
					PropertyOrdering: []string{"title", "subtitle", "time_zone"},
					Required:         []string{"title", "subtitle", "time_zone"},
				},
			},
		},
		Required: []string{"places"},
	}
}

func isTransientError(err error) bool {
	errStr := strings.ToLower(err.Error())
	for _, indicator := range []string{
		"rate limit", "quota", "timeout", "deadline", "unavailable",
		"internal server error", "502", "503", "504",
	} {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}
	return false
}

func (c *Client) parseResponse(text string) (*Response, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("empty text in Gemini response")
	}
	var resp Response
	if err := json.Unmarshal([]byte(text), &resp); err != nil {
		jsonText, extractErr := extractJSON(text)
		if extractErr != nil {
			c.logger.Warn("Failed to parse Gemini JSON response", "error", err, "response_text", text)
			return nil, fmt.Errorf("failed to parse Gemini JSON response: %w", err)
		}
		if err := json.Unmarshal([]byte(jsonText), &resp); err != nil {
			return nil, fmt.Errorf("failed to parse Gemini JSON response: %w", err)
		}
	}
	for i := range resp.Places {
		resp.Places[i].TimeZone = clean(resp.Places[i].TimeZone)
		resp.Places[i].Title = clean(resp.Places[i].Title)
		resp.Places[i].Subtitle = clean(resp.Places[i].Subtitle)
	}
	if len(resp.Places) == 0 {
		return nil, errors.New("gemini response has no places")
	}
	return &resp, nil
}

// extractJSON pulls a JSON object out of text that may be wrapped in a code
// fence or surrounded by prose.
func extractJSON(text string) (string, error) {
	if isValidJSON(text) {
		return text, nil
	}
	for _, fence := range []string{"```json", "```"} {
		if start := strings.Index(text, fence); start != -1 {
			start += len(fence)
			if end := strings.Index(text[start:], "```"); end != -1 {
				if candidate := strings.TrimSpace(text[start : start+end]); isValidJSON(candidate) {
					return candidate, nil
				}
			}
		}
	}
	if start := strings.Index(text, "{"); start != -1 {
		if end := strings.LastIndex(text, "}"); end > start {
			if candidate := strings.TrimSpace(text[start : end+1]); isValidJSON(candidate) {
				return candidate, nil
			}
		}
	}
	return "", errors.New("no valid JSON found in response")
}

func isValidJSON(s string) bool {
	var js map[string]any
	return json.Unmarshal([]byte(s), &js) == nil
}

func clean(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}
