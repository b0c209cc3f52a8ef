// Package lookup resolves free text and viewer context into time zones using
// the remote city-search and viewer-context endpoints.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/codeGROOVE-dev/retry"
)

// Default endpoints.
const (
	DefaultViewerURL = "https://time.yaosamo.com/api/viewer-hour-format"
	DefaultTimeout   = 5 * time.Second

	searchPath  = "/api/geoapify-autocomplete"
	searchLimit = 8
	maxBodySize = 1 << 20
	maxNoteSize = 160
)

// DefaultHosts are tried in order for city search.
var DefaultHosts = []string{"https://time.yaosamo.com", "https://when-there.vercel.app"}

// HTTPClient is the subset of *http.Client used here.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// PlaceResolver is an alternate free-text resolver consulted after every host fails.
type PlaceResolver interface {
	ResolvePlace(ctx context.Context, query string) ([]Place, error)
	Name() string
}

// Option configures a Client.
type Option func(*OptionHolder)

// OptionHolder holds all optional configuration for a Client.
type OptionHolder struct {
	httpClient HTTPClient
	viewerURL  string
	hosts      []string
	fallbacks  []PlaceResolver
	timeout    time.Duration
	attempts   uint
}

// WithHTTPClient sets the transport, for example a cached client.
func WithHTTPClient(c HTTPClient) Option {
	return func(o *OptionHolder) { o.httpClient = c }
}

// WithHosts replaces the city-search host bases.
func WithHosts(hosts ...string) Option {
	return func(o *OptionHolder) {
		o.hosts = nil
		for _, h := range hosts {
			if h = strings.TrimRight(strings.TrimSpace(h), "/"); h != "" {
				o.hosts = append(o.hosts, h)
			}
		}
	}
}

// WithViewerURL overrides the viewer-context endpoint.
func WithViewerURL(u string) Option {
	return func(o *OptionHolder) { o.viewerURL = u }
}

// WithTimeout bounds each lookup, retries included.
func WithTimeout(d time.Duration) Option {
	return func(o *OptionHolder) { o.timeout = d }
}

// WithAttempts sets per-host attempts for transient failures.
func WithAttempts(n uint) Option {
	return func(o *OptionHolder) { o.attempts = n }
}

// WithFallback appends a resolver tried when every search host fails.
func WithFallback(r PlaceResolver) Option {
	return func(o *OptionHolder) {
		if r != nil {
			o.fallbacks = append(o.fallbacks, r)
		}
	}
}

// Client talks to the lookup endpoints.
type Client struct {
	httpClient HTTPClient
	logger     *slog.Logger
	viewerURL  string
	hosts      []string
	fallbacks  []PlaceResolver
	timeout    time.Duration
	attempts   uint
}

// New returns a Client using slog.Default.
func New(opts ...Option) *Client {
	return NewWithLogger(slog.Default(), opts...)
}

// NewWithLogger returns a Client with the given logger.
func NewWithLogger(logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	holder := &OptionHolder{
		hosts:     DefaultHosts,
		viewerURL: DefaultViewerURL,
		timeout:   DefaultTimeout,
		attempts:  3,
	}
	for _, opt := range opts {
		opt(holder)
	}
	if holder.httpClient == nil {
		holder.httpClient = &http.Client{Timeout: holder.timeout}
	}
	if holder.attempts == 0 {
		holder.attempts = 1
	}
	return &Client{
		httpClient: holder.httpClient,
		logger:     logger,
		viewerURL:  holder.viewerURL,
		hosts:      holder.hosts,
		fallbacks:  holder.fallbacks,
		timeout:    holder.timeout,
		attempts:   holder.attempts,
	}
}

// Fallbacks names the configured fallback resolvers in order.
func (c *Client) Fallbacks() []string {
	names := make([]string, 0, len(c.fallbacks))
	for _, r := range c.fallbacks {
		names = append(names, r.Name())
	}
	return names
}

// StatusError is a non-2xx response.
type StatusError struct {
	Note string
	Code int
}

func (e *StatusError) Error() string {
	if e.Note == "" {
		return fmt.Sprintf("HTTP %d", e.Code)
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Note)
}

func transient(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}

// get fetches rawURL, retrying network errors, 429 and 5xx with backoff.
func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("creating request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			req.Header.Set("User-Agent", "whenthere/1.0")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Debug("failed to close response body", "error", closeErr)
				}
			}()

			data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
			if err != nil {
				return fmt.Errorf("reading body: %w", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode > 299 {
				statusErr := &StatusError{Code: resp.StatusCode, Note: c.note(resp.Header.Get("Content-Type"), data)}
				if transient(resp.StatusCode) {
					return statusErr
				}
				return retry.Unrecoverable(statusErr)
			}
			body = data
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.attempts),
		retry.Delay(100*time.Millisecond),
		retry.MaxDelay(time.Second),
		retry.DelayType(retry.CombineDelay(retry.BackOffDelay, retry.RandomDelay)),
		retry.MaxJitter(50*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying lookup request", "attempt", n+1, "url", rawURL, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return body, nil
}

// note shortens an error body for attempt notes. HTML error pages are
// converted to markdown so the note is readable text.
func (c *Client) note(contentType string, body []byte) string {
	text := strings.TrimSpace(string(body))
	if strings.Contains(contentType, "html") || strings.HasPrefix(strings.ToLower(text), "<!doctype") || strings.HasPrefix(text, "<html") {
		converted, err := md.ConvertString(text)
		if err != nil {
			c.logger.Debug("failed to convert html error body", "error", err)
		} else {
			text = converted
		}
	}
	text = strings.Join(strings.Fields(text), " ")
	if len(text) > maxNoteSize {
		text = text[:maxNoteSize] + "..."
	}
	return text
}

func hostName(base string) string {
	u, err := url.Parse(base)
	if err != nil || u.Host == "" {
		return base
	}
	return u.Host
}

func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func isCanceled(ctx context.Context, err error) bool {
	return ctx.Err() != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded))
}
