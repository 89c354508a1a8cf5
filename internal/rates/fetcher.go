// Package rates fetches currency exchange rates from the PrivatBank public API
// and renders them as the plain-text reply sent to chat clients.
package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultURL returns the current cash rates.
	DefaultURL = "https://api.privatbank.ua/p24api/pubinfo?json&exchange&coursid=5"
	// DefaultArchiveURL is queried with an extra date parameter for past days.
	DefaultArchiveURL = "https://api.privatbank.ua/p24api/pubinfo?json&exchange&coursid=5"
	// DefaultMaxDays bounds every day window requested from the API.
	DefaultMaxDays = 10
	// FailureText is the reply sent when the upstream cannot be queried.
	FailureText = "Failed to fetch currency data"
)

// ErrUpstreamStatus is returned when the API answers with a non-200 status.
var ErrUpstreamStatus = errors.New("unexpected upstream status")

//go:generate mockgen -destination=../mocks/fetcher.go -package=mocks github.com/Tyrowin/relaychat/internal/rates Fetcher

// Fetcher produces the reply for an exchange command. Implementations never
// fail: upstream problems are reported through the returned text.
type Fetcher interface {
	Fetch(ctx context.Context, days int) string
}

// Client queries the PrivatBank API over HTTP.
type Client struct {
	httpClient *http.Client
	url        string
	archiveURL string
	maxDays    int
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithURL overrides the current-rates endpoint.
func WithURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithArchiveURL overrides the endpoint used for per-date queries.
func WithArchiveURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.archiveURL = url
		}
	}
}

// WithMaxDays sets the upper bound applied to requested day windows.
func WithMaxDays(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxDays = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a Client with production defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		url:        DefaultURL,
		archiveURL: DefaultArchiveURL,
		maxDays:    DefaultMaxDays,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// MaxDays returns the window bound in effect.
func (c *Client) MaxDays() int {
	return c.maxDays
}

// Fetch implements Fetcher.
func (c *Client) Fetch(ctx context.Context, days int) string {
	entries, err := c.Rates(ctx, days)
	if err != nil {
		c.logger.Warn("currency fetch failed", "days", days, "error", err)
		return FailureText
	}
	return Format(entries)
}

// Rates performs a single request and returns the last days entries of the
// payload, bounded by the configured maximum.
func (c *Client) Rates(ctx context.Context, days int) ([]Entry, error) {
	entries, err := c.get(ctx, c.url)
	if err != nil {
		return nil, err
	}
	return Window(entries, days, c.maxDays), nil
}

func (c *Client) get(ctx context.Context, url string) ([]Entry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", url, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode)
	}

	var entries []Entry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return entries, nil
}

// Window returns the trailing min(days, maxDays) entries. Zero days selects
// the whole payload, still bounded by maxDays. A non-positive maxDays
// disables the bound.
func Window(entries []Entry, days, maxDays int) []Entry {
	if days < 0 {
		return nil
	}
	n := days
	if n == 0 {
		n = len(entries)
	}
	if maxDays > 0 && n > maxDays {
		n = maxDays
	}
	if n >= len(entries) {
		return entries
	}
	return entries[len(entries)-n:]
}

// Format renders one line per entry.
func Format(entries []Entry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s: Buy - %s, Sell - %s\n", e.Ccy, e.Buy.OrNA(), e.Sale.OrNA())
	}
	return b.String()
}
