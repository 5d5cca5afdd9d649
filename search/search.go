// Package search implements the web fetcher used to surface candidate
// channels: it scrapes search-engine result pages for platform-restricted
// queries and fetches destination page titles for verification. All
// requests go through an assigned proxy (when given one) with a hard
// per-request timeout, so a stalled proxy can never stall a worker
// indefinitely.
package search

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

	"github.com/codeGROOVE-dev/retry"

	"github.com/codeGROOVE-dev/channelist/match"
	"github.com/codeGROOVE-dev/channelist/proxy"
	"github.com/codeGROOVE-dev/channelist/record"
)

// UserAgent is the desktop browser User-Agent sent on every request.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:146.0) Gecko/20100101 Firefox/146.0"

// DefaultTimeout is the hard per-request timeout.
const DefaultTimeout = 15 * time.Second

// DefaultMaxResults caps how many candidates one query may produce.
const DefaultMaxResults = 5

const maxBodyBytes = 5 << 20 // 5MB

// ErrBlocked indicates the search engine served a bot-detection
// interstitial instead of results. Callers should report the proxy as
// failed and move on.
var ErrBlocked = errors.New("search engine blocked request")

// HTTPError represents a non-200 HTTP response.
type HTTPError struct {
	URL        string
	StatusCode int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d fetching %s", e.StatusCode, e.URL)
}

// Fetcher is the collaborator interface a resolution session drives.
type Fetcher interface {
	// Search returns up to the configured number of candidate channels
	// for one query, restricted to the platform's domain.
	Search(ctx context.Context, query string, platform record.Platform, px *proxy.Entry) ([]match.Candidate, error)
	// PageTitle fetches the destination page's title for verification.
	PageTitle(ctx context.Context, rawURL string, px *proxy.Entry) (string, error)
}

// Client fetches and parses search-engine result pages.
type Client struct {
	timeout    time.Duration
	maxResults int
	cache      *Cache
	cookies    []*http.Cookie
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*config)

type config struct {
	timeout        time.Duration
	maxResults     int
	cache          *Cache
	logger         *slog.Logger
	browserCookies bool
}

// WithTimeout sets the hard per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxResults caps candidates per query.
func WithMaxResults(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxResults = n
		}
	}
}

// WithCache sets the disk HTTP cache for responses.
func WithCache(cache *Cache) Option {
	return func(c *config) { c.cache = cache }
}

// WithBrowserCookies enables reading google.com cookies from browser
// stores. Consent/session cookies reduce bot interstitials.
func WithBrowserCookies() Option {
	return func(c *config) { c.browserCookies = true }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) { c.logger = logger }
}

// New creates a search client.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &config{
		timeout:    DefaultTimeout,
		maxResults: DefaultMaxResults,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	c := &Client{
		timeout:    cfg.timeout,
		maxResults: cfg.maxResults,
		cache:      cfg.cache,
		logger:     cfg.logger,
	}
	if cfg.browserCookies {
		c.cookies = browserCookies(ctx, cfg.logger)
	}
	return c, nil
}

// Search fetches one results page and extracts candidate channels for
// the platform.
func (c *Client) Search(ctx context.Context, query string, platform record.Platform, px *proxy.Entry) ([]match.Candidate, error) {
	terms := strings.TrimSpace(query) + platform.SearchSuffix()
	searchURL := "https://www.google.com/search?q=" + url.QueryEscape(terms)

	c.logger.DebugContext(ctx, "searching", "query", query, "platform", platform, "proxy", proxyName(px))

	body, err := c.fetch(ctx, searchURL, px)
	if err != nil {
		return nil, err
	}

	cands := parseResults(body, platform, c.maxResults)
	c.logger.DebugContext(ctx, "search results", "query", query, "platform", platform, "candidates", len(cands))
	return cands, nil
}

// PageTitle fetches a candidate channel page and returns its title.
func (c *Client) PageTitle(ctx context.Context, rawURL string, px *proxy.Entry) (string, error) {
	body, err := c.fetch(ctx, rawURL, px)
	if err != nil {
		return "", err
	}
	title := pageTitle(body)
	if title == "" {
		return "", fmt.Errorf("no title in %s", rawURL)
	}
	return title, nil
}

// fetch retrieves a URL through the cache (when configured), the proxy,
// and a bounded transient retry. Bot interstitials surface as ErrBlocked
// and are never cached.
func (c *Client) fetch(ctx context.Context, rawURL string, px *proxy.Entry) ([]byte, error) {
	do := func(ctx context.Context) ([]byte, error) {
		return c.doFetch(ctx, rawURL, px)
	}

	if c.cache == nil {
		return do(ctx)
	}
	return c.cache.GetSet(ctx, urlToKey(rawURL), do)
}

func (c *Client) doFetch(ctx context.Context, rawURL string, px *proxy.Entry) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	client, err := c.httpClient(px)
	if err != nil {
		return nil, err
	}

	return retry.DoWithData(
		func() ([]byte, error) {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, http.NoBody)
			if err != nil {
				return nil, err
			}
			req.Header.Set("User-Agent", UserAgent)
			req.Header.Set("Accept-Language", "en-US,en;q=0.9")
			for _, ck := range c.cookies {
				req.AddCookie(ck)
			}

			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close() //nolint:errcheck // intentional

			if resp.StatusCode != http.StatusOK {
				return nil, &HTTPError{StatusCode: resp.StatusCode, URL: rawURL}
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
			if err != nil {
				return nil, err
			}
			if isBotInterstitial(body) {
				return nil, ErrBlocked
			}
			return body, nil
		},
		retry.Context(ctx),
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.MaxJitter(150*time.Millisecond),
		retry.RetryIf(isRetryableError),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Debug("retrying fetch", "attempt", n+1, "url", rawURL, "error", err)
		}),
	)
}

// httpClient builds a per-call client routed through the proxy. A nil
// entry means a direct request.
func (c *Client) httpClient(px *proxy.Entry) (*http.Client, error) {
	if px == nil {
		return &http.Client{Timeout: c.timeout}, nil
	}
	pu, err := px.URL()
	if err != nil {
		return nil, fmt.Errorf("proxy %s: %w", px, err)
	}
	return &http.Client{
		Timeout:   c.timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(pu)},
	}, nil
}

// isRetryableError returns true for transient errors worth one more try
// within the same request window. ErrBlocked is permanent for this
// proxy; 4xx (except 429) are permanent for this URL.
func isRetryableError(err error) bool {
	if errors.Is(err, ErrBlocked) {
		return false
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		default:
			return false
		}
	}
	return true
}

func isBotInterstitial(body []byte) bool {
	return strings.Contains(string(body), "Our systems have detected unusual traffic")
}

func proxyName(px *proxy.Entry) string {
	if px == nil {
		return "direct"
	}
	return px.String()
}
