package flathub

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	update "github.com/oshokin/flatpak-updater/internal/domain/update"
	"github.com/oshokin/flatpak-updater/internal/logger"
)

const (
	// DefaultBaseURL is the appstream endpoint; the app ID is appended to it.
	DefaultBaseURL = "https://flathub.org/api/v2/appstream/"

	// DefaultTimeout bounds a single request.
	DefaultTimeout = 10 * time.Second

	// DefaultRetries is how often a failed request is retried.
	DefaultRetries = 3

	// maxBodySize caps the appstream document size.
	maxBodySize = 8 << 20
)

var (
	// ErrMissingAppID is returned when no app ID is given.
	ErrMissingAppID = errors.New("app ID is missing")
	// ErrBadStatus is returned for non-200 responses.
	ErrBadStatus = errors.New("failed to check for updates")
	// ErrNoReleases is returned when the document has no releases array.
	ErrNoReleases = errors.New("'releases' array not found in response")
	// ErrNoValidRelease is returned when the latest release carries no version.
	ErrNoValidRelease = errors.New("no valid latest release found")
)

// Client fetches appstream documents from Flathub.
type Client struct {
	// baseURL is the appstream endpoint with a trailing slash.
	baseURL *url.URL
	// http performs requests with retries.
	http *retryablehttp.Client
	// timeout bounds a single attempt.
	timeout time.Duration
}

// Option configures the client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithRetries sets how often failed requests are retried.
func WithRetries(retries int) Option {
	return func(c *Client) {
		if retries >= 0 {
			c.http.RetryMax = retries
		}
	}
}

// WithRetryWait sets the bounds of the backoff between retries.
func WithRetryWait(minWait, maxWait time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = minWait
		c.http.RetryWaitMax = maxWait
	}
}

// New creates a client for baseURL; an empty baseURL selects DefaultBaseURL.
func New(ctx context.Context, baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse flathub URL: %w", err)
	}

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = DefaultRetries
	httpClient.Logger = leveledLogger{ctx: logger.WithName(ctx, "flathub-http")}
	// Hand the last response back once retries run out so its status is reported.
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL: parsed,
		http:    httpClient,
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.http.HTTPClient.Timeout = c.timeout

	return c, nil
}

// LatestRelease returns the release with the greatest timestamp published
// for appID.
func (c *Client) LatestRelease(ctx context.Context, appID string) (*update.Release, error) {
	appID = strings.TrimSpace(appID)
	if appID == "" {
		return nil, ErrMissingAppID
	}

	endpoint := c.baseURL.JoinPath(url.PathEscape(appID)).String()

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch appstream for %s: %w", appID, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d", ErrBadStatus, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read appstream for %s: %w", appID, err)
	}

	release, err := ParseLatestRelease(body)
	if err != nil {
		return nil, err
	}

	logger.DebugKV(ctx, "Latest Flathub release", "app_id", appID, "version", release.Version)

	return release, nil
}

// ParseLatestRelease extracts the newest release from an appstream document.
// Timestamps may be encoded as numbers or numeric strings; missing ones count
// as zero. Ties keep the release listed first.
func ParseLatestRelease(body []byte) (*update.Release, error) {
	if !gjson.ValidBytes(body) {
		return nil, ErrNoReleases
	}

	releases := gjson.GetBytes(body, "releases")
	if !releases.IsArray() {
		return nil, ErrNoReleases
	}

	var (
		latest    gjson.Result
		latestTS  int64
		haveFirst bool
	)

	releases.ForEach(func(_, release gjson.Result) bool {
		ts := release.Get("timestamp").Int()
		if !haveFirst || ts > latestTS {
			latest, latestTS, haveFirst = release, ts, true
		}

		return true
	})

	version := latest.Get("version")
	if !haveFirst || !version.Exists() || version.String() == "" {
		return nil, ErrNoValidRelease
	}

	return &update.Release{
		Version:   version.String(),
		Timestamp: time.Unix(latestTS, 0).UTC(),
	}, nil
}

// leveledLogger routes retryablehttp logs to the context logger.
type leveledLogger struct {
	ctx context.Context //nolint:containedctx // The logger lives in the context.
}

func (l leveledLogger) Error(msg string, kvs ...any) { logger.ErrorKV(l.ctx, msg, kvs...) }

func (l leveledLogger) Info(msg string, kvs ...any) { logger.DebugKV(l.ctx, msg, kvs...) }

func (l leveledLogger) Debug(msg string, kvs ...any) { logger.DebugKV(l.ctx, msg, kvs...) }

func (l leveledLogger) Warn(msg string, kvs ...any) { logger.WarnKV(l.ctx, msg, kvs...) }
