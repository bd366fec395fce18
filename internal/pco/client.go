package pco

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
)

const (
	defaultBaseURL = "https://api.planningcenteronline.com"

	// perPage is the provider's page size ceiling.
	perPage = 100

	// defaultRetryAfter is used when a 429 arrives without a
	// Retry-After header.
	defaultRetryAfter = 60 * time.Second
)

// probeServices are the product APIs checked by TestConnection to
// report what the credential pair can reach.
var probeServices = []string{"people", "check-ins", "services", "groups", "giving"}

// Client is an authenticated HTTP client for the Planning Center
// Online API. It owns pagination cursors and the retry policy;
// everything that escapes its methods is either a terminal
// AuthError/APIError or a RateLimitError/TransientError whose retry
// budget is spent.
type Client struct {
	httpClient *http.Client
	baseURL    string
	authHeader string
	maxTries   uint
	retryBase  time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host. Used by
// tests to target an httptest server.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithMaxTries caps the attempts per request, including the first.
func WithMaxTries(n uint) Option {
	return func(c *Client) { c.maxTries = n }
}

// WithRetryInterval sets the initial backoff interval.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryBase = d }
}

// New builds a client from a decrypted credential pair. The secret is
// folded into the Basic auth header and never logged.
func New(appID, secret string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    defaultBaseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(appID+":"+secret)),
		maxTries:   5,
		retryBase:  500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TestConnection verifies the credential pair against the people API
// and reports which product APIs the pair can reach. It performs no
// writes and creates no job.
func (c *Client) TestConnection(ctx context.Context) ([]string, error) {
	q := url.Values{}
	q.Set("per_page", "1")
	if _, err := c.get(ctx, People.Path, q); err != nil {
		return nil, err
	}

	var available []string
	for _, svc := range probeServices {
		if _, err := c.get(ctx, "/"+svc+"/v2", nil); err == nil {
			available = append(available, svc)
		}
	}
	return available, nil
}

// FetchPage requests one page of a resource. Page.Next is nil when
// the provider reports no further pages. A retried request always
// re-fetches the same offset, so a page is never skipped or
// duplicated by the retry path.
func (c *Client) FetchPage(ctx context.Context, res Resource, cur Cursor) (*Page, error) {
	q := url.Values{}
	q.Set("per_page", strconv.Itoa(perPage))
	q.Set("offset", strconv.Itoa(cur.Offset))
	if len(res.Include) > 0 {
		q.Set("include", strings.Join(res.Include, ","))
	}

	env, err := c.get(ctx, res.Path, q)
	if err != nil {
		return nil, err
	}

	objs, err := env.records()
	if err != nil {
		return nil, &TransientError{Op: res.Path, Err: err}
	}

	page := &Page{Included: make(map[string]Record, len(env.Included))}
	for _, o := range objs {
		page.Records = append(page.Records, o.record())
	}
	for _, o := range env.Included {
		rec := o.record()
		page.Included[includedKey(rec.ID, rec.Type)] = rec
	}
	if len(objs) > 0 && env.Links.Next != "" {
		page.Next = &Cursor{Offset: cur.Offset + len(objs)}
	}

	log.Debug().
		Str("resource", res.Name).
		Int("offset", cur.Offset).
		Int("records", len(page.Records)).
		Bool("done", page.Next == nil).
		Msg("Fetched provider page")
	return page, nil
}

// get performs one GET with the client's retry policy. Auth failures
// are permanent; 429 honors Retry-After; network errors and 5xx back
// off exponentially up to maxTries.
func (c *Client) get(ctx context.Context, path string, query url.Values) (*envelope, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	operation := func() (*envelope, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("Authorization", c.authHeader)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &TransientError{Op: path, Err: err}
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusOK:
			// fall through to decode
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			return nil, backoff.Permanent(&AuthError{Status: resp.StatusCode})
		case resp.StatusCode == http.StatusTooManyRequests:
			ra := retryAfterHint(resp)
			log.Warn().Str("path", path).Dur("retry_after", ra).Msg("Provider rate limit hit")
			return nil, &RateLimitError{RetryAfter: ra}
		case resp.StatusCode >= 500:
			return nil, &TransientError{Op: path, Status: resp.StatusCode}
		default:
			return nil, backoff.Permanent(&APIError{Op: path, Status: resp.StatusCode})
		}

		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
			return nil, &TransientError{Op: path, Err: err}
		}
		return &env, nil
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = c.retryBase

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(c.maxTries),
	)
}

func retryAfterHint(resp *http.Response) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultRetryAfter
}
