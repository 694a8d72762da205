// Package netbox reads sites, devices, interfaces and cables from the NetBox
// REST API and assembles them into a device/interface graph.
package netbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/netreplica/nrx/pkg/util"
)

// Defaults applied by New to zero Config fields.
const (
	DefaultTimeout             = 10 * time.Second
	DefaultRequestsPerSecond   = 10
	DefaultInterfacesBlockSize = 4
	DefaultCablesBlockSize     = 64
	DefaultMaxAttempts         = 5
	DefaultPageSize            = 100
)

// Config configures a Client.
type Config struct {
	URL      string
	Token    string
	Insecure bool
	Timeout  time.Duration

	RequestsPerSecond float64

	// Block sizes bound how many ids go into one filtered list request.
	// They are halved when NetBox rejects a request as too large.
	InterfacesBlockSize int
	CablesBlockSize     int
	MaxAttempts         int
	PageSize            int
}

// Client is a minimal NetBox REST client.
type Client struct {
	cfg     Config
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	log     logrus.FieldLogger
}

// New validates cfg and creates a client.
func New(cfg Config, log logrus.FieldLogger) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("%w: NetBox API URL is required", util.ErrInvalidConfig)
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: invalid NetBox API URL %q", util.ErrInvalidConfig, cfg.URL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if cfg.InterfacesBlockSize <= 0 {
		cfg.InterfacesBlockSize = DefaultInterfacesBlockSize
	}
	if cfg.CablesBlockSize <= 0 {
		cfg.CablesBlockSize = DefaultCablesBlockSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if log == nil {
		log = util.DiscardLogger()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // --insecure
	}

	burst := int(cfg.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	return &Client{
		cfg:     cfg,
		base:    base,
		http:    &http.Client{Timeout: cfg.Timeout, Transport: transport},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst),
		log:     log,
	}, nil
}

// APIError is a non-2xx response.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("NetBox API %s %s: %d %s: %s",
		e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), body)
}

func (e *APIError) Unwrap() error { return util.ErrInventory }

// TooLarge reports whether the server rejected the request because of its
// size, which happens when a filter carries too many ids.
func (e *APIError) TooLarge() bool {
	if e.StatusCode == http.StatusRequestURITooLong || e.StatusCode == http.StatusRequestHeaderFieldsTooLarge {
		return true
	}
	return e.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(e.Body), "too large")
}

func isTooLarge(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.TooLarge()
}

// endpoint returns the absolute URL for an API path and query.
func (c *Client) endpoint(path string, q url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	u.RawQuery = q.Encode()
	return u.String()
}

// do sends one request through the rate limiter and returns the body of a
// successful response.
func (c *Client) do(ctx context.Context, method, rawURL string, payload any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.cfg.Token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.WithFields(logrus.Fields{"method": method, "url": rawURL}).Debug("NetBox API request")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.connectionError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading response from %s: %v", util.ErrInventory, rawURL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Method: method, URL: rawURL, StatusCode: resp.StatusCode, Body: string(data)}
	}
	return data, nil
}

// connectionError turns transport failures into actionable messages.
func (c *Client) connectionError(err error) error {
	var certErr *tls.CertificateVerificationError
	switch {
	case errors.As(err, &certErr):
		return fmt.Errorf("%w: server certificate validation failed when connecting to %s, to skip validation use --insecure: %v",
			util.ErrInventory, c.cfg.URL, err)
	case strings.Contains(err.Error(), "server gave HTTP response to HTTPS client"):
		return fmt.Errorf("%w: unable to negotiate TLS when connecting to %s, could the server be using unencrypted HTTP: %v",
			util.ErrInventory, c.cfg.URL, err)
	default:
		return fmt.Errorf("%w: can't connect to %s: %v", util.ErrInventory, c.cfg.URL, err)
	}
}

// page is the envelope of NetBox list responses.
type page[T any] struct {
	Count   int     `json:"count"`
	Next    *string `json:"next"`
	Results []T     `json:"results"`
}

// list fetches every page of a list endpoint, following "next" links.
func list[T any](ctx context.Context, c *Client, path string, q url.Values) ([]T, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("limit", strconv.Itoa(c.cfg.PageSize))
	next := c.endpoint(path, q)

	var out []T
	for next != "" {
		data, err := c.do(ctx, http.MethodGet, next, nil)
		if err != nil {
			return nil, err
		}
		var p page[T]
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("%w: decoding %s: %v", util.ErrInventory, next, err)
		}
		out = append(out, p.Results...)
		next = ""
		if p.Next != nil {
			next = *p.Next
		}
	}
	return out, nil
}

// inBlocks calls fetch for consecutive blocks of ids. A block rejected as
// too large is retried at half the size; after maxAttempts halvings, or
// when a single id is rejected, the error is returned.
func inBlocks[T any](ctx context.Context, c *Client, what string, ids []int, size int,
	fetch func(ctx context.Context, block []int) ([]T, error)) ([]T, error) {
	var out []T
	halvings := 0
	for start := 0; start < len(ids); {
		end := min(start+size, len(ids))
		items, err := fetch(ctx, ids[start:end])
		if err != nil {
			if !isTooLarge(err) {
				return nil, err
			}
			halvings++
			if size == 1 || halvings >= c.cfg.MaxAttempts {
				return nil, fmt.Errorf("fetching %s after %d attempts: %w", what, halvings, err)
			}
			size = max(size/2, 1)
			c.log.WithFields(logrus.Fields{
				"what":       what,
				"block_size": size,
			}).Debug("request too large, retrying with a smaller block")
			continue
		}
		out = append(out, items...)
		start = end
	}
	return out, nil
}

func idValues(key string, ids []int) url.Values {
	q := url.Values{}
	for _, id := range ids {
		q.Add(key, strconv.Itoa(id))
	}
	return q
}
