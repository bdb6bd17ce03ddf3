/*
PURPOSE:
  Upstream client for the PageSpeed Insights runPagespeed API.
  Builds the query and performs exactly one outbound request per audit.

REQUIREMENTS:
  User-specified:
  - Query parameters: url, strategy (default mobile), key or nokey=true.
  - No retries, no caching.
  - Any valid JSON body is returned as-is, including the API's own error documents.
  - Transport failures and non-JSON bodies are errors.

  Implementation-discovered:
  - http.Client timeout stays 0 unless configured (transport defaults).
  - httptrace is useful at debug level to see where a slow audit spends time.

ARCHITECTURE INTEGRATION:
  - Called by: internal/engine (Runner)
  - Uses: internal/config, internal/metrics, internal/output

ERROR HANDLING:
  - *TransportError for connection/read failures.
  - *ParseError for bodies that are not JSON.

IMPLEMENTATION RULES:
  - Use net/http.
  - One request, no retry loop.

USAGE:
  c := engine.NewClient(cfg, logger, m)
  rep, err := c.Fetch(ctx, "https://example.com", engine.Options{Strategy: "desktop"})

SELF-HEALING INSTRUCTIONS:
  - If the API moves, update config.DefaultEndpoint.

RELATED FILES:
  - internal/config/config.go
  - internal/engine/runner.go

MAINTENANCE:
  - Update for new runPagespeed query parameters (category, locale).
*/

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"time"

	"github.com/daryltucker/psi-proxy/internal/config"
	"github.com/daryltucker/psi-proxy/internal/metrics"
	"github.com/daryltucker/psi-proxy/internal/output"
)

// DefaultStrategy is used when a request names no strategy.
const DefaultStrategy = "mobile"

// Options are the per-audit query options.
type Options struct {
	Strategy string
	Key      string
}

// Report is an upstream response body that parsed as JSON.
type Report struct {
	Raw        json.RawMessage
	StatusCode int
}

// Client handles PageSpeed API interactions.
type Client struct {
	Endpoint string
	HTTP     *http.Client
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// NewClient creates a new Client.
func NewClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *Client {
	if logger == nil {
		logger = output.Logger
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()

	return &Client{
		Endpoint: cfg.Endpoint,
		Logger:   logger,
		Metrics:  m,
		HTTP: &http.Client{
			Transport: transport,
			// Zero means no client-side limit.
			Timeout: cfg.Timeout,
		},
	}
}

// QueryURL returns the runPagespeed URL for pageURL.
func (c *Client) QueryURL(pageURL string, opts Options) (string, error) {
	u, err := url.Parse(c.Endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid endpoint %q: %w", c.Endpoint, err)
	}
	strategy := opts.Strategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	q := u.Query()
	q.Set("url", pageURL)
	q.Set("strategy", strategy)
	if opts.Key != "" {
		q.Set("key", opts.Key)
	} else {
		q.Set("nokey", "true")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch runs one audit and returns the JSON body, whatever the HTTP status.
func (c *Client) Fetch(ctx context.Context, pageURL string, opts Options) (*Report, error) {
	if pageURL == "" {
		return nil, ErrURLRequired
	}
	endpoint, err := c.QueryURL(pageURL, opts)
	if err != nil {
		return nil, err
	}

	trace := &httptrace.ClientTrace{
		GotConn: func(info httptrace.GotConnInfo) {
			c.Logger.Debug("Network: Connected", "remote", info.Conn.RemoteAddr(), "reused", info.Reused)
		},
		WroteRequest: func(httptrace.WroteRequestInfo) {
			c.Logger.Debug("Network: Request Sent. Waiting for audit...", "url", pageURL)
		},
		GotFirstResponseByte: func() {
			c.Logger.Debug("Network: First Byte Received", "url", pageURL)
		},
	}
	ctx = httptrace.WithClientTrace(ctx, trace)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build upstream request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	rep, err := c.do(req)
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	c.Metrics.ObserveUpstream(outcome, time.Since(start))

	if err != nil {
		c.Logger.Warn("Upstream audit failed", "url", pageURL, "error", err)
		return nil, err
	}
	c.Logger.Debug("Upstream audit finished", "url", pageURL, "status", rep.StatusCode, "duration", time.Since(start))
	return rep, nil
}

func (c *Client) do(req *http.Request) (*Report, error) {
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Err: redactError(err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("failed to read response body: %w", err)}
	}
	if !json.Valid(body) {
		return nil, &ParseError{StatusCode: resp.StatusCode, Err: errors.New(invalidJSONCause(body))}
	}
	return &Report{Raw: body, StatusCode: resp.StatusCode}, nil
}

// Redacted replaces the API key in URLs that end up in errors and logs.
const Redacted = "REDACTED"

// redactError rewrites the request URL carried by a *url.Error so the key
// never reaches a response body or a log line.
func redactError(err error) error {
	var uerr *url.Error
	if !errors.As(err, &uerr) {
		return err
	}
	return &url.Error{Op: uerr.Op, URL: RedactURL(uerr.URL), Err: uerr.Err}
}

// RedactURL returns raw with the value of its key parameter replaced.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return Redacted
	}
	q := u.Query()
	if q.Get("key") == "" {
		return raw
	}
	q.Set("key", Redacted)
	u.RawQuery = q.Encode()
	return u.String()
}

func invalidJSONCause(body []byte) string {
	if len(body) == 0 {
		return "empty body"
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return err.Error()
	}
	return "malformed JSON"
}
