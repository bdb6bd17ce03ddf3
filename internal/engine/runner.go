/*
PURPOSE:
  High-level runner that orchestrates one audit.
  Validate -> fetch -> (raw passthrough | flatten).

REQUIREMENTS:
  User-specified:
  - Missing url fails before any network call.
  - "full" returns the upstream document untouched.
  - Otherwise the report is flattened into four sections.

  Implementation-discovered:
  - A configured API key is used when the request brings none.
  - The API's own error document becomes an *UpstreamError when flattening.

ARCHITECTURE INTEGRATION:
  - Called by: internal/server, internal/cli
  - Uses: internal/engine (Client), internal/report

ERROR HANDLING:
  - Returns typed errors; see errors.go and Describe().

IMPLEMENTATION RULES:
  - Stateless between calls; safe for concurrent use.

USAGE:
  r := engine.NewRunner(cfg, client)
  res, err := r.Audit(ctx, engine.Request{URL: "https://example.com"})

RELATED FILES:
  - internal/engine/client.go
  - internal/report/transform.go
*/

package engine

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/daryltucker/psi-proxy/internal/config"
	"github.com/daryltucker/psi-proxy/internal/model"
	"github.com/daryltucker/psi-proxy/internal/report"
	"google.golang.org/api/googleapi"
)

// Fetcher performs the upstream call.
type Fetcher interface {
	Fetch(ctx context.Context, pageURL string, opts Options) (*Report, error)
}

// Request is one audit request as received from a client.
type Request struct {
	URL      string
	Strategy string
	Key      string
	Full     bool
}

// Result holds either the raw upstream document (Full) or the flattened report.
type Result struct {
	Raw       json.RawMessage
	Flattened *model.FlattenedReport
}

// Payload returns the value to place in the success envelope.
func (r *Result) Payload() any {
	if r.Flattened != nil {
		return r.Flattened
	}
	return r.Raw
}

// Runner turns requests into results.
type Runner struct {
	Fetcher         Fetcher
	Formatter       report.DurationFormatter
	DefaultStrategy string
	DefaultKey      string
}

// NewRunner creates a Runner with the configured defaults.
func NewRunner(cfg *config.Config, f Fetcher) *Runner {
	return &Runner{
		Fetcher:         f,
		Formatter:       report.PrettyDuration{},
		DefaultStrategy: cfg.DefaultStrategy,
		DefaultKey:      cfg.APIKey,
	}
}

// Audit runs one request.
func (r *Runner) Audit(ctx context.Context, req Request) (*Result, error) {
	if req.URL == "" {
		return nil, ErrURLRequired
	}
	strategy := req.Strategy
	if strategy == "" {
		strategy = r.DefaultStrategy
	}
	if strategy == "" {
		strategy = DefaultStrategy
	}
	key := req.Key
	if key == "" {
		key = r.DefaultKey
	}

	rep, err := r.Fetcher.Fetch(ctx, req.URL, Options{Strategy: strategy, Key: key})
	if err != nil {
		return nil, err
	}
	if req.Full {
		return &Result{Raw: rep.Raw}, nil
	}

	if uerr := upstreamError(rep); uerr != nil {
		return nil, uerr
	}
	resp, err := report.Decode(rep.Raw)
	if err != nil {
		return nil, &ParseError{StatusCode: rep.StatusCode, Err: err}
	}
	formatter := r.Formatter
	if formatter == nil {
		formatter = report.PrettyDuration{}
	}
	flat := report.Flatten(resp, strategy, formatter)
	return &Result{Flattened: &flat}, nil
}

// upstreamError extracts {"error": {...}} from a report, if present.
func upstreamError(rep *Report) *UpstreamError {
	var doc struct {
		Error *struct {
			Code    int                   `json:"code"`
			Message string                `json:"message"`
			Status  string                `json:"status"`
			Errors  []googleapi.ErrorItem `json:"errors"`
			Details []any                 `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rep.Raw, &doc); err != nil || doc.Error == nil {
		return nil
	}
	code := doc.Error.Code
	if code == 0 {
		code = rep.StatusCode
	}
	status := doc.Error.Status
	if status == "" {
		status = http.StatusText(rep.StatusCode)
	}
	return &UpstreamError{
		StatusCode: rep.StatusCode,
		Status:     status,
		Err: &googleapi.Error{
			Code:    code,
			Message: doc.Error.Message,
			Errors:  doc.Error.Errors,
			Details: doc.Error.Details,
			Body:    string(rep.Raw),
		},
	}
}
