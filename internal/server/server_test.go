package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daryltucker/psi-proxy/internal/config"
	"github.com/daryltucker/psi-proxy/internal/engine"
	"github.com/daryltucker/psi-proxy/internal/metrics"
	"github.com/daryltucker/psi-proxy/internal/output"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type auditorFunc func(ctx context.Context, req engine.Request) (*engine.Result, error)

func (f auditorFunc) Audit(ctx context.Context, req engine.Request) (*engine.Result, error) {
	return f(ctx, req)
}

func newHandler(t *testing.T, cfg *config.Config, a Auditor) http.Handler {
	t.Helper()
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	return New(cfg, a, output.Discard(), metrics.New()).Handler()
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var env map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

// upstream serves the fixture report and counts calls.
func upstream(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	raw, err := os.ReadFile("../report/testdata/runpagespeed.json")
	require.NoError(t, err)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(raw)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func realHandler(t *testing.T, endpoint string) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Endpoint = endpoint
	m := metrics.New()
	runner := engine.NewRunner(cfg, engine.NewClient(cfg, output.Discard(), m))
	return New(cfg, runner, output.Discard(), m).Handler()
}

func TestMissingURLMakesNoUpstreamCall(t *testing.T) {
	t.Parallel()

	srv, calls := upstream(t)
	h := realHandler(t, srv.URL)

	for _, target := range []string{"/psi", "/psi?url=", "/psi?strategy=desktop"} {
		env := decodeEnvelope(t, get(t, h, target))
		assert.Equal(t, map[string]any{"code": float64(1), "message": "url不能为空"}, env, target)
	}
	assert.Equal(t, int32(0), calls.Load())
}

func TestPSIFlattened(t *testing.T) {
	t.Parallel()

	srv, calls := upstream(t)
	h := realHandler(t, srv.URL)

	rec := get(t, h, "/psi?url=https://www.example.com&strategy=desktop")
	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(0), env["code"])
	assert.NotContains(t, env, "message")

	data, ok := env["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"URL": "www.example.com", "Strategy": "desktop", "Performance": "87"}, data["overview"])
	assert.Contains(t, data, "statistics")
	assert.Contains(t, data, "ruleResults")
	assert.Contains(t, data, "opportunities")
	assert.Equal(t, int32(1), calls.Load())

	assert.Contains(t, rec.Body.String(), `"overview":{"URL":"www.example.com","Strategy":"desktop","Performance":"87"}`)
}

func TestPSIFullReturnsRawReport(t *testing.T) {
	t.Parallel()

	srv, _ := upstream(t)
	h := realHandler(t, srv.URL)

	raw, err := os.ReadFile("../report/testdata/runpagespeed.json")
	require.NoError(t, err)

	rec := get(t, h, "/psi?url=https://www.example.com&full=1")
	var env struct {
		Code int             `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, 0, env.Code)
	assert.JSONEq(t, string(raw), string(env.Data))
}

func TestPSIEmptyFullIsNotFull(t *testing.T) {
	t.Parallel()

	var got engine.Request
	h := newHandler(t, nil, auditorFunc(func(_ context.Context, req engine.Request) (*engine.Result, error) {
		got = req
		return &engine.Result{Raw: json.RawMessage(`{}`)}, nil
	}))

	get(t, h, "/psi?url=a&full=&key=k")
	assert.Equal(t, engine.Request{URL: "a", Key: "k"}, got)
}

func TestTransportFailureKeepsServing(t *testing.T) {
	t.Parallel()

	dead := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	endpoint := dead.URL
	dead.Close()
	h := realHandler(t, endpoint)

	env := decodeEnvelope(t, get(t, h, "/psi?url=https://a.example"))
	assert.Equal(t, float64(1), env["code"])
	assert.NotEmpty(t, env["message"])
	detail, ok := env["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "transport", detail["kind"])

	rec := get(t, h, "/anything")
	assert.Equal(t, HelloWorld, rec.Body.String())
}

func TestConfiguredKeyNeverLeaks(t *testing.T) {
	t.Parallel()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(300 * time.Millisecond):
		}
	}))
	t.Cleanup(slow.Close)

	cfg := config.DefaultConfig()
	cfg.Endpoint = slow.URL
	cfg.APIKey = "SERVER-SECRET-KEY"
	cfg.Timeout = 50 * time.Millisecond

	var logs bytes.Buffer
	logger := output.NewLogger(output.LogConfig{Level: "debug", Output: &logs})
	m := metrics.New()
	runner := engine.NewRunner(cfg, engine.NewClient(cfg, logger, m))
	h := New(cfg, runner, logger, m).Handler()

	rec := get(t, h, "/psi?url=https://slow.example")
	env := decodeEnvelope(t, rec)
	assert.Equal(t, float64(1), env["code"])
	detail, ok := env["data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "transport", detail["kind"])

	assert.NotContains(t, rec.Body.String(), "SERVER-SECRET-KEY")
	assert.NotContains(t, logs.String(), "SERVER-SECRET-KEY")
	assert.Contains(t, rec.Body.String(), engine.Redacted)
}

func TestUnexpectedErrorIsGeneric(t *testing.T) {
	t.Parallel()

	h := newHandler(t, nil, auditorFunc(func(context.Context, engine.Request) (*engine.Result, error) {
		return nil, errors.New("something odd")
	}))

	env := decodeEnvelope(t, get(t, h, "/psi?url=a"))
	assert.Equal(t, map[string]any{
		"code":    float64(1),
		"message": engine.MsgInternal,
		"data":    map[string]any{"kind": "internal"},
	}, env)
}

func TestPanicIsRecovered(t *testing.T) {
	t.Parallel()

	m := metrics.New()
	h := New(config.DefaultConfig(), auditorFunc(func(context.Context, engine.Request) (*engine.Result, error) {
		panic("kaboom")
	}), output.Discard(), m).Handler()

	env := decodeEnvelope(t, get(t, h, "/psi?url=a"))
	assert.Equal(t, float64(1), env["code"])
	assert.Equal(t, engine.MsgInternal, env["message"])

	rec := get(t, h, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, HelloWorld, rec.Body.String())
	// psi/panic and fallback/ok
	n, err := testutil.GatherAndCount(m.Registry, "psi_http_requests_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestFallbackRoutes(t *testing.T) {
	t.Parallel()

	h := newHandler(t, nil, auditorFunc(func(context.Context, engine.Request) (*engine.Result, error) {
		t.Fatal("auditor must not be called")
		return nil, nil
	}))

	for _, target := range []string{"/", "/unknown", "/psi/", "/psi2?url=x", "/a/b/c",
		"/a//b", "/x/../y", "/foo/.", "//", "/a/../psi?url=x&full=1",
	} {
		rec := get(t, h, target)
		assert.Equal(t, http.StatusOK, rec.Code, target)
		assert.Equal(t, "text/plain", rec.Header().Get("Content-Type"), target)
		assert.Equal(t, "Hello World\n", rec.Body.String(), target)
	}
}

func TestRequestIDHeader(t *testing.T) {
	t.Parallel()

	h := newHandler(t, nil, nil)

	rec := get(t, h, "/")
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCORS(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.CORSOrigins = []string{"https://app.example"}
	h := newHandler(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.DefaultConfig()
	cfg.MetricsAddr = "127.0.0.1:0"
	srv := New(cfg, nil, output.Discard(), metrics.New())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + ln.Addr().String() + "/hello")
		return err == nil
	}, 2*time.Second, 20*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, HelloWorld, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
