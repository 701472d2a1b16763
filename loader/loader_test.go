package loader

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/windguru-tools/wgscrape/config"
)

const stationURL = "http://station.test/53"

const readyPage = `<html><body>
<div class="spot-name">Test Spot</div>
<table id="tabid_0_0"><tbody><tr><td class="tcell">12</td></tr></tbody></table>
</body></html>`

const skeletonPage = `<html><body><div class="loading">please wait</div></body></html>`

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.MaxRetries = 2
	cfg.RetryBackoff = time.Millisecond
	cfg.RetryBackoffMax = 4 * time.Millisecond
	cfg.ReadySelector = "#tabid_0_0"
	return cfg
}

func newTestLoader(t *testing.T, cfg *config.Config) (*Loader, *httpmock.MockTransport) {
	t.Helper()
	l := New(cfg, nil)
	transport := httpmock.NewMockTransport()
	l.collector.WithTransport(transport)
	return l, transport
}

func htmlResponder(status int, body string) httpmock.Responder {
	resp := httpmock.NewStringResponse(status, body)
	resp.Header.Set("Content-Type", "text/html")
	return httpmock.ResponderFromResponse(resp)
}

func TestLoadURL(t *testing.T) {
	l, transport := newTestLoader(t, testConfig())
	transport.RegisterResponder("GET", stationURL, htmlResponder(200, readyPage))

	doc, err := l.Load(context.Background(), Input{URL: stationURL})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Find("#tabid_0_0").Length() != 1 {
		t.Error("document lost the forecast table anchor")
	}
	if got := doc.Find(".spot-name").Text(); got != "Test Spot" {
		t.Errorf("spot name = %q, want %q", got, "Test Spot")
	}
}

func TestLoadURLRetriesServerError(t *testing.T) {
	l, transport := newTestLoader(t, testConfig())

	calls := 0
	transport.RegisterResponder("GET", stationURL, func(req *http.Request) (*http.Response, error) {
		calls++
		if calls == 1 {
			return httpmock.NewStringResponse(http.StatusInternalServerError, "boom"), nil
		}
		resp := httpmock.NewStringResponse(200, readyPage)
		resp.Header.Set("Content-Type", "text/html")
		return resp, nil
	})

	if _, err := l.Load(context.Background(), Input{URL: stationURL}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("made %d requests, want a single retry after the 500", calls)
	}
}

func TestLoadURLNotFoundFailsFast(t *testing.T) {
	l, transport := newTestLoader(t, testConfig())
	transport.RegisterResponder("GET", stationURL, htmlResponder(http.StatusNotFound, "no such station"))

	_, err := l.Load(context.Background(), Input{URL: stationURL})
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("Load() error = %v, want ErrNotFound", err)
	}
	if got := transport.GetTotalCallCount(); got != 1 {
		t.Errorf("made %d requests, want no retries for a 404", got)
	}
}

func TestLoadURLPageNotReady(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 1
	l, transport := newTestLoader(t, cfg)
	transport.RegisterResponder("GET", stationURL, htmlResponder(200, skeletonPage))

	_, err := l.Load(context.Background(), Input{URL: stationURL})
	var notReady ErrPageNotReady
	if !errors.As(err, &notReady) {
		t.Fatalf("Load() error = %v, want ErrPageNotReady", err)
	}
	if notReady.Selector != "#tabid_0_0" {
		t.Errorf("selector = %q, want %q", notReady.Selector, "#tabid_0_0")
	}
	if got := transport.GetTotalCallCount(); got != 2 {
		t.Errorf("made %d requests, want the not-ready page to be refetched once", got)
	}
}

func TestLoadURLContextCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = time.Minute // the cancelled context must cut the wait short
	l, transport := newTestLoader(t, cfg)
	transport.RegisterResponder("GET", stationURL, htmlResponder(200, skeletonPage))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, err := l.Load(ctx, Input{URL: stationURL})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Load() error = %v, want context.Canceled", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("Load() blocked %v on a cancelled context", elapsed)
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(readyPage), 0o644); err != nil {
		t.Fatalf("write page file: %v", err)
	}

	l := New(testConfig(), nil)
	doc, err := l.Load(context.Background(), Input{Path: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Find("#tabid_0_0").Length() != 1 {
		t.Error("document lost the forecast table anchor")
	}
}

func TestLoadFileNotReady(t *testing.T) {
	path := filepath.Join(t.TempDir(), "page.html")
	if err := os.WriteFile(path, []byte(skeletonPage), 0o644); err != nil {
		t.Fatalf("write page file: %v", err)
	}

	l := New(testConfig(), nil)
	_, err := l.Load(context.Background(), Input{Path: path})
	var notReady ErrPageNotReady
	if !errors.As(err, &notReady) {
		t.Errorf("Load() error = %v, want ErrPageNotReady (files are not refetched)", err)
	}
}

func TestLoadStdin(t *testing.T) {
	l := New(testConfig(), nil)
	l.stdin = strings.NewReader(readyPage)

	doc, err := l.Load(context.Background(), Input{Stdin: true})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Find("#tabid_0_0").Length() != 1 {
		t.Error("document lost the forecast table anchor")
	}
}

func TestLoadNoInput(t *testing.T) {
	l := New(testConfig(), nil)
	if _, err := l.Load(context.Background(), Input{}); err == nil {
		t.Fatal("Load() accepted an empty input")
	}
}

func TestInputSource(t *testing.T) {
	tests := []struct {
		in   Input
		want string
	}{
		{Input{URL: stationURL}, stationURL},
		{Input{Path: "/tmp/page.html"}, "/tmp/page.html"},
		{Input{Stdin: true}, "stdin"},
		{Input{}, ""},
	}
	for _, tt := range tests {
		if got := tt.in.Source(); got != tt.want {
			t.Errorf("Source(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		statusCode int
		expected   string
	}{
		{name: "nil", err: nil, statusCode: 0, expected: "unknown"},
		{name: "context timeout", err: context.DeadlineExceeded, statusCode: 0, expected: "timeout"},
		{name: "net timeout", err: &net.DNSError{IsTimeout: true}, statusCode: 0, expected: "timeout"},
		{name: "connection", err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}, statusCode: 0, expected: "connection"},
		{name: "forbidden", err: nil, statusCode: http.StatusForbidden, expected: "forbidden"},
		{name: "not found", err: nil, statusCode: http.StatusNotFound, expected: "not_found"},
		{name: "rate limited", err: nil, statusCode: http.StatusTooManyRequests, expected: "rate_limited"},
		{name: "server error", err: nil, statusCode: http.StatusBadGateway, expected: "server_error"},
		{name: "other", err: errors.New("some other error"), statusCode: 0, expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorTypeLabel(classifyError(tt.err, tt.statusCode)); got != tt.expected {
				t.Fatalf("classifyError(%v, %d) = %q, want %q", tt.err, tt.statusCode, got, tt.expected)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"timeout", ErrTimeout{Err: errors.New("x")}, true},
		{"connection", ErrConnection{Err: errors.New("x")}, true},
		{"rate limited", ErrRateLimited{Err: errors.New("x")}, true},
		{"server error", ErrServerError{Err: errors.New("x")}, true},
		{"not ready", ErrPageNotReady{Selector: "#tab"}, true},
		{"forbidden", ErrForbidden{Err: errors.New("x")}, false},
		{"not found", ErrNotFound{Err: errors.New("x")}, false},
		{"plain", errors.New("x"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoffCapped(t *testing.T) {
	cfg := testConfig()
	cfg.RetryBackoff = 200 * time.Millisecond
	cfg.RetryBackoffMax = 500 * time.Millisecond
	l := New(cfg, nil)

	if delay := l.backoff(1); delay != 200*time.Millisecond {
		t.Errorf("backoff(1) = %v, want %v", delay, 200*time.Millisecond)
	}
	if delay := l.backoff(2); delay != 400*time.Millisecond {
		t.Errorf("backoff(2) = %v, want %v", delay, 400*time.Millisecond)
	}
	for attempt := 3; attempt <= 8; attempt++ {
		if delay := l.backoff(attempt); delay > cfg.RetryBackoffMax {
			t.Errorf("backoff(%d) = %v exceeds max %v", attempt, delay, cfg.RetryBackoffMax)
		}
	}
}
