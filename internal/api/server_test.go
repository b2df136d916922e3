package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/smazurov/browserpool/internal/api/models"
	"github.com/smazurov/browserpool/internal/browser/browsertest"
	"github.com/smazurov/browserpool/internal/config"
	"github.com/smazurov/browserpool/internal/events"
	"github.com/smazurov/browserpool/internal/logging"
	"github.com/smazurov/browserpool/internal/manager"
	"github.com/smazurov/browserpool/internal/monitor"
)

func newTestManager(t *testing.T, boot bool) *manager.Manager {
	t.Helper()
	m := manager.New(manager.Options{
		Pool: config.PoolConfig{
			BrowserMin: 1, BrowserMax: 2, SessionMin: 1, SessionMax: 2,
			ViewportWidth: 1080, ViewportHeight: 1024,
		},
		Backend: &browsertest.Backend{},
		Logger:  logging.Discard(),
	})
	if boot {
		if err := m.Boot(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	t.Cleanup(func() { _ = m.TerminatePool(context.Background()) })
	return m
}

func newTestServer(t *testing.T, opts *Options) *httptest.Server {
	t.Helper()
	server := NewServer(opts)
	ts := httptest.NewServer(server.mux)
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthReportsPoolState(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: newTestManager(t, true)})

	resp, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body models.HealthData
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK || body.Status != "ok" || body.Pool != "booted" {
		t.Errorf("status %d body %+v", resp.StatusCode, body)
	}
	if resp.Header.Get(RequestIDHeader) == "" {
		t.Error("missing request id header")
	}
}

func TestRequestIDIsEchoed(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: newTestManager(t, false)})

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/version", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if got := resp.Header.Get(RequestIDHeader); got != "req-123" {
		t.Errorf("request id = %q", got)
	}
}

func TestFetchIssuesSession(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: newTestManager(t, true)})

	resp := postJSON(t, ts.URL+"/api/fetch", models.FetchRequestData{URL: "https://example.com/page"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body models.FetchData
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.URL != "https://example.com/page" || body.Title != "Title of https://example.com/page" {
		t.Errorf("unexpected body %+v", body)
	}
	if want := len("<html><body>https://example.com/page</body></html>"); body.Length != want {
		t.Errorf("length = %d, want %d", body.Length, want)
	}
}

func TestFetchCallbackFailureIs500(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: newTestManager(t, true)})

	resp := postJSON(t, ts.URL+"/api/fetch", models.FetchRequestData{URL: "https://fail.example.com"})
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if strings.Contains(buf.String(), "navigation") {
		t.Errorf("callback detail leaked: %s", buf.String())
	}
}

func TestFetchBeforeBootIs503(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: newTestManager(t, false)})

	resp := postJSON(t, ts.URL+"/api/fetch", models.FetchRequestData{URL: "https://example.com"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "pool manager misconfigured") {
		t.Errorf("body = %s", buf.String())
	}
}

func TestPoolMetrics(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: newTestManager(t, true)})

	tests := []struct {
		query string
		want  int
	}{
		{"", 1},
		{"?id=1", 1},
		{"?id=999", 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/api/pool/metrics" + tt.query)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()

			var snaps []map[string]any
			if err := json.NewDecoder(resp.Body).Decode(&snaps); err != nil {
				t.Fatal(err)
			}
			if len(snaps) != tt.want {
				t.Fatalf("got %d snapshots, want %d", len(snaps), tt.want)
			}
			if tt.want == 1 {
				for _, key := range []string{"Id", "CPU", "Memory", "SessionPoolCount"} {
					if _, ok := snaps[0][key]; !ok {
						t.Errorf("snapshot missing %q: %v", key, snaps[0])
					}
				}
			}
		})
	}
}

func TestRebootRoute(t *testing.T) {
	m := newTestManager(t, true)
	ts := newTestServer(t, &Options{Pool: m})

	before := m.Units()[0].PID
	resp, err := http.Post(ts.URL+"/api/pool/reboot", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if after := m.Units(); len(after) != 1 || after[0].PID == before {
		t.Errorf("pool not rebooted: %+v", after)
	}
}

func TestBasicAuth(t *testing.T) {
	ts := newTestServer(t, &Options{
		AuthUsername: "admin",
		AuthPassword: "secret",
		Pool:         newTestManager(t, true),
	})

	resp, err := http.Get(ts.URL + "/api/pool")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status without credentials = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, ts.URL+"/api/pool", nil)
	req.SetBasicAuth("admin", "secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status with credentials = %d", resp.StatusCode)
	}
	var body models.PoolData
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.State != "booted" || len(body.Live) != 1 {
		t.Errorf("unexpected pool body %+v", body)
	}

	// health stays open
	resp, err = http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", resp.StatusCode)
	}
}

func readSSE(t *testing.T, url string) <-chan string {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to connect to SSE: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		t.Fatalf("Expected SSE content type, got %s", resp.Header.Get("Content-Type"))
	}

	lines := make(chan string, 10)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data:") {
				lines <- line
			}
		}
	}()
	return lines
}

func TestAlertsStream(t *testing.T) {
	bus := events.New()
	ts := newTestServer(t, &Options{Pool: newTestManager(t, false), EventBus: bus})

	// headers are only flushed with the first event, so publish until one lands
	done := make(chan struct{})
	defer close(done)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-done:
				return
			case <-tick.C:
				bus.Publish(events.AlertEvent{
					Level:     events.LevelDanger,
					Metric:    events.MetricCPU,
					ID:        monitor.DisplayID(1, 42),
					UnitID:    1,
					Value:     91.5,
					Threshold: 80,
				})
			}
		}
	}()

	lines := readSSE(t, ts.URL+"/api/alerts")
	select {
	case line := <-lines:
		if !strings.Contains(line, `"level":"danger"`) || !strings.Contains(line, "POOL_1(PID: 42)") {
			t.Errorf("unexpected alert line %s", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for alert event")
	}
}

func TestEventsStreamGreetsWithState(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: newTestManager(t, true)})

	lines := readSSE(t, ts.URL+"/api/events")
	select {
	case line := <-lines:
		if !strings.Contains(line, `"state":"booted"`) {
			t.Errorf("unexpected greeting %s", line)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timeout waiting for greeting")
	}
}

type stubPool struct {
	err error
}

func (s stubPool) IssueSession(context.Context, manager.Callback) (any, error) { return nil, s.err }
func (s stubPool) GetPoolMetrics(context.Context, *int) ([]monitor.Snapshot, error) {
	return nil, s.err
}
func (s stubPool) Reboot(context.Context) error { return s.err }
func (s stubPool) Stats() manager.Stats       { return manager.Stats{State: "booted"} }

func TestPoolErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&manager.NotInitializedError{Message: "not initialized"}, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", manager.ErrNotInitialized), http.StatusServiceUnavailable},
		{context.DeadlineExceeded, http.StatusServiceUnavailable},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			ts := newTestServer(t, &Options{Pool: stubPool{err: tt.err}})
			resp, err := http.Post(ts.URL+"/api/pool/reboot", "application/json", nil)
			if err != nil {
				t.Fatal(err)
			}
			defer resp.Body.Close()
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
		})
	}
}

func TestPoolMetricsHTTPHandlerSkipsAuth(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("browserpool_pool_units 1\n"))
	})
	ts := newTestServer(t, &Options{
		AuthUsername:      "admin",
		AuthPassword:      "secret",
		Pool:              stubPool{},
		PrometheusHandler: handler,
	})

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestBasicAuthQueryFallback(t *testing.T) {
	ts := newTestServer(t, &Options{AuthUsername: "a", AuthPassword: "b", Pool: stubPool{}})

	creds := base64.StdEncoding.EncodeToString([]byte("a:b"))
	resp, err := http.Get(ts.URL + "/api/pool?auth=" + creds)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, &Options{Pool: stubPool{}})

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/api/fetch", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(resp.Header.Get("Access-Control-Allow-Headers"), RequestIDHeader) {
		t.Errorf("allow headers = %q", resp.Header.Get("Access-Control-Allow-Headers"))
	}
}
