package server

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/xtxerr/gemrate/internal/constants"
	"github.com/xtxerr/gemrate/internal/dataset"
	"github.com/xtxerr/gemrate/internal/errors"
	"github.com/xtxerr/gemrate/internal/logging"
	"github.com/xtxerr/gemrate/internal/source"
	testutil "github.com/xtxerr/gemrate/internal/testing"
	"github.com/xtxerr/gemrate/internal/types"
)

func newTestServer(t *testing.T, src *source.Static) (*Server, *dataset.Registry, *httptest.Server) {
	t.Helper()

	reg, err := dataset.NewRegistry(src, dataset.DefaultRegistryConfig())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Registry = reg
	cfg.StreamPongWait = time.Second
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		s.Shutdown(context.Background())
		ts.Close()
	})
	return s, reg, ts
}

func seeded() *source.Static {
	src := source.NewStatic()
	src.Append(types.KindGemToGold, testutil.Ticks(testutil.HourAligned, types.OneHour, 3, testutil.LinearRate(100, 50))...)
	src.Append(types.KindGoldToGem, testutil.Ticks(testutil.HourAligned, types.OneHour, 2, testutil.ConstantRate(400))...)
	return src
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()

	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestNew_RequiresRegistry(t *testing.T) {
	if _, err := New(DefaultConfig()); !errors.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestHandleChart(t *testing.T) {
	_, _, ts := newTestServer(t, seeded())

	var chart []struct {
		Label string        `json:"label"`
		Data  []types.Point `json:"data"`
	}
	if code := getJSON(t, ts.URL+"/gem_chart", &chart); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}

	if len(chart) != 3 || chart[0].Label != constants.LabelRaw || chart[2].Label != constants.LabelWeekly {
		t.Fatalf("unexpected chart: %+v", chart)
	}
	if len(chart[0].Data) != 3 || chart[0].Data[0].TimestampMs != testutil.HourAligned*1000 {
		t.Errorf("unexpected raw line: %+v", chart[0].Data)
	}
	if got := chart[1].Data[2].Value; got != 150 {
		t.Errorf("24h average at third tick = %v, want 150", got)
	}

	chart = nil
	if code := getJSON(t, ts.URL+"/gem_chart?type=gold-to-gem", &chart); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(chart[0].Data) != 2 || chart[0].Data[1].Value != 400 {
		t.Errorf("unexpected gold_to_gem chart: %+v", chart)
	}
}

func TestHandleSeries(t *testing.T) {
	_, _, ts := newTestServer(t, seeded())

	var pts []types.Point
	if code := getJSON(t, ts.URL+"/series/gem_to_gold/24h", &pts); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(pts) != 3 || pts[0].Value != 100 || pts[1].Value != 125 {
		t.Errorf("unexpected daily series: %+v", pts)
	}

	pts = nil
	if code := getJSON(t, ts.URL+"/series/gem_to_gold/raw?limit=1", &pts); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if len(pts) != 1 || pts[0].Value != 200 {
		t.Errorf("limit=1 should keep the newest point: %+v", pts)
	}
}

func TestHandleErrors(t *testing.T) {
	src := seeded()
	_, _, ts := newTestServer(t, src)

	tests := []struct {
		path string
		want int
	}{
		{"/series/silver/raw", http.StatusNotFound},
		{"/series/gem_to_gold/monthly", http.StatusNotFound},
		{"/series/gem_to_gold/raw?limit=-2", http.StatusBadRequest},
		{"/gem_chart?type=silver", http.StatusNotFound},
		{"/summary/silver", http.StatusNotFound},
		{"/nothing", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := http.Get(ts.URL + tt.path)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}

	src.SetError(errors.Unavailable(errors.ErrInternal, "static"))
	var body errorResponse
	if code := getJSON(t, ts.URL+"/series/gold_to_gem/raw", &body); code != http.StatusServiceUnavailable {
		t.Errorf("unavailable source: status = %d", code)
	}
	if body.Status != http.StatusServiceUnavailable || body.Error == "" {
		t.Errorf("unexpected error body: %+v", body)
	}
}

func TestHandleSummaryAndHealth(t *testing.T) {
	src := seeded()
	_, _, ts := newTestServer(t, src)

	var sum dataset.Summary
	if code := getJSON(t, ts.URL+"/summary/gem_to_gold", &sum); code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if sum.Day.Count != 3 || sum.Day.Avg != 150 || sum.Day.Max != 200 {
		t.Errorf("unexpected summary: %+v", sum)
	}

	var health HealthResponse
	getJSON(t, ts.URL+"/health", &health)
	if health.Status != "ok" || len(health.Datasets) != 2 {
		t.Fatalf("unexpected health: %+v", health)
	}
	for _, h := range health.Datasets {
		want := constants.DatasetStateStale
		if h.Kind == "gem_to_gold" {
			want = constants.DatasetStateFresh
		}
		if h.State != want {
			t.Errorf("%s state = %s, want %s", h.Kind, h.State, want)
		}
	}

	src.SetError(errors.Unavailable(errors.ErrInternal, "static"))
	if resp, err := http.Get(ts.URL + "/series/gold_to_gem/raw"); err == nil {
		resp.Body.Close()
	}
	health = HealthResponse{}
	getJSON(t, ts.URL+"/health", &health)
	if health.Status != "degraded" {
		t.Errorf("expected degraded health, got %+v", health)
	}
}

func TestStream(t *testing.T) {
	src := seeded()
	_, reg, ts := newTestServer(t, src)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/gem_to_gold"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg StreamMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read initial: %v", err)
	}
	if msg.Kind != "gem_to_gold" || msg.Cycle != 0 || len(msg.Chart) != 3 || len(msg.Chart[0].Data) != 3 {
		t.Fatalf("unexpected initial message: %+v", msg)
	}

	src.Append(types.KindGemToGold, types.Tick{Timestamp: testutil.HourAligned + 3*types.OneHour, Rate: 250})

	// The stream subscribed before its first send, so the next cycle is
	// delivered.
	reg.Cycle(context.Background())

	var next StreamMessage
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read cycle: %v", err)
	}
	if next.Cycle != 1 || len(next.Chart[0].Data) != 4 {
		t.Errorf("unexpected cycle message: cycle=%d points=%d", next.Cycle, len(next.Chart[0].Data))
	}
}

func TestStream_UnknownKind(t *testing.T) {
	_, _, ts := newTestServer(t, seeded())

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/silver"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %v", resp)
	}
}

func TestRunAndShutdown(t *testing.T) {
	reg, err := dataset.NewRegistry(seeded(), dataset.DefaultRegistryConfig())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Registry = reg
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	served := make(chan error, 1)
	go func() { served <- s.Serve(ln) }()

	if err := testutil.Eventually(time.Second, 10*time.Millisecond, func() bool { return s.Addr() != nil }); err != nil {
		t.Fatal(err)
	}

	resp, err := http.Get("http://" + s.Addr().String() + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	select {
	case err := <-served:
		if err != nil {
			t.Errorf("Serve returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after Shutdown")
	}

	if err := s.Shutdown(context.Background()); !errors.Is(err, errors.ErrClosed) {
		t.Errorf("second Shutdown: expected ErrClosed, got %v", err)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	if !rl.Allow("10.0.0.1") || !rl.Allow("10.0.0.1") {
		t.Fatal("first two connects should be allowed")
	}
	if rl.Allow("10.0.0.1") {
		t.Error("third connect should be blocked")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other IPs are counted separately")
	}
	if rl.Count("10.0.0.1") != 3 {
		t.Errorf("Count = %d", rl.Count("10.0.0.1"))
	}

	unlimited := NewRateLimiter(0, time.Minute)
	defer unlimited.Stop()
	for i := 0; i < 100; i++ {
		if !unlimited.Allow("x") {
			t.Fatal("zero limit should allow everything")
		}
	}

	if extractIP("192.0.2.1:5555") != "192.0.2.1" || extractIP("garbage") != "garbage" {
		t.Error("extractIP")
	}
}

// gatedSource blocks every fetch until release is closed.
type gatedSource struct {
	started chan struct{}
	release chan struct{}
}

func (g *gatedSource) Name() string { return "gated" }
func (g *gatedSource) Close() error { return nil }

func (g *gatedSource) FetchTicksSince(ctx context.Context, kind types.Kind, cursor *int64) ([]types.Tick, error) {
	select {
	case g.started <- struct{}{}:
	default:
	}
	select {
	case <-g.release:
		return testutil.Ticks(testutil.HourAligned, types.OneHour, 2, testutil.ConstantRate(100)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestChart_SharedRenderSurvivesCaller(t *testing.T) {
	src := &gatedSource{started: make(chan struct{}, 1), release: make(chan struct{})}
	rc := dataset.DefaultRegistryConfig()
	rc.Kinds = []types.Kind{types.KindGemToGold}
	reg, err := dataset.NewRegistry(src, rc)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Registry = reg
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Shutdown(context.Background()) })
	d, _ := reg.Get(types.KindGemToGold)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := s.chart(firstCtx, d)
		first <- err
	}()
	<-src.started

	type result struct {
		chart dataset.Chart
		err   error
	}
	second := make(chan result, 1)
	go func() {
		c, err := s.chart(context.Background(), d)
		second <- result{c, err}
	}()
	time.Sleep(50 * time.Millisecond)

	// The first caller gives up on its own.
	cancelFirst()
	select {
	case err := <-first:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("first caller: expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("first caller did not return after cancel")
	}

	close(src.release)
	select {
	case res := <-second:
		if res.err != nil {
			t.Fatalf("second caller: %v", res.err)
		}
		if len(res.chart) != 3 || len(res.chart[0].Data) != 2 {
			t.Errorf("unexpected chart: %+v", res.chart)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second caller did not return")
	}
}

func TestWriteError_LogsServerFailures(t *testing.T) {
	prev := logging.Logger
	var buf bytes.Buffer
	logging.InitWithHandler(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	t.Cleanup(func() { logging.InitWithHandler(prev.Handler()) })

	src := seeded()
	_, _, ts := newTestServer(t, src)

	if code := getJSON(t, ts.URL+"/series/gem_to_gold/monthly", nil); code != http.StatusNotFound {
		t.Fatalf("status = %d", code)
	}
	src.SetError(errors.Unavailable(errors.ErrInternal, "static"))
	if code := getJSON(t, ts.URL+"/series/gold_to_gem/raw", nil); code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", code)
	}

	out := buf.String()
	if !strings.Contains(out, "level=DEBUG msg=\"request rejected\"") {
		t.Errorf("client error not logged at debug:\n%s", out)
	}
	if !strings.Contains(out, "level=WARN msg=\"request failed\"") || !strings.Contains(out, "status=503") {
		t.Errorf("server error not logged at warn:\n%s", out)
	}
}
