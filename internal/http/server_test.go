package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"spoticord/internal/core"
	"spoticord/internal/flood"
	"spoticord/internal/history"
	"spoticord/internal/metacache"
	"spoticord/internal/stats"
)

func newTestHistory(t *testing.T) *history.Log {
	t.Helper()
	log, err := history.Open(filepath.Join(t.TempDir(), "user_data.csv"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open history: %v", err)
	}
	for _, user := range []string{"alice", "bob", "alice"} {
		_, err := log.Append(history.Entry{
			Time:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
			User:      user,
			Verdict:   core.VerdictAdded,
			TrackID:   "4uLU6hMCjMI75M1A2tKUQC",
			TrackName: "Never Gonna Give You Up",
			Artist:    "Rick Astley",
		})
		if err != nil {
			t.Fatalf("failed to append: %v", err)
		}
	}
	return log
}

func get(t *testing.T, server *httptest.Server, path string) (*http.Response, string) {
	t.Helper()
	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, server.URL+path, http.NoBody)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to call %s: %v", path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return resp, string(body)
}

func TestCreateHTTPServer(t *testing.T) {
	config := &core.ServerConfig{
		Host:         "0.0.0.0",
		Port:         9090,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	mux := http.NewServeMux()
	server := createHTTPServer(config, mux)

	if server.Addr != "0.0.0.0:9090" {
		t.Errorf("createHTTPServer() Addr = %q, expected %q", server.Addr, "0.0.0.0:9090")
	}
	if server.Handler != mux {
		t.Errorf("createHTTPServer() Handler mismatch")
	}
	if server.ReadTimeout != config.ReadTimeout {
		t.Errorf("createHTTPServer() ReadTimeout = %v, expected %v", server.ReadTimeout, config.ReadTimeout)
	}
	if server.WriteTimeout != config.WriteTimeout {
		t.Errorf("createHTTPServer() WriteTimeout = %v, expected %v", server.WriteTimeout, config.WriteTimeout)
	}
}

func TestProbes(t *testing.T) {
	ready := false
	router := setupRoutes(prometheus.NewRegistry(), Deps{Ready: func() bool { return ready }}, zap.NewNop())
	server := httptest.NewServer(router)
	defer server.Close()

	resp, body := get(t, server, "/healthz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/healthz returned status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("/healthz Content-Type = %q", ct)
	}
	var status map[string]string
	if err := json.Unmarshal([]byte(body), &status); err != nil {
		t.Fatalf("invalid /healthz body %q: %v", body, err)
	}
	if status["status"] != "ok" || status["service"] != "spoticord" {
		t.Errorf("unexpected /healthz body %v", status)
	}

	resp, _ = get(t, server, "/readyz")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("/readyz before ready returned %d", resp.StatusCode)
	}

	ready = true
	resp, _ = get(t, server, "/readyz")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("/readyz after ready returned %d", resp.StatusCode)
	}

	// history routes are absent without a log
	resp, _ = get(t, server, "/history.csv")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("/history.csv without a log returned %d", resp.StatusCode)
	}
}

func TestHistoryDownload(t *testing.T) {
	log := newTestHistory(t)
	server := httptest.NewServer(setupRoutes(prometheus.NewRegistry(), Deps{History: log}, zap.NewNop()))
	defer server.Close()

	resp, body := get(t, server, "/history.csv")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/history.csv returned %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "text/csv") {
		t.Errorf("unexpected Content-Type %q", resp.Header.Get("Content-Type"))
	}
	if !strings.HasPrefix(body, history.Header+"\n") {
		t.Errorf("download should start with the header, got %q", body)
	}
	if got := strings.Count(body, "\n"); got != 4 {
		t.Errorf("expected header and 3 entries, got %d lines", got)
	}
}

func TestStatsEndpoint(t *testing.T) {
	log := newTestHistory(t)
	server := httptest.NewServer(setupRoutes(prometheus.NewRegistry(), Deps{History: log}, zap.NewNop()))
	defer server.Close()

	resp, body := get(t, server, "/stats/posters")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/stats/posters returned %d", resp.StatusCode)
	}
	var report stats.Report
	if err := json.Unmarshal([]byte(body), &report); err != nil {
		t.Fatalf("invalid body %q: %v", body, err)
	}
	if report.Kind != stats.KindPosters || len(report.Rows) != 2 {
		t.Fatalf("unexpected report %+v", report)
	}
	if report.Rows[0] != (stats.Row{Label: "alice", Value: 2}) {
		t.Errorf("unexpected top poster %+v", report.Rows[0])
	}

	resp, _ = get(t, server, "/stats/genres")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("metadata boards are not served, got %d", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: 0}
	srv := NewServer(config, Deps{
		CacheStats: func() metacache.Stats { return metacache.Stats{Hits: 7, Tracks: 3} },
		FloodStats: func() flood.Stats { return flood.Stats{Blocked: 2} },
	}, zap.NewNop())

	srv.RecordMessage("link", "ok")
	srv.RecordVerdict(core.VerdictDuplicate)
	srv.RecordProcessingTime("link", 20*time.Millisecond)
	srv.SetPlaylistSize(42)

	server := httptest.NewServer(srv.Handler())
	defer server.Close()

	resp, body := get(t, server, "/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/metrics returned %d", resp.StatusCode)
	}

	for _, want := range []string{
		`spoticord_messages_total{kind="link",status="ok"} 1`,
		`spoticord_verdicts_total{verdict="duplicate"} 1`,
		`spoticord_playlist_size 42`,
		`spoticord_cache_hits_total 7`,
		`spoticord_cache_tracks 3`,
		`spoticord_flood_blocked_total 2`,
		`spoticord_processing_duration_seconds_count{kind="link"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestNewServerRegistriesAreIndependent(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: 0}
	first := NewServer(config, Deps{}, zap.NewNop())
	second := NewServer(config, Deps{}, zap.NewNop())
	if first.GetMetrics() == second.GetMetrics() {
		t.Error("each server should own its collectors")
	}
}

func TestServer_StartContextCancellation(t *testing.T) {
	config := &core.ServerConfig{Host: "127.0.0.1", Port: 0}
	srv := NewServer(config, Deps{}, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
