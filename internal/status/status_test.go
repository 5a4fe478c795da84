package status

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/schaermu/nfswatch/internal/collector"
	"github.com/schaermu/nfswatch/internal/diff"
	"github.com/schaermu/nfswatch/internal/poller"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestHealth(t *testing.T) {
	s := NewServer("/mnt/share", testLogger())

	tests := []struct {
		method string
		want   int
	}{
		{http.MethodGet, http.StatusOK},
		{http.MethodPost, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(tt.method, "/healthz", nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		if rec.Code != tt.want {
			t.Errorf("%s /healthz: expected %d, got %d", tt.method, tt.want, rec.Code)
		}
	}
}

func TestStatusReflectsCycles(t *testing.T) {
	s := NewServer("/mnt/share", testLogger())
	started := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

	s.ObserveCycle(poller.CycleResult{
		ID:        "c1",
		StartedAt: started,
		Mode:      poller.ModeNormal,
		Entries:   12,
		Delta:     2,
		Events:    []diff.Event{{Type: diff.CreatedFile, Path: "/mnt/share/a"}, {Type: diff.DeletedFile, Path: "/mnt/share/b"}},
	})
	s.ObserveCycle(poller.CycleResult{
		ID:           "c2",
		StartedAt:    started.Add(time.Second),
		Mode:         poller.ModeHeavyLoad,
		Entries:      200000,
		Delta:        199988,
		SnapshotFile: "snapshot_20240801_120001.json",
	})

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode status: %v", err)
	}

	if report.Cycles != 2 || report.LastCycleID != "c2" {
		t.Errorf("unexpected cycle info %+v", report)
	}
	if report.Mode != "heavy-load" {
		t.Errorf("expected heavy-load mode, got %s", report.Mode)
	}
	if !report.RootReachable || report.Entries != 200000 || report.LastEventCount != 0 {
		t.Errorf("unexpected report %+v", report)
	}
	if report.LastSnapshot != "snapshot_20240801_120001.json" {
		t.Errorf("unexpected last snapshot %q", report.LastSnapshot)
	}
}

func TestStatusUnreachableKeepsLastCounts(t *testing.T) {
	s := NewServer("/mnt/share", testLogger())
	s.ObserveCycle(poller.CycleResult{ID: "c1", Entries: 5})
	s.ObserveCycle(poller.CycleResult{ID: "c2", Skipped: true, Err: collector.ErrRootUnreachable})

	report := s.Snapshot()
	if report.RootReachable {
		t.Error("expected root to be reported unreachable")
	}
	if report.Entries != 5 {
		t.Errorf("expected entries from last successful cycle, got %d", report.Entries)
	}
	if report.LastError == "" {
		t.Error("expected last error to be set")
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	s := NewServer("/mnt/share", testLogger())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, l) }()

	url := "http://" + l.Addr().String() + "/healthz"
	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get(url)
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("status server not reachable: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if string(body) != "ok\n" {
		t.Errorf("unexpected body %q", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not stop")
	}
}
