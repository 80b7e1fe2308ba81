package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMetricsRecordingAndHandler(t *testing.T) {
	m := NewMetrics("test")

	m.RecordRequestLatency("/health", "GET", "200", 0.01)
	m.RecordHTTPRequest("/health", "GET", "200")
	m.IncHTTPRequestsInFlight()
	m.DecHTTPRequestsInFlight()
	m.RecordSyncRun("scheduled", "success")
	m.RecordSyncDuration(2.4)
	m.RecordRowsWritten("heart_rate", 120)
	m.RecordSyncerFailure("stress")
	m.RecordExchange("success")
	m.RecordProviderRequest("sleep", 0.35)
	m.RecordError("timeout", "/sync", "POST")

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	body := w.Body.String()
	if !strings.Contains(body, "test_rows_written_total") {
		t.Fatalf("expected metrics output to contain rows written metric")
	}
	if !strings.Contains(body, "test_sync_runs_total") {
		t.Fatalf("expected metrics output to contain sync runs metric")
	}

	if _, err := m.registry.Gather(); err != nil {
		t.Fatalf("expected gather to succeed: %v", err)
	}
}
