package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/therealutkarshpriyadarshi/coursedub/internal/logging"
)

func TestRecordHTTPRequest(t *testing.T) {
	// Reset metrics
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	RecordHTTPRequest("POST", "/api/v1/sections/:id/dubbing", "202", 0.123)

	// Verify counter incremented
	counter := testutil.ToFloat64(HTTPRequestsTotal.WithLabelValues("POST", "/api/v1/sections/:id/dubbing", "202"))
	if counter != 1.0 {
		t.Errorf("Expected counter to be 1.0, got %f", counter)
	}
}

func TestRecordDubSubmission(t *testing.T) {
	DubSubmissionsTotal.Reset()

	RecordDubSubmission("accepted")
	RecordDubSubmission("rejected")
	RecordDubSubmission("accepted")

	accepted := testutil.ToFloat64(DubSubmissionsTotal.WithLabelValues("accepted"))
	if accepted != 2.0 {
		t.Errorf("Expected accepted counter to be 2.0, got %f", accepted)
	}

	rejected := testutil.ToFloat64(DubSubmissionsTotal.WithLabelValues("rejected"))
	if rejected != 1.0 {
		t.Errorf("Expected rejected counter to be 1.0, got %f", rejected)
	}
}

func TestRecordDubJobTransition(t *testing.T) {
	DubJobTransitionsTotal.Reset()
	DubJobsActive.Set(0)

	RecordDubJobCreated()
	RecordDubJobCreated()
	RecordDubJobTransition("queued", "submitted", "submit", false)
	RecordDubJobTransition("submitted", "ready", "callback", true)

	if got := testutil.ToFloat64(DubJobTransitionsTotal.WithLabelValues("submitted", "ready", "callback")); got != 1.0 {
		t.Errorf("Expected transition counter to be 1.0, got %f", got)
	}

	if active := testutil.ToFloat64(DubJobsActive); active != 1.0 {
		t.Errorf("Expected one active job, got %f", active)
	}
}

func TestRecordPollError(t *testing.T) {
	DubPollErrorsTotal.Reset()

	RecordPollError("timeout")

	if got := testutil.ToFloat64(DubPollErrorsTotal.WithLabelValues("timeout")); got != 1.0 {
		t.Errorf("Expected poll error counter to be 1.0, got %f", got)
	}
}

func TestRecordRemoteRequest(t *testing.T) {
	RemoteRequestsTotal.Reset()

	RecordRemoteRequest("submit", "error", 0.5)

	if got := testutil.ToFloat64(RemoteRequestsTotal.WithLabelValues("submit", "error")); got != 1.0 {
		t.Errorf("Expected remote request counter to be 1.0, got %f", got)
	}
}

func TestPlaybackSessionMetrics(t *testing.T) {
	PlaybackSessionsTotal.Reset()
	PlaybackSessionsActive.Set(0)
	ManifestLoadFailuresTotal.Reset()

	RecordSessionOpened("native")
	RecordSessionOpened("fallback")
	RecordSessionClosed()
	RecordManifestLoad("native", 0.2, errors.New("timeout"))
	RecordManifestLoad("fallback", 0.1, nil)

	if got := testutil.ToFloat64(PlaybackSessionsTotal.WithLabelValues("native")); got != 1.0 {
		t.Errorf("Expected native sessions to be 1.0, got %f", got)
	}

	if got := testutil.ToFloat64(PlaybackSessionsActive); got != 1.0 {
		t.Errorf("Expected one active session, got %f", got)
	}

	if got := testutil.ToFloat64(ManifestLoadFailuresTotal.WithLabelValues("native")); got != 1.0 {
		t.Errorf("Expected native manifest failures to be 1.0, got %f", got)
	}

	if got := testutil.ToFloat64(ManifestLoadFailuresTotal.WithLabelValues("fallback")); got != 0.0 {
		t.Errorf("Expected no fallback manifest failures, got %f", got)
	}
}

func TestRecordTrackSwitch(t *testing.T) {
	TrackSwitchesTotal.Reset()

	RecordTrackSwitch("unresolved")

	if got := testutil.ToFloat64(TrackSwitchesTotal.WithLabelValues("unresolved")); got != 1.0 {
		t.Errorf("Expected unresolved switches to be 1.0, got %f", got)
	}
}

func TestRecordCacheAccess(t *testing.T) {
	CacheHitsTotal.Reset()
	CacheMissesTotal.Reset()

	RecordCacheAccess("dub_tracks", true)
	RecordCacheAccess("dub_tracks", true)
	RecordCacheAccess("dub_tracks", false)

	hits := testutil.ToFloat64(CacheHitsTotal.WithLabelValues("dub_tracks"))
	if hits != 2.0 {
		t.Errorf("Expected cache hits to be 2.0, got %f", hits)
	}

	misses := testutil.ToFloat64(CacheMissesTotal.WithLabelValues("dub_tracks"))
	if misses != 1.0 {
		t.Errorf("Expected cache misses to be 1.0, got %f", misses)
	}
}

func TestRecordError(t *testing.T) {
	ErrorsTotal.Reset()

	RecordError("api", "validation")
	RecordError("worker", "poll")
	RecordError("api", "validation")

	apiErrors := testutil.ToFloat64(ErrorsTotal.WithLabelValues("api", "validation"))
	if apiErrors != 2.0 {
		t.Errorf("Expected API validation errors to be 2.0, got %f", apiErrors)
	}
}

func TestHealthHandler(t *testing.T) {
	s := NewServer(0, logging.NewNopLogger())

	rec := httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rec.Code)
	}

	s.AddCheck("database", func(ctx context.Context) error { return nil })
	s.AddCheck("queue", func(ctx context.Context) error { return errors.New("channel closed") })

	rec = httptest.NewRecorder()
	s.healthHandler(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", rec.Code)
	}

	var report healthReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to decode health report: %v", err)
	}
	if report.Checks["database"] != "ok" || report.Checks["queue"] != "channel closed" {
		t.Errorf("Unexpected checks: %v", report.Checks)
	}
}

func BenchmarkRecordHTTPRequest(b *testing.B) {
	for i := 0; i < b.N; i++ {
		RecordHTTPRequest("GET", "/api/v1/sessions/:id", "200", 0.123)
	}
}

func TestSetQueueDepth(t *testing.T) {
	SetQueueDepth(7, 2)

	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("events")); got != 7 {
		t.Errorf("Expected events depth 7, got %f", got)
	}
	if got := testutil.ToFloat64(QueueDepth.WithLabelValues("dead_letter")); got != 2 {
		t.Errorf("Expected dead letter depth 2, got %f", got)
	}
}
