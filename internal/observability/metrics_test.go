package observability

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountSessionLifecycle(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	if got := testutil.ToFloat64(m.ActiveSessions); got != 1 {
		t.Fatalf("active_sessions = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionEvents.WithLabelValues("opened")); got != 2 {
		t.Fatalf("opened events = %v, want 2", got)
	}
}

func TestMetricsGenerationFailuresByReason(t *testing.T) {
	m := NewMetrics("test", prometheus.NewRegistry())
	m.ObserveGeneration(time.Second, true, "")
	m.ObserveGeneration(time.Second, false, "empty_result")

	if got := testutil.ToFloat64(m.GenerationFailures.WithLabelValues("empty_result")); got != 1 {
		t.Fatalf("failures = %v, want 1", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.SessionOpened()
	m.SessionClosed()
	m.ObserveMessage("inbound", "text")
	m.ObserveGeneration(time.Second, false, "x")
	m.ObserveUpload("success")
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics("voiceclone_test", prometheus.NewRegistry())
	m.ObserveUpload("success")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "voiceclone_test_reference_uploads_total") {
		t.Fatalf("metrics output missing upload counter:\n%s", body)
	}
}
