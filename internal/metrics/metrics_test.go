package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

func TestPrometheus_Counters(t *testing.T) {
	o := NewPrometheus()

	o.OnIngest(10*time.Millisecond, 3, 2, nil)
	o.OnIngest(5*time.Millisecond, 1, 0, errors.New("store down"))
	o.OnFaceFailure(faceerr.KindFaceCrop)
	o.OnFaceFailure(faceerr.KindFaceCrop)
	o.OnBackpressure("ingest")
	o.OnQueueDepth("ingest", 7)

	if got := testutil.ToFloat64(o.faces); got != 4 {
		t.Errorf("faces = %v, want 4", got)
	}
	if got := testutil.ToFloat64(o.encodings); got != 2 {
		t.Errorf("encodings = %v, want 2", got)
	}
	if got := testutil.ToFloat64(o.faceFailures.WithLabelValues("FACE_CROP")); got != 2 {
		t.Errorf("face failures = %v, want 2", got)
	}
	if got := testutil.ToFloat64(o.backpressure.WithLabelValues("ingest")); got != 1 {
		t.Errorf("backpressure = %v, want 1", got)
	}
	if got := testutil.ToFloat64(o.queueDepth.WithLabelValues("ingest")); got != 7 {
		t.Errorf("queue depth = %v, want 7", got)
	}
}

func TestPrometheus_Handler(t *testing.T) {
	o := NewPrometheus()
	o.OnSearch(20*time.Millisecond, "no_match")

	rec := httptest.NewRecorder()
	o.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `selfie_finder_operation_latency_seconds_count{op="search",outcome="no_match"} 1`) {
		t.Errorf("search latency missing from exposition:\n%s", body)
	}
}

func TestOrNop(t *testing.T) {
	if _, ok := OrNop(nil).(Nop); !ok {
		t.Error("OrNop(nil) should return Nop")
	}
	p := NewPrometheus()
	if OrNop(p) != Observer(p) {
		t.Error("OrNop should pass through a non-nil observer")
	}
}
