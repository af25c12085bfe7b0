// Package metrics records engine activity. The Observer interface keeps the
// engine independent of the monitoring backend.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kozaktomas/selfie-finder/internal/faceerr"
)

// Observer receives engine events.
type Observer interface {
	// OnIngest is called once per ingested photo.
	OnIngest(d time.Duration, facesDetected, encodingsStored int, err error)
	// OnSearch is called once per selfie search with its outcome label.
	OnSearch(d time.Duration, outcome string)
	// OnFaceFailure is called for every detected face that produced no descriptor.
	OnFaceFailure(kind faceerr.Kind)
	// OnBackpressure is called when a task is rejected because the queue is full.
	OnBackpressure(queue string)
	// OnQueueDepth reports the number of pending tasks.
	OnQueueDepth(queue string, depth int)
}

// Nop discards every event.
type Nop struct{}

func (Nop) OnIngest(time.Duration, int, int, error) {}
func (Nop) OnSearch(time.Duration, string)          {}
func (Nop) OnFaceFailure(faceerr.Kind)              {}
func (Nop) OnBackpressure(string)                   {}
func (Nop) OnQueueDepth(string, int)                {}

// OrNop returns o, or Nop when o is nil.
func OrNop(o Observer) Observer {
	if o == nil {
		return Nop{}
	}
	return o
}

// Prometheus implements Observer with client_golang collectors.
type Prometheus struct {
	registry     *prometheus.Registry
	opLatency    *prometheus.HistogramVec
	faces        prometheus.Counter
	encodings    prometheus.Counter
	faceFailures *prometheus.CounterVec
	backpressure *prometheus.CounterVec
	queueDepth   *prometheus.GaugeVec
}

// NewPrometheus creates the collectors and registers them on a fresh registry.
func NewPrometheus() *Prometheus {
	o := &Prometheus{
		registry: prometheus.NewRegistry(),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "selfie_finder_operation_latency_seconds",
			Help:    "Latency of ingest and search operations",
			Buckets: prometheus.DefBuckets,
		}, []string{"op", "outcome"}),
		faces: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "selfie_finder_faces_detected_total",
			Help: "Total faces detected in ingested photos",
		}),
		encodings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "selfie_finder_encodings_stored_total",
			Help: "Total face encodings stored",
		}),
		faceFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selfie_finder_face_failures_total",
			Help: "Detected faces that produced no descriptor, by error kind",
		}, []string{"kind"}),
		backpressure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selfie_finder_backpressure_events_total",
			Help: "Tasks rejected because the queue was full",
		}, []string{"queue"}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "selfie_finder_queue_depth",
			Help: "Pending tasks per queue",
		}, []string{"queue"}),
	}

	o.registry.MustRegister(
		o.opLatency,
		o.faces,
		o.encodings,
		o.faceFailures,
		o.backpressure,
		o.queueDepth,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return o
}

// Registry exposes the underlying registry.
func (o *Prometheus) Registry() *prometheus.Registry {
	return o.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (o *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(o.registry, promhttp.HandlerOpts{})
}

func (o *Prometheus) OnIngest(d time.Duration, facesDetected, encodingsStored int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	o.opLatency.WithLabelValues("ingest", outcome).Observe(d.Seconds())
	o.faces.Add(float64(facesDetected))
	o.encodings.Add(float64(encodingsStored))
}

func (o *Prometheus) OnSearch(d time.Duration, outcome string) {
	o.opLatency.WithLabelValues("search", outcome).Observe(d.Seconds())
}

func (o *Prometheus) OnFaceFailure(kind faceerr.Kind) {
	o.faceFailures.WithLabelValues(string(kind)).Inc()
}

func (o *Prometheus) OnBackpressure(queue string) {
	o.backpressure.WithLabelValues(queue).Inc()
}

func (o *Prometheus) OnQueueDepth(queue string, depth int) {
	o.queueDepth.WithLabelValues(queue).Set(float64(depth))
}

var (
	_ Observer = Nop{}
	_ Observer = (*Prometheus)(nil)
)
