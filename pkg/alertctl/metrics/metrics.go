package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "alertctl"

type Recorder struct {
	registry     *prometheus.Registry
	requests     *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	runSuccess   *prometheus.GaugeVec
	runTimestamp *prometheus.GaugeVec
}

func NewRecorder(binary string) *Recorder {
	constLabels := prometheus.Labels{"binary": binary}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "http_requests_total",
			Help:        "HTTP requests issued, partitioned by status code and method.",
			ConstLabels: constLabels,
		}, []string{"code", "method"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "http_request_duration_seconds",
			Help:        "Latency of HTTP requests issued.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"method"}),
		runSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_success",
			Help:        "1 if the last run of the command succeeded, 0 otherwise.",
			ConstLabels: constLabels,
		}, []string{"command"}),
		runTimestamp: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time of the last run of the command.",
			ConstLabels: constLabels,
		}, []string{"command"}),
	}
	r.registry.MustRegister(r.requests, r.duration, r.runSuccess, r.runTimestamp)
	return r
}

// InstrumentRoundTripper wraps next so every request is counted and timed.
// A nil recorder returns next unchanged.
func (r *Recorder) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	if r == nil {
		return next
	}
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperCounter(r.requests,
		promhttp.InstrumentRoundTripperDuration(r.duration, next))
}

func (r *Recorder) ObserveRun(command string, err error, at time.Time) {
	if r == nil {
		return
	}
	success := 1.0
	if err != nil {
		success = 0
	}
	r.runSuccess.WithLabelValues(command).Set(success)
	r.runTimestamp.WithLabelValues(command).Set(float64(at.Unix()))
}

func (r *Recorder) Gatherer() prometheus.Gatherer {
	return r.registry
}

// WriteTextfile atomically writes all recorded metrics to path.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return errors.New("metrics recorder is nil")
	}
	if path == "" {
		return errors.New("metrics textfile path is required")
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
