// Package observe holds the Prometheus metrics of the voice pipeline.
package observe

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homehub_voice"

// Metrics is one set of pipeline collectors bound to a registry. Pipelines
// in the same process need separate registries.
type Metrics struct {
	registry *prometheus.Registry

	UtterancesTotal       prometheus.Counter
	UtterancesDropped     *prometheus.CounterVec
	TranscriptionDuration *prometheus.HistogramVec
	TranscriptionsTotal   *prometheus.CounterVec
	CommandsTotal         *prometheus.CounterVec
	WakeDetectionsTotal   prometheus.Counter
	TranscriptionQueue    prometheus.Gauge
	Listening             prometheus.Gauge
}

// NewMetrics creates the collectors and registers them, along with the Go
// runtime and process collectors, on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		UtterancesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Utterances handed to the transcription queue",
		}),
		UtterancesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_dropped_total",
			Help:      "Utterances discarded before transcription",
		}, []string{"reason"}), // reason: empty, channel_full, stopped, rejected
		TranscriptionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Duration of transcription calls in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2, 4, 8, 15, 30},
		}, []string{"backend"}),
		TranscriptionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Transcription calls by outcome",
		}, []string{"backend", "status"}), // status: success, error
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands parsed after a wake word",
		}, []string{"kind"}),
		WakeDetectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_detections_total",
			Help:      "Transcriptions containing the wake word",
		}),
		TranscriptionQueue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcription_queue_depth",
			Help:      "Utterances waiting for or undergoing transcription",
		}),
		Listening: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listening",
			Help:      "1 while the microphone is capturing",
		}),
	}

	reg.MustRegister(
		m.UtterancesTotal,
		m.UtterancesDropped,
		m.TranscriptionDuration,
		m.TranscriptionsTotal,
		m.CommandsTotal,
		m.WakeDetectionsTotal,
		m.TranscriptionQueue,
		m.Listening,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

func (m *Metrics) ObserveTranscription(backend string, latency time.Duration, err error) {
	m.TranscriptionDuration.WithLabelValues(backend).Observe(latency.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.TranscriptionsTotal.WithLabelValues(backend, status).Inc()
}

func (m *Metrics) SetListening(v bool) {
	if v {
		m.Listening.Set(1)
		return
	}
	m.Listening.Set(0)
}
