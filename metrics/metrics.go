// Package metrics exposes Prometheus collectors for the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles every collector the service records into.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	FeedCacheEntries *prometheus.GaugeVec
	FeedCacheHits    *prometheus.CounterVec

	QueueDepth         prometheus.Gauge
	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration prometheus.Histogram

	AudioFiles prometheus.Gauge
	AudioBytes prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "podtube",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "podtube",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		FeedCacheEntries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "podtube",
			Name:      "feed_cache_entries",
			Help:      "Cached feeds by cache class.",
		}, []string{"class"}),
		FeedCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "podtube",
			Name:      "feed_cache_hits_total",
			Help:      "Feed cache lookups by outcome.",
		}, []string{"outcome"}),
		QueueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "podtube",
			Name:      "conversion_queue_depth",
			Help:      "Jobs waiting or running in the conversion queue.",
		}),
		ConversionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "podtube",
			Name:      "conversions_total",
			Help:      "Finished conversions by outcome.",
		}, []string{"outcome"}),
		ConversionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "podtube",
			Name:      "conversion_duration_seconds",
			Help:      "Wall-clock time of video to audio conversions.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		AudioFiles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "podtube",
			Name:      "audio_files",
			Help:      "Converted audio files on disk.",
		}),
		AudioBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "podtube",
			Name:      "audio_bytes",
			Help:      "Total size of converted audio files on disk.",
		}),
	}

	reg.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.FeedCacheEntries,
		m.FeedCacheHits,
		m.QueueDepth,
		m.ConversionsTotal,
		m.ConversionDuration,
		m.AudioFiles,
		m.AudioBytes,
	)
	return m
}
