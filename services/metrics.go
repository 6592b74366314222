package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ref-resolver/models"
)

// Metrics bündelt die Prometheus-Metriken der Engine. Eine nil-Instanz ist gültig und zählt nichts.
type Metrics struct {
	Resolutions      *prometheus.CounterVec
	CacheHits        prometheus.Counter
	DispatchDuration *prometheus.HistogramVec
	ReferencesStored prometheus.Counter
}

// NewMetrics erstellt die Metriken und registriert sie bei reg (falls nicht nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Resolutions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "refresolver_resolutions_total",
				Help: "Total number of resolution requests by request kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		CacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refresolver_cache_hits_total",
				Help: "Total number of resolutions answered from the record cache.",
			},
		),
		DispatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "refresolver_dispatch_duration_seconds",
				Help:    "Duration of extraction dispatches by scraper.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"scraper"},
		),
		ReferencesStored: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "refresolver_references_stored_total",
				Help: "Total number of references written with newly stored papers.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Resolutions, m.CacheHits, m.DispatchDuration, m.ReferencesStored)
	}
	return m
}

func (m *Metrics) observeResolution(kind models.RequestKind, outcome string) {
	if m == nil {
		return
	}
	m.Resolutions.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) cacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) observeDispatch(scraper string, d time.Duration) {
	if m == nil {
		return
	}
	m.DispatchDuration.WithLabelValues(scraper).Observe(d.Seconds())
}

func (m *Metrics) referencesStored(n int) {
	if m == nil || n == 0 {
		return
	}
	m.ReferencesStored.Add(float64(n))
}
