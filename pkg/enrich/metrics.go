// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package enrich

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// metrics defines the metric collectors of the enrichment pipeline
type metrics struct {
	lookups  *prometheus.CounterVec
	cache    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// newMetrics initializes the metric collectors of the enrichment pipeline
func newMetrics() metrics {
	return metrics{
		lookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelens_enrich_lookups_total",
				Help: "Total number of enrichment lookups, partitioned by source and outcome.",
			},
			[]string{"source", "outcome"},
		),
		cache: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelens_enrich_cache_total",
				Help: "Total number of cache consultations, partitioned by outcome.",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tracelens_enrich_lookup_duration_seconds",
				Help: "Histogram of enrichment lookup durations in seconds.",
			},
			[]string{"source"},
		),
	}
}

// GetCollectors returns all metric collectors
func (m *metrics) GetCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.lookups,
		m.cache,
		m.duration,
	}
}

// recordLookup accounts a single remote lookup
func (m *metrics) recordLookup(source string, start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.lookups.WithLabelValues(source, outcome).Inc()
	m.duration.WithLabelValues(source).Observe(time.Since(start).Seconds())
}

// recordCache accounts a cache consultation
func (m *metrics) recordCache(hit bool) {
	outcome := "miss"
	if hit {
		outcome = "hit"
	}
	m.cache.WithLabelValues(outcome).Inc()
}
