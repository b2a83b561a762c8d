// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package traceroute

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics defines the metric collectors of the traceroute client
type metrics struct {
	probes *prometheus.CounterVec
	rtt    *prometheus.HistogramVec
	length *prometheus.HistogramVec
}

// newMetrics initializes the metric collectors of the traceroute client
func newMetrics() metrics {
	return metrics{
		probes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tracelens_probes_total",
				Help: "Total number of probes sent, partitioned by protocol and outcome.",
			},
			[]string{"protocol", "outcome"},
		),
		rtt: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tracelens_probe_rtt_seconds",
				Help: "Histogram of round trip times of answered probes in seconds.",
			},
			[]string{"protocol"},
		),
		length: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tracelens_path_hops",
				Help:    "Histogram of path lengths of completed sweeps in hops.",
				Buckets: prometheus.LinearBuckets(1, 2, 16),
			},
			[]string{"protocol"},
		),
	}
}

// GetCollectors returns all metric collectors
func (m *metrics) GetCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.probes,
		m.rtt,
		m.length,
	}
}

// recordHop accounts one finalized hop of a sweep
func (m *metrics) recordHop(target Target, hop Hop) {
	proto := string(target.Protocol)
	for _, pr := range hop.Probes {
		m.probes.WithLabelValues(proto, string(pr.Outcome)).Inc()
		if pr.replied() {
			m.rtt.WithLabelValues(proto).Observe(pr.RTT.Seconds())
		}
	}

	if hop.Reached {
		m.length.WithLabelValues(proto).Observe(float64(hop.Index))
	}
}
