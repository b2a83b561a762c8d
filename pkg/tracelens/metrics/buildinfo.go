// SPDX-FileCopyrightText: 2025 Deutsche Telekom IT GmbH
//
// SPDX-License-Identifier: Apache-2.0

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	buildInfoMetricName = "tracelens_build_info"
	buildInfoHelp       = "Build metadata for this tracelens binary. Emitted once per run so scraped snapshots can be correlated with a release."
)

// RegisterBuildInfo registers the tracelens_build_info info-style metric on the given registry.
// It sets the gauge to 1 with the version label taken from the build information.
func RegisterBuildInfo(registry *prometheus.Registry, version string) error {
	info := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: buildInfoMetricName,
			Help: buildInfoHelp,
		},
		[]string{"version"},
	)
	info.WithLabelValues(version).Set(1)
	return registry.Register(info)
}
