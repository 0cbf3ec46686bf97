// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package installer

import "github.com/prometheus/client_golang/prometheus"

// Install results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

var (
	// Installs counts install attempts by result.
	Installs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extmgr_installs_total",
			Help: "Total number of extension install attempts by result",
		},
		[]string{"result"},
	)

	// InstallDuration observes install attempt latency.
	InstallDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "extmgr_install_duration_seconds",
			Help:    "Duration of extension install attempts",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)

	// UnverifiedInstalls counts installs whose release declared no hash.
	UnverifiedInstalls = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "extmgr_installs_unverified_total",
			Help: "Total number of installs published without a declared archive hash",
		},
	)

	// Uninstalls counts uninstall operations by result.
	Uninstalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "extmgr_uninstalls_total",
			Help: "Total number of extension uninstalls by result",
		},
		[]string{"result"},
	)
)

// RegisterMetrics registers installer metrics with the given registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Installs, InstallDuration, UnverifiedInstalls, Uninstalls)
}
