// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package catalog

import "github.com/prometheus/client_golang/prometheus"

// Failure stages.
const (
	StageManifest = "manifest"
	StageRepo     = "repo"
	StageReleases = "releases"
)

// Failures counts catalog sources skipped because they could not be fetched
// or parsed.
var Failures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extmgr_catalog_failures_total",
		Help: "Total number of catalog sources skipped by stage",
	},
	[]string{"stage"},
)

// RegisterMetrics registers catalog metrics with the given registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Failures)
}
