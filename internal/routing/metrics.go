// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package routing

import "github.com/prometheus/client_golang/prometheus"

// RouterRequests counts routed requests by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var RouterRequests = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "extmgr_router_requests_total",
		Help: "Total number of requests seen by the upgrade router by action",
	},
	[]string{"action"},
)

// RegisterMetrics registers routing metrics with the given registry.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(RouterRequests)
}

// RecordDecision increments the router counter for action.
func RecordDecision(action Action) {
	RouterRequests.WithLabelValues(string(action)).Inc()
}
