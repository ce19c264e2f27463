// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics exposes the engine's Prometheus instrumentation: tick
// latency, active attempt counts, and dispatch/attempt outcome counters.
// One Metrics is shared process-wide by every run the scheduler steps.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the process-wide Prometheus collectors. Registered once at
// startup via Register.
type Metrics struct {
	TickDuration    prometheus.Histogram
	ActiveAttempts  *prometheus.GaugeVec
	DispatchTotal   *prometheus.CounterVec
	AttemptOutcomes *prometheus.CounterVec
}

// New constructs the collector set without registering it, so tests can
// build a Metrics without touching the default registry.
func New() *Metrics {
	return &Metrics{
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "campaignctl_tick_duration_seconds",
			Help:    "Duration of one step-loop tick.",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveAttempts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "campaignctl_active_attempts",
			Help: "Number of attempts currently active, by run_id.",
		}, []string{"run_id"}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignctl_dispatch_total",
			Help: "Count of dispatch attempts, by operator_key and outcome.",
		}, []string{"operator_key", "outcome"}),
		AttemptOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "campaignctl_attempt_outcomes_total",
			Help: "Count of attempts reaching a terminal status, by status.",
		}, []string{"status"}),
	}
}

// Register registers every collector with reg (typically
// prometheus.DefaultRegisterer).
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.TickDuration, m.ActiveAttempts, m.DispatchTotal, m.AttemptOutcomes} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveTick records one tick's wall-clock duration in seconds.
func (m *Metrics) ObserveTick(seconds float64) {
	m.TickDuration.Observe(seconds)
}

// SetActiveAttempts records the current active-attempt count for a run.
func (m *Metrics) SetActiveAttempts(runID string, count int) {
	m.ActiveAttempts.WithLabelValues(runID).Set(float64(count))
}

// IncDispatch records one dispatch outcome ("created", "submitted" or
// "dispatch_failed") for an operator key.
func (m *Metrics) IncDispatch(operatorKey, outcome string) {
	m.DispatchTotal.WithLabelValues(operatorKey, outcome).Inc()
}

// IncAttemptOutcome records one attempt reaching a terminal status.
func (m *Metrics) IncAttemptOutcome(status string) {
	m.AttemptOutcomes.WithLabelValues(status).Inc()
}
