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

// Package metrics implements a hooks.Hook that feeds the engine's
// Prometheus counters from attempt lifecycle events.
package metrics

import (
	"context"

	campaignmetrics "github.com/scicampaign/campaignctl/internal/metrics"
	"github.com/scicampaign/campaignctl/internal/model"
)

// Hook increments campaignctl_attempt_outcomes_total and
// campaignctl_dispatch_total as attempts progress.
type Hook struct {
	metrics *campaignmetrics.Metrics
}

// New returns a metrics hook backed by m.
func New(m *campaignmetrics.Metrics) *Hook {
	return &Hook{metrics: m}
}

func (h *Hook) OnCreate(_ context.Context, ctx model.AttemptContext) {
	h.metrics.IncDispatch(ctx.OperatorKey, "created")
}

func (h *Hook) OnSubmit(_ context.Context, ctx model.AttemptContext, _ string) {
	h.metrics.IncDispatch(ctx.OperatorKey, "submitted")
}

func (h *Hook) OnComplete(_ context.Context, ctx model.AttemptContext, success bool) {
	if success {
		h.metrics.IncAttemptOutcome("COMPLETED")
	} else {
		h.metrics.IncAttemptOutcome("FAILED")
	}
}

func (h *Hook) OnFail(_ context.Context, ctx model.AttemptContext, _ error) {
	h.metrics.IncDispatch(ctx.OperatorKey, "dispatch_failed")
	h.metrics.IncAttemptOutcome("FAILED_INIT")
}
