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

package operator

import (
	"context"

	"github.com/scicampaign/campaignctl/internal/operator/ratelimit"
)

// rateLimited wraps an Operator so every Submit and Poll call waits on a
// shared token bucket first — the throttle an hpc-kind operator needs to
// stay under its backend's request quota.
type rateLimited struct {
	Operator
	limiter *ratelimit.Limiter
}

// WithRateLimit returns op wrapped so its Submit and Poll calls block on
// limiter before running. Prepare, Collect, and Cancel pass through
// unthrottled: they run at most once per attempt and don't hammer the
// backend the way repeated polling does.
func WithRateLimit(op Operator, limiter *ratelimit.Limiter) Operator {
	if limiter == nil {
		return op
	}
	return &rateLimited{Operator: op, limiter: limiter}
}

func (r *rateLimited) Submit(ctx context.Context, h AttemptHandle) (AttemptHandle, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return h, err
	}
	return r.Operator.Submit(ctx, h)
}

func (r *rateLimited) Poll(ctx context.Context, h AttemptHandle) (AttemptHandle, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return h, err
	}
	return r.Operator.Poll(ctx, h)
}
