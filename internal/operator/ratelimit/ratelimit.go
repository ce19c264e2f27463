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

// Package ratelimit throttles calls into operator backends that enforce
// their own request quotas (Slurm's sbatch rate, a lab-equipment API's
// request budget). It wraps golang.org/x/time/rate rather than the
// operator.Operator interface itself, so any backend can opt in by
// wrapping its Submit/Poll calls.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// Limiter wraps a token-bucket rate limiter scoped to one operator
// instance.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter allowing ratePerSecond sustained calls with burst
// headroom for short spikes (e.g. the step loop dispatching several tasks
// to the same operator in one tick).
func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Wait blocks until a token is available or ctx is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// Allow reports whether a call may proceed immediately, consuming a token
// if so; it never blocks.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
