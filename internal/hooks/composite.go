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

package hooks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scicampaign/campaignctl/internal/model"
)

// Composite fans out each lifecycle event to every registered Hook,
// isolating panics and letting each Hook's own error handling (if any) stay
// internal — a Hook observes, it does not return an error the engine must
// act on. A hook that panics is logged and skipped; its peers still run.
type Composite struct {
	hooks  []Hook
	logger *slog.Logger
}

// NewComposite builds a dispatcher over hooks, logging isolation events
// through logger.
func NewComposite(logger *slog.Logger, hooks ...Hook) *Composite {
	return &Composite{hooks: hooks, logger: logger}
}

func (c *Composite) dispatch(name string, attemptCtx model.AttemptContext, fn func(h Hook)) {
	for _, h := range c.hooks {
		c.safeCall(name, attemptCtx, h, fn)
	}
}

// safeCall recovers a panicking hook so one broken plugin can never abort a
// tick; this mirrors the same swallow-and-log discipline the engine uses
// for poll_failed errors, applied to observers instead of operators.
func (c *Composite) safeCall(name string, attemptCtx model.AttemptContext, h Hook, fn func(h Hook)) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("lifecycle hook panicked",
				"event", name, "run_id", attemptCtx.RunID, "task_id", attemptCtx.TaskID,
				"attempt_id", attemptCtx.AttemptID, "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn(h)
}

func (c *Composite) OnCreate(ctx context.Context, attemptCtx model.AttemptContext) {
	c.dispatch("on_create", attemptCtx, func(h Hook) { h.OnCreate(ctx, attemptCtx) })
}

func (c *Composite) OnSubmit(ctx context.Context, attemptCtx model.AttemptContext, externalID string) {
	c.dispatch("on_submit", attemptCtx, func(h Hook) { h.OnSubmit(ctx, attemptCtx, externalID) })
}

func (c *Composite) OnComplete(ctx context.Context, attemptCtx model.AttemptContext, success bool) {
	c.dispatch("on_complete", attemptCtx, func(h Hook) { h.OnComplete(ctx, attemptCtx, success) })
}

func (c *Composite) OnFail(ctx context.Context, attemptCtx model.AttemptContext, cause error) {
	c.dispatch("on_fail", attemptCtx, func(h Hook) { h.OnFail(ctx, attemptCtx, cause) })
}
