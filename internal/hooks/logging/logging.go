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

// Package logging implements a hooks.Hook that writes a structured log
// line for every attempt lifecycle transition.
package logging

import (
	"context"
	"log/slog"

	campaignlog "github.com/scicampaign/campaignctl/internal/log"
	"github.com/scicampaign/campaignctl/internal/model"
)

// Hook logs every attempt lifecycle event at Info (Error for on_fail).
type Hook struct {
	logger *slog.Logger
}

// New returns a logging hook writing through logger.
func New(logger *slog.Logger) *Hook {
	return &Hook{logger: logger}
}

func (h *Hook) withCtx(ctx model.AttemptContext) *slog.Logger {
	l := campaignlog.WithAttemptContext(h.logger, ctx.RunID, ctx.TaskID, ctx.AttemptID)
	if ctx.OperatorKey != "" {
		l = campaignlog.WithOperatorKey(l, ctx.OperatorKey)
	}
	return l
}

func (h *Hook) OnCreate(_ context.Context, ctx model.AttemptContext) {
	h.withCtx(ctx).Info("attempt created", "event", "attempt_created", "attempt_index", ctx.AttemptIndex)
}

func (h *Hook) OnSubmit(_ context.Context, ctx model.AttemptContext, externalID string) {
	h.withCtx(ctx).Info("attempt submitted", "event", "attempt_submitted", "external_id", externalID)
}

func (h *Hook) OnComplete(_ context.Context, ctx model.AttemptContext, success bool) {
	h.withCtx(ctx).Info("attempt completed", "event", "attempt_completed", "success", success)
}

func (h *Hook) OnFail(_ context.Context, ctx model.AttemptContext, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	h.withCtx(ctx).Error("attempt failed", "event", "attempt_failed", "error", msg)
}
