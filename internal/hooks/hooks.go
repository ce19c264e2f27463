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

// Package hooks implements the attempt lifecycle observer pattern: plugins
// (logging, metrics, external notifications) are notified at
// create/submit/complete/fail, through a composite dispatcher that isolates
// each hook's errors and panics so a broken plugin never blocks engine
// progress.
package hooks

import (
	"context"

	"github.com/scicampaign/campaignctl/internal/model"
)

// Hook is the observer interface fired by the step loop at each attempt
// lifecycle transition.
type Hook interface {
	OnCreate(ctx context.Context, attemptCtx model.AttemptContext)
	OnSubmit(ctx context.Context, attemptCtx model.AttemptContext, externalID string)
	OnComplete(ctx context.Context, attemptCtx model.AttemptContext, success bool)
	OnFail(ctx context.Context, attemptCtx model.AttemptContext, cause error)
}
