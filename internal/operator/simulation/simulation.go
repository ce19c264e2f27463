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

// Package simulation implements a no-op Operator that completes every
// attempt at its first poll. It is distinct from the engine's "Simulation"
// routing shortcut (which skips attempt creation entirely): this package
// exists so an operators.yaml can wire an explicit
// "experiment.simulation"-style key for integration tests that still want
// an attempt record and evidence directory without a real backend.
package simulation

import (
	"context"
	"os"
	"path/filepath"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/operator"
)

// Operator completes every attempt on the tick after submit, optionally
// returning a fixed set of result data useful for deterministic tests.
type Operator struct {
	// Data is merged into every attempt's collected output_data.
	Data map[string]interface{}
	// Fail, if true, makes every attempt FAIL instead of COMPLETE.
	Fail bool
}

// New returns a simulation Operator that always succeeds.
func New() *Operator {
	return &Operator{}
}

func attemptDir(run *model.Run, taskID, attemptID string) string {
	return filepath.Join(run.RootPath, "tasks", taskID, "attempts", attemptID)
}

func (o *Operator) Prepare(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return h, campaignerrors.Wrap(err, "simulation: create evidence dir")
	}
	h.RelativePath = filepath.Join("tasks", h.Task.TaskID, "attempts", h.AttemptID)
	h.Status = model.AttemptCreated
	return h, nil
}

func (o *Operator) Submit(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	h.ExternalID = h.AttemptID
	h.Status = model.AttemptSubmitted
	return h, nil
}

func (o *Operator) Poll(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	if o.Fail {
		h.Status = model.AttemptFailed
		h.StatusReason = "simulated failure"
	} else {
		h.Status = model.AttemptCompleted
	}
	return h, nil
}

func (o *Operator) Collect(ctx context.Context, h operator.AttemptHandle) (operator.Collected, error) {
	return operator.Collected{Files: map[string]string{}, Data: o.Data}, nil
}

func (o *Operator) Cancel(ctx context.Context, h operator.AttemptHandle) error {
	return nil
}
