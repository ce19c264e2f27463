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

// Package operator defines the abstract executor contract the engine
// dispatches work through — {prepare, submit, poll, collect, cancel} — so
// the step loop never knows whether a task is running as a local
// subprocess, a Slurm job, a human gate, or a lab-equipment interface.
package operator

import (
	"context"

	"github.com/scicampaign/campaignctl/internal/model"
)

// AttemptHandle is the mutable view of one attempt that flows through the
// contract's calls. Operators read Run/Task for dispatch inputs and return
// a copy with Status/ExternalID/OperatorData/RelativePath advanced; they
// never write to the store directly — the engine persists the returned
// handle.
type AttemptHandle struct {
	Run          *model.Run
	Task         *model.Task
	AttemptID    string
	AttemptIndex int
	OperatorKey  string
	ExternalID   string
	Status       model.AttemptStatus
	StatusReason string
	OperatorData model.OperatorData
	RelativePath string
}

// Collected is the result of a successful collect() call: artifacts pulled
// back from the attempt's working directory after it reached a terminal
// status.
type Collected struct {
	Files map[string]string
	Data  map[string]interface{}
}

// Operator is the capability set every backend — Compute, Human, or
// Experiment variant — implements identically so the engine can dispatch
// without knowing which one it's talking to.
type Operator interface {
	// Prepare returns a handle in status CREATED. Side effects: creates the
	// attempt's evidence directory, writes the task manifest and a hashed
	// config snapshot (operator_data.config_hash).
	Prepare(ctx context.Context, h AttemptHandle) (AttemptHandle, error)

	// Submit actually dispatches the work. Must be idempotent for a handle
	// that already has ExternalID set. Returns the handle with ExternalID
	// and status SUBMITTED.
	Submit(ctx context.Context, h AttemptHandle) (AttemptHandle, error)

	// Poll returns the handle with a possibly-advanced status. Must not
	// mutate persisted rows itself; the engine does that with the result.
	Poll(ctx context.Context, h AttemptHandle) (AttemptHandle, error)

	// Collect is called once after the handle reaches COMPLETED or FAILED.
	// Fails with a collect_failed-kind error if expected artifacts are
	// missing.
	Collect(ctx context.Context, h AttemptHandle) (Collected, error)

	// Cancel is best-effort; a no-op backend satisfies the contract by
	// returning nil unconditionally.
	Cancel(ctx context.Context, h AttemptHandle) error
}

// Kind is the operator category encoded as the prefix of a canonical key.
type Kind string

const (
	KindHPC        Kind = "hpc"
	KindLocal      Kind = "local"
	KindHuman      Kind = "human"
	KindExperiment Kind = "experiment"
)
