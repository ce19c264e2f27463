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

// Package store defines the run state store's contract: durable,
// transactional persistence of runs, tasks, and attempts, plus the per-run
// advisory lock that serializes tick execution. The interface is segmented
// by entity (RunStore/TaskStore/AttemptStore/LockProvider) so a caller that
// only needs read access to tasks doesn't depend on attempt mutation, and
// so an in-memory test double can implement a subset.
package store

import (
	"context"
	"time"

	"github.com/scicampaign/campaignctl/internal/model"
)

// Lock is a scoped handle on a run's advisory file lock. Release must be
// idempotent and safe to call via defer on every exit path, including
// panics.
type Lock interface {
	Release() error
}

// LockProvider acquires the per-run advisory lock backing invariant 9: only
// the lock holder may mutate run, task, or attempt rows. Implementations
// must use an OS-level file lock, never an in-process mutex, so independent
// scheduler processes coordinate correctly.
type LockProvider interface {
	// Lock acquires the run's lock, failing fast with an
	// *errors.LockBusyError if another process already holds it.
	Lock(ctx context.Context, runID string) (Lock, error)
}

// RunStore persists Run rows.
type RunStore interface {
	CreateRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	GetRunStatus(ctx context.Context, runID string) (model.RunStatus, error)
	SetRunStatus(ctx context.Context, runID string, status model.RunStatus, reason string) error
	ListRuns(ctx context.Context, statuses ...model.RunStatus) ([]*model.Run, error)
}

// TaskStore persists Task rows. Tasks are insert-once (AddWorkflow); only
// UpdateTaskStatus mutates an existing row thereafter.
type TaskStore interface {
	// AddWorkflow inserts every task in the workflow. Fails with an
	// *errors.InvariantViolationError if any task_id already exists in the
	// run (invariant 1).
	AddWorkflow(ctx context.Context, runID string, wf model.Workflow) error
	GetTasks(ctx context.Context, runID string) ([]model.Task, error)
	GetTask(ctx context.Context, runID, taskID string) (*model.Task, error)
	GetTaskStatus(ctx context.Context, runID, taskID string) (model.TaskStatus, error)
	UpdateTaskStatus(ctx context.Context, runID, taskID string, status model.TaskStatus) error
}

// AttemptStore persists TaskAttempt rows. Attempts are append-only: once an
// attempt reaches a terminal status, every mutating method must refuse
// further writes (invariant 6).
type AttemptStore interface {
	// CreateAttempt allocates the next attempt_index for the task
	// atomically and inserts a CREATED attempt. Rejects creation (with
	// *errors.InvariantViolationError) if the task already has an active
	// attempt (invariant 4).
	CreateAttempt(ctx context.Context, a *model.TaskAttempt) error

	// UpdateAttempt applies a partial update. Each non-nil field of patch
	// (Status/OperatorType/ExternalID/OperatorData/RelativePath/StatusReason)
	// is written; nil fields are left untouched. Refuses
	// the update if the attempt is already terminal.
	UpdateAttempt(ctx context.Context, attemptID string, patch AttemptPatch) error

	GetAttempt(ctx context.Context, attemptID string) (*model.TaskAttempt, error)
	// GetCurrentAttempt returns the most-recent-by-index attempt for a task.
	GetCurrentAttempt(ctx context.Context, runID, taskID string) (*model.TaskAttempt, error)
	ListAttempts(ctx context.Context, runID, taskID string) ([]model.TaskAttempt, error)
	GetActiveAttempts(ctx context.Context, runID string) ([]model.TaskAttempt, error)
	GetAttemptTaskIDs(ctx context.Context, runID string) (map[string]bool, error)
	CountActiveAttemptsByOperator(ctx context.Context, runID string) (map[string]int, error)
	FindOrphanedAttempts(ctx context.Context, runID string, timeout time.Duration) ([]model.TaskAttempt, error)
	MarkAttemptsFailedInit(ctx context.Context, attemptIDs []string, reason string) error

	// LegacyExternalRuns returns legacy singleton rows for tasks with no
	// attempts, for read-only back-compat polling.
	LegacyExternalRuns(ctx context.Context, runID string) ([]model.LegacyExternalRun, error)
	UpdateLegacyExternalRun(ctx context.Context, runID, taskID string, status model.AttemptStatus, data model.OperatorData) error
}

// AttemptPatch is a partial update to a TaskAttempt; nil fields are left
// unchanged. Status is a pointer so "no change" is distinguishable from
// setting it to the zero value.
type AttemptPatch struct {
	Status       *model.AttemptStatus
	OperatorType *string
	ExternalID   *string
	OperatorData *model.OperatorData
	RelativePath *string
	StatusReason *string
}

// Store is the composite interface the engine depends on. A single backend
// (e.g. sqlite.Store) implements all four segments plus transactional
// grouping via WithTx.
type Store interface {
	RunStore
	TaskStore
	AttemptStore
	LockProvider

	// WithTx runs fn inside a single transaction; all store calls made via
	// the txStore passed to fn are committed atomically, matching the
	// "all multi-row mutations within a tick occur inside one transaction"
	// requirement. A panic or non-nil return rolls back.
	WithTx(ctx context.Context, fn func(txStore Store) error) error

	Close() error
}
