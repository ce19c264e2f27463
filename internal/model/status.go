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

// Package model holds the engine's data model: runs, tasks, task attempts,
// and the deprecated legacy external-run record. Types here are pure data —
// no persistence, no I/O — so the store and engine packages can both depend
// on them without a cycle.
package model

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunPending   RunStatus = "PENDING"
	RunRunning   RunStatus = "RUNNING"
	RunPaused    RunStatus = "PAUSED"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// Terminal reports whether the run status accepts no further tick progress
// without an explicit revive.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunCancelled:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a Task.
type TaskStatus string

const (
	TaskPending         TaskStatus = "PENDING"
	TaskRunning         TaskStatus = "RUNNING"
	TaskWaitingExternal TaskStatus = "WAITING_EXTERNAL"
	TaskCompleted       TaskStatus = "COMPLETED"
	TaskFailed          TaskStatus = "FAILED"
	TaskCancelled       TaskStatus = "CANCELLED"
	TaskSkipped         TaskStatus = "SKIPPED"
)

// Terminal reports whether the task status is final absent a rerun.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskCancelled, TaskSkipped:
		return true
	}
	return false
}

// AttemptStatus is the lifecycle state of a TaskAttempt.
type AttemptStatus string

const (
	AttemptCreated         AttemptStatus = "CREATED"
	AttemptSubmitted       AttemptStatus = "SUBMITTED"
	AttemptRunning         AttemptStatus = "RUNNING"
	AttemptWaitingExternal AttemptStatus = "WAITING_EXTERNAL"
	AttemptCompleted       AttemptStatus = "COMPLETED"
	AttemptFailed          AttemptStatus = "FAILED"
	AttemptFailedInit      AttemptStatus = "FAILED_INIT"
	AttemptCancelled       AttemptStatus = "CANCELLED"
)

// Terminal reports whether the attempt status is final. Invariant 6: once
// true, the attempt row must never be mutated again.
func (s AttemptStatus) Terminal() bool {
	switch s {
	case AttemptCompleted, AttemptFailed, AttemptFailedInit, AttemptCancelled:
		return true
	}
	return false
}

// Active reports whether the attempt counts toward a task's single-active-
// attempt invariant and toward concurrency caps.
func (s AttemptStatus) Active() bool {
	switch s {
	case AttemptCreated, AttemptSubmitted, AttemptRunning, AttemptWaitingExternal:
		return true
	}
	return false
}

// TaskStatusForAttempt implements the attempt-status -> task-status healing
// table. The step loop calls this on every active and newly-terminal
// attempt so a task's status is always derivable from its current attempt.
func TaskStatusForAttempt(s AttemptStatus) TaskStatus {
	switch s {
	case AttemptCreated:
		return TaskPending
	case AttemptSubmitted:
		return TaskWaitingExternal
	case AttemptRunning:
		return TaskRunning
	case AttemptWaitingExternal:
		return TaskWaitingExternal
	case AttemptCompleted:
		return TaskCompleted
	case AttemptFailed, AttemptFailedInit:
		return TaskFailed
	case AttemptCancelled:
		return TaskCancelled
	default:
		return TaskPending
	}
}
