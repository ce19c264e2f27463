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

package errors

import (
	"fmt"
	"time"
)

// LockBusyError indicates another process already holds a run's advisory
// file lock. The multi-run scheduler treats this as routine (skip and move
// on); a single-run CLI invocation treats it as a hard failure.
type LockBusyError struct {
	// RunID identifies the run whose lock is held.
	RunID string

	// HolderPID is the PID recorded in the lock file, if known.
	HolderPID int
}

// Error implements the error interface.
func (e *LockBusyError) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("run %s: lock held by pid %d", e.RunID, e.HolderPID)
	}
	return fmt.Sprintf("run %s: lock busy", e.RunID)
}

// ConfigInvalidError represents a malformed operators.yaml, an invalid
// operator key, or a missing required field discovered before any state
// mutation.
type ConfigInvalidError struct {
	// Path is the config file that failed to parse or validate.
	Path string

	// Reason explains what's wrong.
	Reason string

	// Cause is the underlying parse/validation error, if any.
	Cause error
}

// Error implements the error interface.
func (e *ConfigInvalidError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("invalid config %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("invalid config: %s", e.Reason)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConfigInvalidError) Unwrap() error {
	return e.Cause
}

// WiringOverrideRefusedError is returned when a CLI-supplied operator wiring
// would silently replace an existing run snapshot without --force-wiring-override.
type WiringOverrideRefusedError struct {
	// RunID identifies the run whose snapshot would have been replaced.
	RunID string

	// ExistingHash is the sha256 of the snapshot already committed to the run.
	ExistingHash string

	// RequestedHash is the sha256 of the wiring that was about to replace it.
	RequestedHash string
}

// Error implements the error interface.
func (e *WiringOverrideRefusedError) Error() string {
	return fmt.Sprintf("run %s: refusing to override operator wiring %s with %s without --force-wiring-override",
		e.RunID, e.ExistingHash, e.RequestedHash)
}

// DispatchFailedError wraps a failure raised from an operator's prepare or
// submit call. The attempt moves to FAILED_INIT and the owning task to
// FAILED, but the tick continues to the next ready task.
type DispatchFailedError struct {
	// TaskID identifies the task whose dispatch failed.
	TaskID string

	// AttemptID identifies the attempt created for this dispatch, if one was created.
	AttemptID string

	// OperatorKey is the canonical operator key that was asked to dispatch.
	OperatorKey string

	// Cause is the underlying error from prepare/submit.
	Cause error
}

// Error implements the error interface.
func (e *DispatchFailedError) Error() string {
	return fmt.Sprintf("task %s: dispatch via %s failed: %v", e.TaskID, e.OperatorKey, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *DispatchFailedError) Unwrap() error {
	return e.Cause
}

// PollFailedError wraps a failure raised from an operator's poll or collect
// call. It is logged and the attempt is left unchanged; the next tick retries.
type PollFailedError struct {
	// AttemptID identifies the attempt that failed to poll.
	AttemptID string

	// OperatorKey is the canonical operator key that was asked to poll.
	OperatorKey string

	// Cause is the underlying error from poll/collect.
	Cause error
}

// Error implements the error interface.
func (e *PollFailedError) Error() string {
	return fmt.Sprintf("attempt %s: poll via %s failed: %v", e.AttemptID, e.OperatorKey, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *PollFailedError) Unwrap() error {
	return e.Cause
}

// StuckAttemptError indicates an attempt has sat in CREATED with no
// external_id assigned past its configured timeout.
type StuckAttemptError struct {
	// AttemptID identifies the stuck attempt.
	AttemptID string

	// Since is how long the attempt has been stuck.
	Since time.Duration
}

// Error implements the error interface.
func (e *StuckAttemptError) Error() string {
	return fmt.Sprintf("attempt %s: stuck in created state for %v with no external_id", e.AttemptID, e.Since)
}

// CampaignError wraps a panic or error raised from the user-supplied
// campaign's plan or analyze function. The tick aborts and the run status
// is left unchanged; the caller observes the original error.
type CampaignError struct {
	// RunID identifies the run whose campaign raised.
	RunID string

	// Phase is "plan" or "analyze".
	Phase string

	// Cause is the error (or recovered panic) from the campaign call.
	Cause error
}

// Error implements the error interface.
func (e *CampaignError) Error() string {
	return fmt.Sprintf("run %s: campaign.%s raised: %v", e.RunID, e.Phase, e.Cause)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *CampaignError) Unwrap() error {
	return e.Cause
}

// InvariantViolationError is fatal: it indicates the state store or tick
// logic observed a condition the data model forbids (e.g. two tasks sharing
// a task_id within one run). The tick aborts without partially committing.
type InvariantViolationError struct {
	// RunID identifies the run in which the invariant was violated.
	RunID string

	// Invariant names the violated invariant (e.g. "unique task_id per run").
	Invariant string

	// Detail gives the specific offending value(s).
	Detail string
}

// Error implements the error interface.
func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("run %s: invariant violated (%s): %s", e.RunID, e.Invariant, e.Detail)
}
