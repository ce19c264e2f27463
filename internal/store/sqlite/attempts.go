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

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/store"
)

const attemptColumns = `attempt_id, run_id, task_id, attempt_index, operator_type, operator_key,
	external_id, status, status_reason, operator_data, relative_path, created_at, updated_at`

func scanAttempt(scan func(dest ...any) error) (model.TaskAttempt, error) {
	var a model.TaskAttempt
	var status, operatorData, created, updated string
	if err := scan(&a.AttemptID, &a.RunID, &a.TaskID, &a.AttemptIndex, &a.OperatorType, &a.OperatorKey,
		&a.ExternalID, &status, &a.StatusReason, &operatorData, &a.RelativePath, &created, &updated); err != nil {
		return a, err
	}
	a.Status = model.AttemptStatus(status)
	_ = json.Unmarshal([]byte(operatorData), &a.OperatorData)
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return a, nil
}

// CreateAttempt allocates attempt_index as MAX(attempt_index)+1 for the
// task under the caller's transaction, enforcing strictly-increasing,
// no-gap indices (invariant 3). Rejects creation if the task already has
// an active attempt (invariant 4).
func (s *Store) CreateAttempt(ctx context.Context, a *model.TaskAttempt) error {
	var activeCount int
	err := s.conn().QueryRowContext(ctx, `
		SELECT COUNT(1) FROM task_attempts
		WHERE run_id = ? AND task_id = ? AND status IN ('CREATED','SUBMITTED','RUNNING','WAITING_EXTERNAL')`,
		a.RunID, a.TaskID).Scan(&activeCount)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: check active attempt")
	}
	if activeCount > 0 {
		return &campaignerrors.InvariantViolationError{
			RunID:     a.RunID,
			Invariant: "at most one active attempt per task",
			Detail:    "task " + a.TaskID + " already has an active attempt",
		}
	}

	var maxIndex sql.NullInt64
	err = s.conn().QueryRowContext(ctx, `
		SELECT MAX(attempt_index) FROM task_attempts WHERE run_id = ? AND task_id = ?`,
		a.RunID, a.TaskID).Scan(&maxIndex)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: compute attempt_index")
	}
	a.AttemptIndex = int(maxIndex.Int64) + 1

	if a.Status == "" {
		a.Status = model.AttemptCreated
	}
	now := nowUTC()
	operatorData, _ := json.Marshal(a.OperatorData)

	_, err = s.conn().ExecContext(ctx, `
		INSERT INTO task_attempts (attempt_id, run_id, task_id, attempt_index, operator_type,
			operator_key, external_id, status, status_reason, operator_data, relative_path,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.AttemptID, a.RunID, a.TaskID, a.AttemptIndex, a.OperatorType, a.OperatorKey,
		a.ExternalID, string(a.Status), a.StatusReason, string(operatorData), a.RelativePath, now, now)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: insert attempt "+a.AttemptID)
	}
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, now)
	a.UpdatedAt = a.CreatedAt
	return nil
}

// UpdateAttempt applies patch to the attempt, refusing the write outright
// if the current row is already terminal (invariant 6). Merges
// OperatorData rather than replacing it wholesale, since poll/collect each
// contribute different fields across the attempt's life.
func (s *Store) UpdateAttempt(ctx context.Context, attemptID string, patch store.AttemptPatch) error {
	current, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return err
	}
	if current.Status.Terminal() {
		return &campaignerrors.InvariantViolationError{
			RunID:     current.RunID,
			Invariant: "terminal attempts are immutable",
			Detail:    "attempt " + attemptID + " is already " + string(current.Status),
		}
	}

	next := *current
	if patch.Status != nil {
		next.Status = *patch.Status
	}
	if patch.OperatorType != nil {
		next.OperatorType = *patch.OperatorType
	}
	if patch.ExternalID != nil {
		next.ExternalID = *patch.ExternalID
	}
	if patch.OperatorData != nil {
		next.OperatorData.Merge(*patch.OperatorData)
	}
	if patch.RelativePath != nil {
		next.RelativePath = *patch.RelativePath
	}
	if patch.StatusReason != nil {
		next.StatusReason = *patch.StatusReason
	}

	operatorData, _ := json.Marshal(next.OperatorData)
	_, err = s.conn().ExecContext(ctx, `
		UPDATE task_attempts SET operator_type = ?, external_id = ?, status = ?, status_reason = ?,
			operator_data = ?, relative_path = ?, updated_at = ?
		WHERE attempt_id = ?`,
		next.OperatorType, next.ExternalID, string(next.Status), next.StatusReason,
		string(operatorData), next.RelativePath, nowUTC(), attemptID)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: update attempt "+attemptID)
	}
	return nil
}

// GetAttempt loads a single attempt by id.
func (s *Store) GetAttempt(ctx context.Context, attemptID string) (*model.TaskAttempt, error) {
	row := s.conn().QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM task_attempts WHERE attempt_id = ?`, attemptID)
	a, err := scanAttempt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &campaignerrors.NotFoundError{Resource: "attempt", ID: attemptID}
	}
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: get attempt")
	}
	return &a, nil
}

// GetCurrentAttempt returns the most-recent-by-index attempt for a task.
func (s *Store) GetCurrentAttempt(ctx context.Context, runID, taskID string) (*model.TaskAttempt, error) {
	row := s.conn().QueryRowContext(ctx, `
		SELECT `+attemptColumns+` FROM task_attempts
		WHERE run_id = ? AND task_id = ? ORDER BY attempt_index DESC LIMIT 1`, runID, taskID)
	a, err := scanAttempt(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &campaignerrors.NotFoundError{Resource: "attempt", ID: "current for task " + taskID}
	}
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: get current attempt")
	}
	return &a, nil
}

// ListAttempts returns every attempt for a task in ascending attempt_index
// order.
func (s *Store) ListAttempts(ctx context.Context, runID, taskID string) ([]model.TaskAttempt, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM task_attempts
		WHERE run_id = ? AND task_id = ? ORDER BY attempt_index ASC`, runID, taskID)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: list attempts")
	}
	defer rows.Close()

	var out []model.TaskAttempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan attempt")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetActiveAttempts returns every attempt in the run whose status is in
// {CREATED, SUBMITTED, RUNNING, WAITING_EXTERNAL}.
func (s *Store) GetActiveAttempts(ctx context.Context, runID string) ([]model.TaskAttempt, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM task_attempts
		WHERE run_id = ? AND status IN ('CREATED','SUBMITTED','RUNNING','WAITING_EXTERNAL')
		ORDER BY attempt_id`, runID)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: get active attempts")
	}
	defer rows.Close()

	var out []model.TaskAttempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan attempt")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// GetAttemptTaskIDs returns the set of task_ids with at least one attempt,
// used by the step loop to decide which tasks fall back to legacy
// external-run polling.
func (s *Store) GetAttemptTaskIDs(ctx context.Context, runID string) (map[string]bool, error) {
	rows, err := s.conn().QueryContext(ctx, `SELECT DISTINCT task_id FROM task_attempts WHERE run_id = ?`, runID)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: get attempt task ids")
	}
	defer rows.Close()

	out := map[string]bool{}
	for rows.Next() {
		var taskID string
		if err := rows.Scan(&taskID); err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan task id")
		}
		out[taskID] = true
	}
	return out, rows.Err()
}

// CountActiveAttemptsByOperator maps operator_key to its active-attempt
// count, for per-operator concurrency caps.
func (s *Store) CountActiveAttemptsByOperator(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT operator_key, COUNT(1) FROM task_attempts
		WHERE run_id = ? AND status IN ('CREATED','SUBMITTED','RUNNING','WAITING_EXTERNAL')
		GROUP BY operator_key`, runID)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: count active attempts by operator")
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan operator count")
		}
		out[key] = count
	}
	return out, rows.Err()
}

// FindOrphanedAttempts returns attempts stuck in CREATED with no
// external_id for longer than timeout.
func (s *Store) FindOrphanedAttempts(ctx context.Context, runID string, timeout time.Duration) ([]model.TaskAttempt, error) {
	cutoff := time.Now().UTC().Add(-timeout).Format(time.RFC3339Nano)
	rows, err := s.conn().QueryContext(ctx, `
		SELECT `+attemptColumns+` FROM task_attempts
		WHERE run_id = ? AND status = 'CREATED' AND external_id = '' AND created_at < ?
		ORDER BY attempt_id`, runID, cutoff)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: find orphaned attempts")
	}
	defer rows.Close()

	var out []model.TaskAttempt
	for rows.Next() {
		a, err := scanAttempt(rows.Scan)
		if err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan attempt")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkAttemptsFailedInit bulk-transitions orphaned attempts to FAILED_INIT.
func (s *Store) MarkAttemptsFailedInit(ctx context.Context, attemptIDs []string, reason string) error {
	for _, id := range attemptIDs {
		status := model.AttemptFailedInit
		if err := s.UpdateAttempt(ctx, id, store.AttemptPatch{Status: &status, StatusReason: &reason}); err != nil {
			return err
		}
	}
	return nil
}

// LegacyExternalRuns returns legacy singleton rows for read-only back-compat
// polling. New runs never populate this table.
func (s *Store) LegacyExternalRuns(ctx context.Context, runID string) ([]model.LegacyExternalRun, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT run_id, task_id, operator_type, external_id, status, operator_data, created_at, updated_at
		FROM external_runs WHERE run_id = ?`, runID)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: list legacy external runs")
	}
	defer rows.Close()

	var out []model.LegacyExternalRun
	for rows.Next() {
		var r model.LegacyExternalRun
		var status, operatorData, created, updated string
		if err := rows.Scan(&r.RunID, &r.TaskID, &r.OperatorType, &r.ExternalID, &status, &operatorData, &created, &updated); err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan legacy external run")
		}
		r.Status = model.AttemptStatus(status)
		_ = json.Unmarshal([]byte(operatorData), &r.OperatorData)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, r)
	}
	return out, rows.Err()
}

// UpdateLegacyExternalRun writes back a polled legacy run's status.
func (s *Store) UpdateLegacyExternalRun(ctx context.Context, runID, taskID string, status model.AttemptStatus, data model.OperatorData) error {
	operatorData, _ := json.Marshal(data)
	_, err := s.conn().ExecContext(ctx, `
		UPDATE external_runs SET status = ?, operator_data = ?, updated_at = ?
		WHERE run_id = ? AND task_id = ?`,
		string(status), string(operatorData), nowUTC(), runID, taskID)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: update legacy external run")
	}
	return nil
}
