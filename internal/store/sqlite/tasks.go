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
)

// AddWorkflow inserts every task in wf.Tasks for runID. Fails atomically
// (invariant 1: task_id unique within a run) if any task_id already
// exists — the duplicate-key constraint violation is translated to an
// InvariantViolationError rather than a raw sqlite error.
func (s *Store) AddWorkflow(ctx context.Context, runID string, wf model.Workflow) error {
	now := nowUTC()
	for _, t := range wf.Tasks {
		var existing int
		err := s.conn().QueryRowContext(ctx, `SELECT COUNT(1) FROM tasks WHERE run_id = ? AND task_id = ?`, runID, t.TaskID).Scan(&existing)
		if err != nil {
			return campaignerrors.Wrap(err, "sqlite: check task existence")
		}
		if existing > 0 {
			return &campaignerrors.InvariantViolationError{
				RunID:     runID,
				Invariant: "task_id unique within a run",
				Detail:    "task_id " + t.TaskID + " already exists",
			}
		}
	}

	for _, t := range wf.Tasks {
		if t.Status == "" {
			t.Status = model.TaskPending
		}
		command, _ := json.Marshal(t.Command)
		files, _ := json.Marshal(t.Files)
		env, _ := json.Marshal(t.Env)
		deps, _ := json.Marshal(t.Dependencies)
		resources, _ := json.Marshal(t.Resources)
		var downloadPatterns []byte
		if t.DownloadPatterns != nil {
			downloadPatterns, _ = json.Marshal(t.DownloadPatterns)
		}
		variant := t.Variant
		if variant == "" {
			variant = model.VariantCompute
		}
		_, err := s.conn().ExecContext(ctx, `
			INSERT INTO tasks (run_id, task_id, variant, image, command, files, env, dependencies,
				resources, allow_dependency_failure, allow_failure, operator_key, download_patterns,
				status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, t.TaskID, string(variant), t.Image, string(command), string(files), string(env), string(deps),
			string(resources), boolToInt(t.AllowDependencyFailure), boolToInt(t.AllowFailure), t.OperatorKey,
			nullableString(downloadPatterns), string(t.Status), now, now)
		if err != nil {
			return campaignerrors.Wrap(err, "sqlite: insert task "+t.TaskID)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullableString(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func scanTask(scan func(dest ...any) error) (model.Task, error) {
	var t model.Task
	var variant, command, files, env, deps, resources, status, created, updated string
	var operatorKey sql.NullString
	var downloadPatterns sql.NullString
	var allowDepFailure, allowFailure int
	if err := scan(&t.RunID, &t.TaskID, &variant, &t.Image, &command, &files, &env, &deps,
		&resources, &allowDepFailure, &allowFailure, &operatorKey, &downloadPatterns,
		&status, &created, &updated); err != nil {
		return t, err
	}
	t.Variant = model.TaskVariant(variant)
	t.OperatorKey = operatorKey.String
	t.AllowDependencyFailure = allowDepFailure != 0
	t.AllowFailure = allowFailure != 0
	t.Status = model.TaskStatus(status)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	_ = json.Unmarshal([]byte(command), &t.Command)
	_ = json.Unmarshal([]byte(files), &t.Files)
	_ = json.Unmarshal([]byte(env), &t.Env)
	_ = json.Unmarshal([]byte(deps), &t.Dependencies)
	_ = json.Unmarshal([]byte(resources), &t.Resources)
	if downloadPatterns.Valid {
		var dp model.DownloadPatterns
		if err := json.Unmarshal([]byte(downloadPatterns.String), &dp); err == nil {
			t.DownloadPatterns = &dp
		}
	}
	return t, nil
}

const taskColumns = `run_id, task_id, variant, image, command, files, env, dependencies,
	resources, allow_dependency_failure, allow_failure, operator_key, download_patterns,
	status, created_at, updated_at`

// GetTasks deserializes every task in the run, ordered by task_id (which is
// chronologically sortable, so this also gives insertion order).
func (s *Store) GetTasks(ctx context.Context, runID string) ([]model.Task, error) {
	rows, err := s.conn().QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE run_id = ? ORDER BY task_id`, runID)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: get tasks")
	}
	defer rows.Close()

	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows.Scan)
		if err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan task")
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// GetTask loads a single task by id.
func (s *Store) GetTask(ctx context.Context, runID, taskID string) (*model.Task, error) {
	row := s.conn().QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE run_id = ? AND task_id = ?`, runID, taskID)
	t, err := scanTask(row.Scan)
	if err == sql.ErrNoRows {
		return nil, &campaignerrors.NotFoundError{Resource: "task", ID: taskID}
	}
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: get task")
	}
	return &t, nil
}

// GetTaskStatus reads just the status column.
func (s *Store) GetTaskStatus(ctx context.Context, runID, taskID string) (model.TaskStatus, error) {
	var status string
	err := s.conn().QueryRowContext(ctx, `SELECT status FROM tasks WHERE run_id = ? AND task_id = ?`, runID, taskID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", &campaignerrors.NotFoundError{Resource: "task", ID: taskID}
	}
	if err != nil {
		return "", campaignerrors.Wrap(err, "sqlite: get task status")
	}
	return model.TaskStatus(status), nil
}

// UpdateTaskStatus is the only mutation tasks receive after insertion: the
// step loop's per-tick status healing and user-invoked rerun/cancel.
func (s *Store) UpdateTaskStatus(ctx context.Context, runID, taskID string, status model.TaskStatus) error {
	res, err := s.conn().ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE run_id = ? AND task_id = ?`,
		string(status), nowUTC(), runID, taskID)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: update task status")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &campaignerrors.NotFoundError{Resource: "task", ID: taskID}
	}
	return nil
}
