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
	"fmt"
	"strings"
	"time"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
)

// CreateRun inserts the run row with status PENDING (caller sets
// run.Status before calling; initialize_run always passes PENDING).
func (s *Store) CreateRun(ctx context.Context, run *model.Run) error {
	now := nowUTC()
	if run.CreatedAt.IsZero() {
		run.CreatedAt, _ = time.Parse(time.RFC3339Nano, now)
	}
	run.UpdatedAt = run.CreatedAt
	_, err := s.conn().ExecContext(ctx, `
		INSERT INTO runs (run_id, workspace_slug, root_path, status, status_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.WorkspaceSlug, run.RootPath, string(run.Status), run.StatusReason,
		run.CreatedAt.UTC().Format(time.RFC3339Nano), run.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: create run "+run.RunID)
	}
	return nil
}

func scanRun(row *sql.Row) (*model.Run, error) {
	var r model.Run
	var status string
	var created, updated string
	err := row.Scan(&r.RunID, &r.WorkspaceSlug, &r.RootPath, &status, &r.StatusReason, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, &campaignerrors.NotFoundError{Resource: "run", ID: ""}
	}
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: scan run")
	}
	r.Status = model.RunStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &r, nil
}

// GetRun loads the full run row.
func (s *Store) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.conn().QueryRowContext(ctx, `
		SELECT run_id, workspace_slug, root_path, status, status_reason, created_at, updated_at
		FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if err != nil {
		if nf, ok := err.(*campaignerrors.NotFoundError); ok {
			nf.ID = runID
		}
		return nil, err
	}
	return run, nil
}

// GetRunStatus reads just the status column.
func (s *Store) GetRunStatus(ctx context.Context, runID string) (model.RunStatus, error) {
	var status string
	err := s.conn().QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", &campaignerrors.NotFoundError{Resource: "run", ID: runID}
	}
	if err != nil {
		return "", campaignerrors.Wrap(err, "sqlite: get run status")
	}
	return model.RunStatus(status), nil
}

// SetRunStatus writes a new status and reason. It does not itself enforce
// §3.3 lifecycle legality; the caller (engine, or CLI revive command) owns
// that decision, per the state store's documented contract.
func (s *Store) SetRunStatus(ctx context.Context, runID string, status model.RunStatus, reason string) error {
	res, err := s.conn().ExecContext(ctx, `
		UPDATE runs SET status = ?, status_reason = ?, updated_at = ? WHERE run_id = ?`,
		string(status), reason, nowUTC(), runID)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: set run status")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &campaignerrors.NotFoundError{Resource: "run", ID: runID}
	}
	return nil
}

// ListRuns returns every run, optionally filtered to the given statuses.
// The multi-run scheduler does not use it; it reads each discovered run's
// status with GetRunStatus.
func (s *Store) ListRuns(ctx context.Context, statuses ...model.RunStatus) ([]*model.Run, error) {
	query := `SELECT run_id, workspace_slug, root_path, status, status_reason, created_at, updated_at FROM runs`
	args := []any{}
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, string(st))
		}
		query += fmt.Sprintf(" WHERE status IN (%s)", strings.Join(placeholders, ","))
	}
	query += " ORDER BY run_id"

	rows, err := s.conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var out []*model.Run
	for rows.Next() {
		var r model.Run
		var status, created, updated string
		if err := rows.Scan(&r.RunID, &r.WorkspaceSlug, &r.RootPath, &status, &r.StatusReason, &created, &updated); err != nil {
			return nil, campaignerrors.Wrap(err, "sqlite: scan run row")
		}
		r.Status = model.RunStatus(status)
		r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, &r)
	}
	return out, rows.Err()
}
