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

package main

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/store"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

// downstreamClosure returns taskID plus every task that transitively
// depends on it, computed from each task's Dependencies list.
func downstreamClosure(tasks []model.Task, taskID string) []string {
	dependents := map[string][]string{}
	for _, t := range tasks {
		for _, dep := range t.Dependencies {
			dependents[dep] = append(dependents[dep], t.TaskID)
		}
	}

	seen := map[string]bool{taskID: true}
	queue := []string{taskID}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range dependents[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	return out
}

func newRerunCmd() *cobra.Command {
	var recursive, force bool

	cmd := &cobra.Command{
		Use:   "rerun <run_id> <task_id>",
		Short: "Reset a task (and, with --recursive, its transitive dependents) back to PENDING for a fresh attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, taskID := args[0], args[1]
			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}
			runRoot, err := resolveRunRoot(workspacesRoot, runID)
			if err != nil {
				return err
			}
			return rerunTask(cmd.Context(), runID, runRoot, taskID, recursive, force)
		},
	}

	cmd.Flags().BoolVar(&recursive, "recursive", false, "also reset every task that transitively depends on this one")
	cmd.Flags().BoolVar(&force, "force", false, "cancel an active attempt on the target task instead of refusing")

	return cmd
}

func rerunTask(ctx context.Context, runID, runRoot, taskID string, recursive, force bool) error {
	st, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
	if err != nil {
		return err
	}
	defer st.Close()

	lock, err := st.Lock(ctx, runID)
	if err != nil {
		return err
	}
	defer lock.Release()

	return st.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.GetTask(ctx, runID, taskID); err != nil {
			return err
		}

		current, err := tx.GetCurrentAttempt(ctx, runID, taskID)
		if err != nil {
			var nf *campaignerrors.NotFoundError
			if !campaignerrors.As(err, &nf) {
				return err
			}
		}
		if current != nil && current.Status.Active() {
			if !force {
				return &campaignerrors.ConfigInvalidError{
					Path:   "rerun",
					Reason: "task " + taskID + " has an active attempt " + current.AttemptID + "; pass --force to cancel it first",
				}
			}
			cancelled := model.AttemptCancelled
			reason := "cancelled for rerun"
			if err := tx.UpdateAttempt(ctx, current.AttemptID, store.AttemptPatch{Status: &cancelled, StatusReason: &reason}); err != nil {
				return err
			}
		}

		resetIDs := []string{taskID}
		if recursive {
			tasks, err := tx.GetTasks(ctx, runID)
			if err != nil {
				return err
			}
			resetIDs = downstreamClosure(tasks, taskID)
		}

		for _, id := range resetIDs {
			if err := tx.UpdateTaskStatus(ctx, runID, id, model.TaskPending); err != nil {
				return err
			}
		}

		return tx.SetRunStatus(ctx, runID, model.RunRunning, "task "+taskID+" rerun requested")
	})
}
