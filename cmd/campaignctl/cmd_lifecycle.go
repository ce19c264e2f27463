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

// transitionRunStatus opens runID's store, takes its advisory lock (the
// same one the step loop holds while mutating run/task/attempt rows — see
// LockProvider), and moves the run to newStatus if allowed is satisfied by
// its current status.
func transitionRunStatus(ctx context.Context, runID, runRoot, reason string, allowed func(model.RunStatus) bool, newStatus model.RunStatus) error {
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
		current, err := tx.GetRunStatus(ctx, runID)
		if err != nil {
			return err
		}
		if !allowed(current) {
			return &campaignerrors.ConfigInvalidError{
				Path:   "run status",
				Reason: "cannot transition run " + runID + " from " + string(current) + " to " + string(newStatus),
			}
		}
		return tx.SetRunStatus(ctx, runID, newStatus, reason)
	})
}

func runLifecycleCmd(use, short, reason string, allowed func(model.RunStatus) bool, newStatus model.RunStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <run_id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := args[0]
			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}
			runRoot, err := resolveRunRoot(workspacesRoot, runID)
			if err != nil {
				return err
			}
			return transitionRunStatus(cmd.Context(), runID, runRoot, reason, allowed, newStatus)
		},
	}
}

func newCancelCmd() *cobra.Command {
	return runLifecycleCmd("cancel", "Cancel a run; no further ticks will progress it",
		"cancelled by operator",
		func(s model.RunStatus) bool { return !s.Terminal() },
		model.RunCancelled)
}

func newPauseCmd() *cobra.Command {
	return runLifecycleCmd("pause", "Pause a run; ticks observe PAUSED and stop dispatching new work",
		"paused by operator",
		func(s model.RunStatus) bool { return s == model.RunRunning || s == model.RunPending },
		model.RunPaused)
}

func newResumeCmd() *cobra.Command {
	return runLifecycleCmd("resume", "Resume a paused run",
		"resumed by operator",
		func(s model.RunStatus) bool { return s == model.RunPaused },
		model.RunRunning)
}

func newReviveCmd() *cobra.Command {
	return runLifecycleCmd("revive", "Move a terminal (FAILED or CANCELLED) run back to RUNNING",
		"revived by operator",
		func(s model.RunStatus) bool { return s == model.RunFailed || s == model.RunCancelled },
		model.RunRunning)
}
