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
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/scicampaign/campaignctl/internal/campaignrt"
	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/operator"
	"github.com/scicampaign/campaignctl/internal/store"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

func newCancelAttemptCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "cancel-attempt <run_id> <attempt_id>",
		Short: "Cancel one in-flight attempt",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID, attemptID := args[0], args[1]
			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}
			runRoot, err := resolveRunRoot(workspacesRoot, runID)
			if err != nil {
				return err
			}

			st, err := sqlite.Open(cmd.Context(), sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
			if err != nil {
				return err
			}
			defer st.Close()

			lock, err := st.Lock(cmd.Context(), runID)
			if err != nil {
				return err
			}
			defer lock.Release()

			attempt, err := st.GetAttempt(cmd.Context(), attemptID)
			if err != nil {
				return err
			}
			if !attempt.Status.Active() && !force {
				return &campaignerrors.ConfigInvalidError{
					Path:   "cancel-attempt",
					Reason: "attempt " + attemptID + " is already terminal (" + string(attempt.Status) + "); pass --force to no-op quietly",
				}
			}

			if attempt.Status.Active() {
				if registry, err := campaignrt.ResolveOperatorRegistry(runID, runRoot, "", false); err == nil {
					if op, err := registry.Resolve(attempt.OperatorKey); err == nil {
						run, rerr := st.GetRun(cmd.Context(), runID)
						task, terr := st.GetTask(cmd.Context(), runID, attempt.TaskID)
						if rerr == nil && terr == nil {
							_ = op.Cancel(cmd.Context(), toAttemptHandle(run, task, *attempt))
						}
					}
				}
			}

			cancelled := model.AttemptCancelled
			reason := "cancelled by operator"
			return st.UpdateAttempt(cmd.Context(), attemptID, store.AttemptPatch{Status: &cancelled, StatusReason: &reason})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "succeed even if the attempt is already terminal")
	return cmd
}

func toAttemptHandle(run *model.Run, task *model.Task, a model.TaskAttempt) operator.AttemptHandle {
	return operator.AttemptHandle{
		Run: run, Task: task, AttemptID: a.AttemptID, AttemptIndex: a.AttemptIndex,
		OperatorKey: a.OperatorKey, ExternalID: a.ExternalID, Status: a.Status,
		StatusReason: a.StatusReason, OperatorData: a.OperatorData, RelativePath: a.RelativePath,
	}
}

func newCleanupOrphansCmd() *cobra.Command {
	var confirm bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "cleanup-orphans <run_id>",
		Short: "Find (and, with --confirm, fail) attempts stuck in CREATED past a timeout",
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

			st, err := sqlite.Open(cmd.Context(), sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
			if err != nil {
				return err
			}
			defer st.Close()

			orphans, err := st.FindOrphanedAttempts(cmd.Context(), runID, timeout)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(orphans) == 0 {
				fmt.Fprintln(out, "no orphaned attempts found")
				return nil
			}

			ids := make([]string, 0, len(orphans))
			for _, a := range orphans {
				fmt.Fprintf(out, "%s\t%s\t%s\n", a.AttemptID, a.TaskID, a.CreatedAt.Format("2006-01-02T15:04:05Z07:00"))
				ids = append(ids, a.AttemptID)
			}

			if !confirm {
				fmt.Fprintln(out, "(dry run: pass --confirm to mark these FAILED_INIT)")
				return nil
			}

			lock, err := st.Lock(cmd.Context(), runID)
			if err != nil {
				return err
			}
			defer lock.Release()

			return st.MarkAttemptsFailedInit(cmd.Context(), ids, "cleaned up as orphaned past timeout")
		},
	}

	cmd.Flags().BoolVar(&confirm, "confirm", false, "actually mark found attempts FAILED_INIT instead of a dry run")
	cmd.Flags().DurationVar(&timeout, "timeout", time.Hour, "how long an attempt may sit in CREATED before it's considered orphaned")

	return cmd
}
