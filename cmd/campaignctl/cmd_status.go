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
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/statusview"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

// readRunSummary opens runRoot's store read-only (status/explain/monitor
// never mutate, so they skip the advisory lock entirely) and computes a
// statusview.RunSummary from its current tasks.
func readRunSummary(ctx context.Context, runRoot string) (statusview.RunSummary, []model.Task, error) {
	st, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
	if err != nil {
		return statusview.RunSummary{}, nil, err
	}
	defer st.Close()

	run, err := st.GetRun(ctx, filepath.Base(runRoot))
	if err != nil {
		return statusview.RunSummary{}, nil, err
	}
	tasks, err := st.GetTasks(ctx, run.RunID)
	if err != nil {
		return statusview.RunSummary{}, nil, err
	}

	summary := statusview.RunSummary{Run: run, Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskCompleted:
			summary.Completed++
		case model.TaskFailed:
			summary.Failed++
		case model.TaskPending:
			summary.Ready++
		case model.TaskRunning, model.TaskWaitingExternal:
			summary.Active++
		}
	}
	return summary, tasks, nil
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <run_id>",
		Short: "Show a single run's current status and task counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}
			runRoot, err := resolveRunRoot(workspacesRoot, args[0])
			if err != nil {
				return err
			}
			summary, _, err := readRunSummary(cmd.Context(), runRoot)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), statusview.RenderStatus(summary))
			return nil
		},
	}
}

func newExplainCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "explain <run_id>",
		Short: "Show why each task in a run is or isn't progressing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}
			runRoot, err := resolveRunRoot(workspacesRoot, args[0])
			if err != nil {
				return err
			}
			_, tasks, err := readRunSummary(cmd.Context(), runRoot)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), statusview.RenderExplain(tasks))
			return nil
		},
	}
}

func newMonitorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "monitor",
		Short: "Show every active run under the workspaces root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}
			handles, err := workspace.ListRunRoots(workspacesRoot)
			if err != nil {
				return err
			}

			summaries := make([]statusview.RunSummary, 0, len(handles))
			for _, h := range handles {
				summary, _, err := readRunSummary(cmd.Context(), h.RootPath)
				if err != nil {
					continue
				}
				summaries = append(summaries, summary)
			}
			fmt.Fprint(cmd.OutOrStdout(), statusview.RenderMonitor(summaries))
			return nil
		},
	}
}
