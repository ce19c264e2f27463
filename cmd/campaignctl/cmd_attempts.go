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

	"github.com/spf13/cobra"

	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

func newAttemptsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "attempts <run_id> <task_id>",
		Short: "List every attempt ever made at a task, oldest first",
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

			st, err := sqlite.Open(cmd.Context(), sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
			if err != nil {
				return err
			}
			defer st.Close()

			attempts, err := st.ListAttempts(cmd.Context(), runID, taskID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "attempt_id\tattempt_index\tstatus\toperator_key\texternal_id\trelative_path\tupdated_at")
			for _, a := range attempts {
				fmt.Fprintf(out, "%s\t%d\t%s\t%s\t%s\t%s\t%s\n",
					a.AttemptID, a.AttemptIndex, a.Status, a.OperatorKey, a.ExternalID, a.RelativePath,
					a.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	}
}
