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

	"github.com/spf13/cobra"

	"github.com/scicampaign/campaignctl/internal/campaignrt"
	"github.com/scicampaign/campaignctl/internal/scheduler"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

func newLoopCmd() *cobra.Command {
	var operatorsConfigPath string
	var forceOverride bool

	cmd := &cobra.Command{
		Use:   "loop [run_id]",
		Short: "Drive one run to completion, or every active run forever if none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}

			opts := campaignrt.EngineBuildOptions{OperatorsConfigPath: operatorsConfigPath, ForceWiringOverride: forceOverride}

			if len(args) == 1 {
				runID := args[0]
				runRoot, err := resolveRunRoot(workspacesRoot, runID)
				if err != nil {
					return err
				}
				eng, closer, err := campaignrt.BuildEngine(cmd.Context(), runID, runRoot, opts)
				if err != nil {
					return err
				}
				defer closer.Close()

				outcome, err := scheduler.RunUntilCompletion(cmd.Context(), eng, runID, runRoot)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), outcome)
				return nil
			}

			sched := scheduler.New(workspacesRoot, campaignrt.NewEngineFactory(opts), nil)
			return sched.Run(cmd.Context())
		},
	}

	wiringFlags(cmd, &operatorsConfigPath, &forceOverride)
	return cmd
}
