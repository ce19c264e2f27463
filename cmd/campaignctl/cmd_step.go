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
	"github.com/scicampaign/campaignctl/internal/workspace"
)

// wiringFlags attaches the operator-wiring override flags every
// run-stepping command accepts.
func wiringFlags(cmd *cobra.Command, path *string, force *bool) {
	cmd.Flags().StringVar(path, "operators-config", "", "operators.yaml to bind this run to (refused if it differs from an existing snapshot)")
	cmd.Flags().BoolVar(force, "force-wiring-override", false, "replace an existing run's operator wiring snapshot instead of refusing")
}

func newStepCmd() *cobra.Command {
	var operatorsConfigPath string
	var forceOverride bool

	cmd := &cobra.Command{
		Use:   "step <run_id>",
		Short: "Advance a run by exactly one tick",
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

			eng, closer, err := campaignrt.BuildEngine(cmd.Context(), runID, runRoot, campaignrt.EngineBuildOptions{
				OperatorsConfigPath: operatorsConfigPath,
				ForceWiringOverride: forceOverride,
			})
			if err != nil {
				return err
			}
			defer closer.Close()

			outcome, stats, err := eng.Step(cmd.Context(), runID, runRoot)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s\ttotal:%d\tcompleted:%d\tfailed:%d\tactive:%d\tready:%d\n",
				outcome, stats.Total, stats.Completed, stats.Failed, stats.Active, stats.Ready)
			return nil
		},
	}

	wiringFlags(cmd, &operatorsConfigPath, &forceOverride)
	return cmd
}
