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
	"github.com/scicampaign/campaignctl/internal/idgen"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/runconfig"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/wiring"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

func newInitCmd() *cobra.Command {
	var (
		operatorsConfigPath string
		maxHPCJobs          int
		executionMode       string
	)

	cmd := &cobra.Command{
		Use:   "init <workspace-slug>",
		Short: "Create a new run under a workspace and bind its operator wiring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slug := args[0]
			if _, err := campaignrt.ResolveCampaign(slug); err != nil {
				return err
			}

			workspacesRoot, err := workspace.Root()
			if err != nil {
				return err
			}

			runID := idgen.Run()
			runRoot := filepath.Join(workspacesRoot, slug, "runs", runID)

			mode := runconfig.ExecutionMode(executionMode)
			switch mode {
			case runconfig.ModeHPC, runconfig.ModeLocal, runconfig.ModeSimulation:
			case "":
				mode = runconfig.ModeLocal
			default:
				return &campaignerrors.ConfigInvalidError{Path: "--execution-mode", Reason: "unrecognized mode " + executionMode}
			}

			cfg := runconfig.Default()
			cfg.ExecutionMode = mode
			if maxHPCJobs > 0 {
				cfg.MaxHPCJobsPerRun = maxHPCJobs
			}
			if err := runconfig.Save(runRoot, cfg); err != nil {
				return err
			}

			resolver := wiring.NewResolver()
			if _, err := resolver.Resolve(runID, runRoot, wiring.Options{
				CLIPath: operatorsConfigPath,
				LegacyFallback: func() ([]byte, string, error) {
					return campaignrt.DefaultOperatorsYAML()
				},
			}); err != nil {
				return err
			}

			st, err := sqlite.Open(cmd.Context(), sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
			if err != nil {
				return err
			}
			defer st.Close()

			now := time.Now().UTC()
			run := &model.Run{
				RunID:         runID,
				WorkspaceSlug: slug,
				RootPath:      runRoot,
				Status:        model.RunPending,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := st.CreateRun(cmd.Context(), run); err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), runID)
			return nil
		},
	}

	cmd.Flags().StringVar(&operatorsConfigPath, "operators-config", "", "path to an operators.yaml to bind to this run")
	cmd.Flags().IntVar(&maxHPCJobs, "max-hpc-jobs", 0, "override max_hpc_jobs_per_run (default "+fmt.Sprint(runconfig.DefaultMaxHPCJobsPerRun)+")")
	cmd.Flags().StringVar(&executionMode, "execution-mode", string(runconfig.ModeLocal), "default operator routing mode: HPC, Local, or Simulation")

	return cmd
}
