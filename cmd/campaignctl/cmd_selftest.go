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
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/scicampaign/campaignctl/internal/campaignrt"
	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/idgen"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/runconfig"
	"github.com/scicampaign/campaignctl/internal/scheduler"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/wiring"
)

// newSelfTestCmd drives the bundled demo campaign through the real step
// loop end to end, against a scratch workspaces root thrown away on exit —
// a quick "is this build wired up correctly" smoke test an operator can run
// without touching any real workspace.
func newSelfTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "self-test",
		Short: "Run the bundled demo campaign to completion in a scratch workspace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			scratch, err := os.MkdirTemp("", "campaignctl-selftest-")
			if err != nil {
				return campaignerrors.Wrap(err, "self-test: create scratch dir")
			}
			defer os.RemoveAll(scratch)

			runID := idgen.Run()
			runRoot := filepath.Join(scratch, "demo", "runs", runID)

			if err := runconfig.Save(runRoot, runconfig.Default()); err != nil {
				return err
			}

			resolver := wiring.NewResolver()
			if _, err := resolver.Resolve(runID, runRoot, wiring.Options{
				LegacyFallback: func() ([]byte, string, error) { return campaignrt.DefaultOperatorsYAML() },
			}); err != nil {
				return err
			}

			st, err := sqlite.Open(cmd.Context(), sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
			if err != nil {
				return err
			}
			now := time.Now().UTC()
			run := &model.Run{RunID: runID, WorkspaceSlug: "demo", RootPath: runRoot, Status: model.RunPending, CreatedAt: now, UpdatedAt: now}
			if err := st.CreateRun(cmd.Context(), run); err != nil {
				st.Close()
				return err
			}
			st.Close()

			eng, closer, err := campaignrt.BuildEngine(cmd.Context(), runID, runRoot, campaignrt.EngineBuildOptions{})
			if err != nil {
				return err
			}
			defer closer.Close()

			outcome, err := scheduler.RunUntilCompletion(cmd.Context(), eng, runID, runRoot)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "self-test: %s\n", outcome)
			if outcome != "COMPLETED" {
				return &campaignerrors.CampaignError{RunID: runID, Phase: "self-test", Cause: fmt.Errorf("expected COMPLETED, got %s", outcome)}
			}
			return nil
		},
	}
}
