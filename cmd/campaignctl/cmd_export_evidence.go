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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

// evidenceBundle is the minimal machine-readable record export-evidence
// writes: enough for a reviewer tool to reconstruct a run's outcome
// without re-reading state.sqlite. Rendering a full report beyond
// bundle.json/report.md is out of scope for this build.
type evidenceBundle struct {
	RunID     string              `json:"run_id"`
	Workspace string              `json:"workspace_slug"`
	Status    model.RunStatus     `json:"status"`
	Tasks     []evidenceTaskEntry `json:"tasks"`
}

type evidenceTaskEntry struct {
	TaskID       string            `json:"task_id"`
	Status       model.TaskStatus  `json:"status"`
	AttemptCount int               `json:"attempt_count"`
	LastAttempt  string            `json:"last_attempt_id,omitempty"`
	OperatorKey  string            `json:"operator_key,omitempty"`
}

func newExportEvidenceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export-evidence <run_id>",
		Short: "Write evidence/bundle.json and evidence/report.md summarizing a run",
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

			run, err := st.GetRun(cmd.Context(), runID)
			if err != nil {
				return err
			}
			tasks, err := st.GetTasks(cmd.Context(), runID)
			if err != nil {
				return err
			}

			bundle := evidenceBundle{RunID: run.RunID, Workspace: run.WorkspaceSlug, Status: run.Status}
			for _, t := range tasks {
				attempts, err := st.ListAttempts(cmd.Context(), runID, t.TaskID)
				if err != nil {
					return err
				}
				entry := evidenceTaskEntry{TaskID: t.TaskID, Status: t.Status, AttemptCount: len(attempts), OperatorKey: t.OperatorKey}
				if len(attempts) > 0 {
					entry.LastAttempt = attempts[len(attempts)-1].AttemptID
				}
				bundle.Tasks = append(bundle.Tasks, entry)
			}

			evidenceDir := filepath.Join(runRoot, "evidence")
			if err := os.MkdirAll(evidenceDir, 0755); err != nil {
				return campaignerrors.Wrap(err, "export-evidence: create evidence dir")
			}

			bundleBytes, err := json.MarshalIndent(bundle, "", "  ")
			if err != nil {
				return campaignerrors.Wrap(err, "export-evidence: marshal bundle.json")
			}
			if err := os.WriteFile(filepath.Join(evidenceDir, "bundle.json"), bundleBytes, 0644); err != nil {
				return campaignerrors.Wrap(err, "export-evidence: write bundle.json")
			}

			if err := os.WriteFile(filepath.Join(evidenceDir, "report.md"), []byte(renderReportMarkdown(bundle)), 0644); err != nil {
				return campaignerrors.Wrap(err, "export-evidence: write report.md")
			}

			fmt.Fprintln(cmd.OutOrStdout(), filepath.Join(evidenceDir, "bundle.json"))
			return nil
		},
	}
}

func renderReportMarkdown(b evidenceBundle) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# Run %s\n\n", b.RunID)
	fmt.Fprintf(&sb, "- workspace: %s\n- status: %s\n\n", b.Workspace, b.Status)
	fmt.Fprintf(&sb, "| task_id | status | attempts | operator_key |\n|---|---|---|---|\n")
	for _, t := range b.Tasks {
		fmt.Fprintf(&sb, "| %s | %s | %d | %s |\n", t.TaskID, t.Status, t.AttemptCount, t.OperatorKey)
	}
	return sb.String()
}
