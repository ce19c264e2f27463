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

// Package statusview renders the `status`, `explain`, and `monitor`
// commands' human-facing output. It is strictly a presentation layer: it
// never touches the store or the engine directly, only the already-loaded
// model.Run/model.Task values and RunSummary counts its callers hand it.
package statusview

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/scicampaign/campaignctl/internal/model"
)

// Color palette mirrors the conventions a terminal status line needs:
// success/warn/error accents plus a muted style for secondary detail.
var (
	styleOK     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))  // green
	styleWarn   = lipgloss.NewStyle().Foreground(lipgloss.Color("214")) // orange
	styleError  = lipgloss.NewStyle().Foreground(lipgloss.Color("196")) // red
	styleInfo   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))  // blue
	styleMuted  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")) // gray
	styleBold   = lipgloss.NewStyle().Bold(true)
	styleHeader = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
)

// statusStyle picks the accent color a RunStatus or TaskStatus renders
// with: green for terminal-success, red for terminal-failure, orange for
// in-flight/waiting, blue otherwise.
func statusStyle(s string) lipgloss.Style {
	switch s {
	case "COMPLETED":
		return styleOK
	case "FAILED", "FAILED_INIT", "CANCELLED":
		return styleError
	case "RUNNING", "WAITING_EXTERNAL", "SUBMITTED", "PAUSED":
		return styleWarn
	default:
		return styleInfo
	}
}

// pad left-justifies text to width *before* any ANSI styling is applied to
// it — padding a styled string directly would count escape-sequence bytes
// as visible width and misalign every column after the first.
func pad(text string, width int) string {
	if width <= 0 {
		return text
	}
	return fmt.Sprintf("%-*s", width, text)
}

func renderBadge(status string, width int) string {
	return statusStyle(status).Render(pad("["+status+"]", width))
}

// RunSummary bundles the values `status`/`monitor` need for one run's row:
// the persisted Run plus the most recent tick's task counts.
type RunSummary struct {
	Run       *model.Run
	Total     int
	Completed int
	Failed    int
	Active    int
	Ready     int
}

// RenderStatus renders the single-run `status` command's block view.
func RenderStatus(s RunSummary) string {
	var b strings.Builder

	fmt.Fprintf(&b, "%s  %s\n", styleHeader.Render(s.Run.RunID), renderBadge(string(s.Run.Status), 0))
	if s.Run.StatusReason != "" {
		fmt.Fprintf(&b, "  %s %s\n", styleMuted.Render("reason:"), s.Run.StatusReason)
	}
	fmt.Fprintf(&b, "  %s %s\n", styleMuted.Render("workspace:"), s.Run.WorkspaceSlug)
	fmt.Fprintf(&b, "  %s %s\n", styleMuted.Render("root:"), s.Run.RootPath)
	fmt.Fprintf(&b, "  %s %s\n", styleMuted.Render("updated:"), s.Run.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "  %s\n", styleBold.Render("tasks"))
	fmt.Fprintf(&b, "    total:%d  %s:%d  %s:%d  active:%d  ready:%d\n",
		s.Total,
		styleOK.Render("completed"), s.Completed,
		styleError.Render("failed"), s.Failed,
		s.Active, s.Ready,
	)

	return b.String()
}

// RenderExplain renders the `explain` command's per-task breakdown: one
// line per task showing its status, dependency count, and operator key,
// so an operator can see at a glance why a task is or isn't dispatching.
func RenderExplain(tasks []model.Task) string {
	const taskIDWidth, statusWidth, depsWidth = 28, 18, 8

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s\n",
		styleHeader.Render(pad("task_id", taskIDWidth)),
		styleHeader.Render(pad("status", statusWidth)),
		styleHeader.Render(pad("deps", depsWidth)),
		styleHeader.Render("operator_key"))

	for _, t := range tasks {
		opKey := t.OperatorKey
		if opKey == "" {
			opKey = styleMuted.Render("(default)")
		}
		fmt.Fprintf(&b, "%s %s %s %s\n",
			pad(t.TaskID, taskIDWidth),
			renderBadge(string(t.Status), statusWidth),
			pad(fmt.Sprintf("%d", len(t.Dependencies)), depsWidth),
			opKey)
	}
	return b.String()
}

// RenderMonitor renders the multi-run `monitor` view: one colorized line
// per run, sorted by the order the caller supplies (typically by run_id,
// which is chronologically sortable).
func RenderMonitor(summaries []RunSummary) string {
	const runIDWidth, statusWidth, numWidth = 30, 12, 8

	var b strings.Builder
	fmt.Fprintf(&b, "%s %s %s %s %s %s\n",
		styleHeader.Render(pad("run_id", runIDWidth)),
		styleHeader.Render(pad("status", statusWidth)),
		styleHeader.Render(pad("total", numWidth)),
		styleHeader.Render(pad("done", numWidth)),
		styleHeader.Render(pad("failed", numWidth)),
		styleHeader.Render(pad("active", numWidth)))

	for _, s := range summaries {
		fmt.Fprintf(&b, "%s %s %s %s %s %s\n",
			pad(s.Run.RunID, runIDWidth),
			renderBadge(string(s.Run.Status), statusWidth),
			pad(fmt.Sprintf("%d", s.Total), numWidth),
			pad(fmt.Sprintf("%d", s.Completed), numWidth),
			pad(fmt.Sprintf("%d", s.Failed), numWidth),
			pad(fmt.Sprintf("%d", s.Active), numWidth))
	}
	return b.String()
}
