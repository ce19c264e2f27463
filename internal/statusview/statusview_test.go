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

package statusview

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scicampaign/campaignctl/internal/model"
)

var ansiRE = regexp.MustCompile("\x1b\\[[0-9;]*m")

func stripANSI(s string) string {
	return ansiRE.ReplaceAllString(s, "")
}

func TestRenderStatus_IncludesRunIDAndReason(t *testing.T) {
	run := &model.Run{
		RunID:         "01HXAMPLE0000000000000000",
		Status:        model.RunPaused,
		StatusReason:  "awaiting operator capacity",
		WorkspaceSlug: "proteins/fold-sweep",
		RootPath:      "/workspaces/proteins/fold-sweep/runs/01HXAMPLE0000000000000000",
		UpdatedAt:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}

	out := stripANSI(RenderStatus(RunSummary{Run: run, Total: 10, Completed: 4, Failed: 1, Active: 2, Ready: 3}))

	assert.Contains(t, out, "01HXAMPLE0000000000000000")
	assert.Contains(t, out, "[PAUSED]")
	assert.Contains(t, out, "awaiting operator capacity")
	assert.Contains(t, out, "proteins/fold-sweep")
	assert.Contains(t, out, "total:10")
	assert.Contains(t, out, "completed:4")
	assert.Contains(t, out, "failed:1")
}

func TestRenderStatus_OmitsReasonLineWhenEmpty(t *testing.T) {
	run := &model.Run{RunID: "r1", Status: model.RunRunning, WorkspaceSlug: "ws", RootPath: "/x", UpdatedAt: time.Now()}

	out := stripANSI(RenderStatus(RunSummary{Run: run}))

	assert.NotContains(t, out, "reason:")
}

func TestRenderExplain_ColumnsStayAlignedAcrossVaryingStatusWidths(t *testing.T) {
	tasks := []model.Task{
		{TaskID: "t1", Status: model.TaskStatus("READY"), Dependencies: nil},
		{TaskID: "t2", Status: model.TaskStatus("WAITING_EXTERNAL"), Dependencies: []string{"t1"}},
	}

	out := RenderExplain(tasks)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)

	plainLines := make([]string, len(lines))
	for i, l := range lines {
		plainLines[i] = stripANSI(l)
	}

	// Every data row's status column must start at the same visible offset
	// as the header's, regardless of how many ANSI bytes the badge carries.
	headerStatusCol := strings.Index(plainLines[0], "status")
	for _, l := range plainLines[1:] {
		assert.True(t, len(l) > headerStatusCol, "row shorter than expected: %q", l)
		assert.Equal(t, "[", l[headerStatusCol:headerStatusCol+1], "status column misaligned: %q", l)
	}
	assert.Contains(t, plainLines[1], "[READY]")
	assert.Contains(t, plainLines[2], "[WAITING_EXTERNAL]")
	assert.Contains(t, plainLines[2], "t1")
}

func TestRenderExplain_DefaultOperatorKeyWhenUnset(t *testing.T) {
	tasks := []model.Task{{TaskID: "t1", Status: model.TaskStatus("READY")}}

	out := stripANSI(RenderExplain(tasks))

	assert.Contains(t, out, "(default)")
}

func TestRenderMonitor_OneRowPerRun(t *testing.T) {
	summaries := []RunSummary{
		{Run: &model.Run{RunID: "run_a", Status: model.RunRunning}, Total: 5, Completed: 1, Failed: 0, Active: 4},
		{Run: &model.Run{RunID: "run_b", Status: model.RunCompleted}, Total: 3, Completed: 3},
	}

	out := stripANSI(RenderMonitor(summaries))
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")

	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "run_a")
	assert.Contains(t, lines[1], "[RUNNING]")
	assert.Contains(t, lines[2], "run_b")
	assert.Contains(t, lines[2], "[COMPLETED]")
}

func TestStatusStyle_UnknownStatusFallsBackToInfo(t *testing.T) {
	assert.Equal(t, styleInfo, statusStyle("SOMETHING_NEW"))
}
