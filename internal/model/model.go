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

package model

import "time"

// Run is the top-level unit of work: one end-to-end execution of a
// campaign, identified by a chronologically sortable run_id.
type Run struct {
	RunID         string    `json:"run_id"`
	WorkspaceSlug string    `json:"workspace_slug"`
	RootPath      string    `json:"root_path"`
	Status        RunStatus `json:"status"`
	StatusReason  string    `json:"status_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// FileRef is one entry of a task's files map: either inline content or a
// reference to a source path on the host filing the task, never both.
type FileRef struct {
	Content    string `json:"content,omitempty"`
	SourcePath string `json:"source_path,omitempty"`
}

// ResourceHints are nullable resource requests; the operator backend may
// ignore hints it doesn't understand. Pointers preserve "unset" through a
// serialize/deserialize round trip per the data model's round-trip law.
type ResourceHints struct {
	Cores            *int `json:"cores,omitempty"`
	MemoryGB         *int `json:"memory_gb,omitempty"`
	GPUs             *int `json:"gpus,omitempty"`
	TimeLimitMinutes *int `json:"time_limit_minutes,omitempty"`
}

// DownloadPatterns are include/exclude globs applied when an operator
// collects artifacts back from a completed or failed attempt.
type DownloadPatterns struct {
	Include []string `json:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty"`
}

// TaskVariant distinguishes compute tasks from the gate/external shorthand
// variants that route to the human and no-op operators even without an
// explicit operator_key (see operator routing precedence step 3).
type TaskVariant string

const (
	VariantCompute  TaskVariant = "compute"
	VariantGate     TaskVariant = "gate"
	VariantExternal TaskVariant = "external"
)

// Task is a declarative unit of work within a run. Tasks are insert-once,
// status-mutable: add_workflow inserts them, the step loop mutates Status
// only.
type Task struct {
	TaskID                string            `json:"task_id"`
	RunID                 string            `json:"run_id"`
	Variant               TaskVariant       `json:"variant"`
	Image                 string            `json:"image,omitempty"`
	Command               []string          `json:"command,omitempty"`
	Files                 map[string]FileRef `json:"files,omitempty"`
	Env                   map[string]string `json:"env,omitempty"`
	Dependencies          []string          `json:"dependencies,omitempty"`
	Resources             ResourceHints     `json:"resources"`
	AllowDependencyFailure bool             `json:"allow_dependency_failure"`
	AllowFailure          bool              `json:"allow_failure"`
	OperatorKey           string            `json:"operator_key,omitempty"`
	DownloadPatterns      *DownloadPatterns `json:"download_patterns,omitempty"`
	Status                TaskStatus        `json:"status"`
	CreatedAt             time.Time         `json:"created_at"`
	UpdatedAt             time.Time         `json:"updated_at"`
}

// OperatorData is the semi-structured payload an attempt accumulates across
// prepare/submit/poll/collect. Modeled per the design notes as a tagged
// union of well-known fields plus a catch-all "Extra" bag, rather than a
// bare map, so the engine can read config_hash/output_files without type
// assertions while still round-tripping unknown operator-specific keys.
type OperatorData struct {
	ConfigHash    string                 `json:"config_hash,omitempty"`
	RemoteWorkdir string                 `json:"remote_workdir,omitempty"`
	OutputFiles   map[string]string      `json:"output_files,omitempty"`
	OutputData    map[string]interface{} `json:"output_data,omitempty"`
	Error         string                 `json:"error,omitempty"`
	Extra         map[string]interface{} `json:"extra,omitempty"`
}

// Merge copies non-empty fields of other into d, used when collect() results
// are merged into a freshly-polled attempt's operator_data.
func (d *OperatorData) Merge(other OperatorData) {
	if other.ConfigHash != "" {
		d.ConfigHash = other.ConfigHash
	}
	if other.RemoteWorkdir != "" {
		d.RemoteWorkdir = other.RemoteWorkdir
	}
	if other.OutputFiles != nil {
		if d.OutputFiles == nil {
			d.OutputFiles = map[string]string{}
		}
		for k, v := range other.OutputFiles {
			d.OutputFiles[k] = v
		}
	}
	if other.OutputData != nil {
		if d.OutputData == nil {
			d.OutputData = map[string]interface{}{}
		}
		for k, v := range other.OutputData {
			d.OutputData[k] = v
		}
	}
	if other.Error != "" {
		d.Error = other.Error
	}
	if other.Extra != nil {
		if d.Extra == nil {
			d.Extra = map[string]interface{}{}
		}
		for k, v := range other.Extra {
			d.Extra[k] = v
		}
	}
}

// TaskAttempt is an append-only record of one dispatch attempt for a task.
// Attempts are never deleted or overwritten once terminal (invariant 6); a
// rerun creates a new attempt with the next attempt_index instead.
type TaskAttempt struct {
	AttemptID    string        `json:"attempt_id"`
	RunID        string        `json:"run_id"`
	TaskID       string        `json:"task_id"`
	AttemptIndex int           `json:"attempt_index"`
	OperatorType string        `json:"operator_type,omitempty"`
	OperatorKey  string        `json:"operator_key,omitempty"`
	ExternalID   string        `json:"external_id,omitempty"`
	Status       AttemptStatus `json:"status"`
	StatusReason string        `json:"status_reason,omitempty"`
	OperatorData OperatorData  `json:"operator_data"`
	RelativePath string        `json:"relative_path,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// LegacyExternalRun is the deprecated per-task singleton that predates
// attempts. Read for backward compatibility only: new runs never create
// these, and the step loop only polls them for tasks with zero attempts.
type LegacyExternalRun struct {
	TaskID       string        `json:"task_id"`
	RunID        string        `json:"run_id"`
	OperatorType string        `json:"operator_type,omitempty"`
	ExternalID   string        `json:"external_id,omitempty"`
	Status       AttemptStatus `json:"status"`
	OperatorData OperatorData  `json:"operator_data"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Workflow is a DAG of tasks produced by one campaign.plan() call. It is not
// persisted as an envelope: only the tasks it contains survive insertion.
type Workflow struct {
	Tasks []Task `json:"tasks"`
}

// AttemptContext identifies the subject of a lifecycle hook invocation.
type AttemptContext struct {
	RunID        string
	TaskID       string
	AttemptID    string
	OperatorKey  string
	AttemptIndex int
}
