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

// Package wiring resolves which operator set binds to a run and persists
// an immutable, content-hashed snapshot of it, refusing silent
// substitution once a run has one.
package wiring

import "time"

// Source identifies where a resolved operators.yaml came from, in
// precedence order (index 0 = highest).
type Source string

const (
	SourceCLI             Source = "cli"
	SourceRunSnapshot     Source = "run_snapshot"
	SourceWorkspaceDefault Source = "workspace_default"
	SourceEnv             Source = "env"
	SourceLegacy          Source = "legacy"
)

// Precedence lists sources from highest to lowest priority, per §4.3.
var Precedence = []Source{SourceCLI, SourceRunSnapshot, SourceWorkspaceDefault, SourceEnv, SourceLegacy}

// Resolved is the outcome of resolving a run's operator wiring: the bytes
// that are now (or already were) bound to the run.
type Resolved struct {
	Bytes        []byte
	SHA256       string
	Source       Source
	ResolvedPath string
}

// Provenance records where each candidate source, if any, was found —
// independent of which one ultimately won.
type Provenance struct {
	Workspace string `json:"workspace,omitempty"`
	CLI       string `json:"cli,omitempty"`
	Legacy    string `json:"legacy,omitempty"`
}

// Effective is the metadata.json "effective" sub-object: which source won
// and what it hashed to.
type Effective struct {
	Source         Source `json:"source"`
	ResolvedPath   string `json:"resolved_path"`
	SHA256         string `json:"sha256"`
	SnapshotRelpath string `json:"snapshot_relpath"`
}

// Metadata is operators_snapshot/metadata.json.
type Metadata struct {
	SchemaVersion int        `json:"schema_version"`
	CreatedAtUTC  string     `json:"created_at_utc"`
	UpdatedAtUTC  string     `json:"updated_at_utc"`
	Effective     Effective  `json:"effective"`
	Provenance    Provenance `json:"provenance"`
}

// HistoryEvent is one line of operators_snapshot/history.jsonl.
type HistoryEvent struct {
	AtUTC           string                 `json:"at_utc"`
	Event           string                 `json:"event"`
	Source          Source                 `json:"source"`
	SHA256          string                 `json:"sha256"`
	ResolvedPath    string                 `json:"resolved_path"`
	SnapshotRelpath string                 `json:"snapshot_relpath"`
	Details         map[string]interface{} `json:"details,omitempty"`
}

const (
	EventPersisted       = "WIRING_PERSISTED"
	EventOverrideRefused = "WIRING_OVERRIDE_REFUSED"
	EventOverrideForced  = "WIRING_OVERRIDE_FORCED"
)

func utcNowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
