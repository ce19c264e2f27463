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

// Package campaign defines the plugin-as-interface boundary the engine
// calls into at the end of every tick that leaves no active work: analyze
// folds task results into campaign state, plan turns that state into the
// next workflow (or nil to signal the run is done).
//
// The source this spec was distilled from loads campaigns by dynamically
// importing user files exporting get_campaign(). This port instead uses a
// registered-at-build-time function table keyed by workspace slug — the
// engine never imports a campaign's code, it holds a Campaign value handed
// to it by the caller (cmd/campaignctl resolves the slug-to-Campaign
// binding at startup).
package campaign

import "encoding/json"

// TaskResult is one task's contribution to a campaign's analyze() call,
// assembled by the step loop from the task's current attempt.
type TaskResult struct {
	Status string                 `json:"status"`
	Files  map[string]string      `json:"files,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// State is the opaque JSON blob persisted between plan/analyze calls at
// <run_root>/campaign_state.json. Campaigns are free to store whatever
// shape they need; the engine never inspects it.
type State = json.RawMessage

// Campaign drives a run forward: plan proposes the next batch of tasks (or
// nil when the campaign considers the run done), analyze folds the results
// of every task in the run (earlier rounds included) into a new state.
type Campaign interface {
	Plan(state State) (*Workflow, error)
	Analyze(state State, results map[string]TaskResult) (State, error)
}

// Workflow mirrors model.Workflow at the campaign boundary so this package
// doesn't need to import internal/model's Task shape directly — a campaign
// only needs to describe tasks, not the engine's storage representation.
type Workflow struct {
	Tasks []TaskSpec
}

// TaskSpec is a campaign's declarative description of one task to add.
type TaskSpec struct {
	TaskID                 string
	Image                  string
	Command                []string
	Files                  map[string]string
	Env                    map[string]string
	Dependencies           []string
	AllowDependencyFailure bool
	AllowFailure           bool
	OperatorKey            string
}
