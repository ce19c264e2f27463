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

// Package demo implements a minimal campaign for self-tests and examples:
// it sweeps a fixed number of simulation tasks per round and stops once a
// user-supplied expr-lang expression over the round's aggregate state
// evaluates true. It stands in for the domain-specific design-space
// enumeration / surrogate-model campaigns this engine is built to drive,
// none of which are in scope here.
package demo

import (
	"encoding/json"
	"fmt"

	"github.com/expr-lang/expr"

	"github.com/scicampaign/campaignctl/internal/campaign"
)

// demoState is the JSON shape this campaign persists between rounds.
type demoState struct {
	Round     int `json:"round"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// Campaign sweeps TasksPerRound simulation tasks each round, stopping once
// StopWhen (an expr-lang boolean expression over round/completed/failed)
// evaluates true, or after MaxRounds regardless.
type Campaign struct {
	TasksPerRound int
	MaxRounds     int
	// StopWhen is an expr-lang expression evaluated against the current
	// demoState after each round's results are folded in, e.g.
	// "completed >= 10" or "failed > 2".
	StopWhen string
}

// New returns a demo Campaign with sensible defaults.
func New() *Campaign {
	return &Campaign{TasksPerRound: 3, MaxRounds: 5, StopWhen: "completed >= 9"}
}

func (c *Campaign) loadState(state campaign.State) (demoState, error) {
	var s demoState
	if len(state) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(state, &s); err != nil {
		return s, fmt.Errorf("demo campaign: unmarshal state: %w", err)
	}
	return s, nil
}

// Plan returns TasksPerRound simulation-routed tasks, or nil once the stop
// condition or MaxRounds is reached.
func (c *Campaign) Plan(state campaign.State) (*campaign.Workflow, error) {
	s, err := c.loadState(state)
	if err != nil {
		return nil, err
	}

	stop, err := c.evaluateStop(s)
	if err != nil {
		return nil, err
	}
	if stop || (c.MaxRounds > 0 && s.Round >= c.MaxRounds) {
		return nil, nil
	}

	wf := &campaign.Workflow{}
	for i := 0; i < c.TasksPerRound; i++ {
		wf.Tasks = append(wf.Tasks, campaign.TaskSpec{
			TaskID: fmt.Sprintf("round-%d-task-%d", s.Round+1, i),
			Env:    map[string]string{"MATTERSTACK_OPERATOR": "Simulation"},
		})
	}
	return wf, nil
}

// Analyze recounts completed/failed over results (which the engine fills
// with every task in the run, not just this round's) and advances Round.
func (c *Campaign) Analyze(state campaign.State, results map[string]campaign.TaskResult) (campaign.State, error) {
	s, err := c.loadState(state)
	if err != nil {
		return nil, err
	}
	s.Round++
	s.Completed, s.Failed = 0, 0
	for _, r := range results {
		switch r.Status {
		case "COMPLETED":
			s.Completed++
		case "FAILED":
			s.Failed++
		}
	}
	return json.Marshal(s)
}

func (c *Campaign) evaluateStop(s demoState) (bool, error) {
	if c.StopWhen == "" {
		return false, nil
	}
	env := map[string]interface{}{
		"round":     s.Round,
		"completed": s.Completed,
		"failed":    s.Failed,
	}
	program, err := expr.Compile(c.StopWhen, expr.Env(env), expr.AsBool())
	if err != nil {
		return false, fmt.Errorf("demo campaign: compile stop_when %q: %w", c.StopWhen, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("demo campaign: evaluate stop_when: %w", err)
	}
	result, _ := out.(bool)
	return result, nil
}
