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

package scheduler

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/engine"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// fakeStepper returns a scripted sequence of outcomes, one per call, and
// records every runID it was asked to step.
type fakeStepper struct {
	mu       sync.Mutex
	outcomes []engine.Outcome
	errs     []error
	calls    []string
	i        int
}

func (f *fakeStepper) Step(_ context.Context, runID, _ string) (engine.Outcome, engine.TickStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, runID)

	idx := f.i
	f.i++
	if idx >= len(f.outcomes) {
		idx = len(f.outcomes) - 1
	}
	var err error
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	return f.outcomes[idx], engine.TickStats{}, err
}

func TestScheduler_ShuffleVisitsEveryRunExactlyOnce(t *testing.T) {
	s := New("unused", nil, nil)
	runs := []workspace.RunHandle{
		{RunID: "run_a"}, {RunID: "run_b"}, {RunID: "run_c"}, {RunID: "run_d"},
	}

	shuffled := s.shuffle(runs)

	require.Len(t, shuffled, len(runs))
	seen := map[string]bool{}
	for _, h := range shuffled {
		seen[h.RunID] = true
	}
	assert.Len(t, seen, len(runs))
}

func TestScheduler_StepOnce_SkipsQuietlyOnLockBusy(t *testing.T) {
	stepper := &fakeStepper{
		outcomes: []engine.Outcome{engine.OutcomeRunning},
		errs:     []error{&campaignerrors.LockBusyError{RunID: "run_a", HolderPID: 123}},
	}

	s := New("unused", func(_ context.Context, _ string) (Stepper, io.Closer, error) {
		return stepper, nopCloser{}, nil
	}, nil)

	// Must not panic or block; lock-busy is routine and silent.
	s.stepOnce(context.Background(), workspace.RunHandle{RunID: "run_a", RootPath: "/tmp/run_a"})

	assert.Equal(t, []string{"run_a"}, stepper.calls)
}

func TestRunUntilCompletion_StopsAtTerminalOutcome(t *testing.T) {
	stepper := &fakeStepper{
		outcomes: []engine.Outcome{engine.OutcomeRunning, engine.OutcomeRunning, engine.OutcomeCompleted},
	}

	outcome, err := RunUntilCompletion(context.Background(), stepper, "run_a", "/tmp/run_a")

	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeCompleted, outcome)
	assert.Len(t, stepper.calls, 3)
}

func TestRunUntilCompletion_PropagatesNonLockBusyError(t *testing.T) {
	boom := campaignerrors.New("boom")
	stepper := &fakeStepper{
		outcomes: []engine.Outcome{engine.OutcomeRunning},
		errs:     []error{boom},
	}

	_, err := RunUntilCompletion(context.Background(), stepper, "run_a", "/tmp/run_a")

	assert.ErrorIs(t, err, boom)
}

func TestRunUntilCompletion_CancelledContextDuringPausedRetryReturnsErr(t *testing.T) {
	stepper := &fakeStepper{
		outcomes: []engine.Outcome{engine.OutcomePaused},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := RunUntilCompletion(ctx, stepper, "run_a", "/tmp/run_a")

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
