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

// Package scheduler implements the multi-run scheduler: a randomized
// round-robin that fairly advances many runs in one long-running process,
// coordinating access with every other scheduler process purely through
// per-run advisory file locks (internal/store's LockProvider).
package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand/v2"
	"path/filepath"
	"time"

	"github.com/scicampaign/campaignctl/internal/engine"
	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

// IdlePoll is how long the loop sleeps when list_active_runs() finds
// nothing to do.
const IdlePoll = 5 * time.Second

// SweepPause is how long the loop sleeps between passes over the active
// run set, once every run in the current shuffle has been tried.
const SweepPause = 1 * time.Second

// PausedRetry and LockBusyRetry are the sleep intervals RunUntilCompletion
// uses between retries of a single run, per the single-run loop mode.
const (
	PausedRetry   = 5 * time.Second
	LockBusyRetry = 1 * time.Second
)

// Stepper advances one run by exactly one tick. *engine.Engine satisfies
// this; it's declared as an interface here so tests can supply a fake
// without building a real store/operator/campaign graph.
type Stepper interface {
	Step(ctx context.Context, runID, runRoot string) (engine.Outcome, engine.TickStats, error)
}

// EngineFactory builds a Stepper bound to one run's state store, given that
// run's root path, and a Closer that releases it. The scheduler opens (and
// closes) one store per run it touches rather than holding every active
// run's database connection open at once.
type EngineFactory func(ctx context.Context, runRoot string) (Stepper, io.Closer, error)

// Scheduler fairly advances every active run under a workspaces root.
type Scheduler struct {
	WorkspacesRoot string
	NewEngine      EngineFactory
	Logger         *slog.Logger
}

// New returns a Scheduler that discovers run roots under workspacesRoot and
// builds one Stepper per run via newEngine.
func New(workspacesRoot string, newEngine EngineFactory, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		WorkspacesRoot: workspacesRoot,
		NewEngine:      newEngine,
		Logger:         logger,
	}
}

// DiscoverActiveRuns scans the workspaces root for runs whose persisted status
// is PENDING, RUNNING, or PAUSED — the filesystem-based discovery the
// scheduler uses instead of a central run registry.
func (s *Scheduler) DiscoverActiveRuns(ctx context.Context) ([]workspace.RunHandle, error) {
	handles, err := workspace.ListRunRoots(s.WorkspacesRoot)
	if err != nil {
		return nil, err
	}

	var active []workspace.RunHandle
	for _, h := range handles {
		status, err := s.readRunStatus(ctx, h.RootPath, h.RunID)
		if err != nil {
			s.Logger.Warn("scheduler: skip run with unreadable status", "run_id", h.RunID, "error", err)
			continue
		}
		switch status {
		case model.RunPending, model.RunRunning, model.RunPaused:
			active = append(active, h)
		}
	}
	return active, nil
}

func (s *Scheduler) readRunStatus(ctx context.Context, runRoot, runID string) (model.RunStatus, error) {
	db, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
	if err != nil {
		return "", err
	}
	defer db.Close()
	return db.GetRunStatus(ctx, runID)
}

// shuffle returns a randomized permutation of runs, preventing starvation
// of any one run when the active set is larger than one sweep can fully
// service before the process is interrupted.
func (s *Scheduler) shuffle(runs []workspace.RunHandle) []workspace.RunHandle {
	shuffled := make([]workspace.RunHandle, len(runs))
	copy(shuffled, runs)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	return shuffled
}

// Run loops forever (until ctx is cancelled), each pass listing active
// runs, shuffling them, and stepping each exactly once: lock contention is
// skipped quietly, any other error is logged and the sweep continues.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		runs, err := s.DiscoverActiveRuns(ctx)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			if !sleepCtx(ctx, IdlePoll) {
				return nil
			}
			continue
		}

		for _, h := range s.shuffle(runs) {
			s.stepOnce(ctx, h)
			if ctx.Err() != nil {
				return nil
			}
		}

		if !sleepCtx(ctx, SweepPause) {
			return nil
		}
	}
}

// stepOnce advances a single run once, isolating its failure from the rest
// of the sweep.
func (s *Scheduler) stepOnce(ctx context.Context, h workspace.RunHandle) {
	stepper, closer, err := s.NewEngine(ctx, h.RootPath)
	if err != nil {
		s.Logger.Error("scheduler: build engine", "run_id", h.RunID, "error", err)
		return
	}
	defer closer.Close()

	outcome, _, err := stepper.Step(ctx, h.RunID, h.RootPath)
	if err != nil {
		var lockBusy *campaignerrors.LockBusyError
		if errors.As(err, &lockBusy) {
			s.Logger.Debug("scheduler: lock busy, skipping", "run_id", h.RunID)
			return
		}
		s.Logger.Error("scheduler: step failed", "run_id", h.RunID, "error", err)
		return
	}
	s.Logger.Debug("scheduler: stepped run", "run_id", h.RunID, "outcome", outcome)
}

// RunUntilCompletion steps a single run repeatedly until it reaches a
// terminal outcome (COMPLETED, FAILED, CANCELLED), sleeping PausedRetry on
// PAUSED and LockBusyRetry on lock contention, per the single-run loop
// mode's retry policy.
func RunUntilCompletion(ctx context.Context, st Stepper, runID, runRoot string) (engine.Outcome, error) {
	for {
		outcome, _, err := st.Step(ctx, runID, runRoot)
		if err != nil {
			var lockBusy *campaignerrors.LockBusyError
			if errors.As(err, &lockBusy) {
				if !sleepCtx(ctx, LockBusyRetry) {
					return "", ctx.Err()
				}
				continue
			}
			return "", err
		}

		switch outcome {
		case engine.OutcomeCompleted, engine.OutcomeFailed, engine.OutcomeCancelled:
			return outcome, nil
		case engine.OutcomePaused:
			if !sleepCtx(ctx, PausedRetry) {
				return "", ctx.Err()
			}
		default:
			// RUNNING: loop immediately, no sleep — the caller wants this
			// run driven to completion as fast as the operators allow.
		}
	}
}

// sleepCtx sleeps for d or returns false early if ctx is cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
