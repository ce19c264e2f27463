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

// Package engine implements the step loop: the tick that advances one run
// by exactly one step. A tick is a pure function of persisted state modulo
// operator I/O, and must be safe to re-run after a crash — every phase
// commits before the next begins, and the poll phase re-reads whatever the
// previous tick left in flight rather than assuming it finished cleanly.
package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/hooks"
	"github.com/scicampaign/campaignctl/internal/idgen"
	campaignlog "github.com/scicampaign/campaignctl/internal/log"
	campaignmetrics "github.com/scicampaign/campaignctl/internal/metrics"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/operator"
	"github.com/scicampaign/campaignctl/internal/runconfig"
	"github.com/scicampaign/campaignctl/internal/store"
	"github.com/scicampaign/campaignctl/pkg/observability"
)

// DefaultStuckTimeout is applied to the orphan-attempt check when a caller
// doesn't override it.
const DefaultStuckTimeout = time.Hour

// campaignStateFile is the run-root-relative path the analyze/plan phase
// persists its opaque state blob to.
const campaignStateFile = "campaign_state.json"

// Campaign is the subset of campaign.Campaign the engine calls; declared
// locally so this package doesn't import internal/campaign's Workflow/
// TaskSpec types directly into its own task-construction logic.
type Campaign interface {
	Plan(state json.RawMessage) (*CampaignWorkflow, error)
	Analyze(state json.RawMessage, results map[string]CampaignTaskResult) (json.RawMessage, error)
}

// CampaignWorkflow and CampaignTaskResult mirror internal/campaign's types
// structurally; internal/campaignrt's adapter converts a concrete campaign.Campaign into
// this interface so the engine never imports the campaign package's task
// authoring surface, only the shape it needs to insert rows.
type CampaignWorkflow struct {
	Tasks []CampaignTaskSpec
}

type CampaignTaskSpec struct {
	TaskID                 string
	Image                  string
	Command                []string
	Files                  map[string]model.FileRef
	Env                    map[string]string
	Dependencies           []string
	AllowDependencyFailure bool
	AllowFailure           bool
	OperatorKey            string
}

type CampaignTaskResult struct {
	Status string
	Files  map[string]string
	Data   map[string]interface{}
}

// TickStats summarizes one tick's view of the run's tasks, returned
// alongside the outcome for callers (`status`, `monitor`) that want
// progress counts without a second read.
type TickStats struct {
	Total     int
	Completed int
	Failed    int
	Active    int
	Ready     int
	Submitted int
}

// Outcome is the tick's terminal result.
type Outcome string

const (
	OutcomeRunning   Outcome = "RUNNING"
	OutcomePaused    Outcome = "PAUSED"
	OutcomeCompleted Outcome = "COMPLETED"
	OutcomeFailed    Outcome = "FAILED"
	OutcomeCancelled Outcome = "CANCELLED"
)

// Engine holds the dependencies one tick needs. Store is scoped to a
// single run's state.sqlite (see sqlite.Store's own doc comment); the
// scheduler builds a fresh Engine per run it steps (campaignrt.BuildEngine),
// resolving that run's Registry, Campaign, Logger and Hooks each time and
// sharing only the process-wide Metrics and Tracer across runs.
type Engine struct {
	Store       store.Store
	Registry    *operator.Registry
	Hooks       hooks.Hook
	Campaign    Campaign
	Logger      *slog.Logger
	Metrics     *campaignmetrics.Metrics
	Tracer      observability.Tracer
	StuckTimeout time.Duration
}

// New builds an Engine with the given dependencies. tracer may be nil, in
// which case ticks run unspanned.
func New(st store.Store, registry *operator.Registry, hookDispatcher hooks.Hook, camp Campaign, logger *slog.Logger, metrics *campaignmetrics.Metrics, tracer observability.Tracer) *Engine {
	return &Engine{
		Store:        st,
		Registry:     registry,
		Hooks:        hookDispatcher,
		Campaign:     camp,
		Logger:       logger,
		Metrics:      metrics,
		Tracer:       tracer,
		StuckTimeout: DefaultStuckTimeout,
	}
}

// Step advances runID by exactly one tick, acquiring the run's advisory
// lock for the duration. runRoot is the filesystem root the tick reads
// config.json and campaign_state.json from.
func (e *Engine) Step(ctx context.Context, runID, runRoot string) (Outcome, TickStats, error) {
	start := timeNow()
	lock, err := e.Store.Lock(ctx, runID)
	if err != nil {
		return "", TickStats{}, err
	}
	defer lock.Release()

	if e.Tracer != nil {
		var span observability.SpanHandle
		ctx, span = e.Tracer.Start(ctx, "campaignctl.tick", observability.WithAttributes(map[string]any{"run_id": runID}))
		defer span.End()
	}

	outcome, stats, err := e.step(ctx, runID, runRoot)
	if e.Metrics != nil {
		e.Metrics.ObserveTick(timeNow().Sub(start).Seconds())
		e.Metrics.SetActiveAttempts(runID, stats.Active)
	}
	return outcome, stats, err
}

// timeNow is a seam so tests can observe tick duration without relying on
// wall-clock flakiness; production always uses time.Now.
var timeNow = time.Now

func (e *Engine) step(ctx context.Context, runID, runRoot string) (Outcome, TickStats, error) {
	logger := campaignlog.WithRunContext(e.Logger, runID)

	// Phase 1: gate.
	runStatus, err := e.Store.GetRunStatus(ctx, runID)
	if err != nil {
		return "", TickStats{}, err
	}
	if runStatus.Terminal() {
		return Outcome(runStatus), TickStats{}, nil
	}
	if runStatus == model.RunPaused {
		return OutcomePaused, TickStats{}, nil
	}
	if runStatus == model.RunPending {
		if err := e.Store.SetRunStatus(ctx, runID, model.RunRunning, ""); err != nil {
			return "", TickStats{}, err
		}
	}

	cfg, err := runconfig.Load(runRoot)
	if err != nil {
		return "", TickStats{}, err
	}

	// Phase 2: poll active attempts.
	if err := e.pollActiveAttempts(ctx, runID, logger); err != nil {
		return "", TickStats{}, err
	}

	// Phase 3: poll legacy external runs (tasks with zero attempts only).
	if err := e.pollLegacyExternalRuns(ctx, runID, logger); err != nil {
		return "", TickStats{}, err
	}

	tasks, err := e.Store.GetTasks(ctx, runID)
	if err != nil {
		return "", TickStats{}, err
	}

	// Phase 4: plan ready tasks.
	ready, stats, err := e.planReadyTasks(ctx, runID, tasks)
	if err != nil {
		return "", TickStats{}, err
	}

	// Phase 5: enforce concurrency caps.
	slots, err := e.computeSlots(ctx, runID, cfg)
	if err != nil {
		return "", TickStats{}, err
	}

	// Phase 6: dispatch.
	submitted, err := e.dispatch(ctx, runID, string(cfg.ExecutionMode), cfg.MaxPerOperator, ready, slots, logger)
	if err != nil {
		return "", TickStats{}, err
	}
	stats.Submitted = submitted

	// Re-read post-dispatch state for the analyze-and-replan decision.
	tasks, err = e.Store.GetTasks(ctx, runID)
	if err != nil {
		return "", TickStats{}, err
	}
	anyActive, anyFailedBlocking := summarizeTasks(tasks)

	// Phase 7: analyze-and-replan.
	if !anyActive {
		if anyFailedBlocking {
			if err := e.Store.SetRunStatus(ctx, runID, model.RunFailed, "one or more tasks failed without allow_failure"); err != nil {
				return "", TickStats{}, err
			}
			return OutcomeFailed, stats, nil
		}
		outcome, err := e.analyzeAndReplan(ctx, runID, runRoot, tasks, logger)
		if err != nil {
			return "", TickStats{}, err
		}
		return outcome, stats, nil
	}

	// Phase 8.
	return OutcomeRunning, stats, nil
}

func summarizeTasks(tasks []model.Task) (anyActive bool, anyFailedBlocking bool) {
	for _, t := range tasks {
		switch t.Status {
		case model.TaskPending, model.TaskRunning, model.TaskWaitingExternal:
			anyActive = true
		case model.TaskFailed:
			if !t.AllowFailure {
				anyFailedBlocking = true
			}
		}
	}
	return anyActive, anyFailedBlocking
}

func (e *Engine) pollActiveAttempts(ctx context.Context, runID string, logger *slog.Logger) error {
	orphans, err := e.Store.FindOrphanedAttempts(ctx, runID, e.StuckTimeout)
	if err != nil {
		return err
	}
	if len(orphans) > 0 {
		ids := make([]string, len(orphans))
		for i, a := range orphans {
			ids[i] = a.AttemptID
		}
		reason := "Stuck in CREATED > " + e.StuckTimeout.String()
		if err := e.Store.MarkAttemptsFailedInit(ctx, ids, reason); err != nil {
			return err
		}
		for _, a := range orphans {
			e.Hooks.OnFail(ctx, model.AttemptContext{RunID: runID, TaskID: a.TaskID, AttemptID: a.AttemptID, OperatorKey: a.OperatorKey}, &campaignerrors.StuckAttemptError{AttemptID: a.AttemptID, Since: e.StuckTimeout})
			if err := e.healTaskStatus(ctx, runID, a.TaskID, model.AttemptFailedInit); err != nil {
				return err
			}
		}
	}

	active, err := e.Store.GetActiveAttempts(ctx, runID)
	if err != nil {
		return err
	}
	run, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	orphanSet := make(map[string]bool, len(orphans))
	for _, a := range orphans {
		orphanSet[a.AttemptID] = true
	}
	for _, a := range active {
		if orphanSet[a.AttemptID] {
			continue
		}
		if err := e.pollOneAttempt(ctx, run, a, logger); err != nil {
			logger.Error("poll failed", "attempt_id", a.AttemptID, "error", err)
		}
	}
	return nil
}

func (e *Engine) pollOneAttempt(ctx context.Context, run *model.Run, a model.TaskAttempt, logger *slog.Logger) error {
	task, err := e.Store.GetTask(ctx, run.RunID, a.TaskID)
	if err != nil {
		return err
	}
	op, err := e.Registry.Resolve(a.OperatorKey)
	if err != nil {
		return &campaignerrors.PollFailedError{AttemptID: a.AttemptID, OperatorKey: a.OperatorKey, Cause: err}
	}
	handle := toHandle(run, task, a)
	newHandle, err := op.Poll(ctx, handle)
	if err != nil {
		return &campaignerrors.PollFailedError{AttemptID: a.AttemptID, OperatorKey: a.OperatorKey, Cause: err}
	}

	if newHandle.Status == model.AttemptCompleted || newHandle.Status == model.AttemptFailed {
		collected, err := op.Collect(ctx, newHandle)
		if err != nil {
			logger.Error("collect failed", "attempt_id", a.AttemptID, "error", err)
		} else {
			newHandle.OperatorData.Merge(model.OperatorData{OutputFiles: collected.Files, OutputData: collected.Data})
		}
	}

	patch := store.AttemptPatch{
		Status:       &newHandle.Status,
		OperatorData: &newHandle.OperatorData,
	}
	if newHandle.StatusReason != "" {
		patch.StatusReason = &newHandle.StatusReason
	}
	if err := e.Store.UpdateAttempt(ctx, a.AttemptID, patch); err != nil {
		return err
	}
	if newHandle.Status.Terminal() {
		e.Hooks.OnComplete(ctx, model.AttemptContext{RunID: run.RunID, TaskID: a.TaskID, AttemptID: a.AttemptID, OperatorKey: a.OperatorKey, AttemptIndex: a.AttemptIndex}, newHandle.Status == model.AttemptCompleted)
	}
	return e.healTaskStatus(ctx, run.RunID, a.TaskID, newHandle.Status)
}

func (e *Engine) healTaskStatus(ctx context.Context, runID, taskID string, attemptStatus model.AttemptStatus) error {
	return e.Store.UpdateTaskStatus(ctx, runID, taskID, model.TaskStatusForAttempt(attemptStatus))
}

func (e *Engine) pollLegacyExternalRuns(ctx context.Context, runID string, logger *slog.Logger) error {
	legacy, err := e.Store.LegacyExternalRuns(ctx, runID)
	if err != nil {
		return err
	}
	for _, lr := range legacy {
		if lr.Status.Terminal() {
			continue
		}
		key, err := operator.NormalizeOperatorKey(lr.OperatorType)
		if err != nil {
			logger.Error("legacy poll: unrecognized operator_type", "task_id", lr.TaskID, "operator_type", lr.OperatorType)
			continue
		}
		op, err := e.Registry.Resolve(key)
		if err != nil {
			logger.Error("legacy poll: no operator bound", "task_id", lr.TaskID, "operator_type", lr.OperatorType)
			continue
		}
		run, err := e.Store.GetRun(ctx, runID)
		if err != nil {
			return err
		}
		task, err := e.Store.GetTask(ctx, runID, lr.TaskID)
		if err != nil {
			return err
		}
		handle := operator.AttemptHandle{
			Run: run, Task: task, ExternalID: lr.ExternalID, Status: lr.Status, OperatorData: lr.OperatorData,
		}
		newHandle, err := op.Poll(ctx, handle)
		if err != nil {
			logger.Error("legacy poll failed", "task_id", lr.TaskID, "error", err)
			continue
		}
		if err := e.Store.UpdateLegacyExternalRun(ctx, runID, lr.TaskID, newHandle.Status, newHandle.OperatorData); err != nil {
			return err
		}
		if err := e.healTaskStatus(ctx, runID, lr.TaskID, newHandle.Status); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) planReadyTasks(ctx context.Context, runID string, tasks []model.Task) ([]model.Task, TickStats, error) {
	byID := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		byID[t.TaskID] = t
	}
	active, err := e.Store.GetActiveAttempts(ctx, runID)
	if err != nil {
		return nil, TickStats{}, err
	}
	hasActiveAttempt := make(map[string]bool, len(active))
	for _, a := range active {
		hasActiveAttempt[a.TaskID] = true
	}

	var ready []model.Task
	stats := TickStats{Total: len(tasks)}
	for _, t := range tasks {
		switch t.Status {
		case model.TaskCompleted:
			stats.Completed++
			continue
		case model.TaskFailed:
			stats.Failed++
			continue
		case model.TaskRunning, model.TaskWaitingExternal:
			stats.Active++
			continue
		}
		if t.Status != model.TaskPending {
			continue
		}
		if hasActiveAttempt[t.TaskID] {
			stats.Active++
			continue
		}
		if !dependenciesSatisfied(t, byID) {
			continue
		}
		stats.Ready++
		ready = append(ready, t)
	}
	return ready, stats, nil
}

func dependenciesSatisfied(t model.Task, byID map[string]model.Task) bool {
	for _, depID := range t.Dependencies {
		dep, ok := byID[depID]
		if !ok {
			continue // missing dependency does not block
		}
		if dep.Status == model.TaskCompleted {
			continue
		}
		if dep.Status == model.TaskFailed && t.AllowDependencyFailure {
			continue
		}
		return false
	}
	return true
}

func (e *Engine) computeSlots(ctx context.Context, runID string, cfg runconfig.Config) (int, error) {
	active, err := e.Store.GetActiveAttempts(ctx, runID)
	if err != nil {
		return 0, err
	}
	slots := cfg.MaxHPCJobsPerRun - len(active)
	if slots < 0 {
		slots = 0
	}
	return slots, nil
}

func (e *Engine) dispatch(ctx context.Context, runID, runDefault string, perOperatorCaps map[string]int, ready []model.Task, slots int, logger *slog.Logger) (int, error) {
	run, err := e.Store.GetRun(ctx, runID)
	if err != nil {
		return 0, err
	}
	perOperator, err := e.Store.CountActiveAttemptsByOperator(ctx, runID)
	if err != nil {
		return 0, err
	}

	submitted := 0
	for _, t := range ready {
		if slots <= 0 {
			break
		}
		key, err := operator.ResolveOperatorKeyForTask(&t, runDefault)
		if err != nil {
			logger.Error("operator key resolution failed", "task_id", t.TaskID, "error", err)
			continue
		}

		if key != "" {
			if opCap, ok := perOperatorCaps[key]; ok && perOperator[key] >= opCap {
				continue
			}
		}

		if key == "" {
			if err := e.Store.UpdateTaskStatus(ctx, runID, t.TaskID, model.TaskCompleted); err != nil {
				return submitted, err
			}
			continue
		}

		if (t.Variant == model.VariantExternal || t.Variant == model.VariantGate) && t.OperatorKey == "" {
			if _, ok := t.Env["MATTERSTACK_OPERATOR"]; !ok {
				if err := e.createStubAttempt(ctx, runID, t, key); err != nil {
					return submitted, err
				}
				slots--
				submitted++
				continue
			}
		}

		if err := e.dispatchOne(ctx, run, t, key, logger); err != nil {
			logger.Error("dispatch failed", "task_id", t.TaskID, "operator_key", key, "error", err)
		} else {
			submitted++
		}
		perOperator[key]++
		slots--
	}
	return submitted, nil
}

func (e *Engine) createStubAttempt(ctx context.Context, runID string, t model.Task, key string) error {
	return e.Store.WithTx(ctx, func(tx store.Store) error {
		attempt := &model.TaskAttempt{
			AttemptID:   idgen.Attempt(),
			RunID:       runID,
			TaskID:      t.TaskID,
			OperatorKey: key,
			Status:      model.AttemptWaitingExternal,
		}
		if err := tx.CreateAttempt(ctx, attempt); err != nil {
			return err
		}
		e.Hooks.OnCreate(ctx, model.AttemptContext{RunID: runID, TaskID: t.TaskID, AttemptID: attempt.AttemptID, OperatorKey: key})
		return tx.UpdateTaskStatus(ctx, runID, t.TaskID, model.TaskWaitingExternal)
	})
}

func (e *Engine) dispatchOne(ctx context.Context, run *model.Run, t model.Task, key string, logger *slog.Logger) error {
	op, err := e.Registry.Resolve(key)
	if err != nil {
		return e.failDispatch(ctx, run.RunID, t.TaskID, "", key, err)
	}

	var attemptID string
	txErr := e.Store.WithTx(ctx, func(tx store.Store) error {
		attempt := &model.TaskAttempt{
			AttemptID:   idgen.Attempt(),
			RunID:       run.RunID,
			TaskID:      t.TaskID,
			OperatorKey: key,
			Status:      model.AttemptCreated,
		}
		if err := tx.CreateAttempt(ctx, attempt); err != nil {
			return err
		}
		attemptID = attempt.AttemptID
		e.Hooks.OnCreate(ctx, model.AttemptContext{RunID: run.RunID, TaskID: t.TaskID, AttemptID: attemptID, OperatorKey: key, AttemptIndex: attempt.AttemptIndex})

		handle := toHandle(run, &t, *attempt)
		handle, err := op.Prepare(ctx, handle)
		if err != nil {
			return err
		}
		if err := tx.UpdateAttempt(ctx, attemptID, store.AttemptPatch{OperatorData: &handle.OperatorData, RelativePath: &handle.RelativePath}); err != nil {
			return err
		}

		handle, err = op.Submit(ctx, handle)
		if err != nil {
			return err
		}
		extID := handle.ExternalID
		status := handle.Status
		if err := tx.UpdateAttempt(ctx, attemptID, store.AttemptPatch{Status: &status, ExternalID: &extID, OperatorData: &handle.OperatorData}); err != nil {
			return err
		}
		e.Hooks.OnSubmit(ctx, model.AttemptContext{RunID: run.RunID, TaskID: t.TaskID, AttemptID: attemptID, OperatorKey: key, AttemptIndex: attempt.AttemptIndex}, extID)

		return tx.UpdateTaskStatus(ctx, run.RunID, t.TaskID, model.TaskStatusForAttempt(status))
	})

	if txErr != nil {
		return e.failDispatch(ctx, run.RunID, t.TaskID, attemptID, key, txErr)
	}
	return nil
}

func (e *Engine) failDispatch(ctx context.Context, runID, taskID, attemptID, key string, cause error) error {
	reason := cause.Error()
	if attemptID != "" {
		status := model.AttemptFailedInit
		_ = e.Store.UpdateAttempt(ctx, attemptID, store.AttemptPatch{Status: &status, StatusReason: &reason})
	}
	if err := e.Store.UpdateTaskStatus(ctx, runID, taskID, model.TaskFailed); err != nil {
		return err
	}
	e.Hooks.OnFail(ctx, model.AttemptContext{RunID: runID, TaskID: taskID, AttemptID: attemptID, OperatorKey: key}, cause)
	return &campaignerrors.DispatchFailedError{TaskID: taskID, AttemptID: attemptID, OperatorKey: key, Cause: cause}
}

func toHandle(run *model.Run, task *model.Task, a model.TaskAttempt) operator.AttemptHandle {
	return operator.AttemptHandle{
		Run: run, Task: task, AttemptID: a.AttemptID, AttemptIndex: a.AttemptIndex,
		OperatorKey: a.OperatorKey, ExternalID: a.ExternalID, Status: a.Status,
		StatusReason: a.StatusReason, OperatorData: a.OperatorData, RelativePath: a.RelativePath,
	}
}

func (e *Engine) analyzeAndReplan(ctx context.Context, runID, runRoot string, tasks []model.Task, logger *slog.Logger) (Outcome, error) {
	results := make(map[string]CampaignTaskResult, len(tasks))
	for _, t := range tasks {
		result := CampaignTaskResult{Status: string(t.Status)}
		attempt, err := e.Store.GetCurrentAttempt(ctx, runID, t.TaskID)
		if err != nil {
			var nf *campaignerrors.NotFoundError
			if !campaignerrors.As(err, &nf) {
				return "", err
			}
			// No attempt at all (e.g. completed via the Simulation
			// shortcut): status alone is still a valid result.
		} else {
			result.Files = attempt.OperatorData.OutputFiles
			result.Data = attempt.OperatorData.OutputData
		}
		results[t.TaskID] = result
	}

	oldState, err := loadCampaignState(runRoot)
	if err != nil {
		return "", err
	}

	newState, err := e.Campaign.Analyze(oldState, results)
	if err != nil {
		return "", &campaignerrors.CampaignError{RunID: runID, Phase: "analyze", Cause: err}
	}
	if err := saveCampaignState(runRoot, newState); err != nil {
		return "", err
	}

	nextWorkflow, err := e.Campaign.Plan(newState)
	if err != nil {
		return "", &campaignerrors.CampaignError{RunID: runID, Phase: "plan", Cause: err}
	}
	if nextWorkflow == nil || len(nextWorkflow.Tasks) == 0 {
		if err := e.Store.SetRunStatus(ctx, runID, model.RunCompleted, ""); err != nil {
			return "", err
		}
		return OutcomeCompleted, nil
	}

	wf := model.Workflow{Tasks: make([]model.Task, 0, len(nextWorkflow.Tasks))}
	for _, spec := range nextWorkflow.Tasks {
		wf.Tasks = append(wf.Tasks, model.Task{
			TaskID:                 spec.TaskID,
			RunID:                  runID,
			Variant:                model.VariantCompute,
			Image:                  spec.Image,
			Command:                spec.Command,
			Files:                  spec.Files,
			Env:                    spec.Env,
			Dependencies:           spec.Dependencies,
			AllowDependencyFailure: spec.AllowDependencyFailure,
			AllowFailure:           spec.AllowFailure,
			OperatorKey:            spec.OperatorKey,
			Status:                 model.TaskPending,
		})
	}
	if err := e.Store.AddWorkflow(ctx, runID, wf); err != nil {
		return "", err
	}
	logger.Info("replanned", "added_tasks", len(wf.Tasks))
	return OutcomeRunning, nil
}

func loadCampaignState(runRoot string) (json.RawMessage, error) {
	data, err := os.ReadFile(filepath.Join(runRoot, campaignStateFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, campaignerrors.Wrap(err, "engine: read campaign_state.json")
	}
	return json.RawMessage(data), nil
}

func saveCampaignState(runRoot string, state json.RawMessage) error {
	if state == nil {
		return nil
	}
	if err := os.MkdirAll(runRoot, 0755); err != nil {
		return campaignerrors.Wrap(err, "engine: create run root")
	}
	return os.WriteFile(filepath.Join(runRoot, campaignStateFile), state, 0644)
}
