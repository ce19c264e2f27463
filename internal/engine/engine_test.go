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

package engine_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scicampaign/campaignctl/internal/engine"
	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/hooks"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/operator"
	"github.com/scicampaign/campaignctl/internal/store"
)

// memStore is a minimal in-memory store.Store double. It implements just
// enough of the contract's invariants (single active attempt per task,
// terminal attempts immutable, monotonic attempt_index) for the step loop
// to exercise against, without pulling in the sqlite backend's I/O.
type memStore struct {
	mu        sync.Mutex
	run       *model.Run
	tasks     map[string]*model.Task
	attempts  map[string]*model.TaskAttempt
	byTask    map[string][]string // task_id -> attempt_ids in index order
	legacy    map[string]*model.LegacyExternalRun
}

func newMemStore(run *model.Run) *memStore {
	return &memStore{
		run:      run,
		tasks:    map[string]*model.Task{},
		attempts: map[string]*model.TaskAttempt{},
		byTask:   map[string][]string{},
		legacy:   map[string]*model.LegacyExternalRun{},
	}
}

func (m *memStore) CreateRun(ctx context.Context, run *model.Run) error { m.run = run; return nil }
func (m *memStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	return m.run, nil
}
func (m *memStore) GetRunStatus(ctx context.Context, runID string) (model.RunStatus, error) {
	return m.run.Status, nil
}
func (m *memStore) SetRunStatus(ctx context.Context, runID string, status model.RunStatus, reason string) error {
	m.run.Status = status
	m.run.StatusReason = reason
	return nil
}
func (m *memStore) ListRuns(ctx context.Context, statuses ...model.RunStatus) ([]*model.Run, error) {
	return []*model.Run{m.run}, nil
}

func (m *memStore) AddWorkflow(ctx context.Context, runID string, wf model.Workflow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range wf.Tasks {
		if _, exists := m.tasks[t.TaskID]; exists {
			return &campaignerrors.InvariantViolationError{RunID: runID, Invariant: "unique task_id per run", Detail: t.TaskID}
		}
	}
	for i := range wf.Tasks {
		t := wf.Tasks[i]
		if t.Status == "" {
			t.Status = model.TaskPending
		}
		m.tasks[t.TaskID] = &t
	}
	return nil
}
func (m *memStore) GetTasks(ctx context.Context, runID string) ([]model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out, nil
}
func (m *memStore) GetTask(ctx context.Context, runID, taskID string) (*model.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return nil, &campaignerrors.NotFoundError{Resource: "task", ID: taskID}
	}
	cp := *t
	return &cp, nil
}
func (m *memStore) GetTaskStatus(ctx context.Context, runID, taskID string) (model.TaskStatus, error) {
	t, err := m.GetTask(ctx, runID, taskID)
	if err != nil {
		return "", err
	}
	return t.Status, nil
}
func (m *memStore) UpdateTaskStatus(ctx context.Context, runID, taskID string, status model.TaskStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return &campaignerrors.NotFoundError{Resource: "task", ID: taskID}
	}
	t.Status = status
	return nil
}

func (m *memStore) CreateAttempt(ctx context.Context, a *model.TaskAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.byTask[a.TaskID] {
		if m.attempts[id].Status.Active() {
			return &campaignerrors.InvariantViolationError{RunID: a.RunID, Invariant: "at most one active attempt per task", Detail: a.TaskID}
		}
	}
	a.AttemptIndex = len(m.byTask[a.TaskID]) + 1
	if a.Status == "" {
		a.Status = model.AttemptCreated
	}
	cp := *a
	m.attempts[a.AttemptID] = &cp
	m.byTask[a.TaskID] = append(m.byTask[a.TaskID], a.AttemptID)
	return nil
}
func (m *memStore) UpdateAttempt(ctx context.Context, attemptID string, patch store.AttemptPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return &campaignerrors.NotFoundError{Resource: "attempt", ID: attemptID}
	}
	if a.Status.Terminal() {
		return &campaignerrors.InvariantViolationError{RunID: a.RunID, Invariant: "terminal attempts are immutable", Detail: attemptID}
	}
	if patch.Status != nil {
		a.Status = *patch.Status
	}
	if patch.OperatorType != nil {
		a.OperatorType = *patch.OperatorType
	}
	if patch.ExternalID != nil {
		a.ExternalID = *patch.ExternalID
	}
	if patch.OperatorData != nil {
		a.OperatorData = *patch.OperatorData
	}
	if patch.RelativePath != nil {
		a.RelativePath = *patch.RelativePath
	}
	if patch.StatusReason != nil {
		a.StatusReason = *patch.StatusReason
	}
	return nil
}
func (m *memStore) GetAttempt(ctx context.Context, attemptID string) (*model.TaskAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[attemptID]
	if !ok {
		return nil, &campaignerrors.NotFoundError{Resource: "attempt", ID: attemptID}
	}
	cp := *a
	return &cp, nil
}
func (m *memStore) GetCurrentAttempt(ctx context.Context, runID, taskID string) (*model.TaskAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.byTask[taskID]
	if len(ids) == 0 {
		return nil, &campaignerrors.NotFoundError{Resource: "attempt", ID: "current for task " + taskID}
	}
	cp := *m.attempts[ids[len(ids)-1]]
	return &cp, nil
}
func (m *memStore) ListAttempts(ctx context.Context, runID, taskID string) ([]model.TaskAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskAttempt
	for _, id := range m.byTask[taskID] {
		out = append(out, *m.attempts[id])
	}
	return out, nil
}
func (m *memStore) GetActiveAttempts(ctx context.Context, runID string) ([]model.TaskAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskAttempt
	for _, a := range m.attempts {
		if a.Status.Active() {
			out = append(out, *a)
		}
	}
	return out, nil
}
func (m *memStore) GetAttemptTaskIDs(ctx context.Context, runID string) (map[string]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]bool{}
	for taskID := range m.byTask {
		out[taskID] = true
	}
	return out, nil
}
func (m *memStore) CountActiveAttemptsByOperator(ctx context.Context, runID string) (map[string]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]int{}
	for _, a := range m.attempts {
		if a.Status.Active() {
			out[a.OperatorKey]++
		}
	}
	return out, nil
}
func (m *memStore) FindOrphanedAttempts(ctx context.Context, runID string, timeout time.Duration) ([]model.TaskAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TaskAttempt
	for _, a := range m.attempts {
		if a.Status == model.AttemptCreated && a.ExternalID == "" && time.Since(a.CreatedAt) > timeout {
			out = append(out, *a)
		}
	}
	return out, nil
}
func (m *memStore) MarkAttemptsFailedInit(ctx context.Context, attemptIDs []string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range attemptIDs {
		if a, ok := m.attempts[id]; ok {
			a.Status = model.AttemptFailedInit
			a.StatusReason = reason
		}
	}
	return nil
}
func (m *memStore) LegacyExternalRuns(ctx context.Context, runID string) ([]model.LegacyExternalRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LegacyExternalRun
	for taskID, lr := range m.legacy {
		if len(m.byTask[taskID]) > 0 {
			continue
		}
		out = append(out, *lr)
	}
	return out, nil
}
func (m *memStore) UpdateLegacyExternalRun(ctx context.Context, runID, taskID string, status model.AttemptStatus, data model.OperatorData) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	lr, ok := m.legacy[taskID]
	if !ok {
		return &campaignerrors.NotFoundError{Resource: "legacy_external_run", ID: taskID}
	}
	lr.Status = status
	lr.OperatorData = data
	return nil
}

func (m *memStore) Lock(ctx context.Context, runID string) (store.Lock, error) {
	return noopLock{}, nil
}
func (m *memStore) WithTx(ctx context.Context, fn func(txStore store.Store) error) error {
	return fn(m)
}
func (m *memStore) Close() error { return nil }

type noopLock struct{}

func (noopLock) Release() error { return nil }

// fakeOperator completes every attempt it submits on the first poll.
type fakeOperator struct {
	fail bool
}

func (f *fakeOperator) Prepare(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	h.Status = model.AttemptCreated
	h.OperatorData.ConfigHash = "deadbeef"
	return h, nil
}
func (f *fakeOperator) Submit(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	h.ExternalID = h.AttemptID
	h.Status = model.AttemptSubmitted
	return h, nil
}
func (f *fakeOperator) Poll(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	if f.fail {
		h.Status = model.AttemptFailed
		h.StatusReason = "simulated failure"
	} else {
		h.Status = model.AttemptCompleted
	}
	return h, nil
}
func (f *fakeOperator) Collect(ctx context.Context, h operator.AttemptHandle) (operator.Collected, error) {
	return operator.Collected{Data: map[string]interface{}{"ok": true}}, nil
}
func (f *fakeOperator) Cancel(ctx context.Context, h operator.AttemptHandle) error { return nil }

// stopCampaign never plans further work; analyze is a pass-through.
type stopCampaign struct{ analyzed bool }

func (c *stopCampaign) Plan(state json.RawMessage) (*engine.CampaignWorkflow, error) { return nil, nil }
func (c *stopCampaign) Analyze(state json.RawMessage, results map[string]engine.CampaignTaskResult) (json.RawMessage, error) {
	c.analyzed = true
	return json.RawMessage(`{"round":1}`), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(st store.Store, op operator.Operator, camp engine.Campaign) *engine.Engine {
	registry := operator.NewRegistry()
	registry.Register("local.default", op)
	composite := hooks.NewComposite(testLogger())
	return engine.New(st, registry, composite, camp, testLogger(), nil, nil)
}

func TestStep_GateReturnsPausedWithoutDispatch(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunPaused}
	st := newMemStore(run)
	e := newTestEngine(st, &fakeOperator{}, &stopCampaign{})

	outcome, _, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomePaused, outcome)
}

func TestStep_GateReturnsTerminalStatusUnchanged(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunCompleted}
	st := newMemStore(run)
	e := newTestEngine(st, &fakeOperator{}, &stopCampaign{})

	outcome, _, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, engine.Outcome(model.RunCompleted), outcome)
}

func TestStep_DispatchesReadyTaskAndCompletesIt(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunPending}
	st := newMemStore(run)
	require.NoError(t, st.AddWorkflow(context.Background(), "run_1", model.Workflow{
		Tasks: []model.Task{{TaskID: "t1", RunID: "run_1", Variant: model.VariantCompute, Status: model.TaskPending, OperatorKey: "local.default"}},
	}))
	e := newTestEngine(st, &fakeOperator{}, &stopCampaign{})

	// First tick: dispatches t1 (submitted -> WAITING_EXTERNAL).
	outcome, stats, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeRunning, outcome)
	assert.Equal(t, 1, stats.Submitted)

	task, err := st.GetTask(context.Background(), "run_1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskWaitingExternal, task.Status)

	// Second tick: polls the attempt to completion, run finishes (no
	// further campaign work).
	outcome, _, err = e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeCompleted, outcome)

	task, err = st.GetTask(context.Background(), "run_1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)
}

func TestStep_DependentTaskWaitsForCompletion(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunPending}
	st := newMemStore(run)
	require.NoError(t, st.AddWorkflow(context.Background(), "run_1", model.Workflow{
		Tasks: []model.Task{
			{TaskID: "a", RunID: "run_1", Variant: model.VariantCompute, Status: model.TaskPending, OperatorKey: "local.default"},
			{TaskID: "b", RunID: "run_1", Variant: model.VariantCompute, Status: model.TaskPending, OperatorKey: "local.default", Dependencies: []string{"a"}},
		},
	}))
	e := newTestEngine(st, &fakeOperator{}, &stopCampaign{})

	_, stats, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Ready, "only task a is ready; b is blocked on a's dependency")

	b, err := st.GetTask(context.Background(), "run_1", "b")
	require.NoError(t, err)
	assert.Equal(t, model.TaskPending, b.Status)
}

func TestStep_FailedTaskWithoutAllowFailureFailsRun(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunPending}
	st := newMemStore(run)
	require.NoError(t, st.AddWorkflow(context.Background(), "run_1", model.Workflow{
		Tasks: []model.Task{{TaskID: "t1", RunID: "run_1", Variant: model.VariantCompute, Status: model.TaskPending, OperatorKey: "local.default"}},
	}))
	e := newTestEngine(st, &fakeOperator{fail: true}, &stopCampaign{})

	_, _, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	_, _, err = e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)

	status, err := st.GetRunStatus(context.Background(), "run_1")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, status)
}

func TestStep_AllowFailureTaskDoesNotBlockCompletion(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunPending}
	st := newMemStore(run)
	require.NoError(t, st.AddWorkflow(context.Background(), "run_1", model.Workflow{
		Tasks: []model.Task{{TaskID: "t1", RunID: "run_1", Variant: model.VariantCompute, Status: model.TaskPending, OperatorKey: "local.default", AllowFailure: true}},
	}))
	camp := &stopCampaign{}
	e := newTestEngine(st, &fakeOperator{fail: true}, camp)

	_, _, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	outcome, _, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, engine.OutcomeCompleted, outcome)
	assert.True(t, camp.analyzed, "analyze should still run even though a task failed, since allow_failure=true")
}

func TestStep_OrphanedCreatedAttemptIsMarkedFailedInit(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunRunning}
	st := newMemStore(run)
	require.NoError(t, st.AddWorkflow(context.Background(), "run_1", model.Workflow{
		Tasks: []model.Task{{TaskID: "t1", RunID: "run_1", Variant: model.VariantCompute, Status: model.TaskPending, OperatorKey: "local.default"}},
	}))
	stuck := &model.TaskAttempt{
		AttemptID: "attempt_stuck", RunID: "run_1", TaskID: "t1",
		OperatorKey: "local.default", Status: model.AttemptCreated,
		CreatedAt: time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, st.CreateAttempt(context.Background(), stuck))

	e := newTestEngine(st, &fakeOperator{}, &stopCampaign{})
	e.StuckTimeout = time.Hour

	_, _, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)

	got, err := st.GetAttempt(context.Background(), "attempt_stuck")
	require.NoError(t, err)
	assert.Equal(t, model.AttemptFailedInit, got.Status)
	assert.Contains(t, got.StatusReason, "Stuck in CREATED")
}

func TestStep_SimulationRoutingCompletesTaskWithoutAttempt(t *testing.T) {
	run := &model.Run{RunID: "run_1", Status: model.RunPending}
	st := newMemStore(run)
	require.NoError(t, st.AddWorkflow(context.Background(), "run_1", model.Workflow{
		Tasks: []model.Task{{TaskID: "t1", RunID: "run_1", Variant: model.VariantCompute, Status: model.TaskPending, Env: map[string]string{"MATTERSTACK_OPERATOR": "Simulation"}}},
	}))
	e := newTestEngine(st, &fakeOperator{}, &stopCampaign{})

	outcome, _, err := e.Step(context.Background(), "run_1", t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, engine.OutcomeCompleted, outcome)

	task, err := st.GetTask(context.Background(), "run_1", "t1")
	require.NoError(t, err)
	assert.Equal(t, model.TaskCompleted, task.Status)

	attempts, err := st.ListAttempts(context.Background(), "run_1", "t1")
	require.NoError(t, err)
	assert.Empty(t, attempts, "Simulation routing completes the task without ever creating an attempt")
}
