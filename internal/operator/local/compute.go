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

// Package local implements the Compute operator variant by running a
// task's command as a local subprocess, writing the conventional
// stdout.log/stderr.log/exit_code evidence files the run-root filesystem
// layout expects.
package local

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
	"github.com/scicampaign/campaignctl/internal/operator"
)

// Operator dispatches tasks as local subprocesses rooted under RunRoot.
type Operator struct {
	mu       sync.Mutex
	finished map[string]*result // external_id -> terminal result, set once the background wait completes
}

type result struct {
	exitCode int
	err      error
}

// New returns a ready-to-use local Compute operator.
func New() *Operator {
	return &Operator{finished: map[string]*result{}}
}

func attemptDir(run *model.Run, taskID, attemptID string) string {
	return filepath.Join(run.RootPath, "tasks", taskID, "attempts", attemptID)
}

// Prepare creates the attempt's evidence directory, writes a lean task
// manifest (schema_version 2, reference-only: no file contents embedded),
// and hashes it into operator_data.config_hash.
func (o *Operator) Prepare(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return h, campaignerrors.Wrap(err, "local: create evidence dir")
	}

	manifest := map[string]any{
		"schema_version": 2,
		"task_id":        h.Task.TaskID,
		"attempt_id":     h.AttemptID,
		"image":          h.Task.Image,
		"command":        h.Task.Command,
		"env":            h.Task.Env,
		"file_names":     fileNames(h.Task),
	}
	manifestBytes, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return h, campaignerrors.Wrap(err, "local: marshal manifest")
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestBytes, 0644); err != nil {
		return h, campaignerrors.Wrap(err, "local: write manifest")
	}

	sum := sha256.Sum256(manifestBytes)
	h.RelativePath = filepath.Join("tasks", h.Task.TaskID, "attempts", h.AttemptID)
	h.OperatorData.ConfigHash = hex.EncodeToString(sum[:])
	h.Status = model.AttemptCreated
	return h, nil
}

func fileNames(t *model.Task) []string {
	names := make([]string, 0, len(t.Files))
	for name := range t.Files {
		names = append(names, name)
	}
	return names
}

// Submit spawns the task's command as a background subprocess. Idempotent:
// a handle that already has ExternalID set (a previous submit succeeded
// before a crash) is returned unchanged.
func (o *Operator) Submit(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	if h.ExternalID != "" {
		return h, nil
	}

	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	stdout, err := os.Create(filepath.Join(dir, "stdout.log"))
	if err != nil {
		return h, campaignerrors.Wrap(err, "local: open stdout.log")
	}
	stderr, err := os.Create(filepath.Join(dir, "stderr.log"))
	if err != nil {
		stdout.Close()
		return h, campaignerrors.Wrap(err, "local: open stderr.log")
	}

	var args []string
	if len(h.Task.Command) > 0 {
		args = h.Task.Command[1:]
	}
	var cmd *exec.Cmd
	if len(h.Task.Command) > 0 {
		cmd = exec.Command(h.Task.Command[0], args...)
	} else {
		cmd = exec.Command("true")
	}
	cmd.Dir = dir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = os.Environ()
	for k, v := range h.Task.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	externalID := h.AttemptID // local subprocess has no external scheduler id; the attempt id stands in

	if err := cmd.Start(); err != nil {
		stdout.Close()
		stderr.Close()
		return h, campaignerrors.Wrap(err, "local: start command")
	}

	go o.wait(externalID, cmd, stdout, stderr, dir)

	h.ExternalID = externalID
	h.Status = model.AttemptSubmitted
	return h, nil
}

func (o *Operator) wait(externalID string, cmd *exec.Cmd, stdout, stderr *os.File, dir string) {
	err := cmd.Wait()
	stdout.Close()
	stderr.Close()

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		exitCode = -1
	}
	_ = os.WriteFile(filepath.Join(dir, "exit_code"), []byte(strconv.Itoa(exitCode)), 0644)

	o.mu.Lock()
	o.finished[externalID] = &result{exitCode: exitCode, err: err}
	o.mu.Unlock()
}

// Poll reports RUNNING until the background wait goroutine records a
// result, then COMPLETED or FAILED by exit code.
func (o *Operator) Poll(ctx context.Context, h operator.AttemptHandle) (operator.AttemptHandle, error) {
	o.mu.Lock()
	res, done := o.finished[h.ExternalID]
	o.mu.Unlock()

	if !done {
		h.Status = model.AttemptRunning
		return h, nil
	}
	if res.exitCode == 0 {
		h.Status = model.AttemptCompleted
	} else {
		h.Status = model.AttemptFailed
		h.StatusReason = "exit code " + strconv.Itoa(res.exitCode)
	}
	return h, nil
}

// Collect gathers stdout.log, stderr.log, and exit_code, plus anything
// matching the task's download_patterns, from the attempt's directory.
func (o *Operator) Collect(ctx context.Context, h operator.AttemptHandle) (operator.Collected, error) {
	dir := attemptDir(h.Run, h.Task.TaskID, h.AttemptID)
	files := map[string]string{
		"stdout.log": filepath.Join(dir, "stdout.log"),
		"stderr.log": filepath.Join(dir, "stderr.log"),
		"exit_code":  filepath.Join(dir, "exit_code"),
	}

	if h.Task.DownloadPatterns != nil {
		matches, err := collectMatches(dir, h.Task.DownloadPatterns)
		if err != nil {
			return operator.Collected{}, &campaignerrors.DispatchFailedError{
				TaskID: h.Task.TaskID, AttemptID: h.AttemptID, OperatorKey: h.OperatorKey, Cause: err,
			}
		}
		for name, path := range matches {
			files[name] = path
		}
	}

	for name, path := range files {
		if _, err := os.Stat(path); err != nil {
			delete(files, name)
		}
	}

	return operator.Collected{Files: files, Data: map[string]interface{}{}}, nil
}

func collectMatches(dir string, patterns *model.DownloadPatterns) (map[string]string, error) {
	out := map[string]string{}
	for _, pattern := range patterns.Include {
		matches, err := doublestar.Glob(os.DirFS(dir), pattern)
		if err != nil {
			return nil, err
		}
	matchLoop:
		for _, m := range matches {
			for _, ex := range patterns.Exclude {
				if ok, _ := doublestar.Match(ex, m); ok {
					continue matchLoop
				}
			}
			out[m] = filepath.Join(dir, m)
		}
	}
	return out, nil
}

// Cancel is a no-op that returns nil; the operator keeps no handle to the
// subprocess, so a running command is not killed.
func (o *Operator) Cancel(ctx context.Context, h operator.AttemptHandle) error {
	return nil
}
