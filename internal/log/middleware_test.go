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

package log

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLogOperatorCall(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	call := &OperatorCall{
		Phase:       "submit",
		OperatorKey: "hpc.slurm",
		AttemptID:   "attempt-456",
		Metadata: map[string]interface{}{
			"queue": "gpu",
		},
	}

	LogOperatorCall(logger, call)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "operator_call" {
		t.Errorf("expected event to be 'operator_call', got: %v", logEntry["event"])
	}

	if logEntry["phase"] != "submit" {
		t.Errorf("expected phase to be 'submit', got: %v", logEntry["phase"])
	}

	if logEntry[OperatorKeyKey] != "hpc.slurm" {
		t.Errorf("expected %s to be 'hpc.slurm', got: %v", OperatorKeyKey, logEntry[OperatorKeyKey])
	}

	if logEntry[AttemptIDKey] != "attempt-456" {
		t.Errorf("expected %s to be 'attempt-456', got: %v", AttemptIDKey, logEntry[AttemptIDKey])
	}

	if logEntry["queue"] != "gpu" {
		t.Errorf("expected queue to be 'gpu', got: %v", logEntry["queue"])
	}
}

func TestLogOperatorCall_MinimalFields(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	call := &OperatorCall{
		Phase:       "prepare",
		OperatorKey: "local.shell",
	}

	LogOperatorCall(logger, call)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if _, ok := logEntry[AttemptIDKey]; ok {
		t.Errorf("expected no %s field for a prepare call", AttemptIDKey)
	}
}

func TestLogOperatorCallResult_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	call := &OperatorCall{
		Phase:       "poll",
		OperatorKey: "hpc.slurm",
		AttemptID:   "attempt-456",
	}

	result := &OperatorCallResult{
		Success:    true,
		DurationMs: 150,
		Metadata: map[string]interface{}{
			"status": "running",
		},
	}

	LogOperatorCallResult(logger, call, result)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["event"] != "operator_call_result" {
		t.Errorf("expected event to be 'operator_call_result', got: %v", logEntry["event"])
	}

	if logEntry["success"] != true {
		t.Errorf("expected success to be true, got: %v", logEntry["success"])
	}

	if logEntry[DurationKey] != float64(150) {
		t.Errorf("expected %s to be 150, got: %v", DurationKey, logEntry[DurationKey])
	}

	if logEntry["level"] != "INFO" {
		t.Errorf("expected level to be 'INFO', got: %v", logEntry["level"])
	}

	if logEntry["msg"] != "operator call completed" {
		t.Errorf("expected msg to be 'operator call completed', got: %v", logEntry["msg"])
	}

	if logEntry["status"] != "running" {
		t.Errorf("expected status to be 'running', got: %v", logEntry["status"])
	}

	if _, ok := logEntry["error"]; ok {
		t.Errorf("expected no error field for successful result")
	}
}

func TestLogOperatorCallResult_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)

	call := &OperatorCall{
		Phase:       "submit",
		OperatorKey: "hpc.slurm",
		AttemptID:   "attempt-456",
	}

	result := &OperatorCallResult{
		Success:    false,
		Error:      "sbatch: command not found",
		DurationMs: 50,
	}

	LogOperatorCallResult(logger, call, result)

	output := buf.String()

	var logEntry map[string]interface{}
	if err := json.Unmarshal([]byte(output), &logEntry); err != nil {
		t.Fatalf("expected valid JSON output: %v", err)
	}

	if logEntry["success"] != false {
		t.Errorf("expected success to be false, got: %v", logEntry["success"])
	}

	if logEntry["error"] != "sbatch: command not found" {
		t.Errorf("expected error message, got: %v", logEntry["error"])
	}

	if logEntry["level"] != "ERROR" {
		t.Errorf("expected level to be ERROR, got: %v", logEntry["level"])
	}

	if logEntry["msg"] != "operator call failed" {
		t.Errorf("expected msg to be 'operator call failed', got: %v", logEntry["msg"])
	}
}

func TestOperatorCallMiddleware_Wrap_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperatorCallMiddleware(logger)

	call := &OperatorCall{
		Phase:       "poll",
		OperatorKey: "local.shell",
		AttemptID:   "attempt-1",
	}

	handlerCalled := false
	err := middleware.Wrap(call, func() error {
		handlerCalled = true
		return nil
	})

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	if !handlerCalled {
		t.Errorf("expected handler to be called")
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d: %s", len(lines), output)
	}

	var callLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &callLog); err != nil {
		t.Fatalf("expected valid JSON for call log: %v", err)
	}

	if callLog["event"] != "operator_call" {
		t.Errorf("expected first log to be operator_call, got: %v", callLog["event"])
	}

	var resultLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &resultLog); err != nil {
		t.Fatalf("expected valid JSON for result log: %v", err)
	}

	if resultLog["event"] != "operator_call_result" {
		t.Errorf("expected second log to be operator_call_result, got: %v", resultLog["event"])
	}

	if resultLog["success"] != true {
		t.Errorf("expected success to be true, got: %v", resultLog["success"])
	}

	if _, ok := resultLog[DurationKey]; !ok {
		t.Errorf("expected %s to be present", DurationKey)
	}
}

func TestOperatorCallMiddleware_Wrap_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperatorCallMiddleware(logger)

	call := &OperatorCall{
		Phase:       "submit",
		OperatorKey: "hpc.slurm",
	}

	testErr := errors.New("handler error")
	err := middleware.Wrap(call, func() error {
		return testErr
	})

	if err != testErr {
		t.Errorf("expected error to be returned, got: %v", err)
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(lines))
	}

	var resultLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &resultLog); err != nil {
		t.Fatalf("expected valid JSON for result log: %v", err)
	}

	if resultLog["success"] != false {
		t.Errorf("expected success to be false, got: %v", resultLog["success"])
	}

	if resultLog["error"] != "handler error" {
		t.Errorf("expected error to be 'handler error', got: %v", resultLog["error"])
	}

	if resultLog["level"] != "ERROR" {
		t.Errorf("expected level to be ERROR, got: %v", resultLog["level"])
	}
}

func TestOperatorCallMiddleware_WrapWithMetadata_Success(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperatorCallMiddleware(logger)

	call := &OperatorCall{
		Phase:       "collect",
		OperatorKey: "local.shell",
	}

	expectedMetadata := map[string]interface{}{
		"exit_code": 0,
		"output":    "success",
	}

	metadata, err := middleware.WrapWithMetadata(call, func() (map[string]interface{}, error) {
		return expectedMetadata, nil
	})

	if err != nil {
		t.Errorf("expected no error, got: %v", err)
	}

	if metadata["exit_code"] != 0 {
		t.Errorf("expected exit_code to be 0, got: %v", metadata["exit_code"])
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(lines))
	}

	var resultLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &resultLog); err != nil {
		t.Fatalf("expected valid JSON for result log: %v", err)
	}

	if resultLog["exit_code"] != float64(0) {
		t.Errorf("expected exit_code in log to be 0, got: %v", resultLog["exit_code"])
	}

	if resultLog["output"] != "success" {
		t.Errorf("expected output in log to be 'success', got: %v", resultLog["output"])
	}
}

func TestOperatorCallMiddleware_WrapWithMetadata_Error(t *testing.T) {
	var buf bytes.Buffer

	cfg := &Config{
		Level:  "info",
		Format: FormatJSON,
		Output: &buf,
	}

	logger := New(cfg)
	middleware := NewOperatorCallMiddleware(logger)

	call := &OperatorCall{
		Phase:       "collect",
		OperatorKey: "local.shell",
	}

	partialMetadata := map[string]interface{}{
		"exit_code": 1,
	}

	testErr := errors.New("output_files missing")

	metadata, err := middleware.WrapWithMetadata(call, func() (map[string]interface{}, error) {
		return partialMetadata, testErr
	})

	if err != testErr {
		t.Errorf("expected error to be returned, got: %v", err)
	}

	if metadata["exit_code"] != 1 {
		t.Errorf("expected exit_code to be 1, got: %v", metadata["exit_code"])
	}

	output := buf.String()

	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 log lines, got %d", len(lines))
	}

	var resultLog map[string]interface{}
	if err := json.Unmarshal([]byte(lines[1]), &resultLog); err != nil {
		t.Fatalf("expected valid JSON for result log: %v", err)
	}

	if resultLog["success"] != false {
		t.Errorf("expected success to be false, got: %v", resultLog["success"])
	}

	if resultLog["error"] != "output_files missing" {
		t.Errorf("expected error to be 'output_files missing', got: %v", resultLog["error"])
	}

	if resultLog["exit_code"] != float64(1) {
		t.Errorf("expected exit_code in log to be 1, got: %v", resultLog["exit_code"])
	}
}

func TestNewOperatorCallMiddleware(t *testing.T) {
	logger := New(nil)
	middleware := NewOperatorCallMiddleware(logger)

	if middleware == nil {
		t.Errorf("expected non-nil middleware")
	}

	if middleware.logger != logger {
		t.Errorf("expected middleware to use provided logger")
	}
}
