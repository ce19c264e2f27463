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
	"log/slog"
	"time"
)

// OperatorCall represents a single operator contract call (prepare, submit,
// poll, collect, or cancel) for logging purposes.
type OperatorCall struct {
	// Phase is the contract method invoked: "prepare", "submit", "poll", "collect", or "cancel".
	Phase string

	// OperatorKey is the canonical operator key handling this call.
	OperatorKey string

	// AttemptID is the attempt this call acts on, if any (empty for prepare).
	AttemptID string

	// Metadata contains additional request metadata.
	Metadata map[string]interface{}
}

// OperatorCallResult represents the outcome of an operator contract call for logging purposes.
type OperatorCallResult struct {
	// Success indicates whether the call returned without error.
	Success bool

	// Error is the error message if the call failed.
	Error string

	// DurationMs is the duration of the call in milliseconds.
	DurationMs int64

	// Metadata contains additional result metadata.
	Metadata map[string]interface{}
}

// LogOperatorCall logs an operator contract call about to be made.
func LogOperatorCall(logger *slog.Logger, call *OperatorCall) {
	attrs := []any{
		"event", "operator_call",
		"phase", call.Phase,
		OperatorKeyKey, call.OperatorKey,
	}

	if call.AttemptID != "" {
		attrs = append(attrs, AttemptIDKey, call.AttemptID)
	}

	for k, v := range call.Metadata {
		attrs = append(attrs, k, v)
	}

	logger.Info("operator call starting", attrs...)
}

// LogOperatorCallResult logs the result of an operator contract call.
func LogOperatorCallResult(logger *slog.Logger, call *OperatorCall, result *OperatorCallResult) {
	attrs := []any{
		"event", "operator_call_result",
		"phase", call.Phase,
		OperatorKeyKey, call.OperatorKey,
		"success", result.Success,
		DurationKey, result.DurationMs,
	}

	if call.AttemptID != "" {
		attrs = append(attrs, AttemptIDKey, call.AttemptID)
	}

	if result.Error != "" {
		attrs = append(attrs, "error", result.Error)
	}

	for k, v := range result.Metadata {
		attrs = append(attrs, k, v)
	}

	level := slog.LevelInfo
	message := "operator call completed"

	if !result.Success {
		level = slog.LevelError
		message = "operator call failed"
	}

	logger.Log(nil, level, message, attrs...)
}

// OperatorCallMiddleware wraps an operator contract call with logging.
// It logs the call when it starts and the result when it completes, so
// every prepare/submit/poll/collect/cancel invocation leaves a uniform
// structured trail regardless of which operator handled it.
type OperatorCallMiddleware struct {
	logger *slog.Logger
}

// NewOperatorCallMiddleware creates a new operator-call logging middleware.
func NewOperatorCallMiddleware(logger *slog.Logger) *OperatorCallMiddleware {
	return &OperatorCallMiddleware{
		logger: logger,
	}
}

// Wrap executes handler, logging the call before and the outcome after.
func (m *OperatorCallMiddleware) Wrap(call *OperatorCall, handler func() error) error {
	start := time.Now()

	LogOperatorCall(m.logger, call)

	err := handler()

	result := &OperatorCallResult{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
	}

	if err != nil {
		result.Error = err.Error()
	}

	LogOperatorCallResult(m.logger, call, result)

	return err
}

// WrapWithMetadata executes handler, logging the call and attaching the
// returned metadata (e.g. collected output_files summary) to the result log line.
func (m *OperatorCallMiddleware) WrapWithMetadata(call *OperatorCall, handler func() (map[string]interface{}, error)) (map[string]interface{}, error) {
	start := time.Now()

	LogOperatorCall(m.logger, call)

	metadata, err := handler()

	result := &OperatorCallResult{
		Success:    err == nil,
		DurationMs: time.Since(start).Milliseconds(),
		Metadata:   metadata,
	}

	if err != nil {
		result.Error = err.Error()
	}

	LogOperatorCallResult(m.logger, call, result)

	return metadata, err
}
