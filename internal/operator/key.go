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

package operator

import (
	"regexp"
	"strings"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/model"
)

// canonicalKeyPattern is the operator routing key format: "<kind>.<name>",
// lowercase, no "..".
var canonicalKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_]*\.[a-z0-9][a-z0-9_.-]*$`)

// legacyOperatorTypeToKey maps the pre-canonical-key strings still found in
// task_attempts.operator_type (and operators.yaml written by older tools)
// to their canonical-key equivalent.
var legacyOperatorTypeToKey = map[string]string{
	"HPC":        "hpc.default",
	"Local":      "local.default",
	"Human":      "human.default",
	"Experiment": "experiment.default",
	"Simulation": "",
}

// IsCanonical reports whether key matches the canonical "<kind>.<name>"
// format.
func IsCanonical(key string) bool {
	return canonicalKeyPattern.MatchString(key) && !strings.Contains(key, "..")
}

// NormalizeOperatorKey converts a possibly-legacy operator_type string into
// its canonical key. Returns ("", nil) for "Simulation", which is not an
// operator at all but the local-testing shortcut that completes a task
// without dispatch.
func NormalizeOperatorKey(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	if IsCanonical(raw) {
		return raw, nil
	}
	canonical, ok := legacyOperatorTypeToKey[raw]
	if !ok {
		return "", &campaignerrors.ConfigInvalidError{
			Path:   "operator_key",
			Reason: "unrecognized operator type or malformed canonical key: " + raw,
		}
	}
	return canonical, nil
}

// SplitOperatorKey splits a canonical key into its kind and name parts.
// The caller must have already validated the key with IsCanonical.
func SplitOperatorKey(key string) (kind Kind, name string) {
	idx := strings.IndexByte(key, '.')
	if idx < 0 {
		return "", key
	}
	return Kind(key[:idx]), key[idx+1:]
}

// ResolveOperatorKeyForTask implements the routing precedence from the
// operator contract: (1) task.operator_key, (2)
// task.env["MATTERSTACK_OPERATOR"], (3) task variant (gate -> human,
// external -> none), (4) runDefault. An empty return with a nil error
// means "Simulation": the engine completes the task without dispatch.
func ResolveOperatorKeyForTask(t *model.Task, runDefault string) (string, error) {
	if t.OperatorKey != "" {
		return NormalizeOperatorKey(t.OperatorKey)
	}
	if env, ok := t.Env["MATTERSTACK_OPERATOR"]; ok && env != "" {
		return NormalizeOperatorKey(env)
	}
	switch t.Variant {
	case model.VariantGate:
		return "human.default", nil
	case model.VariantExternal:
		return "", nil
	}
	return NormalizeOperatorKey(runDefault)
}
