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

package campaignrt

import (
	"strconv"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/operator"
	"github.com/scicampaign/campaignctl/internal/operator/human"
	"github.com/scicampaign/campaignctl/internal/operator/local"
	"github.com/scicampaign/campaignctl/internal/operator/ratelimit"
	"github.com/scicampaign/campaignctl/internal/wiring"
)

// buildRegistry binds a parsed wiring.Document to a live operator.Registry.
func buildRegistry(doc *wiring.Document, signingKey []byte) (*operator.Registry, error) {
	registry := operator.NewRegistry()

	for key, spec := range doc.Operators {
		kind, _ := operator.SplitOperatorKey(key)
		op, err := buildOperator(key, kind, spec, signingKey)
		if err != nil {
			return nil, err
		}
		registry.Register(key, op)
	}

	// The Simulation shortcut completes tasks without dispatch at all, so
	// it never needs a registry entry; it's handled entirely by the
	// engine recognizing an empty operator key (ResolveOperatorKeyForTask
	// returns "" for variant-external tasks and unset legacy types).

	return registry, nil
}

func buildOperator(key string, kind operator.Kind, spec wiring.OperatorSpec, signingKey []byte) (operator.Operator, error) {
	switch kind {
	case operator.KindHuman, operator.KindExperiment:
		// No dedicated "experiment" backend exists in this build, and
		// nothing downstream distinguishes it from a human gate: both
		// wait on an external party (or instrument operator) to write a
		// response file, so both route to the same signed-link flow.
		return human.New(signingKey, 0), nil
	case operator.KindLocal:
		return wrapWithRateLimit(local.New(), spec.Backend), nil
	case operator.KindHPC:
		return buildHPCOperator(key, spec)
	default:
		return nil, &campaignerrors.ConfigInvalidError{
			Path: "operators.yaml", Reason: "unrecognized operator kind: " + string(kind) + " for " + key,
		}
	}
}

func buildHPCOperator(key string, spec wiring.OperatorSpec) (operator.Operator, error) {
	if spec.Backend == nil {
		return nil, &campaignerrors.ConfigInvalidError{Path: "operators.yaml", Reason: "hpc operator " + key + " requires a backend block"}
	}
	switch spec.Backend.Type {
	case "local":
		// Stand-in: routes hpc-kind tasks through the same local
		// subprocess operator as backend.type: local, so hpc routing can
		// be exercised without a real cluster scheduler client wired in.
		return wrapWithRateLimit(local.New(), spec.Backend), nil
	default:
		return nil, &campaignerrors.ConfigInvalidError{
			Path:   "operators.yaml",
			Reason: "hpc operator " + key + ": backend.type " + spec.Backend.Type + " has no client wired in this build (no cluster scheduler available); use \"local\" to exercise hpc-kind routing against a subprocess stand-in",
		}
	}
}

func wrapWithRateLimit(op operator.Operator, backend *wiring.BackendSpec) operator.Operator {
	limiter := parseRateLimit(backend)
	if limiter == nil {
		return op
	}
	return operator.WithRateLimit(op, limiter)
}

func parseRateLimit(backend *wiring.BackendSpec) *ratelimit.Limiter {
	if backend == nil {
		return nil
	}
	raw, ok := backend.Fields["rate_per_second"]
	if !ok || raw == "" {
		return nil
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil || rate <= 0 {
		return nil
	}
	burst := 1
	if b, ok := backend.Fields["burst"]; ok {
		if n, err := strconv.Atoi(b); err == nil && n > 0 {
			burst = n
		}
	}
	return ratelimit.New(rate, burst)
}
