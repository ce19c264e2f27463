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

// Package campaignrt assembles a runnable *engine.Engine from a run root:
// it resolves the campaign bound to the run's workspace, resolves the
// run's operator wiring, and wires up logging/metrics/tracing. Both
// cmd/campaignctl (single-shot CLI) and cmd/campaignctld (long-running
// daemon) build every Engine through this package so the two binaries
// can't drift on how a run gets wired.
package campaignrt

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/scicampaign/campaignctl/internal/campaign"
	"github.com/scicampaign/campaignctl/internal/campaign/demo"
	"github.com/scicampaign/campaignctl/internal/engine"
	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/hooks"
	hookslogging "github.com/scicampaign/campaignctl/internal/hooks/logging"
	hooksmetrics "github.com/scicampaign/campaignctl/internal/hooks/metrics"
	campaignlog "github.com/scicampaign/campaignctl/internal/log"
	"github.com/scicampaign/campaignctl/internal/model"
	campaignmetrics "github.com/scicampaign/campaignctl/internal/metrics"
	"github.com/scicampaign/campaignctl/internal/operator"
	"github.com/scicampaign/campaignctl/internal/scheduler"
	"github.com/scicampaign/campaignctl/internal/store/sqlite"
	"github.com/scicampaign/campaignctl/internal/tracing"
	"github.com/scicampaign/campaignctl/internal/wiring"
	"github.com/scicampaign/campaignctl/pkg/observability"
)

// Metrics is shared by every Engine either binary builds in this process:
// the scheduler steps many runs in one long-running process and their
// dispatch/outcome counters belong on the same collector set.
var Metrics = campaignmetrics.New()

// campaignsBySlug binds a workspace slug to the Campaign that drives it.
// The source this engine was distilled from loads a campaign by dynamically
// importing a user file exporting get_campaign(); this port resolves the
// binding from a build-time table instead, so neither binary executes code
// it didn't compile.
var campaignsBySlug = map[string]campaign.Campaign{
	"demo": demo.New(),
}

// ResolveCampaign looks up the Campaign bound to a run's workspace slug.
func ResolveCampaign(slug string) (campaign.Campaign, error) {
	c, ok := campaignsBySlug[slug]
	if !ok {
		return nil, &campaignerrors.ConfigInvalidError{
			Path:   "campaign registry",
			Reason: "no campaign registered for workspace " + slug,
		}
	}
	return c, nil
}

// campaignAdapter bridges internal/campaign.Campaign (the author-facing
// interface, whose TaskSpec.Files is inline string content) to
// internal/engine.Campaign (the engine's consumption interface, whose
// CampaignTaskSpec.Files is model.FileRef) — the two are intentionally
// distinct Go types so neither package needs to import the other's task
// authoring surface.
type campaignAdapter struct {
	inner campaign.Campaign
}

func adaptCampaign(c campaign.Campaign) engine.Campaign {
	return &campaignAdapter{inner: c}
}

func (a *campaignAdapter) Plan(state json.RawMessage) (*engine.CampaignWorkflow, error) {
	wf, err := a.inner.Plan(campaign.State(state))
	if err != nil || wf == nil {
		return nil, err
	}

	out := &engine.CampaignWorkflow{Tasks: make([]engine.CampaignTaskSpec, 0, len(wf.Tasks))}
	for _, t := range wf.Tasks {
		out.Tasks = append(out.Tasks, engine.CampaignTaskSpec{
			TaskID:                 t.TaskID,
			Image:                  t.Image,
			Command:                t.Command,
			Files:                  inlineFilesToRefs(t.Files),
			Env:                    t.Env,
			Dependencies:           t.Dependencies,
			AllowDependencyFailure: t.AllowDependencyFailure,
			AllowFailure:           t.AllowFailure,
			OperatorKey:            t.OperatorKey,
		})
	}
	return out, nil
}

func (a *campaignAdapter) Analyze(state json.RawMessage, results map[string]engine.CampaignTaskResult) (json.RawMessage, error) {
	in := make(map[string]campaign.TaskResult, len(results))
	for taskID, r := range results {
		in[taskID] = campaign.TaskResult{Status: r.Status, Files: r.Files, Data: r.Data}
	}
	newState, err := a.inner.Analyze(campaign.State(state), in)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(newState), nil
}

func inlineFilesToRefs(files map[string]string) map[string]model.FileRef {
	if files == nil {
		return nil
	}
	out := make(map[string]model.FileRef, len(files))
	for name, content := range files {
		out[name] = model.FileRef{Content: content}
	}
	return out
}

// HumanSigningKey derives the JWT signing key the human gate operator uses
// for this run's review links. The human operator's signing key is
// documented as process-wide and not persisted, which fits a long-running
// daemon but not a fresh campaignctl process per invocation: without a
// stable key, a link minted by one `step` call would fail verification
// under the next. MATTERSTACK_HUMAN_SIGNING_KEY overrides it for operators
// who want a real secret; otherwise the key is derived deterministically
// from the run_id, which is secure only against an attacker who can't see
// the run_id — acceptable as a default, not for a production deployment
// that exposes review links externally.
func HumanSigningKey(runID string) []byte {
	if v := os.Getenv("MATTERSTACK_HUMAN_SIGNING_KEY"); v != "" {
		return []byte(v)
	}
	sum := sha256.Sum256([]byte("campaignctl-human-gate:" + runID))
	return sum[:]
}

// EngineBuildOptions carries the flags that influence how BuildEngine
// resolves operator wiring for a run.
type EngineBuildOptions struct {
	OperatorsConfigPath string
	ForceWiringOverride bool
}

// BuildEngine opens runRoot's store, resolves its operator wiring, and
// assembles an *engine.Engine ready to Step. The returned io.Closer must be
// closed once the caller is done driving the run (releases the sqlite
// connection).
func BuildEngine(ctx context.Context, runID, runRoot string, opts EngineBuildOptions) (*engine.Engine, io.Closer, error) {
	st, err := sqlite.Open(ctx, sqlite.Config{Path: filepath.Join(runRoot, "state.sqlite")})
	if err != nil {
		return nil, nil, err
	}

	run, err := st.GetRun(ctx, runID)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	camp, err := ResolveCampaign(run.WorkspaceSlug)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	registry, err := ResolveOperatorRegistry(runID, runRoot, opts.OperatorsConfigPath, opts.ForceWiringOverride)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	logger := campaignlog.New(campaignlog.FromEnv())
	dispatcher := hooks.NewComposite(logger, hookslogging.New(logger), hooksmetrics.New(Metrics))

	tracer := BuildTracer()

	eng := engine.New(st, registry, dispatcher, adaptCampaign(camp), logger, Metrics, tracer)
	return eng, st, nil
}

// tracerProvider is the process's tracer, built once from
// CAMPAIGNCTL_TRACING_ENABLED and friends. Tracing defaults to off.
var tracerProvider *tracing.OTelProvider

// BuildTracer returns the process-wide tracer, or nil when tracing is
// disabled (the engine runs unspanned in that case).
func BuildTracer() observability.Tracer {
	cfg := tracing.DefaultConfig()
	if os.Getenv("CAMPAIGNCTL_TRACING_ENABLED") != "1" {
		return nil
	}
	cfg.Enabled = true
	if v := os.Getenv("CAMPAIGNCTL_TRACING_SAMPLE_RATE"); v != "" {
		cfg.Sampling.Enabled = true
	}

	if tracerProvider == nil {
		p, err := tracing.NewOTelProviderWithConfig(cfg)
		if err != nil {
			return nil
		}
		tracerProvider = p
	}
	return tracerProvider.Tracer("campaignctl")
}

// NewEngineFactory adapts BuildEngine into the scheduler's EngineFactory
// shape: the scheduler only has a runRoot, not a run_id, so the run_id is
// recovered from the root directory's own name per the run-root naming
// convention (see workspace.ListRunRoots).
func NewEngineFactory(opts EngineBuildOptions) scheduler.EngineFactory {
	return func(ctx context.Context, runRoot string) (scheduler.Stepper, io.Closer, error) {
		runID := filepath.Base(runRoot)
		return BuildEngine(ctx, runID, runRoot, opts)
	}
}

// ResolveOperatorRegistry resolves runRoot's operator wiring snapshot and
// builds the live Registry it describes.
func ResolveOperatorRegistry(runID, runRoot, cliPath string, forceOverride bool) (*operator.Registry, error) {
	resolver := wiring.NewResolver()
	resolved, err := resolver.Resolve(runID, runRoot, wiring.Options{
		CLIPath:       cliPath,
		EnvPath:       os.Getenv("MATTERSTACK_OPERATORS_CONFIG"),
		ForceOverride: forceOverride,
		LegacyFallback: func() ([]byte, string, error) {
			return DefaultOperatorsYAML()
		},
	})
	if err != nil {
		return nil, err
	}

	doc, err := wiring.ParseDocument(resolved.Bytes)
	if err != nil {
		return nil, err
	}

	return buildRegistry(doc, HumanSigningKey(runID))
}

// DefaultOperatorsYAML is the wiring resolver's last-resort fallback: a
// single local-subprocess operator and a human gate, enough to run the
// demo campaign with nothing configured.
func DefaultOperatorsYAML() ([]byte, string, error) {
	const doc = `operators:
  local.default:
    kind: local
    backend:
      type: local
  human.default:
    kind: human
`
	return []byte(doc), "(built-in default)", nil
}
