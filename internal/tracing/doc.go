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

/*
Package tracing provides OpenTelemetry-based tracing for the campaign engine's
tick loop. Each tick opens one span ("campaignctl.tick"); the gate, poll,
plan, dispatch, and analyze phases do not get spans of their own.

# Quick Start

Create an OTel provider:

	cfg := tracing.Config{
	    Enabled:        true,
	    ServiceName:    "campaignctl",
	    ServiceVersion: "1.0.0",
	    Sampling: tracing.SamplingConfig{
	        Enabled: true,
	        Rate:    0.1, // 10% sampling
	    },
	}

	provider, err := tracing.NewOTelProviderWithConfig(cfg)

Get a tracer and create spans:

	tracer := provider.Tracer("engine")

	ctx, span := tracer.Start(ctx, "campaignctl.tick",
	    observability.WithAttributes(map[string]any{
	        "run.id": runID,
	    }),
	)
	defer span.End()

# Configuration

Config is a plain Go struct; this package reads no configuration file.
NewOTelProviderWithConfig uses ServiceName, ServiceVersion and the Sampling
fields Enabled, Rate and AlwaysSampleErrors. BatchSize, BatchInterval,
Sampling.Type and Redaction are carried on Config but the provider does not
read them.

Prometheus counters and gauges for tick duration, active attempts, and
dispatch outcomes live in internal/metrics, not here; this package owns
traces only.

# Key Components

  - OTelProvider: OpenTelemetry SDK wrapper
  - Sampler: Configurable trace sampling
  - redact: Pattern-based redaction helpers; the provider does not apply
    them, and RedactorSpanProcessor passes spans through unchanged
*/
package tracing
