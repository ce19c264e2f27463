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

// Package runconfig loads <run_root>/config.json, the small per-run
// settings file the step loop consults for concurrency caps and the
// default operator routing mode.
package runconfig

import (
	"encoding/json"
	"os"
	"path/filepath"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
)

// DefaultMaxHPCJobsPerRun is used when config.json omits the field or the
// file does not exist at all.
const DefaultMaxHPCJobsPerRun = 10

// ExecutionMode is the run default operator routing mode consulted as
// precedence step 4 of operator key resolution.
type ExecutionMode string

const (
	ModeHPC        ExecutionMode = "HPC"
	ModeLocal      ExecutionMode = "Local"
	ModeSimulation ExecutionMode = "Simulation"
)

// Config is the deserialized <run_root>/config.json.
type Config struct {
	MaxHPCJobsPerRun int           `json:"max_hpc_jobs_per_run"`
	ExecutionMode    ExecutionMode `json:"execution_mode"`

	// MaxPerOperator optionally caps concurrent active attempts per
	// canonical operator key (e.g. a shared HPC login node fronted by
	// several operator instances). A key absent from this map has no
	// per-operator cap beyond MaxHPCJobsPerRun.
	MaxPerOperator map[string]int `json:"max_per_operator,omitempty"`
}

// Default returns the config applied when config.json is absent.
func Default() Config {
	return Config{MaxHPCJobsPerRun: DefaultMaxHPCJobsPerRun, ExecutionMode: ModeLocal}
}

// Load reads <runRoot>/config.json, falling back to Default() if the file
// does not exist, and to DefaultMaxHPCJobsPerRun if the field is zero
// (distinguishing "absent" from "explicitly 0" is not meaningful here:
// zero concurrency would make a run un-progressable, so it's treated as
// unset).
func Load(runRoot string) (Config, error) {
	path := filepath.Join(runRoot, "config.json")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, campaignerrors.Wrap(err, "runconfig: read "+path)
	}

	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, &campaignerrors.ConfigInvalidError{Path: path, Reason: "malformed config.json", Cause: err}
	}
	if cfg.MaxHPCJobsPerRun == 0 {
		cfg.MaxHPCJobsPerRun = DefaultMaxHPCJobsPerRun
	}
	if cfg.ExecutionMode == "" {
		cfg.ExecutionMode = ModeLocal
	}
	return cfg, nil
}

// Save writes cfg to <runRoot>/config.json, used by `init` to persist the
// CLI-supplied concurrency cap.
func Save(runRoot string, cfg Config) error {
	path := filepath.Join(runRoot, "config.json")
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return campaignerrors.Wrap(err, "runconfig: marshal config.json")
	}
	if err := os.MkdirAll(runRoot, 0755); err != nil {
		return campaignerrors.Wrap(err, "runconfig: create run root")
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return campaignerrors.Wrap(err, "runconfig: write "+path)
	}
	return nil
}
