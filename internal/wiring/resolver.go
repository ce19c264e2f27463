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

package wiring

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
)

// snapshotDir is the fixed subdirectory of a run root per the run-root
// filesystem layout.
const snapshotDir = "operators_snapshot"

// Options parameterizes a single resolve call. Only one of CLIPath,
// WorkspaceDefaultPath, EnvPath, LegacyFallback need be set; the resolver
// tries them in precedence order.
type Options struct {
	CLIPath              string
	WorkspaceDefaultPath string
	EnvPath              string
	// LegacyFallback, if non-nil, generates a minimal operators.yaml body
	// when no higher-precedence source is available.
	LegacyFallback func() ([]byte, string, error) // returns (bytes, resolvedPath, error)
	ForceOverride  bool
}

// Resolver binds a run to a content-hashed operators.yaml snapshot.
type Resolver struct{}

// NewResolver returns a Resolver. It is stateless; all state lives on disk
// under the run root.
func NewResolver() *Resolver { return &Resolver{} }

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (r *Resolver) snapshotPaths(runRoot string) (yamlPath, metaPath, historyPath string) {
	dir := filepath.Join(runRoot, snapshotDir)
	return filepath.Join(dir, "operators.yaml"), filepath.Join(dir, "metadata.json"), filepath.Join(dir, "history.jsonl")
}

func (r *Resolver) loadExisting(runRoot string) (bytes []byte, meta *Metadata, err error) {
	yamlPath, metaPath, _ := r.snapshotPaths(runRoot)
	bytes, err = os.ReadFile(yamlPath)
	if os.IsNotExist(err) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, campaignerrors.Wrap(err, "wiring: read existing snapshot")
	}

	metaBytes, err := os.ReadFile(metaPath)
	if os.IsNotExist(err) {
		return bytes, nil, nil // snapshot exists but metadata is missing/corrupted
	}
	if err != nil {
		return bytes, nil, campaignerrors.Wrap(err, "wiring: read existing metadata")
	}
	var m Metadata
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return bytes, nil, nil // corrupted metadata treated the same as missing
	}
	return bytes, &m, nil
}

func (r *Resolver) appendHistory(runRoot string, ev HistoryEvent) error {
	_, _, historyPath := r.snapshotPaths(runRoot)
	if err := os.MkdirAll(filepath.Dir(historyPath), 0755); err != nil {
		return campaignerrors.Wrap(err, "wiring: create snapshot dir")
	}
	f, err := os.OpenFile(historyPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return campaignerrors.Wrap(err, "wiring: open history.jsonl")
	}
	defer f.Close()

	line, err := json.Marshal(ev)
	if err != nil {
		return campaignerrors.Wrap(err, "wiring: marshal history event")
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return campaignerrors.Wrap(err, "wiring: append history.jsonl")
	}
	return nil
}

func (r *Resolver) persist(runRoot string, resolved Resolved, eventName string, details map[string]interface{}) error {
	yamlPath, metaPath, _ := r.snapshotPaths(runRoot)
	if err := os.MkdirAll(filepath.Dir(yamlPath), 0755); err != nil {
		return campaignerrors.Wrap(err, "wiring: create snapshot dir")
	}
	if err := os.WriteFile(yamlPath, resolved.Bytes, 0644); err != nil {
		return campaignerrors.Wrap(err, "wiring: write operators.yaml")
	}

	now := utcNowISO()
	meta := Metadata{
		SchemaVersion: 1,
		CreatedAtUTC:  now,
		UpdatedAtUTC:  now,
		Effective: Effective{
			Source:          resolved.Source,
			ResolvedPath:    resolved.ResolvedPath,
			SHA256:          resolved.SHA256,
			SnapshotRelpath: filepath.Join(snapshotDir, "operators.yaml"),
		},
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return campaignerrors.Wrap(err, "wiring: marshal metadata")
	}
	if err := os.WriteFile(metaPath, metaBytes, 0644); err != nil {
		return campaignerrors.Wrap(err, "wiring: write metadata.json")
	}

	return r.appendHistory(runRoot, HistoryEvent{
		AtUTC: now, Event: eventName, Source: resolved.Source, SHA256: resolved.SHA256,
		ResolvedPath: resolved.ResolvedPath, SnapshotRelpath: meta.Effective.SnapshotRelpath, Details: details,
	})
}

// Resolve implements the 5-level precedence resolution and persists the
// result. Returns *errors.WiringOverrideRefusedError if a CLI override
// presents different bytes than an existing snapshot without
// opts.ForceOverride.
func (r *Resolver) Resolve(runID, runRoot string, opts Options) (*Resolved, error) {
	existingBytes, existingMeta, err := r.loadExisting(runRoot)
	if err != nil {
		return nil, err
	}

	var candidate *Resolved
	if opts.CLIPath != "" {
		b, err := os.ReadFile(opts.CLIPath)
		if err != nil {
			return nil, campaignerrors.Wrap(err, "wiring: read CLI operators config "+opts.CLIPath)
		}
		candidate = &Resolved{Bytes: b, SHA256: sha256Hex(b), Source: SourceCLI, ResolvedPath: opts.CLIPath}
	}

	// No CLI override and a snapshot already exists: it wins outright
	// (existing run snapshot, precedence level 2) — re-resolving from
	// workspace/env/legacy every tick would defeat write-once semantics.
	if candidate == nil && existingBytes != nil {
		resolved := Resolved{Bytes: existingBytes, SHA256: sha256Hex(existingBytes), Source: SourceRunSnapshot}
		if existingMeta != nil {
			resolved.ResolvedPath = existingMeta.Effective.ResolvedPath
			resolved.Source = existingMeta.Effective.Source
		}
		if existingMeta == nil {
			// Resilience: snapshot exists but metadata is missing/corrupt.
			// Reconstruct it without inventing a new hash for the bytes on disk.
			if err := r.persist(runRoot, resolved, EventPersisted, map[string]interface{}{"reconstructed": true}); err != nil {
				return nil, err
			}
		}
		return &resolved, nil
	}

	if candidate == nil {
		if opts.WorkspaceDefaultPath != "" {
			if b, err := os.ReadFile(opts.WorkspaceDefaultPath); err == nil {
				candidate = &Resolved{Bytes: b, SHA256: sha256Hex(b), Source: SourceWorkspaceDefault, ResolvedPath: opts.WorkspaceDefaultPath}
			}
		}
	}
	if candidate == nil && opts.EnvPath != "" {
		if b, err := os.ReadFile(opts.EnvPath); err == nil {
			candidate = &Resolved{Bytes: b, SHA256: sha256Hex(b), Source: SourceEnv, ResolvedPath: opts.EnvPath}
		}
	}
	if candidate == nil && opts.LegacyFallback != nil {
		b, path, err := opts.LegacyFallback()
		if err != nil {
			return nil, campaignerrors.Wrap(err, "wiring: legacy fallback")
		}
		candidate = &Resolved{Bytes: b, SHA256: sha256Hex(b), Source: SourceLegacy, ResolvedPath: path}
	}
	if candidate == nil {
		return nil, &campaignerrors.ConfigInvalidError{
			Path: "operators.yaml", Reason: "no operator wiring source available for run " + runID,
		}
	}

	if _, err := ParseDocument(candidate.Bytes); err != nil {
		return nil, err
	}

	if existingBytes != nil && candidate.SHA256 != sha256Hex(existingBytes) {
		if !opts.ForceOverride {
			existingSHA := sha256Hex(existingBytes)
			_ = r.appendHistory(runRoot, HistoryEvent{
				AtUTC: utcNowISO(), Event: EventOverrideRefused, Source: candidate.Source,
				SHA256: existingSHA, ResolvedPath: candidate.ResolvedPath,
				SnapshotRelpath: filepath.Join(snapshotDir, "operators.yaml"),
				Details:         map[string]interface{}{"attempted_sha256": candidate.SHA256},
			})
			return nil, &campaignerrors.WiringOverrideRefusedError{
				RunID: runID, ExistingHash: existingSHA, RequestedHash: candidate.SHA256,
			}
		}
		if err := r.persist(runRoot, *candidate, EventOverrideForced, map[string]interface{}{"previous_sha256": sha256Hex(existingBytes)}); err != nil {
			return nil, err
		}
		return candidate, nil
	}

	if existingBytes == nil {
		if err := r.persist(runRoot, *candidate, EventPersisted, nil); err != nil {
			return nil, err
		}
	}
	return candidate, nil
}
