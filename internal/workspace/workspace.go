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

// Package workspace resolves the workspaces root directory and discovers
// run roots beneath it, giving the multi-run scheduler a filesystem-based
// list_active_runs() without consulting any central registry.
package workspace

import (
	"os"
	"path/filepath"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
)

// RootEnvVar overrides workspaces-root discovery when set.
const RootEnvVar = "MATTERSTACK_WORKSPACES_ROOT"

// projectMarker identifies the ancestor directory that anchors a relative
// "./workspaces" child when RootEnvVar is unset.
const projectMarker = "pyproject.toml"

// Root resolves the workspaces root by precedence: (1) RootEnvVar; (2) the
// nearest ancestor of the current directory containing projectMarker with a
// workspaces/ child; (3) the literal "./workspaces".
func Root() (string, error) {
	if v := os.Getenv(RootEnvVar); v != "" {
		return v, nil
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", campaignerrors.Wrap(err, "workspace: get working directory")
	}

	for dir := cwd; ; {
		if _, err := os.Stat(filepath.Join(dir, projectMarker)); err == nil {
			if info, err := os.Stat(filepath.Join(dir, "workspaces")); err == nil && info.IsDir() {
				return filepath.Join(dir, "workspaces"), nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "./workspaces", nil
}

// RunHandle identifies one run root discovered under the workspaces root.
// WorkspaceSlug may contain "/" for nested workspace directories.
type RunHandle struct {
	WorkspaceSlug string
	RunID         string
	RootPath      string
}

// ListRunRoots walks workspacesRoot looking for "runs" directories (every
// run root lives at <workspaces_root>/<workspace_slug>/runs/<run_id>/, and
// workspace_slug may itself be nested) and returns one RunHandle per
// immediate child of each "runs" directory that looks like a run root (has
// a state.sqlite file).
func ListRunRoots(workspacesRoot string) ([]RunHandle, error) {
	var handles []RunHandle

	err := filepath.WalkDir(workspacesRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if !d.IsDir() || d.Name() != "runs" {
			return nil
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return campaignerrors.Wrap(err, "workspace: read "+path)
		}

		slugDir := filepath.Dir(path)
		slug, relErr := filepath.Rel(workspacesRoot, slugDir)
		if relErr != nil {
			slug = slugDir
		}

		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			runRoot := filepath.Join(path, e.Name())
			if _, statErr := os.Stat(filepath.Join(runRoot, "state.sqlite")); statErr != nil {
				continue
			}
			handles = append(handles, RunHandle{
				WorkspaceSlug: filepath.ToSlash(slug),
				RunID:         e.Name(),
				RootPath:      runRoot,
			})
		}

		return filepath.SkipDir
	})
	if err != nil {
		return nil, campaignerrors.Wrap(err, "workspace: scan "+workspacesRoot)
	}

	return handles, nil
}
