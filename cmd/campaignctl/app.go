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

package main

import (
	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/workspace"
)

// resolveRunRoot finds the run root directory for a bare run_id by scanning
// workspacesRoot the same way the scheduler discovers active runs — a run's
// directory name is its run_id (see workspace.ListRunRoots), so no separate
// run_id-to-path index is needed.
func resolveRunRoot(workspacesRoot, runID string) (string, error) {
	handles, err := workspace.ListRunRoots(workspacesRoot)
	if err != nil {
		return "", err
	}
	for _, h := range handles {
		if h.RunID == runID {
			return h.RootPath, nil
		}
	}
	return "", &campaignerrors.NotFoundError{Resource: "run", ID: runID}
}
