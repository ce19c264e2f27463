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

package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot_EnvVarTakesPrecedence(t *testing.T) {
	t.Setenv(RootEnvVar, "/custom/workspaces")

	got, err := Root()
	require.NoError(t, err)
	assert.Equal(t, "/custom/workspaces", got)
}

func TestListRunRoots_DiscoversNestedSlugsWithStateFile(t *testing.T) {
	root := t.TempDir()

	complete := filepath.Join(root, "proj/sub", "runs", "run_01")
	require.NoError(t, os.MkdirAll(complete, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(complete, "state.sqlite"), []byte{}, 0644))

	// A run directory without state.sqlite yet (e.g. mid-initialize_run)
	// must not be reported as an active run.
	incomplete := filepath.Join(root, "proj/sub", "runs", "run_02")
	require.NoError(t, os.MkdirAll(incomplete, 0755))

	handles, err := ListRunRoots(root)
	require.NoError(t, err)
	require.Len(t, handles, 1)
	assert.Equal(t, "proj/sub", handles[0].WorkspaceSlug)
	assert.Equal(t, "run_01", handles[0].RunID)
	assert.Equal(t, complete, handles[0].RootPath)
}

func TestListRunRoots_MissingWorkspacesRootIsNotAnError(t *testing.T) {
	handles, err := ListRunRoots(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, handles)
}
