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

package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"syscall"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/store"
)

// fileLock holds a *Store's non-blocking exclusive flock on
// <run_root>/state.sqlite.lock. Unlike the daemon's PID file, this lock
// file is reused across ticks rather than created with O_EXCL: many
// processes open it, but only one at a time holds LOCK_EX.
type fileLock struct {
	f *os.File
}

// Release unlocks and closes the lock file. Calls after the first return
// nil; the caller is expected to defer it immediately after a successful Lock.
func (l *fileLock) Release() error {
	if l.f == nil {
		return nil
	}
	syscall.Flock(int(l.f.Fd()), syscall.LOCK_UN)
	err := l.f.Close()
	l.f = nil
	return err
}

// Lock acquires the advisory file lock for a run, given its root directory.
// Fails fast (non-blocking) with an *errors.LockBusyError if another
// process already holds it, per the state store's "never an in-process
// mutex" requirement — this must work across independent OS processes.
func Lock(ctx context.Context, runRoot, runID string) (store.Lock, error) {
	lockPath := filepath.Join(runRoot, "state.sqlite.lock")

	if err := os.MkdirAll(runRoot, 0700); err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: create run root "+runRoot)
	}

	f, err := os.OpenFile(lockPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: open lock file "+lockPath)
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		if err == syscall.EWOULDBLOCK {
			holder, _ := readLockHolder(lockPath)
			return nil, &campaignerrors.LockBusyError{RunID: runID, HolderPID: holder}
		}
		return nil, campaignerrors.Wrap(err, "sqlite: flock "+lockPath)
	}

	pid := os.Getpid()
	_ = f.Truncate(0)
	_, _ = f.WriteAt([]byte(strconv.Itoa(pid)), 0)

	return &fileLock{f: f}, nil
}

// Lock implements store.LockProvider for *Store using the run root derived
// from the database path's directory (state.sqlite and state.sqlite.lock
// are always siblings per the run-root filesystem layout).
func (s *Store) Lock(ctx context.Context, runID string) (store.Lock, error) {
	return Lock(ctx, filepath.Dir(s.path), runID)
}

func readLockHolder(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}
