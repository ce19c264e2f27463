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
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
)

// DefaultDebounce is the quiet period a change must survive before
// OperatorsWatcher fires its callback, absorbing editors that write a file
// in several small operations.
const DefaultDebounce = 300 * time.Millisecond

// OperatorsWatcher watches a workspace-default operators.yaml for changes
// and debounces them into a single callback invocation, so the resolver
// (internal/wiring) can be told to re-resolve without reacting to every
// intermediate write.
type OperatorsWatcher struct {
	path     string
	debounce time.Duration
	onChange func(path string)
	logger   *slog.Logger

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	timer   *time.Timer
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewOperatorsWatcher watches the directory containing path (fsnotify
// watches directories, not bare files, so renames-then-create survive) and
// calls onChange after the file has been quiet for debounce.
func NewOperatorsWatcher(path string, debounce time.Duration, logger *slog.Logger, onChange func(path string)) (*OperatorsWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, campaignerrors.Wrap(err, "workspace: create operators.yaml watcher")
	}

	dir := filepath.Dir(path)
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, campaignerrors.Wrap(err, "workspace: watch "+dir)
	}

	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &OperatorsWatcher{
		path:     path,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
		watcher:  fsw,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}, nil
}

// Start runs the event loop until ctx is cancelled or Stop is called.
func (w *OperatorsWatcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop halts the watcher and releases the underlying fsnotify handle.
func (w *OperatorsWatcher) Stop() error {
	close(w.stopCh)
	<-w.doneCh
	return w.watcher.Close()
}

func (w *OperatorsWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("operators.yaml watcher error", "error", err, "path", w.path)
		}
	}
}

// schedule (re)starts the debounce timer; only the last event in a burst
// survives to fire onChange.
func (w *OperatorsWatcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		w.onChange(w.path)
	})
}
