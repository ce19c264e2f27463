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

// Package sqlite implements internal/store.Store on top of a single
// embedded SQLite database file per run, per the state store's storage
// format: one state.sqlite holding runs/tasks/task_attempts/external_runs,
// with operator payloads serialized as JSON text columns.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
)

// Config configures a run's database connection.
type Config struct {
	// Path is the filesystem location of state.sqlite.
	Path string
}

// Store is the sqlite-backed implementation of store.Store. A *Store is
// scoped to one run's database file; the engine opens one per run it steps.
//
// c holds the active query executor: the shared *sql.DB normally, or an
// in-flight *sql.Tx when this Store was handed to a WithTx callback. Every
// method goes through conn() so the same implementation works in both
// modes without duplicating queries.
type Store struct {
	db   *sql.DB
	c    execer
	path string
}

// Open connects to (creating if absent) the run's state.sqlite, applies the
// pragma set the teacher's backend uses for a single-writer embedded
// database, and runs migrations.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, campaignerrors.Wrap(err, "sqlite: open "+cfg.Path)
	}

	// Embedded SQLite tolerates exactly one writer; a pool would serialize
	// writes behind SQLITE_BUSY retries instead of Go's connection queue.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, campaignerrors.Wrap(err, "sqlite: ping "+cfg.Path)
	}

	s := &Store{db: db, c: db, path: cfg.Path}

	if err := s.configurePragmas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return campaignerrors.Wrap(err, "sqlite: pragma "+p)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id TEXT PRIMARY KEY,
	workspace_slug TEXT NOT NULL,
	root_path TEXT NOT NULL,
	status TEXT NOT NULL,
	status_reason TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	variant TEXT NOT NULL DEFAULT 'compute',
	image TEXT NOT NULL DEFAULT '',
	command TEXT NOT NULL DEFAULT '[]',
	files TEXT NOT NULL DEFAULT '{}',
	env TEXT NOT NULL DEFAULT '{}',
	dependencies TEXT NOT NULL DEFAULT '[]',
	resources TEXT NOT NULL DEFAULT '{}',
	allow_dependency_failure INTEGER NOT NULL DEFAULT 0,
	allow_failure INTEGER NOT NULL DEFAULT 0,
	operator_key TEXT NOT NULL DEFAULT '',
	download_patterns TEXT,
	status TEXT NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (run_id, task_id)
);

CREATE TABLE IF NOT EXISTS task_attempts (
	attempt_id TEXT PRIMARY KEY,
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	attempt_index INTEGER NOT NULL,
	operator_type TEXT NOT NULL DEFAULT '',
	operator_key TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	status_reason TEXT NOT NULL DEFAULT '',
	operator_data TEXT NOT NULL DEFAULT '{}',
	relative_path TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_attempts_task ON task_attempts(run_id, task_id);
CREATE INDEX IF NOT EXISTS idx_attempts_run_status ON task_attempts(run_id, status);

CREATE TABLE IF NOT EXISTS external_runs (
	run_id TEXT NOT NULL,
	task_id TEXT NOT NULL,
	operator_type TEXT NOT NULL DEFAULT '',
	external_id TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL,
	operator_data TEXT NOT NULL DEFAULT '{}',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL,
	PRIMARY KEY (run_id, task_id)
);
`

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return campaignerrors.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every query
// method below run either standalone or inside WithTx without duplication.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) conn() execer { return s.c }

func nowUTC() string { return time.Now().UTC().Format(time.RFC3339Nano) }
