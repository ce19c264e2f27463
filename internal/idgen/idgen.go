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

// Package idgen generates chronologically sortable identifiers for runs,
// tasks, and attempts. Sort order matters: the store's "most recent
// attempt" and "insertion order" queries rely on lexical ID order matching
// creation order, so every ID here is a UUIDv7 (time-ordered) rather than
// a random UUIDv4.
package idgen

import (
	"fmt"

	"github.com/google/uuid"
)

// Kind prefixes keep IDs self-describing in logs and TSV output without a
// separate lookup.
const (
	KindRun     = "run"
	KindTask    = "task"
	KindAttempt = "attempt"
)

// New returns a chronologically sortable ID of the form "<kind>_<uuidv7>".
// Falls back to a random UUIDv4 if the runtime clock is unavailable (the
// only failure mode of uuid.NewV7); still globally unique, just not
// time-ordered relative to IDs minted before the fallback.
func New(kind string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return fmt.Sprintf("%s_%s", kind, id.String())
}

// Run mints a new run_id.
func Run() string { return New(KindRun) }

// Task mints a new task_id.
func Task() string { return New(KindTask) }

// Attempt mints a new attempt_id.
func Attempt() string { return New(KindAttempt) }
