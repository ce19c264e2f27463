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

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/store"
)

// WithTx runs fn inside one transaction. A non-nil return (or panic) rolls
// back; a nil return commits. Satisfies the "all multi-row mutations within
// a tick occur inside one transaction" requirement from the state store's
// algorithmic notes. fn receives a *Store whose conn() resolves to the
// transaction, so every Store method works unmodified inside the callback.
func (s *Store) WithTx(ctx context.Context, fn func(txStore store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return campaignerrors.Wrap(err, "sqlite: begin tx")
	}

	wrapped := &Store{db: s.db, c: tx, path: s.path}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(wrapped); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return campaignerrors.Wrap(err, "sqlite: commit tx")
	}
	return nil
}
