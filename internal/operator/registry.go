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

package operator

import (
	"sync"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
)

// Registry resolves a canonical operator key to a live Operator instance.
// Per the design notes, the registry may cache connections (e.g. SSH
// sessions) keyed by operator instance; callers invalidate it when the
// wiring snapshot that produced it changes.
type Registry struct {
	mu        sync.RWMutex
	operators map[string]Operator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{operators: map[string]Operator{}}
}

// Register binds a canonical key to an Operator instance.
func (r *Registry) Register(key string, op Operator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operators[key] = op
}

// Resolve returns the Operator bound to key, or a ConfigInvalidError if no
// wiring bound that key to an instance.
func (r *Registry) Resolve(key string) (Operator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.operators[key]
	if !ok {
		return nil, &campaignerrors.ConfigInvalidError{
			Path:   "operators.yaml",
			Reason: "no operator bound to key " + key,
		}
	}
	return op, nil
}

// Keys returns every registered canonical key, for diagnostics (`explain`).
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.operators))
	for k := range r.operators {
		keys = append(keys, k)
	}
	return keys
}
