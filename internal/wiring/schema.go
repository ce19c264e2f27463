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
	"strings"

	"gopkg.in/yaml.v3"

	campaignerrors "github.com/scicampaign/campaignctl/internal/errors"
	"github.com/scicampaign/campaignctl/internal/operator"
)

// BackendSpec is the operator-specific backend configuration. Keys other
// than type are collected into Fields by the inline map, so KnownFields(true)
// does not reject them.
type BackendSpec struct {
	Type   string            `yaml:"type"`
	Fields map[string]string `yaml:",inline"`
}

// OperatorSpec is one entry of the operators.yaml "operators" map.
type OperatorSpec struct {
	Kind         string       `yaml:"kind"`
	Backend      *BackendSpec `yaml:"backend,omitempty"`
	Slug         string       `yaml:"slug,omitempty"`
	OperatorName string       `yaml:"operator_name,omitempty"`
}

// Document is the parsed, validated operators.yaml.
type Document struct {
	Operators map[string]OperatorSpec `yaml:"operators"`
}

// backendRequiredKinds are operator kinds that must carry a backend block;
// human and experiment gates have none (there is no backend to configure —
// they are fulfilled by a person or lab instrument).
var backendRequiredKinds = map[string]bool{
	string(operator.KindHPC):   true,
	string(operator.KindLocal): true,
}

// ParseDocument decodes and validates operators.yaml bytes: canonical key
// format, kind matching the key's prefix, and backend presence rules.
// Extra fields are rejected everywhere except inside a backend block, whose
// extra keys land in BackendSpec.Fields.
func ParseDocument(raw []byte) (*Document, error) {
	var doc Document
	dec := yaml.NewDecoder(strings.NewReader(string(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, &campaignerrors.ConfigInvalidError{
			Path: "operators.yaml", Reason: "invalid YAML", Cause: err,
		}
	}

	for key, spec := range doc.Operators {
		if !operator.IsCanonical(key) {
			return nil, &campaignerrors.ConfigInvalidError{
				Path: "operators.yaml", Reason: "operator key is not canonical: " + key,
			}
		}
		kind, _ := operator.SplitOperatorKey(key)
		if string(kind) != spec.Kind {
			return nil, &campaignerrors.ConfigInvalidError{
				Path:   "operators.yaml",
				Reason: "key prefix " + string(kind) + " does not match kind " + spec.Kind + " for " + key,
			}
		}
		needsBackend := backendRequiredKinds[spec.Kind]
		if needsBackend && spec.Backend == nil {
			return nil, &campaignerrors.ConfigInvalidError{
				Path: "operators.yaml", Reason: "operator " + key + " requires a backend block",
			}
		}
		if !needsBackend && spec.Backend != nil {
			return nil, &campaignerrors.ConfigInvalidError{
				Path: "operators.yaml", Reason: "operator " + key + " (kind " + spec.Kind + ") must not have a backend block",
			}
		}
	}
	return &doc, nil
}
