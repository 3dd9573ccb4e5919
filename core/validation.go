// Copyright 2025 Poiesic Systems
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


package core

import (
	"fmt"
	"strings"
)

// ValidateModel validates a SemanticModel's own fields.
//
// Validation rules:
//   - Name must not be empty
//
// NOT validated:
//   - Entities (validated individually as they are added)
//   - Source (may be empty for models built by hand)
func ValidateModel(model *SemanticModel) error {
	if model == nil {
		return fmt.Errorf("%w: model is nil", ErrInvalidModel)
	}

	if strings.TrimSpace(model.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidModel, ErrEmptyModelName)
	}

	return nil
}

// ValidateEntity validates an entity according to domain rules.
//
// Validation rules:
//   - Schema must not be empty
//   - Name must not be empty
//   - Neither may contain a path separator, since both appear in persisted keys
//   - Schema must not contain a dot, since entity paths end the schema at the
//     first dot
//
// NOT validated (populated by generators):
//   - Description and SemanticDescription
func ValidateEntity(e Entity) error {
	if e == nil {
		return fmt.Errorf("%w: entity is nil", ErrInvalidEntity)
	}
	base := e.Common()

	if strings.TrimSpace(base.Schema) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptySchema)
	}

	if strings.TrimSpace(base.Name) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidEntity, ErrEmptyEntityName)
	}

	if strings.ContainsAny(base.Schema, `/\`) || strings.ContainsAny(base.Name, `/\`) {
		return fmt.Errorf("%w: %s contains a path separator", ErrInvalidEntity, e.Ref())
	}

	if strings.Contains(base.Schema, ".") {
		return fmt.Errorf("%w: schema %q contains a dot", ErrInvalidEntity, base.Schema)
	}

	return nil
}
