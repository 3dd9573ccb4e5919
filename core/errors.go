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

import "errors"

// Domain validation errors
var (
	// ErrInvalidModel indicates a SemanticModel failed validation.
	ErrInvalidModel = errors.New("invalid semantic model")

	// ErrInvalidEntity indicates an entity failed validation.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrInvalidEntityType indicates an unknown entity variant.
	ErrInvalidEntityType = errors.New("invalid entity type")

	// ErrEmptyModelName indicates the model Name field is empty.
	ErrEmptyModelName = errors.New("model name cannot be empty")

	// ErrEmptySchema indicates the entity Schema field is empty.
	ErrEmptySchema = errors.New("entity schema cannot be empty")

	// ErrEmptyEntityName indicates the entity Name field is empty.
	ErrEmptyEntityName = errors.New("entity name cannot be empty")

	// ErrDuplicateEntity indicates an entity with the same identity already exists.
	ErrDuplicateEntity = errors.New("duplicate entity")

	// ErrModelClosed indicates the model was used after Close.
	ErrModelClosed = errors.New("semantic model is closed")
)
