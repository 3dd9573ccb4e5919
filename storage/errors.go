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


package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates that a manifest or entity is not persisted.
	ErrNotFound = errors.New("not found")

	// ErrConfiguration indicates missing or invalid backend settings.
	ErrConfiguration = errors.New("storage configuration error")

	// ErrUnknownStrategy indicates a strategy name with no registered backend.
	// It wraps ErrConfiguration.
	ErrUnknownStrategy = fmt.Errorf("%w: unknown persistence strategy", ErrConfiguration)

	// ErrTransientIO indicates a retryable read or write fault.
	ErrTransientIO = errors.New("transient I/O error")

	// ErrSerialization indicates a serialization/deserialization failure.
	ErrSerialization = errors.New("serialization failed")

	// ErrStorageClosed indicates that the storage backend is closed.
	ErrStorageClosed = errors.New("storage is closed")
)

// IsTransient reports whether err is worth retrying.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransientIO)
}
