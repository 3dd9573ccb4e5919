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


// Package storage defines how semantic models are persisted.
//
// A Strategy saves and loads whole models and serves single-entity content
// for lazy loading and vector synchronization. Three backends implement it:
//
//   - localdisk: a directory tree on the local filesystem
//   - objectstore: a hierarchical blob store
//   - badger: a document database with one document per entity
//
// The file and object backends share TreeStrategy and lay a model out as
//
//	{model}/manifest.json
//	{model}/tables/{schema}.{name}.json
//	{model}/views/{schema}.{name}.json
//	{model}/storedprocedures/{schema}.{name}.json
//
// where each entity file holds an Envelope: the entity's data plus an optional
// embedding block. The manifest is always written after the entity files, so a
// reader that finds a manifest can find every entity it names.
//
// # Constructor Return Type Pattern
//
// Backend constructors return the storage.Strategy interface:
//
//	s, err := localdisk.New()  // returns storage.Strategy
//
// Strategies are resolved by name through a Factory:
//
//	f := storage.NewFactory("LocalDisk")
//	f.Register(localdisk.New())
//	s, err := f.Resolve("localdisk")
//
// # Thread Safety
//
// All strategies must be safe for concurrent use. Serializing writers against
// the same model is the caller's job; the repository does it with keyed locks.
//
// # Context Support
//
// Every Strategy method accepts a context.Context for cancellation. A canceled
// save never leaves a partial entity file behind: entity files are replaced
// atomically.
package storage
