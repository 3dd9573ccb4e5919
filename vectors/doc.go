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


// Package vectors keeps entity embeddings in step with entity content.
//
// For every selected entity a Synchronizer builds a canonical text, hashes
// it, and compares the hash with the one recorded next to the entity's
// stored embedding. Only entities whose text changed (or all of them, with
// Overwrite) are embedded again. New vectors go to the vector index first
// and are then recorded in the entity envelope through the persistence
// strategy, so a recorded hash always means the index holds that vector.
//
// Per-entity failures are logged and counted; they never stop the batch.
// A run where every attempted entity failed returns ErrSynchronizationFailed,
// which distinguishes it from a run where nothing had changed.
//
// # Usage
//
//	sync, err := vectors.New(strategy, provider, index,
//	    vectors.WithConfig(vectors.DefaultConfig()),
//	    vectors.WithProgress(os.Stderr),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	result, err := sync.Run(ctx, model, modelPath, vectors.Options{})
package vectors
