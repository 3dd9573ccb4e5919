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


// Package ai provides abstractions for the embedding services semdex uses to
// vectorize semantic model entities.
//
// The package defines two interfaces:
//
//   - Embedder: Generates vector embeddings from text
//   - Provider: Owns an Embedder and names the service for embedding metadata
//
// Implementations live in sub-packages:
//
//   - ai/openai: OpenAI-compatible endpoints (OpenAI, Ollama, LocalAI, vLLM) via langchaingo
//   - ai/azure: Azure OpenAI deployments via go-openai
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Production constructors return interface types. Mock constructors return
// concrete types so tests can inject behavior and count calls.
//
// # Usage Example
//
//	cfg := ai.NewConfig(ai.WithEmbeddingModel("text-embedding-3-small"))
//	provider, err := openai.NewProvider(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vector, err := provider.Embedder().EmbedText(ctx, "Table dbo.Customers")
package ai
