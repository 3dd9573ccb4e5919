// Package mock provides test doubles for the ai interfaces.
//
// The mocks let tests run without an embedding service and give
// deterministic, countable behavior.
//
// # Usage in Tests
//
//	embedder := mock.NewMockEmbedder()
//	embedder.EmbedTextFunc = func(ctx context.Context, text string) ([]float32, error) {
//	    return []float32{0.1, 0.2, 0.3}, nil
//	}
//	provider := mock.NewMockProviderWithEmbedder(embedder)
//
//	// Check call counts
//	count := embedder.CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: Returns unit-length vectors derived from a hash of the text
//   - MockProvider: Wraps a MockEmbedder and reports MockServiceID
package mock
