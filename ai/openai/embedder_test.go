package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/semdex/ai"
)

// fakeEmbeddings answers with [len(input), i] for each input.
func fakeEmbeddings(t *testing.T, requests *atomic.Int32, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		if status != http.StatusOK {
			http.Error(w, `{"error":{"message":"overloaded"}}`, status)
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)

		data := make([]map[string]any, 0, len(req.Input))
		for i, text := range req.Input {
			data = append(data, map[string]any{
				"object":    "embedding",
				"index":     i,
				"embedding": []float32{float32(len(text)), float32(i)},
			})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": req.Model})
	}))
}

func testConfig(host string) *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(host),
		ai.WithEmbeddingModel("nomic-embed-text"),
	)
}

func TestEmbedder_EmbedTextsBatches(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddings(t, &requests, http.StatusOK)
	defer srv.Close()

	e, err := newEmbedder(testConfig(srv.URL), 2)
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), []string{"a", "bb", "ccc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {2, 1}, {3, 0}}, vectors)
	assert.Equal(t, int32(2), requests.Load())
}

func TestEmbedder_EmbedText(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddings(t, &requests, http.StatusOK)
	defer srv.Close()

	e, err := NewEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	vector, err := e.EmbedText(context.Background(), "Table: dbo.Customers")
	require.NoError(t, err)
	assert.Equal(t, []float32{20, 0}, vector)
}

func TestEmbedder_EmptyInput(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddings(t, &requests, http.StatusOK)
	defer srv.Close()

	e, err := NewEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	vectors, err := e.EmbedTexts(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, requests.Load())
}

func TestEmbedder_ServerError(t *testing.T) {
	var requests atomic.Int32
	srv := fakeEmbeddings(t, &requests, http.StatusServiceUnavailable)
	defer srv.Close()

	e, err := NewEmbedder(testConfig(srv.URL))
	require.NoError(t, err)

	_, err = e.EmbedText(context.Background(), "x")
	assert.Error(t, err)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(testConfig("http://localhost:11434"))
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "openai:nomic-embed-text", p.ServiceID())
	assert.NotNil(t, p.Embedder())

	_, err = NewProvider(ai.NewConfig(ai.WithProvider(ai.ProviderAzure), ai.WithEmbeddingHost("https://x"), ai.WithEmbeddingModel("m"), ai.WithAPIKey("k")))
	assert.ErrorIs(t, err, ai.ErrInvalidConfig)
}
