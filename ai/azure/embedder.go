package azure

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/semdex/ai"
	"github.com/sashabaranov/go-openai"
)

// DefaultBatchSize bounds the inputs sent in one embeddings request.
const DefaultBatchSize = 16

// Embedder implements ai.Embedder against an Azure OpenAI deployment.
type Embedder struct {
	client     *openai.Client
	deployment string
	dimensions int
	batchSize  int
	logger     *slog.Logger
}

func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if config.Provider != ai.ProviderAzure {
		return nil, fmt.Errorf("%w: azure provider given %q config", ai.ErrInvalidConfig, config.Provider)
	}

	clientConfig := openai.DefaultAzureConfig(config.APIKey, config.EmbeddingHost)
	clientConfig.APIVersion = config.APIVersion
	deployment := config.EmbeddingModel
	clientConfig.AzureModelMapperFunc = func(string) string { return deployment }

	return &Embedder{
		client:     openai.NewClientWithConfig(clientConfig),
		deployment: deployment,
		dimensions: config.Dimensions,
		batchSize:  DefaultBatchSize,
		logger:     slog.Default().With("component", "azure-embedder", "deployment", deployment),
	}, nil
}

// NewEmbedder creates a new embedder using the provided configuration.
func NewEmbedder(config *ai.Config) (ai.Embedder, error) {
	return newEmbedder(config)
}

// EmbedText generates a vector embedding for a single text string.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		e.logger.Warn("embedder returned empty result")
		return []float32{}, nil
	}
	return vectors[0], nil
}

// EmbedTexts generates vector embeddings in batches of DefaultBatchSize.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	e.logger.Debug("generating embeddings for texts", "count", len(texts))

	results := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.batchSize, len(texts))

		resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      texts[start:end],
			Model:      openai.EmbeddingModel(e.deployment),
			Dimensions: e.dimensions,
		})
		if err != nil {
			e.logger.Error("failed to generate embeddings", "count", end-start, "err", err)
			return nil, fmt.Errorf("azure embedding failed: %w", err)
		}
		for _, d := range resp.Data {
			if d.Index < 0 || start+d.Index >= end {
				return nil, fmt.Errorf("azure embedding failed: response index %d out of range", d.Index)
			}
			results[start+d.Index] = d.Embedding
		}
	}
	return results, nil
}
