package azure

import (
	"log/slog"

	"github.com/poiesic/semdex/ai"
)

// Provider implements ai.Provider for Azure OpenAI.
type Provider struct {
	config   *ai.Config
	embedder *Embedder
	logger   *slog.Logger
}

// NewProvider creates a provider for an Azure OpenAI deployment.
func NewProvider(config *ai.Config) (ai.Provider, error) {
	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}
	return &Provider{
		config:   config,
		embedder: embedder,
		logger:   slog.Default().With("component", "azure-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// ServiceID returns "azure:<deployment>".
func (p *Provider) ServiceID() string {
	return p.config.ServiceID()
}

// Close is a no-op; the HTTP client needs no cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing Azure provider")
	return nil
}
