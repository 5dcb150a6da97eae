// Package llmimpl resolves model identifiers to provider clients.
package llmimpl

import (
	"fmt"
	"sync"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
	"relaybot/pkg/llmimpl/anthropic"
	"relaybot/pkg/llmimpl/google"
	"relaybot/pkg/llmimpl/ollama"
	"relaybot/pkg/llmimpl/openai"
)

// Factory builds a raw client for a model given the provider credential
// (an API key, or the server URL for Ollama).
type Factory func(credential, model string) llm.Client

// CredentialFunc looks up the credential for a provider.
type CredentialFunc func(provider string) (string, error)

// Registry builds provider clients lazily and caches one per model.
type Registry struct {
	mu          sync.Mutex
	clients     map[string]llm.Client
	factories   map[string]Factory
	credentials CredentialFunc
	middleware  []llm.Middleware
}

// NewRegistry creates a registry for the four supported providers. Each client is wrapped
// with the given middleware, outermost first.
func NewRegistry(middleware ...llm.Middleware) *Registry {
	return &Registry{
		clients: make(map[string]llm.Client),
		factories: map[string]Factory{
			config.ProviderAnthropic: func(key, model string) llm.Client {
				return anthropic.NewClaudeClientWithModel(key, model)
			},
			config.ProviderOpenAI: func(key, model string) llm.Client {
				return openai.NewClientWithModel(key, model)
			},
			config.ProviderGoogle: google.NewGeminiClientWithModel,
			config.ProviderOllama: ollama.NewOllamaClientWithModel,
		},
		credentials: config.GetAPIKey,
		middleware:  middleware,
	}
}

// WithFactory replaces the client factory for a provider.
func (r *Registry) WithFactory(provider string, f Factory) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[provider] = f
	return r
}

// WithCredentials replaces the credential lookup.
func (r *Registry) WithCredentials(fn CredentialFunc) *Registry {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.credentials = fn
	return r
}

// Client returns the client for model. A missing credential is reported as an error
// wrapping config.ErrMissingCredential and is not cached, so a key added later takes effect.
func (r *Registry) Client(model string) (llm.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if client, ok := r.clients[model]; ok {
		return client, nil
	}

	provider, err := config.GetModelProvider(model)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", model, err)
	}
	factory, ok := r.factories[provider]
	if !ok {
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
	credential, err := r.credentials(provider)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", model, err)
	}

	client := llm.Chain(factory(credential, model), r.middleware...)
	r.clients[model] = client
	return client, nil
}
