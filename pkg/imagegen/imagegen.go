// Package imagegen generates images from text descriptions.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"relaybot/pkg/config"
	"relaybot/pkg/llmerrors"
	"relaybot/pkg/logx"
)

// Image is a generated image reachable by URL.
type Image struct {
	URL           string
	RevisedPrompt string
}

// Generator turns a description into an image.
type Generator interface {
	Generate(ctx context.Context, prompt string) (Image, error)
}

// KeyFunc resolves the API key at call time.
type KeyFunc func() (string, error)

// OpenAIGenerator uses the OpenAI images API. The key is resolved on first use so a
// missing credential surfaces per request instead of at startup.
type OpenAIGenerator struct {
	model  string
	key    KeyFunc
	opts   []option.RequestOption
	logger *logx.Logger

	mu     sync.Mutex
	client *openai.Client
}

// NewOpenAIGenerator creates a generator for model. A nil key function reads the
// OpenAI key from the configuration.
func NewOpenAIGenerator(model string, key KeyFunc, opts ...option.RequestOption) *OpenAIGenerator {
	if key == nil {
		key = func() (string, error) { return config.GetAPIKey(config.ProviderOpenAI) }
	}
	return &OpenAIGenerator{model: model, key: key, opts: opts, logger: logx.NewLogger("imagegen")}
}

func (g *OpenAIGenerator) sdk() (*openai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.client != nil {
		return g.client, nil
	}
	apiKey, err := g.key()
	if err != nil {
		return nil, err
	}
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, g.opts...)...)
	g.client = &client
	return g.client, nil
}

// Generate creates one 1024x1024 image.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (Image, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return Image{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "empty image description")
	}
	client, err := g.sdk()
	if err != nil {
		return Image{}, fmt.Errorf("image generation unavailable: %w", err)
	}

	resp, err := client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(g.model),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Image{}, llmerrors.Classify(err, apiErr.StatusCode, "openai")
		}
		return Image{}, llmerrors.Classify(err, 0, "openai")
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return Image{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "image API returned no image")
	}

	g.logger.Info("generated image with %s", g.model)
	return Image{URL: resp.Data[0].URL, RevisedPrompt: resp.Data[0].RevisedPrompt}, nil
}
