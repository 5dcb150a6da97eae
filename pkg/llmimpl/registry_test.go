package llmimpl

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/config"
	"relaybot/pkg/llm"
)

type fakeClient struct{ model, credential string }

func (f *fakeClient) Complete(_ context.Context, _ llm.Request) (llm.Response, error) {
	return llm.Response{Content: f.credential}, nil
}

func (f *fakeClient) ModelName() string { return f.model }

func TestRegistryCachesPerModel(t *testing.T) {
	built := 0
	reg := NewRegistry().
		WithCredentials(func(provider string) (string, error) { return "key-" + provider, nil }).
		WithFactory(config.ProviderOpenAI, func(credential, model string) llm.Client {
			built++
			return &fakeClient{model: model, credential: credential}
		})

	a, err := reg.Client("gpt-4o-mini")
	require.NoError(t, err)
	b, err := reg.Client("gpt-4o-mini")
	require.NoError(t, err)
	c, err := reg.Client("gpt-4o")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, built)

	resp, err := a.Complete(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "key-openai", resp.Content)
}

func TestRegistryMissingCredentialNotCached(t *testing.T) {
	available := false
	reg := NewRegistry().
		WithCredentials(func(provider string) (string, error) {
			if !available {
				return "", fmt.Errorf("%w: test", config.ErrMissingCredential)
			}
			return "k", nil
		}).
		WithFactory(config.ProviderAnthropic, func(credential, model string) llm.Client {
			return &fakeClient{model: model, credential: credential}
		})

	_, err := reg.Client("claude-sonnet-4-5")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrMissingCredential))

	available = true
	client, err := reg.Client("claude-sonnet-4-5")
	require.NoError(t, err)
	assert.Equal(t, "claude-sonnet-4-5", client.ModelName())
}

func TestRegistryUnknownModel(t *testing.T) {
	_, err := NewRegistry().Client("mystery")
	assert.Error(t, err)
}

func TestRegistryAppliesMiddleware(t *testing.T) {
	var seen []string
	mw := func(next llm.Client) llm.Client {
		return llm.Wrap(next.ModelName(), func(ctx context.Context, req llm.Request) (llm.Response, error) {
			seen = append(seen, next.ModelName())
			return next.Complete(ctx, req)
		})
	}
	reg := NewRegistry(mw).
		WithCredentials(func(string) (string, error) { return "k", nil }).
		WithFactory(config.ProviderGoogle, func(credential, model string) llm.Client {
			return &fakeClient{model: model, credential: credential}
		})

	client, err := reg.Client("gemini-2.5-flash")
	require.NoError(t, err)
	_, err = client.Complete(context.Background(), llm.Request{})
	require.NoError(t, err)
	assert.Equal(t, []string{"gemini-2.5-flash"}, seen)
}
