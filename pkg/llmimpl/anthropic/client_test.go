package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/llm"
	"relaybot/pkg/llmerrors"
)

func TestEnsureAlternation(t *testing.T) {
	system, merged, err := ensureAlternation([]llm.Message{
		llm.SystemMessage("sys"),
		llm.UserMessage("a"),
		llm.UserMessage("b"),
		llm.AssistantMessage("c"),
		llm.UserMessage("d"),
	})
	require.NoError(t, err)
	assert.Equal(t, "sys", system)
	require.Len(t, merged, 3)
	assert.Equal(t, "a\n\nb", merged[0].Content)
	assert.Equal(t, llm.RoleAssistant, merged[1].Role)
}

func TestEnsureAlternationRejects(t *testing.T) {
	_, _, err := ensureAlternation([]llm.Message{llm.SystemMessage("only")})
	assert.Error(t, err)

	_, _, err = ensureAlternation([]llm.Message{llm.AssistantMessage("x")})
	assert.Error(t, err)

	_, _, err = ensureAlternation([]llm.Message{llm.UserMessage("x"), llm.AssistantMessage("y")})
	assert.Error(t, err)
}

func TestEnsureAlternationDropsLeadingAssistantTurns(t *testing.T) {
	system, merged, err := ensureAlternation([]llm.Message{
		llm.SystemMessage("sys"),
		llm.AssistantMessage("a1"),
		llm.UserMessage("q2"),
		llm.AssistantMessage("a2"),
		llm.UserMessage("q3"),
	})
	require.NoError(t, err)
	assert.Equal(t, "sys", system)
	assert.Equal(t, []llm.Message{
		llm.UserMessage("q2"),
		llm.AssistantMessage("a2"),
		llm.UserMessage("q3"),
	}, merged)
}

func TestCompleteSendsAlternatingRoles(t *testing.T) {
	var body struct {
		Messages []struct {
			Role    string `json:"role"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"messages"`
		System []struct {
			Text string `json:"text"`
		} `json:"system"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_2", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "ok"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 1, "output_tokens": 1}
		}`))
	}))
	defer srv.Close()

	client := NewClaudeClientWithModel("key", "claude-sonnet-4-5", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := client.Complete(context.Background(), llm.NewRequest([]llm.Message{
		llm.SystemMessage("be brief"),
		llm.AssistantMessage("stale answer"),
		llm.UserMessage("q1"),
		llm.AssistantMessage("a1"),
		llm.UserMessage("q2"),
	}))
	require.NoError(t, err)

	require.Len(t, body.Messages, 3)
	assert.Equal(t, "user", body.Messages[0].Role)
	assert.Equal(t, "assistant", body.Messages[1].Role)
	assert.Equal(t, "user", body.Messages[2].Role)
	require.Len(t, body.Messages[1].Content, 1)
	assert.Equal(t, "text", body.Messages[1].Content[0].Type)
	assert.Equal(t, "a1", body.Messages[1].Content[0].Text)
	require.Len(t, body.System, 1)
	assert.Equal(t, "be brief", body.System[0].Text)
}

func TestCompleteAgainstFakeServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "hello there"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 12, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	client := NewClaudeClientWithModel("key", "claude-sonnet-4-5", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	resp, err := client.Complete(context.Background(), llm.NewRequest([]llm.Message{llm.UserMessage("hi")}))

	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 12, resp.Usage.InputTokens)
	assert.Equal(t, "claude-sonnet-4-5", client.ModelName())
}

func TestCompleteClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	client := NewClaudeClientWithModel("key", "claude-sonnet-4-5", option.WithBaseURL(srv.URL), option.WithMaxRetries(0))
	_, err := client.Complete(context.Background(), llm.NewRequest([]llm.Message{llm.UserMessage("hi")}))

	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeRateLimit))
}
