package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"relaybot/pkg/llm"
	"relaybot/pkg/llmerrors"
)

func TestCompleteStripsPrefixAndParses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "phi4", req.Model)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"phi4","message":{"role":"assistant","content":"hi"},"done":true,"done_reason":"length","prompt_eval_count":5,"eval_count":2}`))
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "ollama:phi4")
	resp, err := client.Complete(context.Background(), llm.NewRequest([]llm.Message{llm.UserMessage("yo")}))

	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Content)
	assert.Equal(t, "max_tokens", resp.StopReason)
	assert.Equal(t, 5, resp.Usage.InputTokens)
	assert.Equal(t, "ollama:phi4", client.ModelName())
}

func TestCompleteEmptyAnswer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"model":"m","message":{"role":"assistant","content":"  "},"done":true}`))
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "llama3")
	_, err := client.Complete(context.Background(), llm.NewRequest([]llm.Message{llm.UserMessage("yo")}))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "incomplete", getStopReason(&api.ChatResponse{}))
	assert.Equal(t, "end_turn", getStopReason(&api.ChatResponse{Done: true}))
	assert.Equal(t, "load", getStopReason(&api.ChatResponse{Done: true, DoneReason: "load"}))
}

func TestClassifyNotFound(t *testing.T) {
	err := classifyError(api.StatusError{StatusCode: http.StatusNotFound, ErrorMessage: "model not found"})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))

	err = classifyError(api.StatusError{StatusCode: http.StatusServiceUnavailable})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeTransient))
}
