package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/paper-digest/internal/domain/digest"
	"github.com/target/paper-digest/internal/domain/retry"
)

var testPrompt = digest.Prompt{System: "be brief", User: "<paper_text>hello</paper_text>"}

func TestConstructorsRequireAPIKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), Config{})
	require.ErrorIs(t, err, ErrAPIKeyRequired)

	_, err = NewAnthropicClient(Config{APIKey: "  "})
	require.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestAnthropicClient_Generate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-test",
			"content": [{"type": "text", "text": "<digest><title>T</title>"}, {"type": "text", "text": "</digest>"}],
			"stop_reason": "end_turn", "usage": {"input_tokens": 10, "output_tokens": 5}
		}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(Config{APIKey: "k", Model: "claude-test", BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-test", c.Name())

	reply, err := c.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "<digest><title>T</title></digest>", reply)
	assert.Equal(t, "claude-test", got["model"])
	assert.NotNil(t, got["system"])
}

func TestAnthropicClient_RateLimitMapsToStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"rate_limit_error","message":"slow down"}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropicClient(Config{APIKey: "k", BaseURL: srv.URL, Timeout: 5 * time.Second})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testPrompt)
	var status *retry.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusTooManyRequests, status.Code)
	assert.True(t, retry.Transient(err))
}

func TestGeminiClient_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"<title>Sleep</title>"}]}}]}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), Config{APIKey: "k", Model: "gemini-test", BaseURL: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "gemini/gemini-test", c.Name())

	reply, err := c.Generate(context.Background(), testPrompt)
	require.NoError(t, err)
	assert.Equal(t, "<title>Sleep</title>", reply)
}

func TestGeminiClient_ClientErrorIsNotTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"API key not valid","status":"INVALID_ARGUMENT"}}`))
	}))
	defer srv.Close()

	c, err := NewGeminiClient(context.Background(), Config{APIKey: "k", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), testPrompt)
	var status *retry.StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, http.StatusBadRequest, status.Code)
	assert.False(t, retry.Transient(err))
}

func TestStatusErrorTruncatesMessage(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	err := statusError("p", 503, string(long))
	var status *retry.StatusError
	require.ErrorAs(t, err, &status)
	assert.Len(t, status.Message, 200)
}
