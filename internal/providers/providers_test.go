package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChamsBouzaiene/agentcli/internal/engine"
)

func TestNew(t *testing.T) {
	for _, name := range []string{"claude", "GPT", "gemini"} {
		c, err := New(name, Options{})
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(name), c.Name())
		assert.NotEmpty(t, DefaultModel(name))
	}

	_, err := New("llama", Options{})
	assert.True(t, engine.IsKind(err, engine.KindInvalidInput))
	assert.Equal(t, []string{"claude", "gemini", "gpt"}, Names())
	assert.Equal(t, []string{"CLAUDE_API_KEY", "ANTHROPIC_API_KEY"}, EnvKeys(Claude))
}

func TestCall_MissingKey(t *testing.T) {
	for _, name := range Names() {
		c, _ := New(name, Options{})
		_, err := c.Call(context.Background(), " ", "hi", CallOptions{})
		assert.True(t, engine.IsKind(err, engine.KindUpstreamAuth), name)
		assert.False(t, c.TestAPIKey(context.Background(), ""))
	}
}

func TestClaude_Call(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/messages"))
		assert.Equal(t, "good-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"m",
			"content":[{"type":"text","text":"Hello "},{"type":"text","text":"there"}],
			"stop_reason":"end_turn","usage":{"input_tokens":3,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c := NewClaude(Options{BaseURL: srv.URL})
	reply, err := c.Call(context.Background(), "good-key", "say hi", CallOptions{MaxTokens: 50, Temperature: 0.5})
	require.NoError(t, err)
	assert.Equal(t, "Hello there", reply)
	assert.Equal(t, DefaultModel(Claude), got["model"])
	assert.EqualValues(t, 50, got["max_tokens"])
	assert.True(t, c.TestAPIKey(context.Background(), "good-key"))
}

func TestClaude_AuthError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))
	defer srv.Close()

	c := NewClaude(Options{BaseURL: srv.URL})
	_, err := c.Call(context.Background(), "bad-key", "hi", CallOptions{})
	require.Error(t, err)
	var e *engine.Error
	require.True(t, errors.As(err, &e))
	assert.Equal(t, engine.KindUpstreamAuth, e.Kind)
	assert.Equal(t, Claude, e.Provider)
	assert.False(t, c.TestAPIKey(context.Background(), "bad-key"))
}

func TestGPT_Call(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req["model"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","object":"chat.completion","model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":" done \n"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	reply, err := NewGPT(Options{BaseURL: srv.URL}).Call(context.Background(), "k", "hi", CallOptions{Model: "gpt-test"})
	require.NoError(t, err)
	assert.Equal(t, "done", reply)
}

func TestGPT_ErrorKinds(t *testing.T) {
	tests := []struct {
		status int
		kind   engine.Kind
	}{
		{http.StatusUnauthorized, engine.KindUpstreamAuth},
		{http.StatusTooManyRequests, engine.KindUpstreamRateLimit},
		{http.StatusBadGateway, engine.KindUpstreamServer},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(`{"error":{"message":"nope","type":"error"}}`))
			}))
			defer srv.Close()

			_, err := NewGPT(Options{BaseURL: srv.URL}).Call(context.Background(), "k", "hi", CallOptions{})
			assert.Equal(t, tt.kind, engine.KindOf(err))
			assert.Equal(t, tt.kind == engine.KindUpstreamServer, engine.Retryable(err))
		})
	}
}

func TestGPT_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewGPT(Options{BaseURL: srv.URL}).Call(context.Background(), "k", "hi", CallOptions{})
	assert.True(t, engine.IsKind(err, engine.KindUpstreamServer))
}

func TestGeminiText(t *testing.T) {
	assert.Empty(t, geminiText(nil))
	assert.Empty(t, geminiText(&genai.GenerateContentResponse{}))

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []genai.Part{genai.Text("a"), genai.Blob{MIMEType: "image/png"}, genai.Text("b")}},
	}}}
	assert.Equal(t, "ab", geminiText(resp))
}

func TestClassify(t *testing.T) {
	err := classify(Gemini, http.StatusTooManyRequests, errors.New("quota"))
	assert.True(t, engine.IsKind(err, engine.KindUpstreamRateLimit))
	assert.Contains(t, err.Error(), "gemini")
	assert.Nil(t, classify(Gemini, 500, nil))
}
