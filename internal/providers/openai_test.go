package providers

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
)

func TestOpenAIGenerate(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		b, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(b, &raw))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Hello"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider(OpenAIOptions{BaseURL: srv.URL + "/v1/", APIKey: "k", Model: "m1", Timeout: time.Second, HTTPClient: srv.Client()})
	resp, info, err := p.Generate(context.Background(), GenerateRequest{
		Operation: "format", System: "sys", Prompt: "user text", MaxTokens: 321, Temperature: 0,
	})
	require.NoError(t, err)
	assert.Equal(t, "Hello", resp.Text)
	assert.Equal(t, ProviderInfo{Name: "openai", Model: "m1"}, info)

	assert.Equal(t, "m1", raw["model"])
	assert.EqualValues(t, 321, raw["max_tokens"])
	temp, ok := raw["temperature"]
	require.True(t, ok, "temperature must be sent even when zero")
	assert.EqualValues(t, 0, temp)
	msgs := raw["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, map[string]any{"role": "system", "content": "sys"}, msgs[0])
	assert.Equal(t, map[string]any{"role": "user", "content": "user text"}, msgs[1])
}

func generateAgainst(t *testing.T, status int, body string) error {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()
	p := NewOpenAIProvider(OpenAIOptions{BaseURL: srv.URL, APIKey: "k", HTTPClient: srv.Client()})
	_, _, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	return err
}

func TestOpenAIGenerateErrors(t *testing.T) {
	err := generateAgainst(t, http.StatusTooManyRequests, `{"error":"rate limited"}`)
	require.Error(t, err)
	assert.Equal(t, ErrorRate, ClassifyError(err))

	err = generateAgainst(t, http.StatusOK, `{"choices":[]}`)
	require.Error(t, err)
	assert.Equal(t, ErrorMalformed, ClassifyError(err))

	err = generateAgainst(t, http.StatusOK, `not json`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestOpenAIMissingKey(t *testing.T) {
	p := NewOpenAIProvider(OpenAIOptions{})
	_, info, err := p.Generate(context.Background(), GenerateRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Equal(t, "gpt-4o-mini", info.Model)
}
