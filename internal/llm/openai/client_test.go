package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

func TestGenerate_ChatCompletions(t *testing.T) {
	var auth string
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"report\":\"ok\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "m", JSONMode: true}, srv.Client(), nil)
	out, err := c.Generate(context.Background(), "prompt text")
	require.NoError(t, err)

	assert.Equal(t, `{"report":"ok"}`, out)
	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "m", body["model"])
	msgs := body["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "prompt text", msgs[1].(map[string]any)["content"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
}

func TestGenerate_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"bad key"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "x", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrModelAuth))
}

func TestGenerate_UnreachableIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{APIKey: "x", BaseURL: url}, nil, nil)
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, common.IsRetryable(err))
}
