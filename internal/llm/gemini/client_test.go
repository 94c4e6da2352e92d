package gemini

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

func TestGenerate_SendsPromptAndJoinsParts(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"# Report"},{"text":"\n\nok"}]},"finishReason":"STOP"}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k-123", BaseURL: srv.URL, Model: "gemini-test", JSONMode: true}, srv.Client(), nil)
	out, err := c.Generate(context.Background(), "analyse this")
	require.NoError(t, err)

	assert.Equal(t, "# Report\n\nok", out)
	assert.Equal(t, "/models/gemini-test:generateContent", gotPath)
	assert.Equal(t, "k-123", gotKey)
	contents := gotBody["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	assert.Equal(t, "analyse this", parts[0].(map[string]any)["text"])
	cfg := gotBody["generationConfig"].(map[string]any)
	assert.Equal(t, "application/json", cfg["responseMimeType"])
}

func TestGenerate_NoCandidatesIsEmptyText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	out, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestGenerate_StatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusForbidden, common.ErrModelAuth},
		{http.StatusTooManyRequests, common.ErrModelQuota},
		{http.StatusServiceUnavailable, common.ErrModelUnavailable},
		{http.StatusBadRequest, common.ErrModelRejected},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			_, _ = w.Write([]byte(`{"error":{"message":"nope"}}`))
		}))
		c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
		_, err := c.Generate(context.Background(), "p")
		srv.Close()

		require.Error(t, err)
		assert.True(t, errors.Is(err, tt.sentinel), "status %d: %v", tt.status, err)
	}
}

func TestGenerate_BlockedPrompt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, srv.Client(), nil)
	_, err := c.Generate(context.Background(), "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrModelRejected))
	assert.False(t, common.IsRetryable(err))
}
