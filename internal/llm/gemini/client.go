// Package gemini talks to the Generative Language REST API with an API key.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/llm"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config for the Gemini REST client.
type Config struct {
	APIKey      string
	BaseURL     string // default generativelanguage v1beta
	Model       string // default gemini-1.5-flash
	Temperature float32
	// JSONMode sets responseMimeType application/json.
	JSONMode bool
}

type Client struct {
	cfg        Config
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg Config, httpClient *http.Client, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, httpClient: httpClient, log: logger}
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
}

// Generate implements llm.Generator with models/{model}:generateContent.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	c.log.Info("llm.generate.start",
		"req_id", rid,
		"provider", "gemini",
		"model", c.cfg.Model,
		"prompt_len", len(prompt),
	)

	genCfg := map[string]any{"temperature": c.cfg.Temperature}
	if c.cfg.JSONMode {
		genCfg["responseMimeType"] = "application/json"
	}
	body := map[string]any{
		"contents":         []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		"generationConfig": genCfg,
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.Model), url.QueryEscape(c.cfg.APIKey))
	raw, _, err := llm.SendJSON(ctx, c.httpClient, endpoint, body, nil, c.log)
	if err != nil {
		c.log.Error("llm.generate.http_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", common.NewModelUnavailableError("the model returned an unreadable response", fmt.Errorf("decode gemini response: %w", err))
	}
	if br := resp.PromptFeedback.BlockReason; br != "" {
		c.log.Warn("llm.generate.blocked", "req_id", rid, "reason", br)
		return "", common.NewModelRejectedError("the model refused to analyse this document", fmt.Errorf("prompt blocked: %s", br))
	}
	text := candidateText(resp)
	c.log.Info("llm.generate.ok",
		"req_id", rid,
		"provider", "gemini",
		"candidates", len(resp.Candidates),
		"answer_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

// candidateText joins the text parts of the first candidate.
func candidateText(resp generateResponse) string {
	if len(resp.Candidates) == 0 {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	return b.String()
}
