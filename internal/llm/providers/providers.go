// Package providers builds the configured llm.Generator.
package providers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/joseph-ayodele/thesislens/internal/common"
	"github.com/joseph-ayodele/thesislens/internal/llm"
	"github.com/joseph-ayodele/thesislens/internal/llm/gemini"
	"github.com/joseph-ayodele/thesislens/internal/llm/openai"
	"github.com/joseph-ayodele/thesislens/internal/llm/vertex"
)

// New returns the provider named in cfg wrapped in llm.Retrying, plus a close
// function for providers that hold connections. jsonMode asks the provider for
// a JSON response type when it supports one.
func New(ctx context.Context, cfg common.LLMConfig, jsonMode bool, logger *slog.Logger) (llm.Generator, func() error, error) {
	if logger == nil {
		logger = slog.Default()
	}
	noop := func() error { return nil }
	httpClient := &http.Client{}

	var base llm.Generator
	closeFn := noop
	switch cfg.Provider {
	case "gemini":
		base = gemini.NewClient(gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			JSONMode:    jsonMode,
		}, httpClient, logger)
	case "openai":
		base = openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			JSONMode:    jsonMode,
		}, httpClient, logger)
	case "vertex":
		vc, err := vertex.NewClient(ctx, vertex.Config{
			Project:         cfg.VertexProject,
			Location:        cfg.VertexLocation,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			CredentialsFile: cfg.VertexCredFile,
			JSONMode:        jsonMode,
		}, logger)
		if err != nil {
			return nil, noop, err
		}
		base, closeFn = vc, vc.Close
	default:
		return nil, noop, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}

	logger.Info("llm.provider.ready",
		"provider", cfg.Provider,
		"model", cfg.Model,
		"max_attempts", cfg.MaxAttempts,
		"timeout", cfg.Timeout.String(),
	)
	gen := llm.NewRetrying(base,
		llm.WithMaxAttempts(cfg.MaxAttempts),
		llm.WithAttemptTimeout(cfg.Timeout),
		llm.WithBackoff(cfg.BaseBackoff, cfg.MaxBackoff),
		llm.WithRetryLogger(logger),
	)
	return gen, closeFn, nil
}
