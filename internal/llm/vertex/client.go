// Package vertex calls Gemini models through Vertex AI with application default
// credentials (or an explicit service account file).
package vertex

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// Config for the Vertex AI client.
type Config struct {
	Project         string
	Location        string // default us-central1
	Model           string // default gemini-1.5-flash
	Temperature     float32
	CredentialsFile string // optional; ADC otherwise
	JSONMode        bool
}

// contentGenerator is the slice of *genai.GenerativeModel the client needs.
type contentGenerator interface {
	GenerateContent(ctx context.Context, parts ...genai.Part) (*genai.GenerateContentResponse, error)
}

type Client struct {
	cfg   Config
	model contentGenerator
	close func() error
	log   *slog.Logger
}

// NewClient dials Vertex AI. Close releases the underlying connection.
func NewClient(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Project == "" {
		return nil, common.NewInvalidInputError("vertex: project is required")
	}
	if cfg.Location == "" {
		cfg.Location = "us-central1"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if logger == nil {
		logger = slog.Default()
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	gc, err := genai.NewClient(ctx, cfg.Project, cfg.Location, opts...)
	if err != nil {
		return nil, fmt.Errorf("vertex client: %w", err)
	}
	m := gc.GenerativeModel(cfg.Model)
	m.SetTemperature(cfg.Temperature)
	if cfg.JSONMode {
		m.ResponseMIMEType = "application/json"
	}
	return &Client{cfg: cfg, model: m, close: gc.Close, log: logger}, nil
}

// newWithModel is used by tests to bypass the network.
func newWithModel(cfg Config, m contentGenerator, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{cfg: cfg, model: m, close: func() error { return nil }, log: logger}
}

func (c *Client) Close() error { return c.close() }

// Generate implements llm.Generator.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	rid := common.RequestIDFromContext(ctx)
	start := time.Now()
	c.log.Info("llm.generate.start",
		"req_id", rid,
		"provider", "vertex",
		"model", c.cfg.Model,
		"prompt_len", len(prompt),
	)

	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		c.log.Error("llm.generate.rpc_error", "req_id", rid, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", classify(err)
	}

	text := responseText(resp)
	c.log.Info("llm.generate.ok",
		"req_id", rid,
		"provider", "vertex",
		"answer_len", len(text),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, p := range resp.Candidates[0].Content.Parts {
		if t, ok := p.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// classify maps gRPC status codes onto the model error taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return common.NewModelTimeoutError("the model did not answer in time", err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return common.NewModelUnavailableError("the model service could not be reached", err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return common.NewModelAuthError("the model service rejected the credentials", err)
	case codes.ResourceExhausted:
		return common.NewModelQuotaError("the model service quota is exhausted", err)
	case codes.DeadlineExceeded:
		return common.NewModelTimeoutError("the model did not answer in time", err)
	case codes.Unavailable, codes.Internal, codes.Aborted, codes.Unknown:
		return common.NewModelUnavailableError("the model service is temporarily unavailable", err)
	default:
		return common.NewModelRejectedError("the model service rejected the request", err)
	}
}
