package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/thesislens/internal/common"
)

// maxErrorBody bounds how much of a failed response ends up in an error message.
const maxErrorBody = 512

// SendJSON sends a JSON request to a full URL with optional headers and returns the raw response body.
// It does not assume any provider. Callers decide the URL and headers. A non-2xx status or a
// transport failure is returned already classified (see ClassifyHTTP).
func SendJSON(ctx context.Context, client *http.Client, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, int, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{}
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("llm.http.encode_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("encode json: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "error", err)
		return nil, 0, fmt.Errorf("build request: %w", err)
	}

	// Default headers; allow caller overrides.
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("llm.http.request",
		"req_id", reqID,
		"url", redactQuery(req),
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("llm.http.send_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, 0, ClassifyHTTP(0, nil, err)
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("llm.http.read_error", "req_id", reqID, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, resp.StatusCode, ClassifyHTTP(0, nil, err)
	}

	logger.Info("llm.http.response",
		"req_id", reqID,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return raw, resp.StatusCode, ClassifyHTTP(resp.StatusCode, raw, nil)
	}
	return raw, resp.StatusCode, nil
}

// ClassifyHTTP maps a transport error or an HTTP status onto the model error taxonomy:
//
//	401/403              -> ErrModelAuth (fatal)
//	429                  -> ErrModelQuota (fatal)
//	408, 5xx, transport  -> ErrModelUnavailable (retryable)
//	deadline exceeded    -> ErrModelTimeout (retryable)
//	other 4xx            -> ErrModelRejected (fatal)
//
// A cancelled context is returned as context.Canceled so callers can stop quietly.
func ClassifyHTTP(status int, body []byte, err error) error {
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			return context.Canceled
		case errors.Is(err, context.DeadlineExceeded):
			return common.NewModelTimeoutError("the model did not answer in time", err)
		default:
			return common.NewModelUnavailableError("the model service could not be reached", err)
		}
	}

	cause := fmt.Errorf("status %d: %s", status, truncate(body, maxErrorBody))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return common.NewModelAuthError("the model service rejected the API credentials", cause)
	case status == http.StatusTooManyRequests:
		return common.NewModelQuotaError("the model service quota is exhausted", cause)
	case status == http.StatusRequestTimeout || status >= 500:
		return common.NewModelUnavailableError("the model service is temporarily unavailable", cause)
	default:
		return common.NewModelRejectedError("the model service rejected the request", cause)
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// redactQuery keeps API keys passed as ?key= out of the logs.
func redactQuery(req *http.Request) string {
	u := *req.URL
	if u.RawQuery != "" {
		u.RawQuery = "redacted"
	}
	return u.String()
}
