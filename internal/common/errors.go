package common

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error taxonomy. Every AppError built by the constructors below wraps exactly one of these.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrExtraction       = errors.New("pdf extraction failed")
	ErrModelUnavailable = errors.New("model unavailable")
	ErrModelTimeout     = errors.New("model timed out")
	ErrModelAuth        = errors.New("model authentication failed")
	ErrModelQuota       = errors.New("model quota exhausted")
	ErrModelRejected    = errors.New("model rejected the request")
	ErrEmptyResponse    = errors.New("empty model response")
	ErrRender           = errors.New("report rendering failed")
	ErrDelivery         = errors.New("delivery failed")
	ErrDatabase         = errors.New("database error")
	ErrNotFound         = errors.New("not found")
)

const (
	CodeInvalidInput     = "INVALID_INPUT"
	CodeExtraction       = "EXTRACTION_ERROR"
	CodeModelUnavailable = "MODEL_UNAVAILABLE"
	CodeModelTimeout     = "MODEL_TIMEOUT"
	CodeModelAuth        = "MODEL_AUTH"
	CodeModelQuota       = "MODEL_QUOTA"
	CodeModelRejected    = "MODEL_REJECTED"
	CodeEmptyResponse    = "EMPTY_RESPONSE"
	CodeRender           = "RENDER_ERROR"
	CodeDelivery         = "DELIVERY_ERROR"
	CodeConfig           = "CONFIG_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodeDatabase         = "DATABASE_ERROR"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func NewInvalidInputError(message string) *AppError {
	return NewAppError(CodeInvalidInput, message, ErrInvalidInput)
}

func NewExtractionError(message string, cause error) *AppError {
	return NewAppError(CodeExtraction, message, join(ErrExtraction, cause))
}

func NewModelUnavailableError(message string, cause error) *AppError {
	return NewAppError(CodeModelUnavailable, message, join(ErrModelUnavailable, cause))
}

func NewModelTimeoutError(message string, cause error) *AppError {
	return NewAppError(CodeModelTimeout, message, join(ErrModelTimeout, cause))
}

func NewModelAuthError(message string, cause error) *AppError {
	return NewAppError(CodeModelAuth, message, join(ErrModelAuth, cause))
}

func NewModelQuotaError(message string, cause error) *AppError {
	return NewAppError(CodeModelQuota, message, join(ErrModelQuota, cause))
}

func NewModelRejectedError(message string, cause error) *AppError {
	return NewAppError(CodeModelRejected, message, join(ErrModelRejected, cause))
}

func NewEmptyResponseError(message string) *AppError {
	return NewAppError(CodeEmptyResponse, message, ErrEmptyResponse)
}

func NewRenderError(message string, cause error) *AppError {
	return NewAppError(CodeRender, message, join(ErrRender, cause))
}

func NewDeliveryError(message string, cause error) *AppError {
	return NewAppError(CodeDelivery, message, join(ErrDelivery, cause))
}

func NewNotFoundError(message string) *AppError {
	return NewAppError(CodeNotFound, message, ErrNotFound)
}

func NewDatabaseError(message string, cause error) *AppError {
	return NewAppError(CodeDatabase, message, join(ErrDatabase, cause))
}

func join(sentinel, cause error) error {
	if cause == nil {
		return sentinel
	}
	return errors.Join(sentinel, cause)
}

// IsRetryable reports whether a model error is transient (timeout or 5xx-like).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrModelTimeout) || errors.Is(err, ErrModelUnavailable)
}

// UserMessage returns the human-readable message surfaced inline to the user.
func UserMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "the analysis could not be completed"
}

// HTTPStatus maps an error onto the status code the HTTP surface answers with.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrExtraction):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrModelTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrModelUnavailable), errors.Is(err, ErrModelAuth),
		errors.Is(err, ErrModelQuota), errors.Is(err, ErrModelRejected), errors.Is(err, ErrEmptyResponse):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// GRPCStatus converts an error into a gRPC status error carrying the user message.
func GRPCStatus(err error) error {
	msg := UserMessage(err)
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrExtraction):
		return status.Error(codes.InvalidArgument, msg)
	case errors.Is(err, ErrModelTimeout):
		return status.Error(codes.DeadlineExceeded, msg)
	case errors.Is(err, ErrModelUnavailable), errors.Is(err, ErrEmptyResponse):
		return status.Error(codes.Unavailable, msg)
	case errors.Is(err, ErrModelAuth):
		return status.Error(codes.Unauthenticated, msg)
	case errors.Is(err, ErrModelQuota):
		return status.Error(codes.ResourceExhausted, msg)
	case errors.Is(err, ErrModelRejected):
		return status.Error(codes.FailedPrecondition, msg)
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, msg)
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, msg)
	default:
		return status.Error(codes.Internal, msg)
	}
}
