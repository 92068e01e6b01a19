// Package errors defines the HTTP error envelope and the mapping from
// domain errors to HTTP status codes.
package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/3leaps/spoolwatch/internal/observability"
	"github.com/3leaps/spoolwatch/pkg/monitor"
	"github.com/3leaps/spoolwatch/pkg/provider"
)

// Error codes carried in the envelope.
const (
	CodeBadRequest         = "BAD_REQUEST"
	CodeNotFound           = "NOT_FOUND"
	CodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	CodeConflict           = "CONFLICT"
	CodeForbidden          = "FORBIDDEN"
	CodeUnsupported        = "UNSUPPORTED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeServiceUnavailable = "SERVICE_UNAVAILABLE"
	CodeExternalService    = "EXTERNAL_SERVICE_UNAVAILABLE"
)

// HTTPError is the body of an error response.
type HTTPError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	RequestID string         `json:"request_id,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// HTTPErrorResponse wraps HTTPError as {"error": {...}}.
type HTTPErrorResponse struct {
	Error HTTPError `json:"error"`
}

// AppError is an error with an HTTP status and envelope code.
type AppError struct {
	Status  int
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// WithDetails returns a copy of e carrying details.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

func NewBadRequest(msg string) *AppError {
	return &AppError{Status: http.StatusBadRequest, Code: CodeBadRequest, Message: msg}
}

func NewNotFound(msg string) *AppError {
	return &AppError{Status: http.StatusNotFound, Code: CodeNotFound, Message: msg}
}

func NewServiceUnavailable(msg string) *AppError {
	return &AppError{Status: http.StatusServiceUnavailable, Code: CodeServiceUnavailable, Message: msg}
}

// NewExternalServiceError reports a dependency outside this process that
// cannot be reached.
func NewExternalServiceError(msg string) *AppError {
	return &AppError{Status: http.StatusBadGateway, Code: CodeExternalService, Message: msg}
}

// WrapInternal wraps err as a 500, tagging it with the request id in ctx.
func WrapInternal(ctx context.Context, err error, msg string) *AppError {
	ae := &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: msg, Err: err}
	if id := RequestIDFromContext(ctx); id != "" {
		ae.Details = map[string]any{"request_id": id}
	}
	return ae
}

// FromError classifies err. AppErrors pass through; provider and monitor
// sentinels map to their HTTP equivalents; anything else is a 500.
func FromError(err error) *AppError {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae
	}

	wrap := func(status int, code string) *AppError {
		return &AppError{Status: status, Code: code, Message: err.Error(), Err: err}
	}
	switch {
	case provider.IsDeviceNotFound(err), provider.IsJobNotFound(err):
		return wrap(http.StatusNotFound, CodeNotFound)
	case provider.IsAccessDenied(err):
		return wrap(http.StatusForbidden, CodeForbidden)
	case errors.Is(err, provider.ErrUnsupportedCommand):
		return wrap(http.StatusNotImplemented, CodeUnsupported)
	case provider.IsProviderUnavailable(err):
		return wrap(http.StatusBadGateway, CodeExternalService)
	case errors.Is(err, monitor.ErrAlreadyRunning):
		return wrap(http.StatusConflict, CodeConflict)
	case errors.Is(err, monitor.ErrNoDevice):
		return wrap(http.StatusBadRequest, CodeBadRequest)
	case errors.Is(err, context.DeadlineExceeded):
		return wrap(http.StatusGatewayTimeout, CodeServiceUnavailable)
	}
	return &AppError{Status: http.StatusInternalServerError, Code: CodeInternal, Message: "internal error", Err: err}
}

// RespondWithError writes err as a JSON envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, err error) {
	ae := FromError(err)
	if ae.Status >= http.StatusInternalServerError {
		observability.CLILogger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestIDFromContext(r.Context())),
			zap.Error(err))
	}
	Write(w, ae.Status, HTTPError{
		Code:      ae.Code,
		Message:   ae.Message,
		RequestID: RequestIDFromContext(r.Context()),
		Details:   ae.Details,
	})
}

// Write encodes body as the error envelope with status.
func Write(w http.ResponseWriter, status int, body HTTPError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(HTTPErrorResponse{Error: body})
}

type requestIDKey struct{}

// WithRequestID stores a request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the request id stored in ctx, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
