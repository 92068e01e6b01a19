// Package middleware holds HTTP middleware shared by the spoolwatch server.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	apperrors "github.com/3leaps/spoolwatch/internal/errors"
	"github.com/3leaps/spoolwatch/internal/observability"
)

// ErrorResponse is the JSON body written for recovered panics.
type ErrorResponse = apperrors.HTTPErrorResponse

// Recovery converts a handler panic into a 500 error envelope.
func Recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			requestID := apperrors.RequestIDFromContext(r.Context())
			observability.CLILogger.Error("Handler panic",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("request_id", requestID),
				zap.Any("panic", rec),
				zap.ByteString("stack", debug.Stack()))

			writeErrorResponse(w, apperrors.HTTPError{
				Code:      apperrors.CodeInternal,
				Message:   fmt.Sprintf("panic: %v", rec),
				RequestID: requestID,
			}, http.StatusInternalServerError)
		}()
		next.ServeHTTP(w, r)
	})
}

// ErrorHandler is Recovery under the name the router setup uses.
func ErrorHandler(next http.Handler) http.Handler {
	return Recovery(next)
}

func writeErrorResponse(w http.ResponseWriter, body apperrors.HTTPError, status int) {
	apperrors.Write(w, status, body)
}
