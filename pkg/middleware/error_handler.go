package middleware

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"runtime/debug"
	"time"

	"dosewise/pkg/errors"

	"github.com/rs/zerolog/log"
)

// Context key for request ID
type contextKey string

const requestIDKey contextKey = "requestID"

// ErrorHandler middleware for handling panics and errors
func ErrorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				requestID := GetRequestID(r.Context())
				log.Error().
					Str("request_id", requestID).
					Interface("panic", err).
					Bytes("stack", debug.Stack()).
					Msg("panic recovered")
				HandleError(w, r, errors.NewInternalError("Internal server error"))
			}
		}()

		// Check for request timeout/cancellation
		select {
		case <-r.Context().Done():
			if r.Context().Err() == context.DeadlineExceeded {
				HandleError(w, r, errors.NewRequestTimeoutError("Request timeout"))
			} else {
				HandleError(w, r, errors.NewInternalError("Request cancelled"))
			}
			return
		default:
		}

		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware generates a unique request ID for each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := generateRequestID()
		ctx := context.WithValue(r.Context(), requestIDKey, requestID)

		// Add request ID to response header
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TimeoutMiddleware adds request timeout
func TimeoutMiddleware(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggingMiddleware logs HTTP requests with request ID
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := GetRequestID(r.Context())

		next.ServeHTTP(w, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request completed")
	})
}

// HandleError writes an error response using the ApiResponse format
func HandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetRequestID(r.Context())

	if appErr, ok := err.(*errors.ApplicationError); ok {
		log.Warn().
			Str("request_id", requestID).
			Int("status", appErr.Status).
			Str("code", appErr.Code).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg(appErr.Message)

		sendApiErrorResponse(w, requestID, appErr.Status, appErr.Code, appErr.Message)
	} else {
		log.Error().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Err(err).
			Msg("unexpected error")

		sendApiErrorResponse(w, requestID, 500, "INTERNAL_ERROR", "Internal server error")
	}
}

// sendApiErrorResponse sends a standardized API error response
func sendApiErrorResponse(w http.ResponseWriter, requestID string, statusCode int, code, message string) {
	response := map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"request_id": requestID,
		"timestamp":  time.Now().UTC(),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// GetRequestID extracts request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return "unknown"
}

// generateRequestID creates a unique request ID
func generateRequestID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}
