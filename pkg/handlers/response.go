package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/clearquote-engine/pkg/apperrors"
	"github.com/ekaya-inc/clearquote-engine/pkg/llm"
	"github.com/ekaya-inc/clearquote-engine/pkg/logging"
	"github.com/ekaya-inc/clearquote-engine/pkg/middleware"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps a pipeline failure to a status and a generic
// message. Details go to the log only; SQL text never reaches the caller.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	status, code, message := classifyServiceError(err)

	fields := []zap.Field{
		zap.String("code", code),
		zap.String("error", logging.SanitizeError(err)),
		zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed", fields...)
	} else {
		logger.Info("Request rejected", fields...)
	}

	if err := ErrorResponse(w, status, code, message); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}

func classifyServiceError(err error) (status int, code, message string) {
	var (
		llmErr  *llm.Error
		execErr *apperrors.ExecutionError
	)
	switch {
	case errors.Is(err, apperrors.ErrEmptyQuestion):
		return http.StatusBadRequest, "missing_question", "A question is required."
	case errors.As(err, &llmErr) && llmErr.Type == llm.ErrorTypeResponse:
		return http.StatusBadGateway, "translation_failed", "The question could not be translated. Please rephrase it."
	case errors.As(err, &llmErr):
		return http.StatusBadGateway, "translator_unavailable", "The translation service is unavailable. Please try again later."
	case errors.As(err, &execErr):
		return http.StatusInternalServerError, apperrors.CodeExecution, "The query could not be executed."
	default:
		return http.StatusInternalServerError, apperrors.CodeInternal, "An internal error occurred."
	}
}
