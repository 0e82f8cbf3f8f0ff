package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/anonymizer"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/llm"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/pipeline"
	"github.com/ekaya-inc/ekaya-insights/pkg/validator"
)

// ApiResponse is the envelope of successful responses.
type ApiResponse struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
}

// RejectionResponse is the body of a refused query. Errors lists every
// problem found, so a caller can fix them in one round trip.
type RejectionResponse struct {
	Error   string             `json:"error"`
	Message string             `json:"message"`
	Errors  []*apperrors.Error `json:"errors,omitempty"`
}

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
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// StatusForKind maps an error kind to its HTTP status.
func StatusForKind(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindAccessDenied:
		return http.StatusForbidden
	case apperrors.KindUnknownTenant:
		return http.StatusNotFound
	case apperrors.KindCatalogLoad:
		return http.StatusServiceUnavailable
	case apperrors.KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

// WritePipelineError turns a pipeline failure into a JSON response.
// Rejections become 4xx bodies listing every problem; infrastructure
// failures are logged and reported without detail.
func WritePipelineError(w http.ResponseWriter, err error, logger *zap.Logger) {
	var (
		status int
		body   RejectionResponse
		verrs  *validator.ValidationErrors
		appErr *apperrors.Error
		llmErr   *llm.Error
		unmapped *anonymizer.UnmappedError
	)

	switch {
	case errors.As(err, &verrs):
		status = http.StatusUnprocessableEntity
		body = RejectionResponse{Error: "validation_failed", Message: "The query was rejected", Errors: verrs.Errors}
	case errors.As(err, &unmapped):
		status = http.StatusUnprocessableEntity
		body = RejectionResponse{Error: string(apperrors.KindUnmappedToken), Message: "The query uses identifiers not issued in this session"}
		for _, t := range unmapped.Tokens {
			body.Errors = append(body.Errors, apperrors.New(apperrors.KindUnmappedToken, t.Field, t.Token, "unknown identifier"))
		}
	case errors.As(err, &appErr):
		status = StatusForKind(appErr.Kind)
		body = RejectionResponse{Error: string(appErr.Kind), Message: appErr.Message, Errors: []*apperrors.Error{appErr}}
		if status >= http.StatusInternalServerError {
			body.Errors = nil
		}
	case errors.Is(err, pipeline.ErrNoExtractor):
		status = http.StatusNotImplemented
		body = RejectionResponse{Error: "extraction_disabled", Message: "Natural language questions are not enabled"}
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
		body = RejectionResponse{Error: "timeout", Message: "The request timed out"}
	case errors.As(err, &llmErr):
		status = http.StatusBadGateway
		body = RejectionResponse{Error: "extractor_unavailable", Message: "The intent extractor is unavailable"}
	case apperrors.KindOf(err) != apperrors.KindInternal:
		kind := apperrors.KindOf(err)
		status = StatusForKind(kind)
		body = RejectionResponse{Error: string(kind), Message: "The query was rejected"}
	default:
		status = http.StatusInternalServerError
		body = RejectionResponse{Error: "internal_error", Message: "Failed to process query"}
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Query failed",
			zap.Int("status", status),
			zap.String("error", logging.SanitizeError(err)))
	}
	if err := WriteJSON(w, status, body); err != nil {
		logger.Error("Failed to write error response", zap.Error(err))
	}
}
