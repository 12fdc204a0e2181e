package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/upb/acquisitions-api/middleware"
	"github.com/upb/acquisitions-api/services"
	"github.com/upb/acquisitions-api/utils"
	"go.uber.org/zap"
)

// Client-facing messages for failures whose cause must stay in the logs
const (
	msgAuthRequired  = "authentication required"
	msgUnavailable   = "service temporarily unavailable"
	msgInternalError = "An internal error occurred"
)

// HandleServiceError maps domain errors to HTTP responses. Only the public
// message of a DomainError reaches the client; causes are logged.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	errType := services.GetErrorType(err)
	status, message, details := http.StatusInternalServerError, msgInternalError, map[string]interface{}(nil)

	switch errType {
	case services.ErrorTypeInvalidToken, services.ErrorTypeUnauthorized:
		status, message = http.StatusUnauthorized, msgAuthRequired
		errType = services.ErrorTypeUnauthorized

	case services.ErrorTypeInvalidCredential:
		status, message = http.StatusUnauthorized, services.PublicMessage(err, "invalid email or password")

	case services.ErrorTypeNotFound:
		status, message = http.StatusNotFound, services.PublicMessage(err, "resource not found")

	case services.ErrorTypeAlreadyExists:
		status, message = http.StatusConflict, services.PublicMessage(err, "resource already exists")

	case services.ErrorTypeValidation:
		status, message = http.StatusBadRequest, services.PublicMessage(err, "invalid input")
		details = services.GetErrorDetails(err)

	case services.ErrorTypeForbidden, services.ErrorTypeBotDetected, services.ErrorTypeRequestBlocked:
		status, message = http.StatusForbidden, services.PublicMessage(err, "forbidden")

	case services.ErrorTypeRateLimited:
		status, message = http.StatusTooManyRequests, services.PublicMessage(err, "too many requests")
		if w.Header().Get(middleware.HeaderRetryAfter) == "" {
			w.Header().Set(middleware.HeaderRetryAfter, "1")
		}

	case services.ErrorTypeUpstreamUnavailable:
		status, message = http.StatusServiceUnavailable, msgUnavailable
		logger.Error("upstream unavailable", zap.Error(err))

	case services.ErrorTypeInternal:
		logger.Error("internal server error", zap.Error(err))

	default:
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			status, message = http.StatusServiceUnavailable, msgUnavailable
			logger.Warn("request context ended", zap.Error(err))
			break
		}
		logger.Error("unhandled error type", zap.Error(err))
		errType = services.ErrorTypeInternal
	}

	if len(details) == 0 {
		details = nil
	}
	if err := utils.WriteError(w, status, string(errType), message, details); err != nil {
		logger.Error("failed to write error response", zap.Error(err))
	}

	logger.Debug("handled service error",
		zap.String("type", string(errType)),
		zap.Int("status", status),
		zap.Error(err))
}

// ErrorResponder adapts HandleServiceError to a pipeline error handler
func ErrorResponder(logger *zap.Logger) middleware.ErrorHandler {
	return func(w http.ResponseWriter, r *http.Request, err error) {
		HandleServiceError(w, err, logger.With(
			zap.String("request_id", middleware.GetRequestIDFromContext(r.Context())),
			zap.String("path", r.URL.Path)))
	}
}

// HandleValidationError handles validation errors from request parsing
func HandleValidationError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if utils.IsValidationError(err) {
		fields := utils.GetValidationFields(err)
		details := make(map[string]interface{})
		for k, v := range fields {
			details[k] = v
		}
		if err := utils.WriteError(w, http.StatusBadRequest, string(services.ErrorTypeValidation), "Validation failed", details); err != nil {
			logger.Error("failed to write validation error response", zap.Error(err))
		}
		return
	}

	if err := utils.WriteError(w, http.StatusBadRequest, string(services.ErrorTypeValidation), err.Error(), nil); err != nil {
		logger.Error("failed to write validation error response", zap.Error(err))
	}
}
