package handlers

import (
	"net/http"

	"github.com/upb/graph-profile-gateway/services"
	"github.com/upb/graph-profile-gateway/utils"
	"go.uber.org/zap"
)

// HandleServiceError maps domain errors to HTTP responses. The body is always
// {"error": "<message>"} carrying the domain error's user facing message.
func HandleServiceError(w http.ResponseWriter, err error, logger *zap.Logger) {
	if err == nil {
		return
	}

	message := services.GetErrorMessage(err)
	errType := services.GetErrorType(err)
	if details := services.GetErrorDetails(err); len(details) > 0 {
		logger = logger.With(zap.Any("details", details))
	}

	var status int
	switch {
	case services.IsMissingTokenError(err), services.IsInvalidTokenError(err):
		status = http.StatusBadRequest
		logger.Warn("rejected request", zap.String("error_type", string(errType)), zap.Error(err))

	case services.IsUnauthorizedError(err):
		status = http.StatusUnauthorized
		logger.Warn("access token failed validation", zap.Error(err))

	case services.IsConfigurationError(err), services.IsAuthorizationError(err):
		status = http.StatusInternalServerError
		logger.Error("profile request failed", zap.String("error_type", string(errType)), zap.Error(err))

	case services.IsInternalError(err):
		// Log internal errors but return generic message
		status = http.StatusInternalServerError
		message = "An internal error occurred"
		logger.Error("internal server error", zap.Error(err))

	default:
		status = http.StatusInternalServerError
		message = "An unexpected error occurred"
		logger.Error("unhandled error type",
			zap.Error(err),
			zap.String("error_type", string(errType)))
	}

	if err := utils.WriteError(w, status, message, nil); err != nil {
		logger.Error("failed to write error response", zap.Int("status", status), zap.Error(err))
	}
}
