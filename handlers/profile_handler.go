package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/upb/graph-profile-gateway/internal/observability"
	"github.com/upb/graph-profile-gateway/middleware"
	"github.com/upb/graph-profile-gateway/services"
	"github.com/upb/graph-profile-gateway/utils"
	"go.uber.org/zap"
)

// maxBodyBytes bounds the request body echoed back by getUserProfile
const maxBodyBytes = 1 << 20

// ProfileGetter runs the getUserProfile flow
type ProfileGetter interface {
	GetUserProfile(ctx context.Context, req services.ProfileRequest) (*services.ProfileResult, error)
}

// ProfileHandler handles the getUserProfile and headerTest endpoints
type ProfileHandler struct {
	service ProfileGetter
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewProfileHandler creates a new ProfileHandler. metrics may be nil.
func NewProfileHandler(service ProfileGetter, metrics *observability.Metrics, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{
		service: service,
		metrics: metrics,
		logger:  logger,
	}
}

// GetUserProfile handles GET|POST /api/getUserProfile
func (h *ProfileHandler) GetUserProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.WithRequest(ctx, h.logger)

	body, err := readBody(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("request body too large", zap.Int64("limit", tooLarge.Limit))
			h.metrics.RecordProfileOutcome("bad_body")
			_ = utils.WriteBadRequest(w, "Request body too large.", map[string]interface{}{"limitBytes": tooLarge.Limit})
			return
		}
		err = services.WrapInternal("failed to read request body", err)
		h.metrics.RecordProfileOutcome(string(services.GetErrorType(err)))
		HandleServiceError(w, err, logger)
		return
	}

	result, err := h.service.GetUserProfile(ctx, services.ProfileRequest{
		Body:        body,
		AccessToken: middleware.GetAccessTokenFromContext(ctx),
	})
	if err != nil {
		h.metrics.RecordProfileOutcome(string(services.GetErrorType(err)))
		HandleServiceError(w, err, logger)
		return
	}

	h.metrics.RecordProfileOutcome("success")
	logger.Info("user profile retrieved", zap.String("user_info", result.UserInfoMessage))

	if err := utils.WriteOK(w, result); err != nil {
		logger.Error("failed to write profile response", zap.Error(err))
	}
}

// HeaderTest handles GET|POST /api/headerTest by echoing every request header.
// Names are lower-cased and repeated values joined with ", ".
func (h *ProfileHandler) HeaderTest(w http.ResponseWriter, r *http.Request) {
	headers := make(map[string]string, len(r.Header)+1)
	for name, values := range r.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ", ")
	}
	if r.Host != "" {
		headers["host"] = r.Host
	}

	if err := utils.WriteOK(w, headers); err != nil {
		observability.WithRequest(r.Context(), h.logger).Error("failed to write header echo", zap.Error(err))
	}
}

// readBody returns the raw request body, or "" when there is none
func readBody(w http.ResponseWriter, r *http.Request) (string, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return "", nil
	}
	defer r.Body.Close()

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
