package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/graph-profile-gateway/services"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestHandleServiceError(t *testing.T) {
	logger := zap.NewNop()

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantError  string
	}{
		{"missing token", services.ErrMissingToken, http.StatusBadRequest, services.MsgMissingToken},
		{"wrapped invalid token", fmt.Errorf("stage: %w", services.ErrInvalidToken), http.StatusBadRequest, services.MsgInvalidToken},
		{"validation failure", services.ErrValidationFailed, http.StatusUnauthorized, services.MsgValidationFailed},
		{"configuration", services.ErrConfiguration, http.StatusInternalServerError, services.MsgConfiguration},
		{"authorization", services.ErrAuthorization, http.StatusInternalServerError, services.MsgAuthorization},
		{"internal hides detail", services.WrapInternal("db exploded", errors.New("secret")), http.StatusInternalServerError, "An internal error occurred"},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, "An unexpected error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()

			HandleServiceError(w, tt.err, logger)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantError+`"}`, w.Body.String())
		})
	}
}

func TestHandleServiceError_Nil(t *testing.T) {
	w := httptest.NewRecorder()

	HandleServiceError(w, nil, zap.NewNop())

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}

func TestHandleServiceError_LogsDetails(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	err := services.NewDomainError(services.ErrorTypeInvalidToken, services.MsgInvalidToken, nil).
		WithDetail("stage", services.StageUserInfo)

	HandleServiceError(httptest.NewRecorder(), err, zap.New(core))

	entries := logs.TakeAll()
	require.Len(t, entries, 1)
	assert.Equal(t, map[string]interface{}{"stage": services.StageUserInfo}, entries[0].ContextMap()["details"])
}
