package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/upb/graph-profile-gateway/graph"
	"github.com/upb/graph-profile-gateway/internal/observability"
	"github.com/upb/graph-profile-gateway/middleware"
	"github.com/upb/graph-profile-gateway/obo"
	"github.com/upb/graph-profile-gateway/services"
	"go.uber.org/zap"
)

// MockProfileGetter is a mock implementation of ProfileGetter
type MockProfileGetter struct {
	mock.Mock
}

func (m *MockProfileGetter) GetUserProfile(ctx context.Context, req services.ProfileRequest) (*services.ProfileResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*services.ProfileResult), args.Error(1)
}

func serve(h http.HandlerFunc, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	middleware.NewAuthMiddleware(zap.NewNop()).ExtractAccessToken(h).ServeHTTP(w, req)
	return w
}

func TestGetUserProfile_MissingToken(t *testing.T) {
	// the real service decides that an empty token is a missing token
	svc := services.NewProfileService(obo.AuthConfig{}, nil, zap.NewNop())
	handler := NewProfileHandler(svc, nil, zap.NewNop())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/api/getUserProfile", nil)
			req.Header.Set(middleware.AccessTokenHeader, "")

			w := serve(handler.GetUserProfile, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
			assert.JSONEq(t, `{"error":"No access token was found in request header."}`, w.Body.String())
		})
	}
}

func TestGetUserProfile_Success(t *testing.T) {
	svc := new(MockProfileGetter)
	metrics := observability.NewMetrics()
	handler := NewProfileHandler(svc, metrics, zap.NewNop())

	result := &services.ProfileResult{
		ReceivedHTTPRequestBody: `{"ping":true}`,
		AccessToken:             "user-token",
		OBOAuthConfig: obo.AuthConfig{
			AuthorityHost: "https://login.microsoftonline.com",
			ClientID:      "client-id",
			TenantID:      "tenant-id",
			ClientSecret:  "never-serialized",
		},
		UserInfoMessage:    "User display name is Megan Bowen.",
		GraphClientMessage: &graph.Profile{ID: "user-1", DisplayName: "Megan Bowen"},
	}
	svc.On("GetUserProfile", mock.Anything, services.ProfileRequest{
		Body:        `{"ping":true}`,
		AccessToken: "user-token",
	}).Return(result, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/getUserProfile", strings.NewReader(`{"ping":true}`))
	req.Header.Set(middleware.AccessTokenHeader, " user-token ")

	w := serve(handler.GetUserProfile, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.NotContains(t, w.Body.String(), "never-serialized")

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, `{"ping":true}`, body["receivedHTTPRequestBody"])
	assert.Equal(t, "user-token", body["accessToken"])
	assert.Equal(t, "User display name is Megan Bowen.", body["userInfoMessage"])
	assert.Equal(t, "client-id", body["oboAuthConfig"].(map[string]interface{})["clientId"])
	assert.Equal(t, "Megan Bowen", body["graphClientMessage"].(map[string]interface{})["displayName"])

	svc.AssertExpectations(t)
}

func TestGetUserProfile_EmptyBodyEchoesEmptyString(t *testing.T) {
	svc := new(MockProfileGetter)
	handler := NewProfileHandler(svc, nil, zap.NewNop())

	svc.On("GetUserProfile", mock.Anything, services.ProfileRequest{Body: "", AccessToken: "tok"}).
		Return(&services.ProfileResult{AccessToken: "tok"}, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/getUserProfile", nil)
	req.Header.Set(middleware.AccessTokenHeader, "tok")

	w := serve(handler.GetUserProfile, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "", body["receivedHTTPRequestBody"])
	svc.AssertExpectations(t)
}

func TestGetUserProfile_ServiceErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantBody   string
	}{
		{
			name:       "validation failure",
			err:        services.NewDomainError(services.ErrorTypeUnauthorized, services.MsgValidationFailed, errors.New("bad signature")),
			wantStatus: http.StatusUnauthorized,
			wantBody:   `{"error":"Access token failed validation."}`,
		},
		{
			name:       "configuration",
			err:        services.NewDomainError(services.ErrorTypeConfiguration, services.MsgConfiguration, obo.ErrConfiguration),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"` + services.MsgConfiguration + `"}`,
		},
		{
			name:       "invalid token",
			err:        services.NewDomainError(services.ErrorTypeInvalidToken, "Access token is invalid. token expired", nil),
			wantStatus: http.StatusBadRequest,
			wantBody:   `{"error":"Access token is invalid. token expired"}`,
		},
		{
			name:       "authorization",
			err:        services.NewDomainError(services.ErrorTypeAuthorization, services.MsgAuthorization+" consent_required", nil),
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"error":"` + services.MsgAuthorization + ` consent_required"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockProfileGetter)
			handler := NewProfileHandler(svc, observability.NewMetrics(), zap.NewNop())
			svc.On("GetUserProfile", mock.Anything, mock.Anything).Return(nil, tt.err)

			req := httptest.NewRequest(http.MethodPost, "/api/getUserProfile", nil)
			req.Header.Set(middleware.AccessTokenHeader, "tok")

			w := serve(handler.GetUserProfile, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.JSONEq(t, tt.wantBody, w.Body.String())
		})
	}
}

func TestGetUserProfile_BodyFailures(t *testing.T) {
	t.Run("oversized body is rejected", func(t *testing.T) {
		svc := new(MockProfileGetter)
		handler := NewProfileHandler(svc, observability.NewMetrics(), zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/api/getUserProfile", strings.NewReader(strings.Repeat("a", maxBodyBytes+1)))
		req.Header.Set(middleware.AccessTokenHeader, "tok")

		w := serve(handler.GetUserProfile, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.JSONEq(t, `{"error":"Request body too large.","details":{"limitBytes":1048576}}`, w.Body.String())
		svc.AssertNotCalled(t, "GetUserProfile", mock.Anything, mock.Anything)
	})

	t.Run("unreadable body is an internal error", func(t *testing.T) {
		svc := new(MockProfileGetter)
		handler := NewProfileHandler(svc, nil, zap.NewNop())

		req := httptest.NewRequest(http.MethodPost, "/api/getUserProfile", iotest.ErrReader(errors.New("connection reset")))
		req.Header.Set(middleware.AccessTokenHeader, "tok")

		w := serve(handler.GetUserProfile, req)

		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.JSONEq(t, `{"error":"An internal error occurred"}`, w.Body.String())
		svc.AssertNotCalled(t, "GetUserProfile", mock.Anything, mock.Anything)
	})
}

func TestHeaderTest(t *testing.T) {
	handler := NewProfileHandler(new(MockProfileGetter), nil, zap.NewNop())

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "http://gateway.local/api/headerTest", nil)
			req.Header.Set("X-Test", "1")
			req.Header.Add("Accept", "text/plain")
			req.Header.Add("Accept", "application/json")

			w := httptest.NewRecorder()
			handler.HeaderTest(w, req)

			require.Equal(t, http.StatusOK, w.Code)

			var body map[string]string
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			assert.Equal(t, "1", body["x-test"])
			assert.Equal(t, "text/plain, application/json", body["accept"])
			assert.Equal(t, "gateway.local", body["host"])
			assert.NotContains(t, body, "X-Test")
		})
	}
}
