package obo

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/upb/graph-profile-gateway/entra/entratest"
)

func testConfig() AuthConfig {
	return AuthConfig{
		AuthorityHost: "login.microsoftonline.com",
		ClientID:      "client-id",
		TenantID:      "tenant-id",
		ClientSecret:  "s3cr3t",
	}
}

func TestNewOnBehalfOfCredential(t *testing.T) {
	tn := entratest.NewTenant(t)
	token := tn.Token(t)

	t.Run("normalises the authority", func(t *testing.T) {
		cred, err := NewOnBehalfOfCredential(token, testConfig())
		require.NoError(t, err)

		assert.Equal(t, "https://login.microsoftonline.com", cred.Config().AuthorityHost)
		assert.Equal(t, "https://login.microsoftonline.com/tenant-id/oauth2/v2.0/token", cred.tokenURL)
	})

	tests := []struct {
		name   string
		token  string
		mutate func(*AuthConfig)
	}{
		{name: "missing client id", token: token, mutate: func(c *AuthConfig) { c.ClientID = "" }},
		{name: "missing tenant id", token: token, mutate: func(c *AuthConfig) { c.TenantID = "" }},
		{name: "missing client secret", token: token, mutate: func(c *AuthConfig) { c.ClientSecret = "" }},
		{name: "missing authority", token: token, mutate: func(c *AuthConfig) { c.AuthorityHost = "" }},
		{name: "empty token", token: "   ", mutate: func(*AuthConfig) {}},
		{name: "token is not a JWT", token: "not-a-jwt", mutate: func(*AuthConfig) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			cred, err := NewOnBehalfOfCredential(tt.token, cfg)

			assert.Nil(t, cred)
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestAuthConfig_SecretNotSerialized(t *testing.T) {
	data, err := json.Marshal(testConfig())
	require.NoError(t, err)

	assert.NotContains(t, string(data), "s3cr3t")
	assert.JSONEq(t, `{"authorityHost":"login.microsoftonline.com","clientId":"client-id","tenantId":"tenant-id"}`, string(data))
}

func TestGetUserInfo(t *testing.T) {
	tn := entratest.NewTenant(t)

	t.Run("returns claims from the token", func(t *testing.T) {
		claims := tn.Claims()
		cred, err := NewOnBehalfOfCredential(tn.Sign(t, claims), testConfig())
		require.NoError(t, err)

		info, err := cred.GetUserInfo()
		require.NoError(t, err)
		assert.Equal(t, "Megan Bowen", info.DisplayName)
		assert.Equal(t, claims.ObjectID, info.ObjectID)
		assert.Equal(t, "meganb@contoso.com", info.PreferredUserName)
		assert.Equal(t, tn.TenantID, info.TenantID)
	})

	t.Run("empty display name when the name claim is absent", func(t *testing.T) {
		claims := tn.Claims()
		claims.Name = ""
		cred, err := NewOnBehalfOfCredential(tn.Sign(t, claims), testConfig())
		require.NoError(t, err)

		info, err := cred.GetUserInfo()
		require.NoError(t, err)
		assert.Empty(t, info.DisplayName)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := tn.Claims()
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
		cred, err := NewOnBehalfOfCredential(tn.Sign(t, claims), testConfig())
		require.NoError(t, err)

		info, err := cred.GetUserInfo()
		assert.Nil(t, info)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestTokenSource(t *testing.T) {
	tn := entratest.NewTenant(t)
	userToken := tn.Token(t)

	t.Run("exchanges the user token once", func(t *testing.T) {
		var hits atomic.Int32
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			assert.NoError(t, r.ParseForm())

			assert.Equal(t, "/tenant-id/oauth2/v2.0/token", r.URL.Path)
			assert.Equal(t, GrantTypeJWTBearer, r.PostForm.Get("grant_type"))
			assert.Equal(t, userToken, r.PostForm.Get("assertion"))
			assert.Equal(t, RequestedTokenUse, r.PostForm.Get("requested_token_use"))
			assert.Equal(t, "https://graph.microsoft.com/.default", r.PostForm.Get("scope"))
			assert.Equal(t, "client-id", r.PostForm.Get("client_id"))
			assert.Equal(t, "s3cr3t", r.PostForm.Get("client_secret"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"graph-token","token_type":"Bearer","expires_in":3600}`))
		}))
		defer server.Close()

		cfg := testConfig()
		cfg.AuthorityHost = server.URL
		cred, err := NewOnBehalfOfCredential(userToken, cfg, WithHTTPClient(server.Client()))
		require.NoError(t, err)

		ts := cred.TokenSource(context.Background(), "https://graph.microsoft.com/.default")
		for i := 0; i < 2; i++ {
			token, err := ts.Token()
			require.NoError(t, err)
			assert.Equal(t, "graph-token", token.AccessToken)
		}
		assert.Equal(t, int32(1), hits.Load())
	})

	tests := []struct {
		code    string
		wantErr error
	}{
		{code: "invalid_grant", wantErr: ErrInvalidToken},
		{code: "consent_required", wantErr: ErrAuthorization},
		{code: "interaction_required", wantErr: ErrAuthorization},
		{code: "invalid_scope", wantErr: ErrAuthorization},
		{code: "unauthorized_client", wantErr: ErrAuthorization},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"error":"` + tt.code + `","error_description":"AADSTS00000: rejected"}`))
			}))
			defer server.Close()

			cred, err := NewOnBehalfOfCredential(userToken, testConfig(),
				WithHTTPClient(server.Client()),
				WithTokenURL(server.URL))
			require.NoError(t, err)

			_, err = cred.TokenSource(context.Background(), "User.Read").Token()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("unknown error codes are not classified", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"error":"temporarily_unavailable"}`))
		}))
		defer server.Close()

		cred, err := NewOnBehalfOfCredential(userToken, testConfig(),
			WithHTTPClient(server.Client()),
			WithTokenURL(server.URL))
		require.NoError(t, err)

		_, err = cred.TokenSource(context.Background(), "User.Read").Token()
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidToken)
		assert.NotErrorIs(t, err, ErrAuthorization)
	})
}
