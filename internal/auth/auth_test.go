package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cinegate/internal/access"
)

func TestTokens_RoundTrip(t *testing.T) {
	svc := NewService("test-secret", time.Minute, time.Hour)

	accessToken, refreshToken, err := svc.GenerateTokens("u1", access.RoleAdmin, true)
	require.NoError(t, err)

	claims, err := svc.ParseToken(accessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, access.RoleAdmin, claims.Role)
	assert.True(t, claims.MustChangePasswd)

	_, err = svc.ParseToken(refreshToken)
	assert.Error(t, err, "refresh token must not authenticate requests")

	newAccess, _, err := svc.Refresh(refreshToken)
	require.NoError(t, err)
	claims, err = svc.ParseToken(newAccess)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)

	_, _, err = svc.Refresh(accessToken)
	assert.Error(t, err, "access token must not refresh")
}

func TestTokens_Rejections(t *testing.T) {
	svc := NewService("test-secret", time.Minute, time.Hour)
	other := NewService("other-secret", time.Minute, time.Hour)

	token, _, err := other.GenerateTokens("u1", access.RoleViewer, false)
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	assert.Error(t, err)

	_, err = svc.ParseToken("garbage")
	assert.Error(t, err)

	expired := NewService("test-secret", time.Minute, time.Hour)
	expired.now = func() time.Time { return time.Now().Add(-2 * time.Minute) }
	token, _, err = expired.GenerateTokens("u1", access.RoleViewer, false)
	require.NoError(t, err)
	_, err = svc.ParseToken(token)
	assert.Error(t, err)

	unknownRole, err := svc.sign(jwtClaims{UserID: "u1", Role: "owner", Type: tokenAccess})
	require.NoError(t, err)
	_, err = svc.ParseToken(unknownRole)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestAuthenticate_Middleware(t *testing.T) {
	svc := NewService("test-secret", time.Minute, time.Hour)
	token, _, err := svc.GenerateTokens("u1", access.RoleViewer, false)
	require.NoError(t, err)

	var got *access.Principal
	h := svc.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	tests := []struct {
		name   string
		header string
		want   *access.Principal
	}{
		{"valid bearer", "Bearer " + token, &access.Principal{ID: "u1", Role: access.RoleViewer}},
		{"lowercase scheme", "bearer " + token, &access.Principal{ID: "u1", Role: access.RoleViewer}},
		{"no header", "", nil},
		{"bad token", "Bearer nope", nil},
		{"wrong scheme", "Basic " + token, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusNoContent, rec.Code, "middleware never rejects")
			assert.Equal(t, tt.want, got)
		})
	}
}
