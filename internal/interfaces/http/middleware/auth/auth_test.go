package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/manorfm/oauth2-provider/internal/domain"
	"github.com/manorfm/oauth2-provider/internal/infrastructure/jwt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newSigner(t *testing.T, duration time.Duration) *jwt.JWT {
	t.Helper()
	signer, err := jwt.New(duration)
	require.NoError(t, err)
	return signer
}

// subjectHandler echoes the subject found in the request context
var subjectHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	subject, _ := domain.GetSubject(r.Context())
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(subject))
})

func TestAuthMiddleware_Identify(t *testing.T) {
	signer := newSigner(t, time.Hour)
	middleware := NewAuthMiddleware(signer.PublicKey(), zap.NewNop())

	valid, _, err := signer.Issue("alice", nil)
	require.NoError(t, err)

	foreign, _, err := newSigner(t, time.Hour).Issue("mallory", nil)
	require.NoError(t, err)

	tests := []struct {
		name            string
		header          string
		cookie          string
		expectedSubject string
	}{
		{name: "anonymous"},
		{name: "bearer header", header: "Bearer " + valid, expectedSubject: "alice"},
		{name: "session cookie", cookie: valid, expectedSubject: "alice"},
		{name: "malformed token", header: "Bearer not-a-jwt"},
		{name: "token signed by another key", header: "Bearer " + foreign},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "jwt", Value: tt.cookie})
			}

			w := httptest.NewRecorder()
			middleware.Identify(subjectHandler).ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.expectedSubject, w.Body.String())
		})
	}
}

func TestAuthMiddleware_Authenticator(t *testing.T) {
	signer := newSigner(t, time.Hour)
	middleware := NewAuthMiddleware(signer.PublicKey(), zap.NewNop())
	handler := middleware.Identify(middleware.Authenticator(subjectHandler))

	t.Run("missing session", func(t *testing.T) {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.JSONEq(t, `{"error":"access_denied","error_description":"Authentication required"}`, w.Body.String())
	})

	t.Run("valid session", func(t *testing.T) {
		token, _, err := signer.Issue("alice", nil)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "alice", w.Body.String())
	})
}

func TestAuthMiddleware_RequireRole(t *testing.T) {
	signer := newSigner(t, time.Hour)
	middleware := NewAuthMiddleware(signer.PublicKey(), zap.NewNop())
	handler := middleware.Identify(middleware.Authenticator(middleware.RequireRole(RoleAdmin)(subjectHandler)))

	tests := []struct {
		name           string
		roles          []string
		expectedStatus int
	}{
		{name: "no roles", roles: nil, expectedStatus: http.StatusForbidden},
		{name: "role not found", roles: []string{"user"}, expectedStatus: http.StatusForbidden},
		{name: "role found", roles: []string{"user", RoleAdmin}, expectedStatus: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, _, err := signer.Issue("alice", tt.roles)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Authorization", "Bearer "+token)

			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
		})
	}
}

func TestHasRole(t *testing.T) {
	assert.True(t, hasRole([]interface{}{"user", "admin"}, "admin"))
	assert.True(t, hasRole([]string{"admin"}, "admin"))
	assert.False(t, hasRole([]interface{}{1, "user"}, "admin"))
	assert.False(t, hasRole(nil, "admin"))
	assert.False(t, hasRole("admin", "admin"))
}
