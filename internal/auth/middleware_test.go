package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	s, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return s
}

func devAuthenticator() *Authenticator {
	return New(Options{VerifySignature: false}, zerolog.Nop())
}

func TestAuthenticate_KeycloakRoles(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{
		"sub":                "user-1",
		"email":              "jane@example.com",
		"preferred_username": "jane",
		"realm_access":       map[string]interface{}{"roles": []interface{}{"agent", "supervisor"}},
		"groups":             []interface{}{"/contact-center"},
		"exp":                float64(time.Now().Add(time.Hour).Unix()),
	})

	r := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	r.Header.Set("Authorization", "Bearer "+tok)

	claims, err := devAuthenticator().Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, RoleSupervisor, claims.Role)
	assert.Equal(t, "jane", claims.Name)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, []string{"/contact-center"}, claims.Groups)
}

func TestAuthenticate_TokenFromQuery(t *testing.T) {
	tok := signedToken(t, jwt.MapClaims{"cognito:groups": []interface{}{"cc-admins"}})
	r := httptest.NewRequest(http.MethodGet, "/transcripts?supervisorId=sup1&token="+tok, nil)

	claims, err := devAuthenticator().Authenticate(r)
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestAuthenticate_Errors(t *testing.T) {
	a := devAuthenticator()

	_, err := a.Authenticate(httptest.NewRequest(http.MethodGet, "/api/calls", nil))
	assert.ErrorIs(t, err, ErrMissingToken)

	expired := signedToken(t, jwt.MapClaims{"exp": float64(time.Now().Add(-time.Minute).Unix())})
	r := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	r.Header.Set("Authorization", "Bearer "+expired)
	_, err = a.Authenticate(r)
	assert.ErrorIs(t, err, ErrTokenExpired)

	r = httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	r.Header.Set("Authorization", "Bearer not-a-jwt")
	_, err = a.Authenticate(r)
	assert.Error(t, err)
}

func TestAuthenticate_VerifyWithoutIssuer(t *testing.T) {
	a := New(Options{VerifySignature: true}, zerolog.Nop())
	r := httptest.NewRequest(http.MethodGet, "/api/calls", nil)
	r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{}))

	_, err := a.Authenticate(r)
	assert.ErrorContains(t, err, "OIDC_ISSUER")
}

func TestAuthenticate_SkipAuth(t *testing.T) {
	a := New(Options{SkipAuth: true}, zerolog.Nop())

	claims, err := a.Authenticate(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, RoleAdmin, claims.Role)
}

func TestMiddlewareAndRequireRole(t *testing.T) {
	a := devAuthenticator()
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, found := GetUserFromContext(r.Context())
		require.True(t, found)
		w.Write([]byte(claims.Role))
	})
	handler := a.Middleware(RequireRole(RoleSupervisor, RoleAdmin)(ok))

	tests := []struct {
		name   string
		roles  []interface{}
		token  bool
		status int
	}{
		{"no token", nil, false, http.StatusUnauthorized},
		{"agent forbidden", []interface{}{"agent"}, true, http.StatusForbidden},
		{"supervisor allowed", []interface{}{"supervisor"}, true, http.StatusOK},
		{"admin allowed", []interface{}{"admin"}, true, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/supervisors/sup1/alerts", nil)
			if tt.token {
				r.Header.Set("Authorization", "Bearer "+signedToken(t, jwt.MapClaims{
					"realm_access": map[string]interface{}{"roles": tt.roles},
				}))
			}
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, r)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestOptionsFromEnv(t *testing.T) {
	t.Setenv("SKIP_AUTH", "")
	t.Setenv("VERIFY_JWT_SIGNATURE", "")
	t.Setenv("ENV", "development")
	assert.False(t, OptionsFromEnv().VerifySignature)

	t.Setenv("ENV", "production")
	assert.True(t, OptionsFromEnv().VerifySignature)

	t.Setenv("SKIP_AUTH", "true")
	assert.True(t, OptionsFromEnv().SkipAuth)
}

func TestHasAnyRole(t *testing.T) {
	assert.False(t, HasAnyRole(nil, RoleAdmin))
	assert.True(t, HasAnyRole(&Claims{Role: RoleAdmin}, RoleSupervisor, RoleAdmin))
	assert.False(t, HasAnyRole(&Claims{Role: RoleViewer}, RoleSupervisor, RoleAdmin))
}
