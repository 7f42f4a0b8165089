package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// BearerTokenAuth guards the HTTP surfaces of the dashboard. The health
// endpoint stays open; everything else requires the shared token.
type BearerTokenAuth struct {
	token string
}

// NewBearerTokenAuth creates a new Bearer token authenticator
func NewBearerTokenAuth(token string) *BearerTokenAuth {
	return &BearerTokenAuth{token: token}
}

// IsAuthorized validates the Bearer token from the Authorization header.
// Token comparison is constant time.
func (b *BearerTokenAuth) IsAuthorized(r *http.Request) bool {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return false
	}

	const bearerPrefix = "Bearer "
	if !strings.HasPrefix(authHeader, bearerPrefix) {
		return false
	}

	token := strings.TrimPrefix(authHeader, bearerPrefix)
	if token == "" {
		return false
	}

	return subtle.ConstantTimeCompare([]byte(token), []byte(b.token)) == 1
}

// SetUnauthorizedHeaders sets the standard WWW-Authenticate header for Bearer auth
func (b *BearerTokenAuth) SetUnauthorizedHeaders(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
}
