package auth

import (
	"net/http"
	"strings"
)

// TokenAuthenticator resolves the identity of a websocket handshake from a
// signed token, taken from the Authorization header or, since browsers
// cannot set headers on websocket requests, the token query parameter.
type TokenAuthenticator struct {
	options TokenOptions
}

func NewTokenAuthenticator(options TokenOptions) *TokenAuthenticator {
	return &TokenAuthenticator{options: options}
}

func (a *TokenAuthenticator) Authenticate(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	token := tokenFromRequest(r)
	if token == "" {
		w.WriteHeader(http.StatusUnauthorized)
		return Identity{}, false
	}

	identity, err := VerifyToken(token, a.options)
	if err != nil {
		w.WriteHeader(http.StatusUnauthorized)
		return Identity{}, false
	}

	return *identity, true
}

func tokenFromRequest(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
