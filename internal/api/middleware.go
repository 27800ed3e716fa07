package api

import (
	"net/http"
	"strings"

	"github.com/teamforge/collab/pkg/auth"
)

// JWTMiddleware resolves the bearer token into an identity and attaches it
// to the request context. Requests without a valid token are rejected.
func JWTMiddleware(options auth.TokenOptions) ApiMiddleware {
	return func(next http.Handler) ApiHandleFunc {
		return func(w http.ResponseWriter, r *http.Request) error {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				return NewApiError("missing bearer token", http.StatusUnauthorized)
			}

			identity, err := auth.VerifyToken(token, options)
			if err != nil {
				return NewApiError("invalid token", http.StatusUnauthorized)
			}

			next.ServeHTTP(w, r.WithContext(auth.ContextWithIdentity(r.Context(), *identity)))
			return nil
		}
	}
}

func identityFromRequest(r *http.Request) auth.Identity {
	identity, _ := auth.IdentityFromContext(r.Context())
	return identity
}
