package handlers

import (
	"net/http"

	"github.com/kedevs/blogapi/internal/auth"
)

// Authenticate resolves the request principal from an optional bearer access
// token. Requests without an Authorization header proceed as anonymous; a
// header that is present but does not verify is rejected with 401.
func Authenticate(tokens *auth.TokenIssuer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), auth.Anonymous())))
				return
			}

			token, err := bearerToken(r)
			if err != nil {
				writeServiceError(w, r, auth.ErrTokenInvalid, "")
				return
			}

			principal, err := tokens.VerifyToken(r.Context(), token, auth.TokenAccess)
			if err != nil {
				writeServiceError(w, r, err, "failed to authenticate")
				return
			}

			next.ServeHTTP(w, r.WithContext(withPrincipal(r.Context(), principal)))
		})
	}
}

// RequireAuth rejects anonymous requests. It must run after Authenticate.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !principalFromContext(r.Context()).IsAuthenticated() {
			writeServiceError(w, r, auth.ErrUnauthenticated, "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
