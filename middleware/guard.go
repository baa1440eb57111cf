package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	"github.com/ecochallenge/ecoauth/jwt"
)

// Verifier validates a bearer access token.
type Verifier interface {
	VerifyAccess(ctx context.Context, token string) (*jwt.AccessClaims, error)
}

// VerifierFunc adapts a function to [Verifier].
type VerifierFunc func(ctx context.Context, token string) (*jwt.AccessClaims, error)

func (f VerifierFunc) VerifyAccess(ctx context.Context, token string) (*jwt.AccessClaims, error) {
	return f(ctx, token)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the claims stored by [Guard].
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// Guard rejects requests without a valid bearer access token with 401 and a
// {"detail": ...} body, and stores the verified claims in the request context.
func Guard(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}

			claims, err := v.VerifyAccess(r.Context(), token)
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, "Given token not valid for any token type")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole answers 403 unless the claims stored by [Guard] carry one of roles.
// It must run after Guard.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeDetail(w, http.StatusUnauthorized, "Authentication credentials were not provided.")
				return
			}
			if !slices.Contains(roles, claims.Role) {
				writeDetail(w, http.StatusForbidden, "You do not have permission to perform this action.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// bearerToken accepts the scheme case-insensitively, as RFC 6750 allows.
func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="api"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
