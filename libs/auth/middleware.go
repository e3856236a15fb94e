package auth

import (
	"context"
	"net/http"
	"slices"
)

type ctxKey int

const claimsKey ctxKey = iota

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// ErrorWriter writes a JSON error; httpx.WriteError satisfies it.
type ErrorWriter func(w http.ResponseWriter, r *http.Request, status int, code, msg string)

// RequireRole verifies an HS256 bearer token and admits only the listed roles.
func RequireRole(secret string, writeErr ErrorWriter, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := BearerToken(r)
			if token == "" {
				writeErr(w, r, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}
			claims, err := ParseAndVerifyHS256(token, secret)
			if err != nil {
				writeErr(w, r, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			if len(roles) > 0 && !slices.Contains(roles, claims.Role) {
				writeErr(w, r, http.StatusForbidden, "forbidden", "role not allowed")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), claimsKey, claims)))
		})
	}
}
