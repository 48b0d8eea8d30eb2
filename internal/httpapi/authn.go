package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/rbac"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/register",
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

type scKey struct{}

// ContextWithSecurityContext attaches the caller's security context.
func ContextWithSecurityContext(ctx context.Context, sc rbac.Context) context.Context {
	return context.WithValue(ctx, scKey{}, sc)
}

// SecurityContextFromContext returns the caller's security context, if any.
func SecurityContextFromContext(ctx context.Context) (rbac.Context, bool) {
	sc, ok := ctx.Value(scKey{}).(rbac.Context)
	return sc, ok
}

func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.authority == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}
		if isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		sc, err := a.authority.SecurityContext(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, rbac.ErrAuthentication):
				writeError(w, r, http.StatusUnauthorized, "invalid token")
			default:
				writeError(w, r, http.StatusInternalServerError, "authentication error")
			}
			return
		}

		ctx := ContextWithSecurityContext(r.Context(), sc)
		ctx = audit.WithActor(ctx, sc.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireScope gates management endpoints. With no authority configured the
// API runs open, which is the single-process development mode.
func (a *API) requireScope(w http.ResponseWriter, r *http.Request, scope rbac.Scope) bool {
	if a.authority == nil {
		return true
	}
	sc, ok := SecurityContextFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	if !a.authority.HasScope(sc, scope) {
		writeError(w, r, http.StatusForbidden, "insufficient scope")
		return false
	}
	return true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
