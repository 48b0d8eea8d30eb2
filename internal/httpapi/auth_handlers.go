package httpapi

import (
	"net/http"
	"strings"
	"time"

	"forgegate.dev/internal/rbac"
)

type registerRequest struct {
	UserID string   `json:"user_id"`
	Secret string   `json:"secret"`
	Roles  []string `json:"roles"`
}

type tokenRequest struct {
	UserID string   `json:"user_id"`
	Secret string   `json:"secret"`
	Scopes []string `json:"scopes"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenID   string    `json:"token_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.authority.RegisterUser(r.Context(), req.UserID, req.Secret, req.Roles)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": user.ID,
		"roles":   user.Roles,
	})
}

func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	scopes := make([]rbac.Scope, 0, len(req.Scopes))
	for _, raw := range req.Scopes {
		scope, err := rbac.ParseScope(strings.TrimSpace(raw))
		if err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		scopes = append(scopes, scope)
	}
	tok, err := a.authority.Authenticate(r.Context(), rbac.Credentials{
		UserID: req.UserID,
		Secret: req.Secret,
	}, scopes)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     tok.Signed,
		TokenID:   tok.ID,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (a *API) handleAuthRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	fresh, err := a.authority.RefreshToken(r.Context(), token)
	if err != nil {
		handleRBACError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		Token:     fresh.Signed,
		TokenID:   fresh.ID,
		ExpiresAt: fresh.ExpiresAt,
	})
}

func (a *API) handleAuthRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, err.Error())
		return
	}
	a.authority.RevokeToken(r.Context(), token)
	w.WriteHeader(http.StatusNoContent)
}
