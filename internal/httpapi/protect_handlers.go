package httpapi

import (
	"encoding/base64"
	"errors"
	"net/http"
	"strings"

	"forgegate.dev/internal/protect"
	"forgegate.dev/internal/rbac"
)

type encryptRequest struct {
	Policy string `json:"policy"`
	Data   any    `json:"data"`
}

type decryptRequest struct {
	Policy string `json:"policy"`
	Blob   string `json:"blob"`
}

func (a *API) handleProtectionPolicies(w http.ResponseWriter, r *http.Request) {
	if a.protector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "data protection unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, a.protector.ListPolicies())
	case http.MethodPost:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		var p protect.Policy
		if err := decodeJSON(w, r, &p); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.protector.CreatePolicy(p); err != nil {
			handleProtectError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, p)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleProtectionPolicyResource(w http.ResponseWriter, r *http.Request) {
	if a.protector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "data protection unavailable")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/protection/policies/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := a.protector.GetPolicy(name)
		if err != nil {
			handleProtectError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		var p protect.Policy
		if err := decodeJSON(w, r, &p); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		p.Name = name
		if err := a.protector.UpdatePolicy(p); err != nil {
			handleProtectError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		if err := a.protector.DeletePolicy(name); err != nil {
			handleProtectError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleEncrypt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.protector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "data protection unavailable")
		return
	}
	var req encryptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !a.checkPolicyScopes(w, r, req.Policy) {
		return
	}
	blob, err := a.protector.Encrypt(req.Data, req.Policy)
	if err != nil {
		handleProtectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"blob": base64.StdEncoding.EncodeToString(blob),
	})
}

func (a *API) handleDecrypt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.protector == nil {
		writeError(w, r, http.StatusServiceUnavailable, "data protection unavailable")
		return
	}
	var req decryptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	blob, err := base64.StdEncoding.DecodeString(req.Blob)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "blob must be base64")
		return
	}
	if !a.checkPolicyScopes(w, r, req.Policy) {
		return
	}
	data, err := a.protector.Decrypt(blob, req.Policy)
	if err != nil {
		handleProtectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

// checkPolicyScopes enforces a protection policy's required scopes. With no
// authority configured the API runs open.
func (a *API) checkPolicyScopes(w http.ResponseWriter, r *http.Request, policyName string) bool {
	if a.authority == nil {
		return true
	}
	p, err := a.protector.GetPolicy(policyName)
	if err != nil || len(p.RequiredScopes) == 0 {
		return true
	}
	sc, ok := SecurityContextFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return false
	}
	for _, raw := range p.RequiredScopes {
		scope, err := rbac.ParseScope(raw)
		if err != nil {
			continue
		}
		if !a.authority.HasScope(sc, scope) {
			writeError(w, r, http.StatusForbidden, "insufficient scope for protection policy")
			return false
		}
	}
	return true
}

func handleProtectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, protect.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, protect.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, protect.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, protect.ErrDecryption):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "data protection operation failed")
	}
}
