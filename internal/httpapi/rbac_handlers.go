package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"forgegate.dev/internal/rbac"
)

type assignRolesRequest struct {
	Roles []string `json:"roles"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		roles, err := a.authority.ListRoles(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, roles)
	case http.MethodPost:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		var role rbac.Role
		if err := decodeJSON(w, r, &role); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.authority.CreateRole(r.Context(), role); err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.Name))
		writeJSON(w, http.StatusCreated, role)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		role, err := a.authority.GetRole(r.Context(), name)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodPut:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		var role rbac.Role
		if err := decodeJSON(w, r, &role); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role.Name = name
		if err := a.authority.UpdateRole(r.Context(), role); err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
	case http.MethodDelete:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		if err := a.authority.DeleteRole(r.Context(), name); err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handlePolicies(w http.ResponseWriter, r *http.Request) {
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	switch r.Method {
	case http.MethodGet:
		policies, err := a.authority.ListPolicies(r.Context())
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, policies)
	case http.MethodPost:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		var policy rbac.Policy
		if err := decodeJSON(w, r, &policy); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		if err := a.authority.CreatePolicy(r.Context(), policy); err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.Header().Set("Location", fmt.Sprintf("/v1/policies/%s", policy.Name))
		writeJSON(w, http.StatusCreated, policy)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handlePolicyResource(w http.ResponseWriter, r *http.Request) {
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	name := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/policies/"), "/")
	if name == "" || strings.Contains(name, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		policy, err := a.authority.GetPolicy(r.Context(), name)
		if err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	case http.MethodPut:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		var policy rbac.Policy
		if err := decodeJSON(w, r, &policy); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		policy.Name = name
		if err := a.authority.UpdatePolicy(r.Context(), policy); err != nil {
			handleRBACError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, policy)
	case http.MethodDelete:
		if !a.requireScope(w, r, rbac.ScopeAdmin) {
			return
		}
		if err := a.authority.DeletePolicy(r.Context(), name); err != nil {
			handleRBACError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	if a.authority == nil {
		writeError(w, r, http.StatusServiceUnavailable, "authority unavailable")
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[1] != "roles" || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.requireScope(w, r, rbac.ScopeAdmin) {
		return
	}
	var req assignRolesRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.authority.AssignRoles(r.Context(), parts[0], req.Roles); err != nil {
		handleRBACError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
