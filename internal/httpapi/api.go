// Package httpapi is the HTTP surface of the gateway.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/gateway"
	"forgegate.dev/internal/obs"
	"forgegate.dev/internal/protect"
	"forgegate.dev/internal/rbac"
)

// ReadyProbe reports readiness, pinging the database when one is configured.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Options carries the API's collaborators and edge settings.
type Options struct {
	Gateway   *gateway.Gateway
	Authority *rbac.Authority
	Protector *protect.Service
	Hub       *audit.Hub
	Probe     ReadyProbe
	Version   string

	MaxBodyBytes  int64
	RatePerSecond float64
	RateBurst     int
}

// API is the HTTP layer.
type API struct {
	mux       *http.ServeMux
	gw        *gateway.Gateway
	authority *rbac.Authority
	protector *protect.Service
	hub       *audit.Hub
	probe     ReadyProbe
	version   string

	maxBody       int64
	ratePerSecond float64
	rateBurst     int
}

func New(opts Options) *API {
	a := &API{
		mux:           http.NewServeMux(),
		gw:            opts.Gateway,
		authority:     opts.Authority,
		protector:     opts.Protector,
		hub:           opts.Hub,
		probe:         opts.Probe,
		version:       opts.Version,
		maxBody:       opts.MaxBodyBytes,
		ratePerSecond: opts.RatePerSecond,
		rateBurst:     opts.RateBurst,
	}
	if a.maxBody <= 0 {
		a.maxBody = 1 << 20
	}
	if a.ratePerSecond <= 0 {
		a.ratePerSecond = 20
	}
	if a.rateBurst <= 0 {
		a.rateBurst = 40
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleAuthRefresh)
	a.mux.HandleFunc("/v1/auth/revoke", a.handleAuthRevoke)

	// rbac management
	a.mux.HandleFunc("/v1/roles", a.handleRoles)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)
	a.mux.HandleFunc("/v1/policies", a.handlePolicies)
	a.mux.HandleFunc("/v1/policies/", a.handlePolicyResource)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// artifacts and security operations
	a.mux.HandleFunc("/v1/artifacts", a.handleArtifacts)
	a.mux.HandleFunc("/v1/artifacts/validate", a.handleValidate)
	a.mux.HandleFunc("/v1/scan", a.handleScan)
	a.mux.HandleFunc("/v1/execute", a.handleExecute)
	a.mux.HandleFunc("/v1/signatures", a.handleSign)
	a.mux.HandleFunc("/v1/signatures/verify", a.handleVerify)

	// data protection
	a.mux.HandleFunc("/v1/protection/policies", a.handleProtectionPolicies)
	a.mux.HandleFunc("/v1/protection/policies/", a.handleProtectionPolicyResource)
	a.mux.HandleFunc("/v1/protection/encrypt", a.handleEncrypt)
	a.mux.HandleFunc("/v1/protection/decrypt", a.handleDecrypt)

	// audit event stream
	a.mux.HandleFunc("/v1/audit/stream", a.Stream)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.maxBody)
	h = RateLimit(h, a.rateBurst, a.ratePerSecond)
	h = Logging(h)
	h = RequestID(h)
	h = SecurityHeaders(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "forgegate",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.probe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "forgegate",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func handleRBACError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rbac.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, rbac.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, rbac.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, rbac.ErrAuthentication):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, rbac.ErrAuthorization):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "rbac operation failed")
	}
}
