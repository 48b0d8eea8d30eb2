package httpapi

import (
	"errors"
	"net/http"
	"time"

	"forgegate.dev/internal/artifact"
	"forgegate.dev/internal/gateway"
	"forgegate.dev/internal/sandbox"
)

type publishRequest struct {
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Content  map[string]any    `json:"content"`
	Metadata artifact.Metadata `json:"metadata"`
}

type validateRequest struct {
	Type     string            `json:"type"`
	Content  map[string]any    `json:"content"`
	Metadata artifact.Metadata `json:"metadata"`
}

type scanRequest struct {
	Source string `json:"source"`
}

type executeRequest struct {
	Code           string `json:"code"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	ArtifactID     string `json:"artifact_id"`
}

type signRequest struct {
	Data string `json:"data"`
}

type verifyRequest struct {
	Data      string `json:"data"`
	Signature string `json:"signature"`
}

// callerID is the audit identity of the request. Authenticated requests use
// the token subject; open-mode requests fall back to the client IP.
func (a *API) callerID(r *http.Request) string {
	if sc, ok := SecurityContextFromContext(r.Context()); ok {
		return sc.UserID
	}
	return clientIP(r)
}

func (a *API) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.gw == nil {
		writeError(w, r, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	var req publishRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.ID == "" {
		writeError(w, r, http.StatusBadRequest, "id is required")
		return
	}
	res, err := a.gw.PublishArtifact(r.Context(), a.callerID(r), req.ID, req.Type, req.Content, req.Metadata)
	if err != nil {
		handleGatewayError(w, r, err, res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (a *API) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.gw == nil {
		writeError(w, r, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	var req validateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res := a.gw.ValidateArtifact(r.Context(), req.Type, req.Content, req.Metadata)
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.gw == nil {
		writeError(w, r, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	var req scanRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := a.gw.ScanCode(r.Context(), req.Source)
	if err != nil {
		handleGatewayError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleExecute(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.gw == nil {
		writeError(w, r, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	opts := sandbox.Options{ArtifactID: req.ArtifactID}
	if req.TimeoutSeconds > 0 {
		opts.Timeout = time.Duration(req.TimeoutSeconds) * time.Second
	}
	res, err := a.gw.SandboxExecute(r.Context(), req.Code, opts)
	if err != nil {
		if errors.Is(err, sandbox.ErrExecution) || errors.Is(err, sandbox.ErrTimeout) {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":     err.Error(),
				"stdout":    res.Stdout,
				"stderr":    res.Stderr,
				"exit_code": res.ExitCode,
			})
			return
		}
		handleGatewayError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.gw == nil {
		writeError(w, r, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	var req signRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	sig, err := a.gw.GenerateSignature(r.Context(), []byte(req.Data))
	if err != nil {
		handleGatewayError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"signature": sig})
}

func (a *API) handleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if a.gw == nil {
		writeError(w, r, http.StatusServiceUnavailable, "gateway unavailable")
		return
	}
	var req verifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	ok := a.gw.ValidateSignature(r.Context(), []byte(req.Data), req.Signature)
	writeJSON(w, http.StatusOK, map[string]bool{"valid": ok})
}

func handleGatewayError(w http.ResponseWriter, r *http.Request, err error, res *artifact.Result) {
	switch {
	case errors.Is(err, gateway.ErrAccessDenied):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, gateway.ErrInvalidArtifact):
		payload := map[string]any{"error": "artifact failed validation"}
		if res != nil {
			payload["result"] = res
		}
		writeJSON(w, http.StatusUnprocessableEntity, payload)
	case errors.Is(err, gateway.ErrSandboxDisabled), errors.Is(err, gateway.ErrScanningDisabled):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, gateway.ErrNoSigner):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "gateway operation failed")
	}
}
