package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"forgegate.dev/internal/artifact"
	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/gateway"
	"forgegate.dev/internal/protect"
	"forgegate.dev/internal/ratelimit"
	"forgegate.dev/internal/rbac"
	"forgegate.dev/internal/scanner"
	"forgegate.dev/internal/storage"
)

type testEnv struct {
	api  *API
	auth *rbac.Authority
}

func newTestAPI(t *testing.T, withAuthority bool) *testEnv {
	t.Helper()
	var authority *rbac.Authority
	if withAuthority {
		var err error
		authority, err = rbac.NewAuthority(rbac.NewMemoryStore(), "test-secret",
			rbac.WithAuditSink(audit.NewRecorder()))
		if err != nil {
			t.Fatalf("NewAuthority: %v", err)
		}
	}
	signer, err := artifact.NewSigner("signing-secret")
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	gw, err := gateway.New(gateway.Config{
		Authority:  authority,
		Validator:  artifact.NewValidator(artifact.ValidatorConfig{}),
		Scanner:    scanner.New(scanner.DefaultConfig()),
		Limiter:    ratelimit.New(ratelimit.WithLimits(1000, 500)),
		Signer:     signer,
		Sink:       audit.NewRecorder(),
		Storage:    storage.NewMemory(),
		EnableScan: true,
	})
	if err != nil {
		t.Fatalf("gateway.New: %v", err)
	}
	protector, err := protect.NewService(protect.StaticKeys{"k1": "key material"})
	if err != nil {
		t.Fatalf("protect.NewService: %v", err)
	}
	api := New(Options{
		Gateway:       gw,
		Authority:     authority,
		Protector:     protector,
		Hub:           audit.NewHub(),
		Version:       "test",
		RatePerSecond: 1000,
		RateBurst:     1000,
	})
	return &testEnv{api: api, auth: authority}
}

func doJSON(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndInfo(t *testing.T) {
	env := newTestAPI(t, false)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["service"] != "forgegate" || payload["version"] != "test" {
		t.Fatalf("unexpected payload: %v", payload)
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/info", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("info: %d", rec.Code)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	env := newTestAPI(t, false)
	rec := doJSON(t, env.api.Handler(), http.MethodGet, "/healthz", "", nil)
	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("security headers missing")
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("request id missing")
	}
}

func TestEdgeRateLimit(t *testing.T) {
	env := newTestAPI(t, false)
	h := RateLimit(env.api.mux, 2, 1)
	var last int
	for i := 0; i < 5; i++ {
		rec := doJSON(t, h, http.MethodGet, "/healthz", "", nil)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestAuthRequiredForProtectedPaths(t *testing.T) {
	env := newTestAPI(t, true)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodGet, "/v1/roles", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/roles", "not-a-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bogus token, got %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("public path must stay open, got %d", rec.Code)
	}
}

func TestTokenFlowOverHTTP(t *testing.T) {
	env := newTestAPI(t, true)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/auth/register", "", registerRequest{
		UserID: "alice", Secret: "pw-123456",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/auth/token", "", tokenRequest{
		UserID: "alice", Secret: "pw-123456", Scopes: []string{"admin"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("token: %d %s", rec.Code, rec.Body.String())
	}
	var tok tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	if tok.Token == "" || tok.ExpiresAt.IsZero() {
		t.Fatalf("incomplete token response: %+v", tok)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/auth/token", "", tokenRequest{
		UserID: "alice", Secret: "wrong",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad secret must 401, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/roles", tok.Token, rbac.Role{
		Name:        "editor",
		Permissions: []rbac.Permission{rbac.PermissionRead, rbac.PermissionWrite},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create role: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v1/roles/editor", tok.Token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get role: %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/roles", tok.Token, rbac.Role{Name: "editor"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate role must 409, got %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/v1/roles/editor", tok.Token, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete role: %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/v1/roles/editor", tok.Token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("deleting a deleted role must 404, got %d", rec.Code)
	}
}

func TestScopeEnforcement(t *testing.T) {
	env := newTestAPI(t, true)
	h := env.api.Handler()

	doJSON(t, h, http.MethodPost, "/v1/auth/register", "", registerRequest{
		UserID: "bob", Secret: "pw-123456",
	})
	rec := doJSON(t, h, http.MethodPost, "/v1/auth/token", "", tokenRequest{
		UserID: "bob", Secret: "pw-123456", Scopes: []string{"read"},
	})
	var tok tokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &tok); err != nil {
		t.Fatalf("decode token: %v", err)
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/roles", tok.Token, rbac.Role{Name: "viewer"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("read scope must not manage roles, got %d", rec.Code)
	}
}

func TestValidateEndpoint(t *testing.T) {
	env := newTestAPI(t, false)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/artifacts/validate", "", validateRequest{
		Type:    "agent",
		Content: map[string]any{"system_prompt": "hi", "model": "sonnet"},
		Metadata: artifact.Metadata{
			Name: "demo", Version: "1.0.0", Description: "d", Author: "alice",
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("validate: %d %s", rec.Code, rec.Body.String())
	}
	var res artifact.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if !res.Valid || res.ContentHash == "" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestPublishInvalidArtifact(t *testing.T) {
	env := newTestAPI(t, false)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/artifacts", "", publishRequest{
		ID:       "a1",
		Type:     "agent",
		Content:  map[string]any{"model": "sonnet"},
		Metadata: artifact.Metadata{Name: "demo"},
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid artifact must 422, got %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "system_prompt") {
		t.Fatalf("validation detail must surface: %s", rec.Body.String())
	}
}

func TestScanEndpoint(t *testing.T) {
	env := newTestAPI(t, false)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/scan", "", scanRequest{
		Source: "import \"os/exec\"\n\nfunc Run() { exec.Command(\"sh\") }",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("scan: %d %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "exec.Command") {
		t.Fatalf("scan findings must surface: %s", rec.Body.String())
	}
}

func TestSignVerifyEndpoints(t *testing.T) {
	env := newTestAPI(t, false)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/signatures", "", signRequest{Data: "payload"})
	if rec.Code != http.StatusOK {
		t.Fatalf("sign: %d", rec.Code)
	}
	var signed map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &signed); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/signatures/verify", "", verifyRequest{
		Data: "payload", Signature: signed["signature"],
	})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "true") {
		t.Fatalf("verify: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/signatures/verify", "", verifyRequest{
		Data: "tampered", Signature: signed["signature"],
	})
	if !strings.Contains(rec.Body.String(), "false") {
		t.Fatalf("tampered data must not verify: %s", rec.Body.String())
	}
}

func TestEncryptDecryptEndpoints(t *testing.T) {
	env := newTestAPI(t, false)
	h := env.api.Handler()

	rec := doJSON(t, h, http.MethodPost, "/v1/protection/policies", "", protect.Policy{
		Name: "pii", Field: "email", Kind: protect.KindEncryption, KeyRef: "k1",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create policy: %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/protection/encrypt", "", encryptRequest{
		Policy: "pii", Data: map[string]any{"email": "a@b.c"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("encrypt: %d %s", rec.Code, rec.Body.String())
	}
	var enc map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &enc); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/protection/decrypt", "", decryptRequest{
		Policy: "pii", Blob: enc["blob"],
	})
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "a@b.c") {
		t.Fatalf("decrypt: %d %s", rec.Code, rec.Body.String())
	}
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestAPI(t, false)
	h := env.api.Handler()
	for _, path := range []string{"/v1/artifacts", "/v1/scan", "/v1/execute", "/v1/signatures"} {
		rec := doJSON(t, h, http.MethodGet, path, "", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s: expected 405, got %d", path, rec.Code)
		}
		if rec.Header().Get("Allow") == "" {
			t.Fatalf("%s: Allow header missing", path)
		}
	}
}

func TestUnknownPath(t *testing.T) {
	env := newTestAPI(t, false)
	rec := doJSON(t, env.api.Handler(), http.MethodGet, fmt.Sprintf("/v1/%s", "nope"), "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
