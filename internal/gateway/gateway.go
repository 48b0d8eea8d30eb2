// Package gateway is the single entry point for security decisions. It
// combines the token authority, the artifact validator, the code scanner,
// the sandbox, data protection, and the rate limiter, and emits one audit
// event for every decision it makes.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"forgegate.dev/internal/artifact"
	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/market"
	"forgegate.dev/internal/obs"
	"forgegate.dev/internal/ratelimit"
	"forgegate.dev/internal/rbac"
	"forgegate.dev/internal/sandbox"
	"forgegate.dev/internal/scanner"
	"forgegate.dev/internal/storage"
)

var (
	ErrAccessDenied     = errors.New("gateway: access denied")
	ErrInvalidArtifact  = errors.New("gateway: artifact failed validation")
	ErrSandboxDisabled  = errors.New("gateway: sandboxed execution is disabled")
	ErrScanningDisabled = errors.New("gateway: code scanning is disabled")
	ErrNoSigner         = errors.New("gateway: no signer configured")
)

// DefaultOperationPermissions maps gateway operation names to the permission
// they require. Operations outside the map need no permission beyond rate
// admission.
func DefaultOperationPermissions() map[string]rbac.Permission {
	return map[string]rbac.Permission{
		"read":    rbac.PermissionRead,
		"install": rbac.PermissionRead,
		"write":   rbac.PermissionWrite,
		"publish": rbac.PermissionWrite,
		"delete":  rbac.PermissionDelete,
		"execute": rbac.PermissionExecute,
	}
}

// Config carries the gateway's collaborators. Validator, Limiter, and Sink
// are required; the rest are optional and gate the features they serve.
type Config struct {
	Authority *rbac.Authority
	Validator *artifact.Validator
	Scanner   *scanner.Scanner
	Runner    sandbox.Runner
	Limiter   *ratelimit.Limiter
	Signer    *artifact.Signer
	Sink      audit.Sink
	Storage   storage.Store
	Market    market.Client

	EnableSandbox bool
	EnableScan    bool

	// OperationPermissions overrides DefaultOperationPermissions. Only
	// consulted when an Authority is configured.
	OperationPermissions map[string]rbac.Permission
}

// Gateway orchestrates every security-relevant operation.
type Gateway struct {
	cfg     Config
	permFor map[string]rbac.Permission

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New validates the configuration and builds a Gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Validator == nil {
		return nil, errors.New("gateway: validator is required")
	}
	if cfg.Limiter == nil {
		return nil, errors.New("gateway: rate limiter is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("gateway: audit sink is required")
	}
	permFor := cfg.OperationPermissions
	if permFor == nil {
		permFor = DefaultOperationPermissions()
	}
	return &Gateway{cfg: cfg, permFor: permFor, locks: make(map[string]*sync.Mutex)}, nil
}

// lockFor returns the lazily created per-artifact mutex. Locks are never
// removed; the set of live artifact ids is small relative to request volume.
func (g *Gateway) lockFor(artifactID string) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	l, ok := g.locks[artifactID]
	if !ok {
		l = &sync.Mutex{}
		g.locks[artifactID] = l
	}
	return l
}

// CheckAccess decides whether userID may perform operation on the artifact.
// Calls for the same artifact id are serialized. Rate admission is checked
// first; a denial is audited and returns false without further checks. When
// an authority is configured and the operation maps to a permission, the
// user's roles must grant it.
func (g *Gateway) CheckAccess(ctx context.Context, userID, artifactID, operation string) bool {
	l := g.lockFor(artifactID)
	l.Lock()
	defer l.Unlock()

	fields := map[string]any{
		"user_id":     userID,
		"artifact_id": artifactID,
		"operation":   operation,
	}
	if !g.cfg.Limiter.Check(userID) {
		obs.RateLimited()
		g.decide(ctx, "access.checked", "denied", fields, "rate limit exceeded")
		return false
	}
	if g.cfg.Authority != nil {
		if perm, ok := g.permFor[strings.ToLower(strings.TrimSpace(operation))]; ok {
			sc, err := g.cfg.Authority.UserContext(ctx, userID)
			if err != nil {
				g.decide(ctx, "access.checked", "denied", fields, "unknown user")
				return false
			}
			if !g.cfg.Authority.HasPermission(ctx, sc, perm, artifactID) {
				g.decide(ctx, "access.checked", "denied", fields, "permission not granted")
				return false
			}
		}
	}
	g.decide(ctx, "access.checked", "granted", fields, "")
	return true
}

// ValidateArtifact runs the full validation pipeline and audits the outcome.
func (g *Gateway) ValidateArtifact(ctx context.Context, typeName string, content map[string]any, meta artifact.Metadata) *artifact.Result {
	res := g.cfg.Validator.Validate(typeName, content, meta)
	outcome := "valid"
	if !res.Valid {
		outcome = "invalid"
	}
	g.decide(ctx, "artifact.validated", outcome, map[string]any{
		"type":         typeName,
		"name":         meta.Name,
		"errors":       len(res.Errors),
		"warnings":     len(res.Warnings),
		"content_hash": res.ContentHash,
	}, "")
	return res
}

// SandboxExecute runs code in the sandbox. It fails fast when sandboxing is
// disabled or no runner is configured.
func (g *Gateway) SandboxExecute(ctx context.Context, code string, opts sandbox.Options) (sandbox.ExecResult, error) {
	fields := map[string]any{"artifact_id": opts.ArtifactID}
	if !g.cfg.EnableSandbox || g.cfg.Runner == nil {
		g.decide(ctx, "sandbox.executed", "denied", fields, "sandboxing disabled")
		return sandbox.ExecResult{}, ErrSandboxDisabled
	}
	res, err := g.cfg.Runner.Execute(ctx, code, opts)
	obs.SandboxObserved(res.Duration)
	fields["exit_code"] = res.ExitCode
	fields["duration_ms"] = res.Duration.Milliseconds()
	if err != nil {
		g.decide(ctx, "sandbox.executed", "failed", fields, err.Error())
		return res, err
	}
	g.decide(ctx, "sandbox.executed", "succeeded", fields, "")
	return res, nil
}

// ScanCode statically analyzes source. It fails fast when scanning is
// disabled or no scanner is configured.
func (g *Gateway) ScanCode(ctx context.Context, source string) (*scanner.Result, error) {
	if !g.cfg.EnableScan || g.cfg.Scanner == nil {
		g.decide(ctx, "code.scanned", "denied", nil, "scanning disabled")
		return nil, ErrScanningDisabled
	}
	res := g.cfg.Scanner.Scan(source)
	outcome := "clean"
	if !res.Valid {
		outcome = "flagged"
	}
	g.decide(ctx, "code.scanned", outcome, map[string]any{
		"errors":   len(res.Errors),
		"warnings": len(res.Warnings),
	}, "")
	return res, nil
}

// GenerateSignature signs artifact bytes with the configured signer.
func (g *Gateway) GenerateSignature(ctx context.Context, data []byte) (string, error) {
	if g.cfg.Signer == nil {
		g.decide(ctx, "signature.generated", "failed", nil, "no signer configured")
		return "", ErrNoSigner
	}
	sig := g.cfg.Signer.Sign(data)
	g.decide(ctx, "signature.generated", "succeeded", map[string]any{"bytes": len(data)}, "")
	return sig, nil
}

// ValidateSignature verifies a detached signature over artifact bytes.
func (g *Gateway) ValidateSignature(ctx context.Context, data []byte, signature string) bool {
	if g.cfg.Signer == nil {
		g.decide(ctx, "signature.checked", "failed", nil, "no signer configured")
		return false
	}
	if err := g.cfg.Signer.Verify(data, signature); err != nil {
		g.decide(ctx, "signature.checked", "rejected", nil, "signature mismatch")
		return false
	}
	g.decide(ctx, "signature.checked", "verified", nil, "")
	return true
}

// PublishArtifact is the end-to-end publish path: access check, validation,
// storage, then marketplace hand-off. An artifact that fails validation is
// neither stored nor forwarded. Storage and marketplace failures surface
// unchanged.
func (g *Gateway) PublishArtifact(ctx context.Context, userID, id, typeName string, content map[string]any, meta artifact.Metadata) (*artifact.Result, error) {
	if !g.CheckAccess(ctx, userID, id, "publish") {
		return nil, ErrAccessDenied
	}
	res := g.ValidateArtifact(ctx, typeName, content, meta)
	if !res.Valid {
		return res, fmt.Errorf("%w: %s", ErrInvalidArtifact, strings.Join(res.Errors, "; "))
	}
	typ, err := artifact.ParseType(typeName)
	if err != nil {
		return res, err
	}
	if g.cfg.Storage != nil {
		if err := g.cfg.Storage.Store(ctx, id, typ, content, meta); err != nil {
			return res, err
		}
	}
	if g.cfg.Market != nil {
		if err := g.cfg.Market.Publish(ctx, id, typ, content, meta); err != nil {
			return res, err
		}
	}
	g.decide(ctx, "artifact.published", "succeeded", map[string]any{
		"user_id":     userID,
		"artifact_id": id,
		"type":        typeName,
	}, "")
	return res, nil
}

// InstallArtifact fetches an artifact from the marketplace, validates it, and
// stores it locally. Marketplace failures surface unchanged; an artifact that
// fails validation is not stored.
func (g *Gateway) InstallArtifact(ctx context.Context, userID, id, typeName string) (map[string]any, *artifact.Result, error) {
	if !g.CheckAccess(ctx, userID, id, "install") {
		return nil, nil, ErrAccessDenied
	}
	typ, err := artifact.ParseType(typeName)
	if err != nil {
		return nil, nil, err
	}
	if g.cfg.Market == nil {
		return nil, nil, errors.New("gateway: no marketplace configured")
	}
	content, meta, err := g.cfg.Market.Install(ctx, id, typ)
	if err != nil {
		return nil, nil, err
	}
	res := g.ValidateArtifact(ctx, typeName, content, meta)
	if !res.Valid {
		return nil, res, fmt.Errorf("%w: %s", ErrInvalidArtifact, strings.Join(res.Errors, "; "))
	}
	if g.cfg.Storage != nil {
		if err := g.cfg.Storage.Store(ctx, id, typ, content, meta); err != nil {
			return nil, res, err
		}
	}
	g.decide(ctx, "artifact.installed", "succeeded", map[string]any{
		"user_id":     userID,
		"artifact_id": id,
		"type":        typeName,
	}, "")
	return content, res, nil
}

// decide emits the audit event and bumps the decision counter for one
// gateway operation.
func (g *Gateway) decide(ctx context.Context, eventType, outcome string, fields map[string]any, reason string) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["outcome"] = outcome
	if reason != "" {
		fields["reason"] = reason
	}
	obs.Decision(eventType, outcome)
	if err := g.cfg.Sink.Emit(ctx, eventType, fields); err != nil {
		obs.Logger().Printf(`{"ts":%q,"level":"error","msg":"audit emit failed","event":%q,"err":%q}`,
			time.Now().UTC().Format(time.RFC3339Nano), eventType, err.Error())
	}
}
