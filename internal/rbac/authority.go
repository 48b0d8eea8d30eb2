// Package rbac is the token authority of the gateway: it issues, validates,
// refreshes, and revokes tokens, derives security contexts, and evaluates
// permissions, scopes, and roles against the role and policy collections.
package rbac

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/pattern"
)

// DefaultTokenTTL is the token lifetime when none is configured.
const DefaultTokenTTL = 24 * time.Hour

// Claims are the JWT claims embedded in issued tokens. The jti claim carries
// the token id used as the storage key.
type Claims struct {
	Scopes []string `json:"scopes,omitempty"`
	jwt.RegisteredClaims
}

// Authority issues and verifies tokens and answers authorization questions.
type Authority struct {
	store   Store
	matcher *pattern.Matcher
	sink    audit.Sink

	secret   []byte
	issuer   string
	tokenTTL time.Duration
	now      func() time.Time

	// refreshMu makes revoke-old/issue-new an atomic step.
	refreshMu sync.Mutex
}

// Option configures an Authority.
type Option func(*Authority)

// WithTokenTTL overrides the issued-token lifetime.
func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Authority) {
		if ttl > 0 {
			a.tokenTTL = ttl
		}
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) Option {
	return func(a *Authority) {
		if s := strings.TrimSpace(issuer); s != "" {
			a.issuer = s
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(a *Authority) {
		if fn != nil {
			a.now = fn
		}
	}
}

// WithAuditSink wires token lifecycle events into the audit trail.
func WithAuditSink(sink audit.Sink) Option {
	return func(a *Authority) { a.sink = sink }
}

// NewAuthority constructs an Authority signing tokens with secret.
func NewAuthority(store Store, secret string, opts ...Option) (*Authority, error) {
	if store == nil {
		return nil, errors.New("rbac: store is required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("rbac: token secret is required")
	}
	a := &Authority{
		store:    store,
		matcher:  pattern.NewMatcher(),
		secret:   []byte(secret),
		issuer:   "forgegate",
		tokenTTL: DefaultTokenTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// RegisterUser creates an account with a bcrypt-hashed secret and the given
// role assignments.
func (a *Authority) RegisterUser(ctx context.Context, id, secret string, roles []string) (User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if secret == "" {
		return User{}, fmt.Errorf("%w: secret is required", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	user := User{
		ID:         id,
		SecretHash: string(hash),
		Roles:      dedupeStrings(roles),
		CreatedAt:  a.now().UTC(),
	}
	if err := a.store.Users().Create(ctx, user); err != nil {
		return User{}, err
	}
	return user, nil
}

// AssignRoles replaces a user's role assignments. Takes effect on the next
// SecurityContext call; outstanding contexts are not cached.
func (a *Authority) AssignRoles(ctx context.Context, userID string, roles []string) error {
	return a.store.Users().SetRoles(ctx, userID, dedupeStrings(roles))
}

// Authenticate verifies credentials and mints a token carrying the requested
// scopes. Missing or unverifiable credentials fail with ErrAuthentication.
func (a *Authority) Authenticate(ctx context.Context, creds Credentials, scopes []Scope) (Token, error) {
	if strings.TrimSpace(creds.UserID) == "" || creds.Secret == "" {
		a.emit(ctx, "auth.failed", map[string]any{"reason": "missing credentials"})
		return Token{}, fmt.Errorf("%w: missing credentials", ErrAuthentication)
	}
	user, err := a.store.Users().Get(ctx, creds.UserID)
	if err != nil {
		a.emit(ctx, "auth.failed", map[string]any{"user_id": creds.UserID, "reason": "unknown user"})
		return Token{}, fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.SecretHash), []byte(creds.Secret)); err != nil {
		a.emit(ctx, "auth.failed", map[string]any{"user_id": creds.UserID, "reason": "bad secret"})
		return Token{}, fmt.Errorf("%w: invalid credentials", ErrAuthentication)
	}
	tok, err := a.mint(ctx, user.ID, scopes, nil)
	if err != nil {
		return Token{}, err
	}
	a.emit(ctx, "token.issued", map[string]any{"user_id": user.ID, "token_id": tok.ID})
	return tok, nil
}

// ValidateToken reports whether the presented token is known, authentic, and
// unexpired. The first validation past expiry revokes the token; subsequent
// validations of the same token simply return false.
func (a *Authority) ValidateToken(ctx context.Context, signed string) bool {
	tok, err := a.lookup(ctx, signed)
	if err != nil {
		return false
	}
	if tok.Expired(a.now()) {
		_ = a.store.Tokens().Delete(ctx, tok.ID)
		a.emit(ctx, "token.expired", map[string]any{"user_id": tok.UserID, "token_id": tok.ID})
		return false
	}
	return true
}

// RefreshToken issues a new token with the presented token's user, scopes,
// and metadata, atomically revoking the old one.
func (a *Authority) RefreshToken(ctx context.Context, signed string) (Token, error) {
	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	tok, err := a.lookup(ctx, signed)
	if err != nil {
		return Token{}, fmt.Errorf("%w: invalid token", ErrAuthentication)
	}
	if tok.Expired(a.now()) {
		_ = a.store.Tokens().Delete(ctx, tok.ID)
		a.emit(ctx, "token.expired", map[string]any{"user_id": tok.UserID, "token_id": tok.ID})
		return Token{}, fmt.Errorf("%w: token expired", ErrAuthentication)
	}
	fresh, err := a.mint(ctx, tok.UserID, tok.Scopes, tok.Metadata)
	if err != nil {
		return Token{}, err
	}
	if err := a.store.Tokens().Delete(ctx, tok.ID); err != nil {
		return Token{}, err
	}
	a.emit(ctx, "token.refreshed", map[string]any{
		"user_id": tok.UserID, "old_token_id": tok.ID, "new_token_id": fresh.ID,
	})
	return fresh, nil
}

// RevokeToken removes the presented token. Revoking an unknown or already
// revoked token is a no-op, not an error.
func (a *Authority) RevokeToken(ctx context.Context, signed string) {
	claims, err := a.parse(signed)
	if err != nil {
		return
	}
	if _, err := a.store.Tokens().Get(ctx, claims.ID); err != nil {
		return
	}
	_ = a.store.Tokens().Delete(ctx, claims.ID)
	a.emit(ctx, "token.revoked", map[string]any{"user_id": claims.Subject, "token_id": claims.ID})
}

// SecurityContext derives the security context for the presented token. It is
// recomputed on every call so role changes take effect immediately.
func (a *Authority) SecurityContext(ctx context.Context, signed string) (Context, error) {
	tok, err := a.lookup(ctx, signed)
	if err != nil {
		return Context{}, fmt.Errorf("%w: invalid token", ErrAuthentication)
	}
	if tok.Expired(a.now()) {
		_ = a.store.Tokens().Delete(ctx, tok.ID)
		a.emit(ctx, "token.expired", map[string]any{"user_id": tok.UserID, "token_id": tok.ID})
		return Context{}, fmt.Errorf("%w: token expired", ErrAuthentication)
	}
	user, err := a.store.Users().Get(ctx, tok.UserID)
	if err != nil {
		return Context{}, fmt.Errorf("%w: unknown user", ErrAuthentication)
	}
	return Context{
		UserID:   user.ID,
		Token:    tok,
		Roles:    append([]string(nil), user.Roles...),
		Scopes:   append([]Scope(nil), tok.Scopes...),
		Metadata: tok.Metadata,
	}, nil
}

// UserContext derives a security context directly from a stored user, with
// no token attached. Callers that already authenticated the user out of band
// use it for permission checks.
func (a *Authority) UserContext(ctx context.Context, userID string) (Context, error) {
	user, err := a.store.Users().Get(ctx, strings.TrimSpace(userID))
	if err != nil {
		return Context{}, fmt.Errorf("%w: unknown user", ErrAuthentication)
	}
	return Context{
		UserID: user.ID,
		Roles:  append([]string(nil), user.Roles...),
	}, nil
}

// HasPermission reports whether any of the context's roles grants the
// permission. With a resource identifier, a role scoped by patterns grants
// only when one of them matches; a role without patterns is unscoped and
// grants for any resource.
func (a *Authority) HasPermission(ctx context.Context, sc Context, perm Permission, resource string) bool {
	for _, name := range sc.Roles {
		role, err := a.store.Roles().Get(ctx, name)
		if err != nil {
			continue
		}
		if !role.Grants(perm) {
			continue
		}
		if resource == "" || len(role.ResourcePatterns) == 0 {
			return true
		}
		if a.matcher.MatchAny(role.ResourcePatterns, resource) {
			return true
		}
	}
	return false
}

// HasScope reports whether the context carries the scope. Admin scope
// implies every other scope.
func (a *Authority) HasScope(sc Context, scope Scope) bool {
	for _, s := range sc.Scopes {
		if s == scope || s == ScopeAdmin {
			return true
		}
	}
	return false
}

// HasRole reports whether the context holds the named role.
func (a *Authority) HasRole(sc Context, role string) bool {
	for _, r := range sc.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// EvaluatePolicy reports whether the named policy allows the context to
// perform action on resource: the context must hold one of the policy's
// roles, carry every required scope, and the resource must match one of the
// policy's protected resource identifiers.
func (a *Authority) EvaluatePolicy(ctx context.Context, sc Context, policyName string, action Permission, resource string) (bool, error) {
	policy, err := a.store.Policies().Get(ctx, policyName)
	if err != nil {
		return false, err
	}
	roleHeld := len(policy.Roles) == 0
	for _, r := range policy.Roles {
		if a.HasRole(sc, r) {
			roleHeld = true
			break
		}
	}
	if !roleHeld {
		return false, nil
	}
	for _, s := range policy.RequiredScopes {
		if !a.HasScope(sc, s) {
			return false, nil
		}
	}
	allowed := false
	for _, act := range policy.Actions {
		if act == action {
			allowed = true
			break
		}
	}
	if !allowed {
		return false, nil
	}
	if resource != "" && len(policy.Resources) > 0 && !a.matcher.MatchAny(policy.Resources, resource) {
		return false, nil
	}
	return true, nil
}

// mint issues and stores a fresh token.
func (a *Authority) mint(ctx context.Context, userID string, scopes []Scope, metadata map[string]string) (Token, error) {
	now := a.now().UTC()
	id := uuid.NewString()
	exp := now.Add(a.tokenTTL)

	scopeStrings := make([]string, 0, len(scopes))
	for _, s := range scopes {
		scopeStrings = append(scopeStrings, string(s))
	}
	claims := Claims{
		Scopes: scopeStrings,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        id,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return Token{}, fmt.Errorf("sign token: %w", err)
	}
	tok := Token{
		ID:        id,
		UserID:    userID,
		Scopes:    append([]Scope(nil), scopes...),
		IssuedAt:  now,
		ExpiresAt: exp,
		Metadata:  metadata,
		Signed:    signed,
	}
	if err := a.store.Tokens().Put(ctx, tok); err != nil {
		return Token{}, err
	}
	return tok, nil
}

// lookup verifies the signature and resolves the stored token record. Expiry
// is checked by callers so they can apply the revocation side effect.
func (a *Authority) lookup(ctx context.Context, signed string) (Token, error) {
	claims, err := a.parse(signed)
	if err != nil {
		return Token{}, err
	}
	return a.store.Tokens().Get(ctx, claims.ID)
}

// parse verifies the signature and issuer without enforcing expiry; expiry
// handling belongs to the callers so revocation side effects fire exactly
// once.
func (a *Authority) parse(signed string) (*jwt.RegisteredClaims, error) {
	signed = strings.TrimSpace(signed)
	if signed == "" {
		return nil, fmt.Errorf("%w: empty token", ErrAuthentication)
	}
	parsed, err := jwt.ParseWithClaims(signed, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("%w: unexpected signing method", ErrAuthentication)
		}
		return a.secret, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthentication, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: malformed claims", ErrAuthentication)
	}
	if a.issuer != "" && claims.Issuer != a.issuer {
		return nil, fmt.Errorf("%w: unexpected issuer", ErrAuthentication)
	}
	return &claims.RegisteredClaims, nil
}

func (a *Authority) emit(ctx context.Context, event string, fields map[string]any) {
	if a.sink == nil {
		return
	}
	_ = a.sink.Emit(ctx, event, fields)
}

func dedupeStrings(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
