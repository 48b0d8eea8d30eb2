package rbac

import (
	"fmt"
	"strings"
	"time"
)

// Permission is a fine-grained action checked against a Role.
type Permission string

const (
	PermissionRead    Permission = "read"
	PermissionWrite   Permission = "write"
	PermissionDelete  Permission = "delete"
	PermissionExecute Permission = "execute"
	PermissionAdmin   Permission = "admin"
)

// ParsePermission normalizes and validates a permission string.
func ParsePermission(s string) (Permission, error) {
	switch p := Permission(strings.ToLower(strings.TrimSpace(s))); p {
	case PermissionRead, PermissionWrite, PermissionDelete, PermissionExecute, PermissionAdmin:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown permission %q", ErrInvalidInput, s)
	}
}

// Scope is a coarse-grained capability grant attached to a Token.
type Scope string

const (
	ScopeRead    Scope = "read"
	ScopeWrite   Scope = "write"
	ScopeAdmin   Scope = "admin"
	ScopeExecute Scope = "execute"
)

// ParseScope normalizes and validates a scope string.
func ParseScope(s string) (Scope, error) {
	switch sc := Scope(strings.ToLower(strings.TrimSpace(s))); sc {
	case ScopeRead, ScopeWrite, ScopeAdmin, ScopeExecute:
		return sc, nil
	default:
		return "", fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, s)
	}
}

// Role groups permissions, optionally scoped to resources matching its
// patterns.
type Role struct {
	Name             string            `json:"name"`
	Permissions      []Permission      `json:"permissions"`
	ResourcePatterns []string          `json:"resource_patterns,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// Grants reports whether the role carries the permission.
func (r Role) Grants(p Permission) bool {
	for _, have := range r.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

// Policy binds roles to allowed actions over protected resources.
type Policy struct {
	Name           string            `json:"name"`
	Roles          []string          `json:"roles"`
	RequiredScopes []Scope           `json:"required_scopes,omitempty"`
	Resources      []string          `json:"resources,omitempty"`
	Actions        []Permission      `json:"actions"`
	Conditions     map[string]string `json:"conditions,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// User is an account able to authenticate against the gateway.
type User struct {
	ID         string            `json:"id"`
	SecretHash string            `json:"-"`
	Roles      []string          `json:"roles"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Token is an issued credential. Immutable once issued; the lifecycle is
// create, validate (many times), then refresh, expiry, or explicit
// revocation.
type Token struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Scopes    []Scope           `json:"scopes"`
	IssuedAt  time.Time         `json:"issued_at"`
	ExpiresAt time.Time         `json:"expires_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	// Signed is the compact JWT presented by callers.
	Signed string `json:"signed"`
}

// Expired reports whether the token is past its expiry at the given instant.
func (t Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

// Context is the security context derived from a token. It is recomputed on
// every request rather than cached, so role changes take effect immediately.
type Context struct {
	UserID   string            `json:"user_id"`
	Token    Token             `json:"token"`
	Roles    []string          `json:"roles"`
	Scopes   []Scope           `json:"scopes"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Credentials carry what a caller presents to authenticate.
type Credentials struct {
	UserID string
	Secret string
}
