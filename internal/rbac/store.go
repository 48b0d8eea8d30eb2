package rbac

import "context"

// Store aggregates the persistence operations required by the authority.
// The memory implementation is the default; a durable backend can be swapped
// in without touching RBAC logic.
type Store interface {
	Tokens() TokenStore
	Roles() RoleStore
	Policies() PolicyStore
	Users() UserStore
}

// TokenStore keys issued tokens by id. No persistence guarantee is required;
// a process restart invalidating all outstanding tokens is acceptable.
type TokenStore interface {
	Put(ctx context.Context, tok Token) error
	Get(ctx context.Context, id string) (Token, error)
	// Delete removes the token; deleting an absent token is a no-op.
	Delete(ctx context.Context, id string) error
}

// RoleStore manages the role collection. Names are globally unique.
type RoleStore interface {
	Create(ctx context.Context, role Role) error
	Get(ctx context.Context, name string) (Role, error)
	Update(ctx context.Context, role Role) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Role, error)
}

// PolicyStore manages the policy collection. Names are globally unique.
type PolicyStore interface {
	Create(ctx context.Context, policy Policy) error
	Get(ctx context.Context, name string) (Policy, error)
	Update(ctx context.Context, policy Policy) error
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Policy, error)
}

// UserStore manages accounts and their role assignments.
type UserStore interface {
	Create(ctx context.Context, user User) error
	Get(ctx context.Context, id string) (User, error)
	SetRoles(ctx context.Context, id string, roles []string) error
}
