package rbac

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is the in-memory Store implementation. Each collection is
// protected by its own coarse lock; critical sections are short and
// non-blocking.
type MemoryStore struct {
	tokens   memTokens
	roles    memRoles
	policies memPolicies
	users    memUsers
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		tokens:   memTokens{items: make(map[string]Token)},
		roles:    memRoles{items: make(map[string]Role)},
		policies: memPolicies{items: make(map[string]Policy)},
		users:    memUsers{items: make(map[string]User)},
	}
}

func (s *MemoryStore) Tokens() TokenStore    { return &s.tokens }
func (s *MemoryStore) Roles() RoleStore      { return &s.roles }
func (s *MemoryStore) Policies() PolicyStore { return &s.policies }
func (s *MemoryStore) Users() UserStore      { return &s.users }

// Tokens --------------------------------------------------------------------

type memTokens struct {
	mu    sync.RWMutex
	items map[string]Token
}

func (s *memTokens) Put(_ context.Context, tok Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[tok.ID] = tok
	return nil
}

func (s *memTokens) Get(_ context.Context, id string) (Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.items[id]
	if !ok {
		return Token{}, fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	return tok, nil
}

func (s *memTokens) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

// Roles ---------------------------------------------------------------------

type memRoles struct {
	mu    sync.RWMutex
	items map[string]Role
}

func (s *memRoles) Create(_ context.Context, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[role.Name]; ok {
		return fmt.Errorf("%w: role %s", ErrConflict, role.Name)
	}
	now := time.Now().UTC()
	role.CreatedAt, role.UpdatedAt = now, now
	s.items[role.Name] = role
	return nil
}

func (s *memRoles) Get(_ context.Context, name string) (Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	role, ok := s.items[name]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %s", ErrNotFound, name)
	}
	return role, nil
}

func (s *memRoles) Update(_ context.Context, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[role.Name]
	if !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, role.Name)
	}
	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = time.Now().UTC()
	s.items[role.Name] = role
	return nil
}

func (s *memRoles) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; !ok {
		return fmt.Errorf("%w: role %s", ErrNotFound, name)
	}
	delete(s.items, name)
	return nil
}

func (s *memRoles) List(_ context.Context) ([]Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Role, 0, len(s.items))
	for _, role := range s.items {
		out = append(out, role)
	}
	return out, nil
}

// Policies ------------------------------------------------------------------

type memPolicies struct {
	mu    sync.RWMutex
	items map[string]Policy
}

func (s *memPolicies) Create(_ context.Context, policy Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[policy.Name]; ok {
		return fmt.Errorf("%w: policy %s", ErrConflict, policy.Name)
	}
	now := time.Now().UTC()
	policy.CreatedAt, policy.UpdatedAt = now, now
	s.items[policy.Name] = policy
	return nil
}

func (s *memPolicies) Get(_ context.Context, name string) (Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	policy, ok := s.items[name]
	if !ok {
		return Policy{}, fmt.Errorf("%w: policy %s", ErrNotFound, name)
	}
	return policy, nil
}

func (s *memPolicies) Update(_ context.Context, policy Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.items[policy.Name]
	if !ok {
		return fmt.Errorf("%w: policy %s", ErrNotFound, policy.Name)
	}
	policy.CreatedAt = existing.CreatedAt
	policy.UpdatedAt = time.Now().UTC()
	s.items[policy.Name] = policy
	return nil
}

func (s *memPolicies) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[name]; !ok {
		return fmt.Errorf("%w: policy %s", ErrNotFound, name)
	}
	delete(s.items, name)
	return nil
}

func (s *memPolicies) List(_ context.Context) ([]Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Policy, 0, len(s.items))
	for _, policy := range s.items {
		out = append(out, policy)
	}
	return out, nil
}

// Users ---------------------------------------------------------------------

type memUsers struct {
	mu    sync.RWMutex
	items map[string]User
}

func (s *memUsers) Create(_ context.Context, user User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[user.ID]; ok {
		return fmt.Errorf("%w: user %s", ErrConflict, user.ID)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.items[user.ID] = user
	return nil
}

func (s *memUsers) Get(_ context.Context, id string) (User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	user, ok := s.items[id]
	if !ok {
		return User{}, fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	return user, nil
}

func (s *memUsers) SetRoles(_ context.Context, id string, roles []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.items[id]
	if !ok {
		return fmt.Errorf("%w: user %s", ErrNotFound, id)
	}
	user.Roles = append([]string(nil), roles...)
	s.items[id] = user
	return nil
}
