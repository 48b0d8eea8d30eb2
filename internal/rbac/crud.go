package rbac

import (
	"context"
	"fmt"
	"strings"
)

// Role and policy CRUD. The stores enforce duplicate/not-found semantics;
// these wrappers normalize input first.

func (a *Authority) CreateRole(ctx context.Context, role Role) error {
	if err := normalizeRole(&role); err != nil {
		return err
	}
	return a.store.Roles().Create(ctx, role)
}

func (a *Authority) GetRole(ctx context.Context, name string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return a.store.Roles().Get(ctx, name)
}

func (a *Authority) UpdateRole(ctx context.Context, role Role) error {
	if err := normalizeRole(&role); err != nil {
		return err
	}
	return a.store.Roles().Update(ctx, role)
}

func (a *Authority) DeleteRole(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	return a.store.Roles().Delete(ctx, name)
}

func (a *Authority) ListRoles(ctx context.Context) ([]Role, error) {
	return a.store.Roles().List(ctx)
}

func (a *Authority) CreatePolicy(ctx context.Context, policy Policy) error {
	if err := normalizePolicy(&policy); err != nil {
		return err
	}
	return a.store.Policies().Create(ctx, policy)
}

func (a *Authority) GetPolicy(ctx context.Context, name string) (Policy, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Policy{}, fmt.Errorf("%w: policy name is required", ErrInvalidInput)
	}
	return a.store.Policies().Get(ctx, name)
}

func (a *Authority) UpdatePolicy(ctx context.Context, policy Policy) error {
	if err := normalizePolicy(&policy); err != nil {
		return err
	}
	return a.store.Policies().Update(ctx, policy)
}

func (a *Authority) DeletePolicy(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: policy name is required", ErrInvalidInput)
	}
	return a.store.Policies().Delete(ctx, name)
}

func (a *Authority) ListPolicies(ctx context.Context) ([]Policy, error) {
	return a.store.Policies().List(ctx)
}

func normalizeRole(role *Role) error {
	role.Name = strings.TrimSpace(role.Name)
	if role.Name == "" {
		return fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	for i, p := range role.Permissions {
		parsed, err := ParsePermission(string(p))
		if err != nil {
			return err
		}
		role.Permissions[i] = parsed
	}
	role.ResourcePatterns = dedupeStrings(role.ResourcePatterns)
	return nil
}

func normalizePolicy(policy *Policy) error {
	policy.Name = strings.TrimSpace(policy.Name)
	if policy.Name == "" {
		return fmt.Errorf("%w: policy name is required", ErrInvalidInput)
	}
	policy.Roles = dedupeStrings(policy.Roles)
	for i, act := range policy.Actions {
		parsed, err := ParsePermission(string(act))
		if err != nil {
			return err
		}
		policy.Actions[i] = parsed
	}
	for i, s := range policy.RequiredScopes {
		parsed, err := ParseScope(string(s))
		if err != nil {
			return err
		}
		policy.RequiredScopes[i] = parsed
	}
	policy.Resources = dedupeStrings(policy.Resources)
	return nil
}
