package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"forgegate.dev/internal/rbac"
)

// Each collection keeps its key and timestamps as columns and the rest of
// the record as a JSON document, so the schema survives additive changes to
// the Go types.

type roleStore struct {
	db *sql.DB
}

func (s roleStore) Create(ctx context.Context, role rbac.Role) error {
	now := time.Now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	doc, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("encode role: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into rbac_roles (name, doc, created_at, updated_at)
		values ($1, $2, $3, $3)
	`, role.Name, doc, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: role %q", rbac.ErrConflict, role.Name)
	}
	return err
}

func (s roleStore) Get(ctx context.Context, name string) (rbac.Role, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		select doc from rbac_roles where name = $1
	`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Role{}, fmt.Errorf("%w: role %q", rbac.ErrNotFound, name)
	}
	if err != nil {
		return rbac.Role{}, err
	}
	var role rbac.Role
	if err := json.Unmarshal(doc, &role); err != nil {
		return rbac.Role{}, fmt.Errorf("decode role: %w", err)
	}
	return role, nil
}

func (s roleStore) Update(ctx context.Context, role rbac.Role) error {
	existing, err := s.Get(ctx, role.Name)
	if err != nil {
		return err
	}
	role.CreatedAt = existing.CreatedAt
	role.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(role)
	if err != nil {
		return fmt.Errorf("encode role: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update rbac_roles set doc = $2, updated_at = $3 where name = $1
	`, role.Name, doc, role.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: role %q", rbac.ErrNotFound, role.Name)
	}
	return nil
}

func (s roleStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from rbac_roles where name = $1`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: role %q", rbac.ErrNotFound, name)
	}
	return nil
}

func (s roleStore) List(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx, `select doc from rbac_roles order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Role
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var role rbac.Role
		if err := json.Unmarshal(doc, &role); err != nil {
			return nil, fmt.Errorf("decode role: %w", err)
		}
		out = append(out, role)
	}
	return out, rows.Err()
}

type policyStore struct {
	db *sql.DB
}

func (s policyStore) Create(ctx context.Context, policy rbac.Policy) error {
	now := time.Now().UTC()
	policy.CreatedAt = now
	policy.UpdatedAt = now
	doc, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into rbac_policies (name, doc, created_at, updated_at)
		values ($1, $2, $3, $3)
	`, policy.Name, doc, now)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: policy %q", rbac.ErrConflict, policy.Name)
	}
	return err
}

func (s policyStore) Get(ctx context.Context, name string) (rbac.Policy, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		select doc from rbac_policies where name = $1
	`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Policy{}, fmt.Errorf("%w: policy %q", rbac.ErrNotFound, name)
	}
	if err != nil {
		return rbac.Policy{}, err
	}
	var policy rbac.Policy
	if err := json.Unmarshal(doc, &policy); err != nil {
		return rbac.Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return policy, nil
}

func (s policyStore) Update(ctx context.Context, policy rbac.Policy) error {
	existing, err := s.Get(ctx, policy.Name)
	if err != nil {
		return err
	}
	policy.CreatedAt = existing.CreatedAt
	policy.UpdatedAt = time.Now().UTC()
	doc, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("encode policy: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update rbac_policies set doc = $2, updated_at = $3 where name = $1
	`, policy.Name, doc, policy.UpdatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: policy %q", rbac.ErrNotFound, policy.Name)
	}
	return nil
}

func (s policyStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `delete from rbac_policies where name = $1`, name)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: policy %q", rbac.ErrNotFound, name)
	}
	return nil
}

func (s policyStore) List(ctx context.Context) ([]rbac.Policy, error) {
	rows, err := s.db.QueryContext(ctx, `select doc from rbac_policies order by name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Policy
	for rows.Next() {
		var doc []byte
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var policy rbac.Policy
		if err := json.Unmarshal(doc, &policy); err != nil {
			return nil, fmt.Errorf("decode policy: %w", err)
		}
		out = append(out, policy)
	}
	return out, rows.Err()
}

type userStore struct {
	db *sql.DB
}

func (s userStore) Create(ctx context.Context, user rbac.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	roles, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	meta, err := json.Marshal(user.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into rbac_users (id, secret_hash, roles, metadata, created_at)
		values ($1, $2, $3, $4, $5)
	`, user.ID, user.SecretHash, roles, meta, user.CreatedAt)
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: user %q", rbac.ErrConflict, user.ID)
	}
	return err
}

func (s userStore) Get(ctx context.Context, id string) (rbac.User, error) {
	var (
		user  rbac.User
		roles []byte
		meta  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, secret_hash, roles, metadata, created_at
		from rbac_users where id = $1
	`, id).Scan(&user.ID, &user.SecretHash, &roles, &meta, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.User{}, fmt.Errorf("%w: user %q", rbac.ErrNotFound, id)
	}
	if err != nil {
		return rbac.User{}, err
	}
	if len(roles) > 0 {
		if err := json.Unmarshal(roles, &user.Roles); err != nil {
			return rbac.User{}, fmt.Errorf("decode roles: %w", err)
		}
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &user.Metadata); err != nil {
			return rbac.User{}, fmt.Errorf("decode metadata: %w", err)
		}
	}
	return user, nil
}

func (s userStore) SetRoles(ctx context.Context, id string, roles []string) error {
	doc, err := json.Marshal(roles)
	if err != nil {
		return fmt.Errorf("encode roles: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		update rbac_users set roles = $2 where id = $1
	`, id, doc)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: user %q", rbac.ErrNotFound, id)
	}
	return nil
}

type tokenStore struct {
	db *sql.DB
}

func (s tokenStore) Put(ctx context.Context, tok rbac.Token) error {
	doc, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("encode token: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		insert into rbac_tokens (id, doc, expires_at)
		values ($1, $2, $3)
		on conflict (id) do update set doc = excluded.doc, expires_at = excluded.expires_at
	`, tok.ID, doc, tok.ExpiresAt)
	return err
}

func (s tokenStore) Get(ctx context.Context, id string) (rbac.Token, error) {
	var doc []byte
	err := s.db.QueryRowContext(ctx, `
		select doc from rbac_tokens where id = $1
	`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Token{}, fmt.Errorf("%w: token", rbac.ErrNotFound)
	}
	if err != nil {
		return rbac.Token{}, err
	}
	var tok rbac.Token
	if err := json.Unmarshal(doc, &tok); err != nil {
		return rbac.Token{}, fmt.Errorf("decode token: %w", err)
	}
	return tok, nil
}

func (s tokenStore) Delete(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `delete from rbac_tokens where id = $1`, id)
	return err
}
