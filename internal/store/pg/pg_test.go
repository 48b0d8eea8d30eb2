package pg

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"forgegate.dev/internal/audit"
	"forgegate.dev/internal/rbac"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestRoleCreateConflict(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into rbac_roles").
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Roles().Create(context.Background(), rbac.Role{Name: "editor"})
	if !errors.Is(err, rbac.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestRoleGetRoundTrip(t *testing.T) {
	store, mock := newMock(t)
	role := rbac.Role{
		Name:             "editor",
		Permissions:      []rbac.Permission{rbac.PermissionRead, rbac.PermissionWrite},
		ResourcePatterns: []string{"docs/*"},
	}
	doc, err := json.Marshal(role)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	mock.ExpectQuery("select doc from rbac_roles").
		WithArgs("editor").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}).AddRow(doc))

	got, err := store.Roles().Get(context.Background(), "editor")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "editor" || len(got.Permissions) != 2 || got.ResourcePatterns[0] != "docs/*" {
		t.Fatalf("unexpected role: %+v", got)
	}
}

func TestRoleGetNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("select doc from rbac_roles").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"doc"}))

	_, err := store.Roles().Get(context.Background(), "ghost")
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRoleDeleteNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from rbac_roles").
		WithArgs("ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Roles().Delete(context.Background(), "ghost")
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTokenDeleteAbsentIsNoOp(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("delete from rbac_tokens").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Tokens().Delete(context.Background(), "tok-1"); err != nil {
		t.Fatalf("deleting an absent token must be a no-op, got %v", err)
	}
}

func TestUserSetRolesNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("update rbac_users set roles").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Users().SetRoles(context.Background(), "ghost", []string{"editor"})
	if !errors.Is(err, rbac.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAuditSinkChains(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	rec := audit.NewRecorder()
	sink := NewAuditSink(db, rec)
	mock.ExpectExec("insert into audit_events").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := sink.Emit(context.Background(), "access.checked", map[string]any{"outcome": "granted"}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if len(rec.ByType("access.checked")) != 1 {
		t.Fatal("event must chain to the next sink")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
