package rbac

import "errors"

var (
	// ErrAuthentication covers bad, missing, or expired credentials and tokens.
	ErrAuthentication = errors.New("rbac: authentication failed")
	// ErrAuthorization covers insufficient permission, scope, or role.
	ErrAuthorization = errors.New("rbac: not authorized")
	ErrNotFound      = errors.New("rbac: not found")
	ErrConflict      = errors.New("rbac: already exists")
	ErrInvalidInput  = errors.New("rbac: invalid input")
)
