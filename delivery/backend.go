package delivery

import (
	"context"
	"errors"
)

// Benign-duplicate outcomes. A Backend returns these (possibly wrapped) when
// the requested state already holds; delivery treats them as success.
var (
	ErrAlreadyExists = errors.New("grantrelay: already exists")
	ErrAlreadyAbsent = errors.New("grantrelay: already absent")
)

// Backend is the authorization-policy backend that records are delivered to.
// Every method must be safe to call repeatedly with the same arguments.
type Backend interface {
	// CreatePrincipal ensures a user keyed by key exists.
	CreatePrincipal(ctx context.Context, key string) error

	// AssignRole grants role within tenant to the user keyed by key.
	AssignRole(ctx context.Context, key, role, tenant string) error

	// RemovePrincipal deletes the user keyed by key.
	RemovePrincipal(ctx context.Context, key string) error
}
