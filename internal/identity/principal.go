package identity

import (
	"context"
	"errors"

	"venuebook/internal/models"
)

var (
	ErrUnauthenticated = errors.New("missing or invalid credentials")
	ErrForbidden       = errors.New("operation requires the admin role")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Email  string
	Name   string
	// Role is the role claimed by the token. Authorisation decisions go
	// through a Policy instead.
	Role string
}

// DisplayName falls back to the email when the token carries no name.
func (p Principal) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Email
}

// User converts the principal into a profile for TouchUser. The claimed role
// only seeds users that are not stored yet.
func (p Principal) User() *models.User {
	return &models.User{ID: p.UserID, Email: p.Email, DisplayName: p.Name, Role: normalizeRole(p.Role)}
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext returns the principal stored by WithPrincipal.
func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
