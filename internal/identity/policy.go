package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

// Policy resolves the effective role of a caller.
type Policy interface {
	Role(ctx context.Context, p Principal) (string, error)
}

// IsAdmin reports whether policy grants p the admin role.
func IsAdmin(ctx context.Context, policy Policy, p Principal) (bool, error) {
	role, err := policy.Role(ctx, p)
	if err != nil {
		return false, err
	}
	return role == models.RoleAdmin, nil
}

// RequireAdmin returns ErrForbidden unless p is an admin.
func RequireAdmin(ctx context.Context, policy Policy, p Principal) error {
	ok, err := IsAdmin(ctx, policy, p)
	if err != nil {
		return err
	}
	if !ok {
		return ErrForbidden
	}
	return nil
}

// StorePolicy reads roles from the users table and caches them for ttl.
// Users the store does not know keep the role their token claims.
type StorePolicy struct {
	users  domain.UserRepository
	cache  domain.StateRepository
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewStorePolicy(users domain.UserRepository, cache domain.StateRepository, ttl time.Duration, logger *zerolog.Logger) *StorePolicy {
	return &StorePolicy{users: users, cache: cache, ttl: ttl, logger: logger}
}

func roleCacheKey(userID string) string {
	return "role:" + userID
}

func (s *StorePolicy) Role(ctx context.Context, p Principal) (string, error) {
	if s.cache != nil && s.ttl > 0 {
		if role, ok, err := s.cache.GetCached(ctx, roleCacheKey(p.UserID)); err == nil && ok {
			return role, nil
		} else if err != nil {
			s.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("Role cache lookup failed")
		}
	}

	role := normalizeRole(p.Role)
	u, err := s.users.GetUser(ctx, p.UserID)
	switch {
	case err == nil:
		role = normalizeRole(u.Role)
	case errors.Is(err, database.ErrNotFound):
	default:
		return "", fmt.Errorf("failed to resolve role: %w", err)
	}

	if s.cache != nil && s.ttl > 0 {
		if err := s.cache.SetCached(ctx, roleCacheKey(p.UserID), role, s.ttl); err != nil {
			s.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("Role cache store failed")
		}
	}
	return role, nil
}

// Forget drops the cached role, e.g. after SetUserRole.
func (s *StorePolicy) Forget(ctx context.Context, userID string) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.DeleteCached(ctx, roleCacheKey(userID))
}

func normalizeRole(role string) string {
	if role == models.RoleAdmin {
		return models.RoleAdmin
	}
	return models.RoleUser
}
