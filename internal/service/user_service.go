package service

import (
	"context"
	"errors"
	"fmt"

	"venuebook/internal/database"
	"venuebook/internal/domain"
	"venuebook/internal/identity"
	"venuebook/internal/models"

	"github.com/rs/zerolog"
)

var (
	ErrInvalidRole   = errors.New("unknown role")
	ErrInvalidChatID = errors.New("chat id is required")
)

// roleForgetter is implemented by policies that cache roles.
type roleForgetter interface {
	Forget(ctx context.Context, userID string) error
}

type UserService struct {
	repo   domain.UserRepository
	policy identity.Policy
	logger *zerolog.Logger
}

func NewUserService(repo domain.UserRepository, policy identity.Policy, logger *zerolog.Logger) *UserService {
	return &UserService{
		repo:   repo,
		policy: policy,
		logger: logger,
	}
}

// Touch records that p made an authenticated call.
func (s *UserService) Touch(ctx context.Context, p identity.Principal) error {
	return s.repo.TouchUser(ctx, p.User())
}

// Profile returns the stored profile of p with its effective role.
func (s *UserService) Profile(ctx context.Context, p identity.Principal) (*models.User, error) {
	u, err := s.repo.GetUser(ctx, p.UserID)
	if errors.Is(err, database.ErrNotFound) {
		u = p.User()
	} else if err != nil {
		return nil, err
	}

	role, err := s.policy.Role(ctx, p)
	if err != nil {
		return nil, err
	}
	u.Role = role
	return u, nil
}

// LinkTelegram stores the chat that receives p's notifications.
func (s *UserService) LinkTelegram(ctx context.Context, p identity.Principal, chatID int64) error {
	if chatID == 0 {
		return ErrInvalidChatID
	}
	if err := s.repo.TouchUser(ctx, p.User()); err != nil {
		return err
	}
	return s.repo.SetTelegramChatID(ctx, p.UserID, chatID)
}

// ListUsers returns every stored user. Admin only.
func (s *UserService) ListUsers(ctx context.Context, p identity.Principal) ([]*models.User, error) {
	if err := identity.RequireAdmin(ctx, s.policy, p); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// SetRole changes the stored role of userID. Admin only.
func (s *UserService) SetRole(ctx context.Context, p identity.Principal, userID, role string) error {
	if err := identity.RequireAdmin(ctx, s.policy, p); err != nil {
		return err
	}
	if !models.IsValidRole(role) {
		return fmt.Errorf("%w %q", ErrInvalidRole, role)
	}
	if err := s.repo.SetUserRole(ctx, userID, role); err != nil {
		return err
	}
	if f, ok := s.policy.(roleForgetter); ok {
		if err := f.Forget(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("Failed to drop cached role")
		}
	}
	s.logger.Info().Str("user_id", userID).Str("role", role).Str("changed_by", p.UserID).Msg("User role changed")
	return nil
}
