package api

import (
	"context"
	"errors"
	"strings"

	"venuebook/internal/config"
	"venuebook/internal/identity"

	"github.com/rs/zerolog"
)

var errRateLimited = errors.New("rate limit exceeded")

// UserToucher records authenticated calls on the caller's profile.
type UserToucher interface {
	Touch(ctx context.Context, p identity.Principal) error
}

// Authenticator turns a bearer token into a Principal and throttles each
// principal. It is shared by the HTTP and gRPC transports.
type Authenticator struct {
	verifier *identity.TokenVerifier
	users    UserToucher
	limiter  *rateLimiter
	logger   zerolog.Logger
}

func NewAuthenticator(cfg config.APIConfig, users UserToucher, logger *zerolog.Logger) *Authenticator {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "auth").Logger()
	}
	return &Authenticator{
		verifier: identity.NewTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience),
		users:    users,
		limiter:  newRateLimiter(cfg.RateLimit),
		logger:   base,
	}
}

// Authenticate verifies the value of an Authorization header.
func (a *Authenticator) Authenticate(ctx context.Context, authorization string) (identity.Principal, error) {
	p, err := a.verifier.Verify(bearerToken(authorization))
	if err != nil {
		return identity.Principal{}, err
	}

	if !a.limiter.allow(p.UserID) {
		return identity.Principal{}, errRateLimited
	}

	if a.users != nil {
		if err := a.users.Touch(ctx, p); err != nil {
			a.logger.Warn().Err(err).Str("user_id", p.UserID).Msg("touch user profile")
		}
	}
	return p, nil
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}
