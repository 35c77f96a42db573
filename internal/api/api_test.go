package api

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"venuebook/internal/booking"
	"venuebook/internal/config"
	"venuebook/internal/database"
	"venuebook/internal/identity"
	"venuebook/internal/models"
	"venuebook/internal/repository"
	"venuebook/internal/service"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const (
	testSecret   = "api-test-secret-0123456789"
	testIssuer   = "venuebook"
	testAudience = "venuebook-api"
	testDate     = "2030-06-10"
)

type testEnv struct {
	db     *database.DB
	issuer *identity.TokenIssuer
	cfg    config.APIConfig
	svc    Services
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLimit(t, config.APIRateLimitConfig{RPS: 1000, Burst: 1000})
}

func newTestEnvWithLimit(t *testing.T, limit config.APIRateLimitConfig) *testEnv {
	t.Helper()
	logger := zerolog.New(io.Discard)

	db, err := database.NewDB(filepath.Join(t.TempDir(), "api.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	policy := identity.NewStorePolicy(db, nil, 0, &logger)
	bookings := service.NewBookingService(db, policy, repository.NewMemoryStateRepository(), nil, nil, nil, service.BookingOptions{
		Clock:    booking.FixedClock(time.Date(2030, 6, 1, 9, 0, 0, 0, time.UTC)),
		Location: time.UTC,
	}, &logger)
	users := service.NewUserService(db, policy, &logger)

	cfg := config.APIConfig{
		Enabled:   true,
		HTTP:      config.APIHTTPConfig{Enabled: true},
		Auth:      config.APIAuthConfig{JWTSecret: testSecret, Issuer: testIssuer, Audience: testAudience},
		RateLimit: limit,
	}

	require.NoError(t, db.UpsertUser(context.Background(), &models.User{
		ID:          "admin-1",
		Email:       "admin@example.com",
		DisplayName: "Admin",
		Role:        models.RoleAdmin,
		CreatedAt:   time.Now().UTC(),
		LastLogin:   time.Now().UTC(),
	}))

	return &testEnv{
		db:     db,
		issuer: identity.NewTokenIssuer(testSecret, testIssuer, testAudience, time.Hour),
		cfg:    cfg,
		svc: Services{
			Bookings: bookings,
			Users:    users,
			Auth:     NewAuthenticator(cfg, users, &logger),
			Venues: []config.VenueInfo{
				{ID: "auditorium", Description: "Ground floor", Capacity: 120},
			},
			Ready: func(ctx context.Context) error { return db.PingContext(ctx) },
		},
	}
}

func (e *testEnv) token(t *testing.T, userID, email string) string {
	t.Helper()
	tok, err := e.issuer.Issue(identity.Principal{UserID: userID, Email: email, Name: userID})
	require.NoError(t, err)
	return tok
}

func bookingRequest(venue, start, end string) map[string]any {
	return map[string]any{
		"venue":        venue,
		"date":         testDate,
		"startTime":    start,
		"endTime":      end,
		"purpose":      "Quarterly planning",
		"participants": "8",
	}
}
