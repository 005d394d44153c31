package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/everkeep/internal/database/testutil"
	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/pkg/crypto"
)

func newSessionFixture(t *testing.T, cfg SessionConfig) (*SessionService, *models.User) {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	jwt, err := NewJWTService(JWTConfig{Secret: "session-test-secret", Issuer: "everkeep"})
	require.NoError(t, err)

	svc, err := NewSessionService(db, jwt, cfg)
	require.NoError(t, err)

	user := seedUser(t, db, "planner@example.com", "sturdy-passphrase")
	return svc, user
}

func TestCreateSessionStoresHashedToken(t *testing.T) {
	svc, user := newSessionFixture(t, SessionConfig{})

	pair, session, err := svc.CreateSession(user, SessionMetadata{IPAddress: "10.0.0.1", UserAgent: "test"})
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	// Only the digest is persisted.
	require.Equal(t, crypto.HashToken(pair.RefreshToken), session.TokenHash)
	require.NotEqual(t, pair.RefreshToken, session.TokenHash)

	claims, err := svc.jwt.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.UserID)
	require.Equal(t, session.ID, claims.SessionID)
}

func TestRefreshSessionRotatesToken(t *testing.T) {
	svc, user := newSessionFixture(t, SessionConfig{})

	pair, session, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)

	rotated, refreshed, err := svc.RefreshSession(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, session.ID, refreshed.ID)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// The old refresh token is dead after rotation.
	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestRefreshSessionRejectsRevoked(t *testing.T) {
	svc, user := newSessionFixture(t, SessionConfig{})

	pair, session, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)

	require.NoError(t, svc.RevokeSession(session.ID))
	require.ErrorIs(t, svc.RevokeSession(session.ID), ErrSessionNotFound)

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionRevoked)
}

func TestRefreshSessionRejectsExpired(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, user := newSessionFixture(t, SessionConfig{
		RefreshTokenTTL: time.Hour,
		Clock:           func() time.Time { return current },
	})

	pair, _, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)

	current = current.Add(2 * time.Hour)

	_, _, err = svc.RefreshSession(pair.RefreshToken)
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestCleanupExpiredRemovesDeadSessions(t *testing.T) {
	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, user := newSessionFixture(t, SessionConfig{
		RefreshTokenTTL: time.Hour,
		Clock:           func() time.Time { return current },
	})

	_, _, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)

	_, revoked, err := svc.CreateSession(user, SessionMetadata{})
	require.NoError(t, err)
	require.NoError(t, svc.RevokeSession(revoked.ID))

	current = current.Add(30 * time.Minute)

	deleted, err := svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	current = current.Add(time.Hour)

	deleted, err = svc.CleanupExpired(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)
}
