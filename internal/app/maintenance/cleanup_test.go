package maintenance

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/everkeep/internal/database/testutil"
	"github.com/charlesng35/everkeep/internal/models"
)

func TestCleanupInvitations(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	planner := &models.User{Email: "planner@example.com", Password: "x", Role: models.RolePlanner, IsActive: true}
	require.NoError(t, db.Create(planner).Error)

	makeExecutor := func(email string) *models.Executor {
		executor := &models.Executor{
			PlannerID: planner.ID,
			Name:      "Someone",
			Email:     email,
			Status:    models.ExecutorStatusPending,
		}
		require.NoError(t, db.Create(executor).Error)
		return executor
	}

	recentAccept := now.Add(-24 * time.Hour)
	staleAccept := now.Add(-60 * 24 * time.Hour)

	fresh := &models.Invitation{ExecutorID: makeExecutor("fresh@example.com").ID, TokenHash: "hash-fresh", ExpiresAt: now.Add(time.Hour)}
	expired := &models.Invitation{ExecutorID: makeExecutor("expired@example.com").ID, TokenHash: "hash-expired", ExpiresAt: now.Add(-time.Hour)}
	recentlyAccepted := &models.Invitation{ExecutorID: makeExecutor("recent@example.com").ID, TokenHash: "hash-recent", ExpiresAt: now.Add(time.Hour), AcceptedAt: &recentAccept}
	staleAccepted := &models.Invitation{ExecutorID: makeExecutor("stale@example.com").ID, TokenHash: "hash-stale", ExpiresAt: now.Add(time.Hour), AcceptedAt: &staleAccept}

	for _, invitation := range []*models.Invitation{fresh, expired, recentlyAccepted, staleAccepted} {
		require.NoError(t, db.Create(invitation).Error)
	}

	deleted, err := CleanupInvitations(context.Background(), db, now)
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)

	var remaining []models.Invitation
	require.NoError(t, db.Find(&remaining).Error)
	require.Len(t, remaining, 2)

	hashes := []string{remaining[0].TokenHash, remaining[1].TokenHash}
	require.ElementsMatch(t, []string{"hash-fresh", "hash-recent"}, hashes)
}

func TestCleanerRunOnce(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	cleaner := NewCleaner(db, nil, nil, WithNow(func() time.Time {
		return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	}))

	require.NoError(t, cleaner.RunOnce(context.Background()))
}
