package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/everkeep/internal/database/testutil"
	"github.com/charlesng35/everkeep/internal/models"
)

func TestTriggerEnsureCreatesUntriggered(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	triggers, err := NewTriggerService(db)
	require.NoError(t, err)

	trigger, err := triggers.Ensure(context.Background(), "planner-1", "executor-1", models.TriggerTypeDeath)
	require.NoError(t, err)
	require.False(t, trigger.Triggered)
	require.Nil(t, trigger.TriggeredAt)
	require.Equal(t, models.VerificationMethodProfessional, trigger.VerificationMethod)

	again, err := triggers.Ensure(context.Background(), "planner-1", "executor-1", models.TriggerTypeDeath)
	require.NoError(t, err)
	require.Equal(t, trigger.ID, again.ID)
}

func TestTriggerSetTriggeredLatches(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	triggers, err := NewTriggerService(db, WithTriggerClock(clock.Now))
	require.NoError(t, err)

	trigger, err := triggers.Ensure(context.Background(), "planner-1", "executor-1", models.TriggerTypeDeath)
	require.NoError(t, err)

	fired, err := triggers.SetTriggered(context.Background(), trigger.ID, map[string]any{"note": "certificate verified"})
	require.NoError(t, err)
	require.True(t, fired.Triggered)
	require.NotNil(t, fired.TriggeredAt)
	firstFiredAt := *fired.TriggeredAt

	// Refiring later is a no-op: the latch holds the original timestamp.
	clock.Advance(48 * time.Hour)
	refired, err := triggers.SetTriggered(context.Background(), trigger.ID, map[string]any{"note": "resubmission"})
	require.NoError(t, err)
	require.True(t, refired.Triggered)
	require.Equal(t, firstFiredAt.Unix(), refired.TriggeredAt.Unix())
}

func TestTriggerSetTriggeredUnknownID(t *testing.T) {
	db := testutil.MustOpenTestDB(t)

	triggers, err := NewTriggerService(db)
	require.NoError(t, err)

	_, err = triggers.SetTriggered(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrTriggerNotFound)
}
