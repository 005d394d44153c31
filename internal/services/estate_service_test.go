package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/everkeep/internal/models"
)

func newEstateService(t *testing.T, f *invitationFixture) *EstateService {
	t.Helper()

	gate, err := NewAccessGate(f.db)
	require.NoError(t, err)
	estate, err := NewEstateService(f.db, gate)
	require.NoError(t, err)
	return estate
}

func TestEstateAssetLifecycle(t *testing.T) {
	f := newInvitationFixture(t)
	estate := newEstateService(t, f)

	asset, err := estate.CreateAsset(context.Background(), f.planner.ID, AssetInput{
		Name:     "Checking account",
		Category: "financial",
		Value:    12500,
		Location: "First National",
	})
	require.NoError(t, err)

	updated, err := estate.UpdateAsset(context.Background(), f.planner.ID, asset.ID, AssetInput{
		Name:     "Joint checking account",
		Category: "financial",
		Value:    13000,
		Location: "First National",
		Notes:    "shared with spouse",
	})
	require.NoError(t, err)
	require.Equal(t, "Joint checking account", updated.Name)

	assets, err := estate.ListAssets(context.Background(), f.planner.ID)
	require.NoError(t, err)
	require.Len(t, assets, 1)
	require.Equal(t, float64(13000), assets[0].Value)

	require.NoError(t, estate.DeleteAsset(context.Background(), f.planner.ID, asset.ID))
	require.ErrorIs(t, estate.DeleteAsset(context.Background(), f.planner.ID, asset.ID), ErrEstateItemNotFound)
}

func TestEstateOwnershipIsEnforced(t *testing.T) {
	f := newInvitationFixture(t)
	estate := newEstateService(t, f)

	other, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "other@example.com",
		Password: "sturdy-passphrase",
	})
	require.NoError(t, err)

	asset, err := estate.CreateAsset(context.Background(), f.planner.ID, AssetInput{Name: "House"})
	require.NoError(t, err)

	_, err = estate.UpdateAsset(context.Background(), other.ID, asset.ID, AssetInput{Name: "Stolen house"})
	require.ErrorIs(t, err, ErrEstateItemNotFound)
	require.ErrorIs(t, estate.DeleteAsset(context.Background(), other.ID, asset.ID), ErrEstateItemNotFound)
}

func TestEstateWishLifecycle(t *testing.T) {
	f := newInvitationFixture(t)
	estate := newEstateService(t, f)

	wish, err := estate.CreateWish(context.Background(), f.planner.ID, WishInput{
		Category: models.WishCategoryFuneral,
		Title:    "Service preferences",
		Content:  "Simple ceremony",
	})
	require.NoError(t, err)

	updated, err := estate.UpdateWish(context.Background(), f.planner.ID, wish.ID, WishInput{
		Category: models.WishCategoryFuneral,
		Title:    "Service preferences",
		Content:  "Simple ceremony, no flowers",
	})
	require.NoError(t, err)
	require.Equal(t, "Simple ceremony, no flowers", updated.Content)

	require.NoError(t, estate.DeleteWish(context.Background(), f.planner.ID, wish.ID))
}

func TestEstateViewAsExecutorIsGated(t *testing.T) {
	f := newInvitationFixture(t)
	estate := newEstateService(t, f)

	_, err := estate.CreateAsset(context.Background(), f.planner.ID, AssetInput{Name: "House"})
	require.NoError(t, err)
	_, err = estate.CreateWish(context.Background(), f.planner.ID, WishInput{
		Category: models.WishCategoryMedical,
		Title:    "Directives",
	})
	require.NoError(t, err)

	result := f.issue(t, "erin@example.com")

	erin, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "erin@example.com",
		Password: "sturdy-passphrase",
	})
	require.NoError(t, err)

	executor, err := f.invitations.AcceptAsExistingUser(context.Background(), result.Token, erin)
	require.NoError(t, err)

	// Active but untriggered: the executor sees nothing.
	_, err = estate.ViewAsExecutor(context.Background(), executor)
	require.ErrorIs(t, err, ErrEstateLocked)

	triggers, err := NewTriggerService(f.db)
	require.NoError(t, err)
	trigger, err := triggers.Get(context.Background(), f.planner.ID, executor.ID, models.TriggerTypeDeath)
	require.NoError(t, err)
	_, err = triggers.SetTriggered(context.Background(), trigger.ID, nil)
	require.NoError(t, err)

	view, err := estate.ViewAsExecutor(context.Background(), executor)
	require.NoError(t, err)
	require.Len(t, view.Assets, 1)
	require.Len(t, view.Wishes, 1)
}
