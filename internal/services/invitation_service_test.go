package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/database/testutil"
	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/pkg/mail"
)

type stubMailer struct {
	sent []mail.Message
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg mail.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

type invitationFixture struct {
	db          *gorm.DB
	users       *UserService
	audit       *AuditService
	invitations *InvitationService
	mailer      *stubMailer
	planner     *models.User
	clock       *fakeClock
}

type fakeClock struct {
	current time.Time
}

func (c *fakeClock) Now() time.Time          { return c.current }
func (c *fakeClock) Advance(d time.Duration) { c.current = c.current.Add(d) }

func newInvitationFixture(t *testing.T, opts ...InvitationOption) *invitationFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	users, err := NewUserService(db)
	require.NoError(t, err)

	audit, err := NewAuditService(db)
	require.NoError(t, err)

	clock := &fakeClock{current: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	mailer := &stubMailer{}

	allOpts := append([]InvitationOption{
		WithInvitationClock(clock.Now),
		WithInvitationBaseURL("https://everkeep.test"),
	}, opts...)

	invitations, err := NewInvitationService(db, users, audit, mailer, allOpts...)
	require.NoError(t, err)

	planner, err := users.Create(context.Background(), CreateUserInput{
		Email:    "planner@example.com",
		Password: "sturdy-passphrase",
		FullName: "Pat Planner",
	})
	require.NoError(t, err)

	return &invitationFixture{
		db:          db,
		users:       users,
		audit:       audit,
		invitations: invitations,
		mailer:      mailer,
		planner:     planner,
		clock:       clock,
	}
}

func (f *invitationFixture) issue(t *testing.T, email string) *IssueResult {
	t.Helper()

	result, err := f.invitations.Issue(context.Background(), IssueInput{
		PlannerID:    f.planner.ID,
		Name:         "Erin Executor",
		Email:        email,
		Relationship: "sibling",
	})
	require.NoError(t, err)
	return result
}

func TestInvitationIssueCreatesPendingRelationship(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")
	require.NotEmpty(t, result.Token)
	require.Contains(t, result.Link, result.Token)
	require.Equal(t, models.ExecutorStatusPending, result.Executor.Status)

	var invitation models.Invitation
	require.NoError(t, f.db.Where("executor_id = ?", result.Executor.ID).Take(&invitation).Error)
	require.NotEqual(t, result.Token, invitation.TokenHash)
	require.Nil(t, invitation.AcceptedAt)
	require.Equal(t, f.clock.Now().Add(defaultInvitationExpiry).Unix(), invitation.ExpiresAt.Unix())

	var trigger models.TriggerEvent
	require.NoError(t, f.db.Where("planner_id = ? AND executor_id = ?", f.planner.ID, result.Executor.ID).Take(&trigger).Error)
	require.False(t, trigger.Triggered)
	require.Nil(t, trigger.TriggeredAt)

	require.Len(t, f.mailer.sent, 1)
	require.Equal(t, []string{"erin@example.com"}, f.mailer.sent[0].To)

	var audits []models.AuditLog
	require.NoError(t, f.db.Where("action = ?", models.AuditActionExecutorInvited).Find(&audits).Error)
	require.Len(t, audits, 1)
}

func TestInvitationIssueRejectsDuplicateNonRevoked(t *testing.T) {
	f := newInvitationFixture(t)

	f.issue(t, "erin@example.com")

	_, err := f.invitations.Issue(context.Background(), IssueInput{
		PlannerID: f.planner.ID,
		Name:      "Erin Again",
		Email:     "Erin@Example.com",
	})
	require.ErrorIs(t, err, ErrExecutorAlreadyInvited)
}

func TestInvitationIssueDuplicateBlockedBySchema(t *testing.T) {
	f := newInvitationFixture(t)

	first := f.issue(t, "erin@example.com")

	// A second live row for the same (planner, email) must die on the unique
	// index even when it bypasses the service-level count, as a concurrent
	// issuer would.
	email := first.Executor.Email
	duplicate := &models.Executor{
		PlannerID:   f.planner.ID,
		Name:        "Erin Again",
		Email:       email,
		ActiveEmail: &email,
		Status:      models.ExecutorStatusPending,
	}
	err := f.db.Create(duplicate).Error
	require.Error(t, err)
	require.True(t, isUniqueConstraintError(err))

	// Revoked tombstones share the address freely.
	revoked := &models.Executor{
		PlannerID: f.planner.ID,
		Name:      "Erin Before",
		Email:     email,
		Status:    models.ExecutorStatusRevoked,
	}
	require.NoError(t, f.db.Create(revoked).Error)
}

func TestInvitationIssueAllowedAfterRevocation(t *testing.T) {
	f := newInvitationFixture(t)

	first := f.issue(t, "erin@example.com")

	audit := f.audit
	executors, err := NewExecutorService(f.db, audit)
	require.NoError(t, err)
	_, err = executors.Revoke(context.Background(), f.planner.ID, first.Executor.ID)
	require.NoError(t, err)

	second := f.issue(t, "erin@example.com")
	require.NotEqual(t, first.Executor.ID, second.Executor.ID)
}

func TestInvitationIssueSurvivesMailFailure(t *testing.T) {
	f := newInvitationFixture(t)
	f.mailer.err = errors.New("smtp down")

	result := f.issue(t, "erin@example.com")
	require.NotEmpty(t, result.Token)

	// Invitation stays redeemable despite the failed dispatch.
	invitation, err := f.invitations.Verify(context.Background(), result.Token)
	require.NoError(t, err)
	require.Equal(t, result.Executor.ID, invitation.ExecutorID)
}

func TestInvitationVerifyUnknownToken(t *testing.T) {
	f := newInvitationFixture(t)

	_, err := f.invitations.Verify(context.Background(), "does-not-exist")
	require.ErrorIs(t, err, ErrInvitationNotFound)

	_, err = f.invitations.Verify(context.Background(), "")
	require.ErrorIs(t, err, ErrInvitationNotFound)
}

func TestInvitationVerifyExpiredTokenIsDeleted(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")
	f.clock.Advance(defaultInvitationExpiry + time.Hour)

	_, err := f.invitations.Verify(context.Background(), result.Token)
	require.ErrorIs(t, err, ErrInvitationExpired)

	// The row is gone, so a replay reports not-found rather than expired.
	_, err = f.invitations.Verify(context.Background(), result.Token)
	require.ErrorIs(t, err, ErrInvitationNotFound)

	var executor models.Executor
	require.NoError(t, f.db.Where("id = ?", result.Executor.ID).Take(&executor).Error)
	require.Equal(t, models.ExecutorStatusPending, executor.Status)
}

func TestInvitationReissueReplacesExpiredToken(t *testing.T) {
	f := newInvitationFixture(t)

	first := f.issue(t, "erin@example.com")
	f.clock.Advance(defaultInvitationExpiry + time.Hour)

	second, err := f.invitations.Reissue(context.Background(), f.planner.ID, first.Executor.ID)
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)

	_, err = f.invitations.Verify(context.Background(), first.Token)
	require.ErrorIs(t, err, ErrInvitationNotFound)

	invitation, err := f.invitations.Verify(context.Background(), second.Token)
	require.NoError(t, err)
	require.Equal(t, first.Executor.ID, invitation.ExecutorID)
}

func TestInvitationAcceptAsExistingUser(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")

	erin, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "erin@example.com",
		Password: "sturdy-passphrase",
		FullName: "Erin Executor",
	})
	require.NoError(t, err)

	executor, err := f.invitations.AcceptAsExistingUser(context.Background(), result.Token, erin)
	require.NoError(t, err)
	require.Equal(t, models.ExecutorStatusActive, executor.Status)
	require.NotNil(t, executor.ActivatedAt)

	var invitation models.Invitation
	require.NoError(t, f.db.Where("executor_id = ?", executor.ID).Take(&invitation).Error)
	require.NotNil(t, invitation.AcceptedAt)

	var audits []models.AuditLog
	require.NoError(t, f.db.Where("action = ?", models.AuditActionExecutorAccepted).Find(&audits).Error)
	require.Len(t, audits, 1)
}

func TestInvitationAcceptIsSingleUse(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")

	erin, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "erin@example.com",
		Password: "sturdy-passphrase",
	})
	require.NoError(t, err)

	_, err = f.invitations.AcceptAsExistingUser(context.Background(), result.Token, erin)
	require.NoError(t, err)

	_, err = f.invitations.AcceptAsExistingUser(context.Background(), result.Token, erin)
	require.ErrorIs(t, err, ErrInvitationAlreadyAccepted)
}

func TestInvitationAcceptEmailMismatchLeavesInvitationPending(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")

	wrong, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "someone-else@example.com",
		Password: "sturdy-passphrase",
	})
	require.NoError(t, err)

	_, err = f.invitations.AcceptAsExistingUser(context.Background(), result.Token, wrong)
	require.ErrorIs(t, err, ErrEmailMismatch)

	// The correct account can still redeem the same token.
	erin, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "erin@example.com",
		Password: "sturdy-passphrase",
	})
	require.NoError(t, err)

	executor, err := f.invitations.AcceptAsExistingUser(context.Background(), result.Token, erin)
	require.NoError(t, err)
	require.Equal(t, models.ExecutorStatusActive, executor.Status)
}

func TestInvitationAcceptAsNewUser(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")

	user, executor, err := f.invitations.AcceptAsNewUser(context.Background(), result.Token, "sturdy-passphrase", "Erin Executor")
	require.NoError(t, err)
	require.Equal(t, "erin@example.com", user.Email)
	require.Equal(t, models.RoleExecutor, user.Role)
	require.Equal(t, models.ExecutorStatusActive, executor.Status)
}

func TestInvitationAcceptAsNewUserLosingRaceLeavesNoAccount(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")

	// Consume the invitation the moment the fresh account row lands: the
	// interleaving of a concurrent acceptance winning between verification
	// and activation.
	err := f.db.Callback().Create().After("gorm:create").Register("test:consume_invitation", func(d *gorm.DB) {
		if _, ok := d.Statement.Dest.(*models.User); !ok {
			return
		}
		d.Session(&gorm.Session{NewDB: true}).
			Model(&models.Invitation{}).
			Where("executor_id = ?", result.Executor.ID).
			Update("accepted_at", f.clock.Now())
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = f.db.Callback().Create().Remove("test:consume_invitation")
	})

	_, _, err = f.invitations.AcceptAsNewUser(context.Background(), result.Token, "sturdy-passphrase", "Erin Executor")
	require.ErrorIs(t, err, ErrInvitationAlreadyAccepted)

	// The account created for the failed acceptance must not survive.
	orphan, err := f.users.FindByEmail(context.Background(), "erin@example.com")
	require.NoError(t, err)
	require.Nil(t, orphan)

	var executor models.Executor
	require.NoError(t, f.db.Where("id = ?", result.Executor.ID).Take(&executor).Error)
	require.Equal(t, models.ExecutorStatusPending, executor.Status)
}

func TestInvitationAcceptAsNewUserRejectsExistingAccount(t *testing.T) {
	f := newInvitationFixture(t)

	result := f.issue(t, "erin@example.com")

	_, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "erin@example.com",
		Password: "sturdy-passphrase",
	})
	require.NoError(t, err)

	_, _, err = f.invitations.AcceptAsNewUser(context.Background(), result.Token, "another-passphrase", "Erin")
	require.ErrorIs(t, err, ErrAccountExists)

	// The invitation is untouched and the existing-user branch still works.
	invitation, err := f.invitations.Verify(context.Background(), result.Token)
	require.NoError(t, err)
	require.Nil(t, invitation.AcceptedAt)
}

func TestInvitationPlannerCanBecomeExecutor(t *testing.T) {
	f := newInvitationFixture(t)

	other, err := f.users.Create(context.Background(), CreateUserInput{
		Email:    "other-planner@example.com",
		Password: "sturdy-passphrase",
		Role:     models.RolePlanner,
	})
	require.NoError(t, err)

	result, err := f.invitations.Issue(context.Background(), IssueInput{
		PlannerID: f.planner.ID,
		Name:      "Other Planner",
		Email:     other.Email,
	})
	require.NoError(t, err)

	_, err = f.invitations.AcceptAsExistingUser(context.Background(), result.Token, other)
	require.NoError(t, err)

	// Dual capacity: the account keeps its planner role.
	var reloaded models.User
	require.NoError(t, f.db.Where("id = ?", other.ID).Take(&reloaded).Error)
	require.Equal(t, models.RolePlanner, reloaded.Role)
}
