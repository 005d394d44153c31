package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/pkg/crypto"
	"github.com/charlesng35/everkeep/pkg/logger"
	"github.com/charlesng35/everkeep/pkg/mail"
	"github.com/charlesng35/everkeep/pkg/metrics"
)

const (
	defaultInvitationExpiry     = 7 * 24 * time.Hour
	defaultInvitationTokenBytes = 48
)

var (
	// ErrInvitationNotFound indicates no invitation matches the provided token.
	ErrInvitationNotFound = errors.New("invitation: not found")
	// ErrInvitationExpired indicates the invitation token has expired.
	ErrInvitationExpired = errors.New("invitation: expired")
	// ErrInvitationAlreadyAccepted signals that the invitation has already been
	// consumed. Acceptance is idempotent: callers treat this as a no-op, not a failure.
	ErrInvitationAlreadyAccepted = errors.New("invitation: already accepted")
	// ErrEmailMismatch is returned when the signed-in identity's email does not
	// exactly match the invited email. The invitation is left untouched so the
	// correct account can retry.
	ErrEmailMismatch = errors.New("invitation: signed-in email does not match invited email")
	// ErrExecutorAlreadyInvited enforces the one non-revoked executor per
	// (planner, email) invariant.
	ErrExecutorAlreadyInvited = errors.New("invitation: a non-revoked executor already exists for this email")
	// ErrAccountExists is returned by the new-user branch when an account is
	// already registered for the invited email.
	ErrAccountExists = errors.New("invitation: an account already exists for this email")
)

// InvitationOption customises InvitationService behaviour.
type InvitationOption func(*InvitationService)

// WithInvitationBaseURL configures the base URL used to build acceptance links.
func WithInvitationBaseURL(url string) InvitationOption {
	return func(s *InvitationService) {
		s.baseURL = strings.TrimRight(url, "/")
	}
}

// WithInvitationExpiry overrides the invitation token lifetime.
func WithInvitationExpiry(d time.Duration) InvitationOption {
	return func(s *InvitationService) {
		if d > 0 {
			s.expiry = d
		}
	}
}

// WithInvitationTokenSize adjusts the random token length in bytes.
func WithInvitationTokenSize(size int) InvitationOption {
	return func(s *InvitationService) {
		if size > 0 {
			s.tokenLength = size
		}
	}
}

// WithInvitationClock injects a custom clock primarily for testing.
func WithInvitationClock(clock func() time.Time) InvitationOption {
	return func(s *InvitationService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// InvitationService implements the invitation issuer and the acceptance
// protocol binding an executor identity to a planner record.
type InvitationService struct {
	db          *gorm.DB
	users       *UserService
	audit       *AuditService
	mailer      mail.Mailer
	baseURL     string
	expiry      time.Duration
	tokenLength int
	now         func() time.Time
	log         *zap.Logger
}

// NewInvitationService constructs an InvitationService with the provided dependencies.
func NewInvitationService(db *gorm.DB, users *UserService, audit *AuditService, mailer mail.Mailer, opts ...InvitationOption) (*InvitationService, error) {
	if db == nil {
		return nil, errors.New("invitation service: db is required")
	}
	if users == nil {
		return nil, errors.New("invitation service: user service is required")
	}
	if audit == nil {
		return nil, errors.New("invitation service: audit service is required")
	}

	service := &InvitationService{
		db:          db,
		users:       users,
		audit:       audit,
		mailer:      mailer,
		expiry:      defaultInvitationExpiry,
		tokenLength: defaultInvitationTokenBytes,
		now:         time.Now,
		log:         logger.WithModule("invitations"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// IssueInput describes a new executor invitation.
type IssueInput struct {
	PlannerID    string
	Name         string
	Email        string
	Relationship string
}

// IssueResult carries the created relationship and the raw single-use token.
type IssueResult struct {
	Executor *models.Executor
	Token    string
	Link     string
}

// Issue creates the executor relationship (pending), its untriggered death
// trigger event, and a single-use invitation token, then dispatches the
// acceptance email. The three writes happen in one transaction so a failure
// leaves no partial state; email dispatch failure is non-fatal and leaves the
// invitation usable.
func (s *InvitationService) Issue(ctx context.Context, input IssueInput) (*IssueResult, error) {
	ctx = ensureContext(ctx)

	plannerID := strings.TrimSpace(input.PlannerID)
	// Accounts store emails lowercased; the invited email is normalised the
	// same way so the acceptance-time exact match can hold.
	email := strings.ToLower(strings.TrimSpace(input.Email))
	name := strings.TrimSpace(input.Name)
	if plannerID == "" {
		return nil, errors.New("invitation service: planner id is required")
	}
	if email == "" {
		return nil, errors.New("invitation service: executor email is required")
	}
	if name == "" {
		return nil, errors.New("invitation service: executor name is required")
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	executor := &models.Executor{
		PlannerID:    plannerID,
		Name:         name,
		Email:        email,
		ActiveEmail:  &email,
		Relationship: strings.TrimSpace(input.Relationship),
		Status:       models.ExecutorStatusPending,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.Executor{}).
			Where("planner_id = ? AND LOWER(email) = LOWER(?) AND status <> ?", plannerID, email, models.ExecutorStatusRevoked).
			Count(&existing).Error; err != nil {
			return fmt.Errorf("check existing executor: %w", err)
		}
		if existing > 0 {
			return ErrExecutorAlreadyInvited
		}

		// The count gives the friendly error; the (planner_id, active_email)
		// unique index catches concurrent issuers that both pass it.
		if err := tx.Create(executor).Error; err != nil {
			if isUniqueConstraintError(err) {
				return ErrExecutorAlreadyInvited
			}
			return fmt.Errorf("create executor: %w", err)
		}

		trigger := &models.TriggerEvent{
			PlannerID:          plannerID,
			ExecutorID:         executor.ID,
			Type:               models.TriggerTypeDeath,
			VerificationMethod: models.VerificationMethodProfessional,
			Triggered:          false,
		}
		if err := tx.Create(trigger).Error; err != nil {
			return fmt.Errorf("create trigger event: %w", err)
		}

		invitation := &models.Invitation{
			ExecutorID: executor.ID,
			TokenHash:  crypto.HashToken(rawToken),
			ExpiresAt:  now.Add(s.expiry),
		}
		if err := tx.Create(invitation).Error; err != nil {
			return fmt.Errorf("create invitation: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrExecutorAlreadyInvited) {
			return nil, err
		}
		return nil, fmt.Errorf("invitation service: %w", err)
	}

	link := s.acceptanceLink(rawToken)
	s.dispatchEmail(ctx, email, name, link)

	s.audit.Record(ctx, AuditEntry{
		UserID:   &executor.PlannerID,
		Action:   models.AuditActionExecutorInvited,
		Resource: "executor:" + executor.ID,
		Result:   "success",
		Metadata: map[string]any{"executor_email": email},
	})

	return &IssueResult{Executor: executor, Token: rawToken, Link: link}, nil
}

// Reissue replaces the outstanding invitation for a still-pending executor
// with a fresh token and expiry, covering the expired-invitation case without
// creating a duplicate relationship.
func (s *InvitationService) Reissue(ctx context.Context, plannerID, executorID string) (*IssueResult, error) {
	ctx = ensureContext(ctx)

	var executor models.Executor
	err := s.db.WithContext(ctx).
		Where("id = ? AND planner_id = ?", strings.TrimSpace(executorID), strings.TrimSpace(plannerID)).
		Take(&executor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: find executor: %w", err)
	}
	if executor.Status != models.ExecutorStatusPending {
		return nil, ErrInvitationAlreadyAccepted
	}

	rawToken, err := crypto.GenerateToken(s.tokenLength)
	if err != nil {
		return nil, fmt.Errorf("invitation service: generate token: %w", err)
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("executor_id = ?", executor.ID).Delete(&models.Invitation{}).Error; err != nil {
			return fmt.Errorf("delete stale invitation: %w", err)
		}
		invitation := &models.Invitation{
			ExecutorID: executor.ID,
			TokenHash:  crypto.HashToken(rawToken),
			ExpiresAt:  now.Add(s.expiry),
		}
		return tx.Create(invitation).Error
	})
	if err != nil {
		return nil, fmt.Errorf("invitation service: reissue: %w", err)
	}

	link := s.acceptanceLink(rawToken)
	s.dispatchEmail(ctx, executor.Email, executor.Name, link)

	return &IssueResult{Executor: &executor, Token: rawToken, Link: link}, nil
}

// Verify resolves a raw token to its invitation, reporting the expected
// non-success states as typed errors. Expired invitations are deleted on
// sight so the token can never be replayed later.
func (s *InvitationService) Verify(ctx context.Context, token string) (*models.Invitation, error) {
	ctx = ensureContext(ctx)

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvitationNotFound
	}

	return s.verifyByHash(ctx, crypto.HashToken(token))
}

func (s *InvitationService) verifyByHash(ctx context.Context, tokenHash string) (*models.Invitation, error) {
	var invitation models.Invitation
	err := s.db.WithContext(ctx).
		Preload("Executor").
		Where("token_hash = ?", tokenHash).
		Take(&invitation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvitationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("invitation service: find invitation: %w", err)
	}

	if invitation.AcceptedAt != nil {
		return nil, ErrInvitationAlreadyAccepted
	}
	if invitation.Executor != nil && invitation.Executor.Status == models.ExecutorStatusActive {
		return nil, ErrInvitationAlreadyAccepted
	}

	if invitation.ExpiresAt.Before(s.now()) {
		if err := s.db.WithContext(ctx).Delete(&models.Invitation{}, "id = ?", invitation.ID).Error; err != nil {
			s.log.Warn("failed to delete expired invitation", zap.String("invitation_id", invitation.ID), zap.Error(err))
		}
		return nil, ErrInvitationExpired
	}

	return &invitation, nil
}

// AcceptAsExistingUser runs the existing-user branch: the signed-in account's
// email must exactly match the invited email before the relationship
// activates. The signed-in user keeps the planner role if they have one
// (dual capacity); otherwise the role becomes executor.
func (s *InvitationService) AcceptAsExistingUser(ctx context.Context, token string, user *models.User) (*models.Executor, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, errors.New("invitation service: user is required")
	}

	invitation, err := s.Verify(ctx, token)
	if err != nil {
		s.countRedemption(err)
		return nil, err
	}

	executor, err := s.activate(ctx, invitation, user, "existing_user")
	if err != nil {
		s.countRedemption(err)
		return nil, err
	}

	metrics.InvitationRedemptions.WithLabelValues("accepted").Inc()
	return executor, nil
}

// AcceptAsNewUser runs the new-user branch: a fresh account is created for
// the invited email (role executor), then the relationship activates. The
// created account's email is taken verbatim from the executor row, so the
// exact-match invariant holds by construction.
func (s *InvitationService) AcceptAsNewUser(ctx context.Context, token, password, fullName string) (*models.User, *models.Executor, error) {
	ctx = ensureContext(ctx)

	invitation, err := s.Verify(ctx, token)
	if err != nil {
		s.countRedemption(err)
		return nil, nil, err
	}
	if invitation.Executor == nil {
		return nil, nil, ErrInvitationNotFound
	}

	existing, err := s.users.FindByEmail(ctx, invitation.Executor.Email)
	if err != nil {
		return nil, nil, err
	}
	if existing != nil {
		return nil, nil, ErrAccountExists
	}

	user, err := s.users.Create(ctx, CreateUserInput{
		Email:    invitation.Executor.Email,
		Password: password,
		FullName: fullName,
		Role:     models.RoleExecutor,
	})
	if err != nil {
		return nil, nil, err
	}

	executor, err := s.activate(ctx, invitation, user, "new_user")
	if err != nil {
		// The account exists only to hold this relationship; if activation
		// lost the single-use race (or failed outright) remove it so no
		// orphaned login is left behind.
		if cleanupErr := s.db.WithContext(ctx).
			Where("id = ?", user.ID).
			Delete(&models.User{}).Error; cleanupErr != nil {
			s.log.Warn("cleanup of unactivated account failed",
				zap.String("user_id", user.ID), zap.Error(cleanupErr))
		}
		s.countRedemption(err)
		return nil, nil, err
	}

	metrics.InvitationRedemptions.WithLabelValues("accepted").Inc()
	return user, executor, nil
}

// activate flips the executor to active and consumes the invitation. The
// consumption is a conditional update on accepted_at, which is the single-use
// guard: a concurrent second acceptance loses the race and resolves to
// already-accepted rather than double-activating.
func (s *InvitationService) activate(ctx context.Context, invitation *models.Invitation, user *models.User, entry string) (*models.Executor, error) {
	executor := invitation.Executor
	if executor == nil {
		return nil, ErrInvitationNotFound
	}

	if user.Email != executor.Email {
		return nil, ErrEmailMismatch
	}

	now := s.now()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		consumed := tx.Model(&models.Invitation{}).
			Where("id = ? AND accepted_at IS NULL", invitation.ID).
			Update("accepted_at", now)
		if consumed.Error != nil {
			return fmt.Errorf("consume invitation: %w", consumed.Error)
		}
		if consumed.RowsAffected == 0 {
			return ErrInvitationAlreadyAccepted
		}

		if err := tx.Model(&models.Executor{}).
			Where("id = ?", executor.ID).
			Updates(map[string]any{
				"status":       models.ExecutorStatusActive,
				"activated_at": now,
			}).Error; err != nil {
			return fmt.Errorf("activate executor: %w", err)
		}

		// A planner stays a planner; anyone else is now an executor.
		if user.Role != models.RolePlanner && user.Role != models.RoleExecutor {
			if err := tx.Model(&models.User{}).
				Where("id = ?", user.ID).
				Update("role", models.RoleExecutor).Error; err != nil {
				return fmt.Errorf("update user role: %w", err)
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvitationAlreadyAccepted) {
			return nil, err
		}
		return nil, fmt.Errorf("invitation service: %w", err)
	}

	executor.Status = models.ExecutorStatusActive
	executor.ActivatedAt = &now

	s.audit.Record(ctx, AuditEntry{
		UserID:   &user.ID,
		Action:   models.AuditActionExecutorAccepted,
		Resource: "executor:" + executor.ID,
		Result:   "success",
		Metadata: map[string]any{"entry": entry, "planner_id": executor.PlannerID},
	})

	return executor, nil
}

func (s *InvitationService) countRedemption(err error) {
	switch {
	case errors.Is(err, ErrInvitationNotFound):
		metrics.InvitationRedemptions.WithLabelValues("not_found").Inc()
	case errors.Is(err, ErrInvitationExpired):
		metrics.InvitationRedemptions.WithLabelValues("expired").Inc()
	case errors.Is(err, ErrInvitationAlreadyAccepted):
		metrics.InvitationRedemptions.WithLabelValues("already_accepted").Inc()
	case errors.Is(err, ErrEmailMismatch):
		metrics.InvitationRedemptions.WithLabelValues("email_mismatch").Inc()
	default:
		metrics.InvitationRedemptions.WithLabelValues("error").Inc()
	}
}

func (s *InvitationService) acceptanceLink(token string) string {
	if s.baseURL == "" {
		return token
	}
	return fmt.Sprintf("%s/executor/accept-invitation?token=%s", s.baseURL, token)
}

func (s *InvitationService) dispatchEmail(ctx context.Context, email, name, link string) {
	if s.mailer == nil {
		return
	}

	message, err := mail.ExecutorInvitation(email, name, link, s.expiry)
	if err != nil {
		s.log.Warn("invitation email render failed", zap.Error(err))
		return
	}

	if err := s.mailer.Send(ctx, message); err != nil && !errors.Is(err, mail.ErrSMTPDisabled) {
		// Dispatch failure is non-fatal: the invitation stays usable and the
		// planner can reissue the link.
		s.log.Warn("invitation email dispatch failed", zap.String("email", email), zap.Error(err))
	}
}
