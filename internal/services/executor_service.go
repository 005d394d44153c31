package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
)

var (
	// ErrExecutorNotFound indicates the executor does not exist or does not
	// belong to the requesting planner.
	ErrExecutorNotFound = errors.New("executor: not found")
	// ErrExecutorRevoked indicates the relationship has already been revoked.
	ErrExecutorRevoked = errors.New("executor: already revoked")
)

// ExecutorService manages planner-side executor relationships and the
// executor-side view of them.
type ExecutorService struct {
	db    *gorm.DB
	audit *AuditService
	now   nowFunc
}

// NewExecutorService constructs an ExecutorService.
func NewExecutorService(db *gorm.DB, audit *AuditService, opts ...ExecutorOption) (*ExecutorService, error) {
	if db == nil {
		return nil, errors.New("executor service: db is required")
	}
	if audit == nil {
		return nil, errors.New("executor service: audit service is required")
	}
	service := &ExecutorService{db: db, audit: audit, now: defaultNow}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// ExecutorOption customises ExecutorService behaviour.
type ExecutorOption func(*ExecutorService)

// WithExecutorClock injects a custom clock primarily for testing.
func WithExecutorClock(clock nowFunc) ExecutorOption {
	return func(s *ExecutorService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// ListForPlanner returns every executor relationship the planner has created,
// including revoked ones, newest first.
func (s *ExecutorService) ListForPlanner(ctx context.Context, plannerID string) ([]models.Executor, error) {
	ctx = ensureContext(ctx)

	var executors []models.Executor
	if err := s.db.WithContext(ctx).
		Where("planner_id = ?", plannerID).
		Order("created_at DESC").
		Find(&executors).Error; err != nil {
		return nil, fmt.Errorf("executor service: list for planner: %w", err)
	}
	return executors, nil
}

// Get returns a single executor owned by the planner.
func (s *ExecutorService) Get(ctx context.Context, plannerID, executorID string) (*models.Executor, error) {
	ctx = ensureContext(ctx)

	var executor models.Executor
	err := s.db.WithContext(ctx).
		Where("id = ? AND planner_id = ?", executorID, plannerID).
		Take(&executor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExecutorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("executor service: get: %w", err)
	}
	return &executor, nil
}

// Revoke terminally ends the relationship. Any outstanding invitation is
// removed in the same transaction so its token dies with the relationship.
// Revocation never reactivates and the slot for this email frees up for a
// future invitation.
func (s *ExecutorService) Revoke(ctx context.Context, plannerID, executorID string) (*models.Executor, error) {
	ctx = ensureContext(ctx)

	executor, err := s.Get(ctx, plannerID, executorID)
	if err != nil {
		return nil, err
	}
	if executor.Status == models.ExecutorStatusRevoked {
		return nil, ErrExecutorRevoked
	}

	now := s.now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Clearing active_email releases the unique slot for this address so
		// the planner can invite a replacement later.
		if err := tx.Model(&models.Executor{}).
			Where("id = ?", executor.ID).
			Updates(map[string]any{
				"status":       models.ExecutorStatusRevoked,
				"revoked_at":   now,
				"active_email": nil,
			}).Error; err != nil {
			return fmt.Errorf("revoke executor: %w", err)
		}
		if err := tx.Where("executor_id = ?", executor.ID).Delete(&models.Invitation{}).Error; err != nil {
			return fmt.Errorf("delete invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("executor service: %w", err)
	}

	executor.Status = models.ExecutorStatusRevoked
	executor.RevokedAt = &now
	executor.ActiveEmail = nil

	s.audit.Record(ctx, AuditEntry{
		UserID:   &plannerID,
		Action:   models.AuditActionExecutorRevoked,
		Resource: "executor:" + executor.ID,
		Result:   "success",
		Metadata: map[string]any{"executor_email": executor.Email},
	})

	return executor, nil
}

// Executorship is the executor-side view of one relationship: who named them
// and whether the death trigger has fired.
type Executorship struct {
	Executor  models.Executor `json:"executor"`
	Planner   models.User     `json:"planner"`
	Triggered bool            `json:"triggered"`
}

// ListForUser returns the active executorships where the given account is the
// executor, matched by exact email.
func (s *ExecutorService) ListForUser(ctx context.Context, user *models.User) ([]Executorship, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, errors.New("executor service: user is required")
	}

	var executors []models.Executor
	if err := s.db.WithContext(ctx).
		Where("email = ? AND status = ?", user.Email, models.ExecutorStatusActive).
		Order("created_at DESC").
		Find(&executors).Error; err != nil {
		return nil, fmt.Errorf("executor service: list for user: %w", err)
	}

	executorships := make([]Executorship, 0, len(executors))
	for _, executor := range executors {
		var planner models.User
		if err := s.db.WithContext(ctx).Where("id = ?", executor.PlannerID).Take(&planner).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return nil, fmt.Errorf("executor service: load planner: %w", err)
		}
		planner.Password = ""

		var trigger models.TriggerEvent
		triggered := false
		err := s.db.WithContext(ctx).
			Where("planner_id = ? AND executor_id = ? AND type = ?", executor.PlannerID, executor.ID, models.TriggerTypeDeath).
			Take(&trigger).Error
		if err == nil {
			triggered = trigger.Triggered
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("executor service: load trigger: %w", err)
		}

		executorships = append(executorships, Executorship{
			Executor:  executor,
			Planner:   planner,
			Triggered: triggered,
		})
	}

	return executorships, nil
}

// ActiveForUser resolves the active executorship between the signed-in
// executor and a specific planner, or ErrExecutorNotFound.
func (s *ExecutorService) ActiveForUser(ctx context.Context, user *models.User, plannerID string) (*models.Executor, error) {
	ctx = ensureContext(ctx)

	if user == nil {
		return nil, errors.New("executor service: user is required")
	}

	var executor models.Executor
	err := s.db.WithContext(ctx).
		Where("planner_id = ? AND email = ? AND status = ?", strings.TrimSpace(plannerID), user.Email, models.ExecutorStatusActive).
		Take(&executor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrExecutorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("executor service: active for user: %w", err)
	}
	return &executor, nil
}
