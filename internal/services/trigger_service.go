package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
)

// ErrTriggerNotFound indicates no trigger event exists for the pair.
var ErrTriggerNotFound = errors.New("trigger: not found")

// TriggerService owns the per-relationship trigger events. A trigger is a
// one-way latch: once fired it never unfires, and refiring is a no-op that
// preserves the original timestamp.
type TriggerService struct {
	db  *gorm.DB
	now nowFunc
}

// NewTriggerService constructs a TriggerService.
func NewTriggerService(db *gorm.DB, opts ...TriggerOption) (*TriggerService, error) {
	if db == nil {
		return nil, errors.New("trigger service: db is required")
	}
	service := &TriggerService{db: db, now: defaultNow}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// TriggerOption customises TriggerService behaviour.
type TriggerOption func(*TriggerService)

// WithTriggerClock injects a custom clock primarily for testing.
func WithTriggerClock(clock nowFunc) TriggerOption {
	return func(s *TriggerService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// Get returns the trigger event of the given type for a planner/executor pair.
func (s *TriggerService) Get(ctx context.Context, plannerID, executorID, triggerType string) (*models.TriggerEvent, error) {
	ctx = ensureContext(ctx)

	var trigger models.TriggerEvent
	err := s.db.WithContext(ctx).
		Where("planner_id = ? AND executor_id = ? AND type = ?", plannerID, executorID, triggerType).
		Take(&trigger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTriggerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("trigger service: get: %w", err)
	}
	return &trigger, nil
}

// Ensure returns the trigger event for the pair, creating an untriggered one
// when missing. Relationships created before a trigger type existed still get
// a usable event.
func (s *TriggerService) Ensure(ctx context.Context, plannerID, executorID, triggerType string) (*models.TriggerEvent, error) {
	ctx = ensureContext(ctx)

	trigger, err := s.Get(ctx, plannerID, executorID, triggerType)
	if err == nil {
		return trigger, nil
	}
	if !errors.Is(err, ErrTriggerNotFound) {
		return nil, err
	}

	created := &models.TriggerEvent{
		PlannerID:          plannerID,
		ExecutorID:         executorID,
		Type:               triggerType,
		VerificationMethod: models.VerificationMethodProfessional,
		Triggered:          false,
	}
	if err := s.db.WithContext(ctx).Create(created).Error; err != nil {
		return nil, fmt.Errorf("trigger service: create: %w", err)
	}
	return created, nil
}

// SetTriggered fires the latch. Firing an already-fired trigger changes
// nothing: the guard on the update keeps the original triggered_at and
// verification details.
func (s *TriggerService) SetTriggered(ctx context.Context, triggerID string, details map[string]any) (*models.TriggerEvent, error) {
	ctx = ensureContext(ctx)

	detailsJSON, err := detailsToJSON(details)
	if err != nil {
		return nil, err
	}

	now := s.now()
	result := s.db.WithContext(ctx).
		Model(&models.TriggerEvent{}).
		Where("id = ? AND triggered = ?", triggerID, false).
		Updates(map[string]any{
			"triggered":            true,
			"triggered_at":         now,
			"verification_details": detailsJSON,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("trigger service: set triggered: %w", result.Error)
	}

	var trigger models.TriggerEvent
	err = s.db.WithContext(ctx).Where("id = ?", triggerID).Take(&trigger).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTriggerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("trigger service: reload: %w", err)
	}
	return &trigger, nil
}

func detailsToJSON(details map[string]any) (datatypes.JSON, error) {
	if len(details) == 0 {
		return nil, nil
	}
	payload, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("trigger service: encode details: %w", err)
	}
	return datatypes.JSON(payload), nil
}
