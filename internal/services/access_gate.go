package services

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/pkg/logger"
	"github.com/charlesng35/everkeep/pkg/metrics"
)

// AccessGate is the single decision point for executor access to a planner's
// estate data. It grants access only while the relationship is active and the
// death trigger has fired. The gate never returns an error: any doubt,
// including a database failure, resolves to denial.
type AccessGate struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewAccessGate constructs an AccessGate.
func NewAccessGate(db *gorm.DB) (*AccessGate, error) {
	if db == nil {
		return nil, errors.New("access gate: db is required")
	}
	return &AccessGate{db: db, log: logger.WithModule("access-gate")}, nil
}

// CanAccessPlannerData reports whether the executor relationship currently
// unlocks the planner's estate.
func (g *AccessGate) CanAccessPlannerData(ctx context.Context, executor *models.Executor) bool {
	ctx = ensureContext(ctx)

	if executor == nil || executor.Status != models.ExecutorStatusActive {
		metrics.AccessGateDecisions.WithLabelValues("denied").Inc()
		return false
	}

	var trigger models.TriggerEvent
	err := g.db.WithContext(ctx).
		Where("planner_id = ? AND executor_id = ? AND type = ?", executor.PlannerID, executor.ID, models.TriggerTypeDeath).
		Take(&trigger).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			g.log.Error("trigger lookup failed, denying access",
				zap.String("executor_id", executor.ID),
				zap.Error(err))
		}
		metrics.AccessGateDecisions.WithLabelValues("denied").Inc()
		return false
	}

	if !trigger.Triggered {
		metrics.AccessGateDecisions.WithLabelValues("denied").Inc()
		return false
	}

	metrics.AccessGateDecisions.WithLabelValues("granted").Inc()
	return true
}
