package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	iauth "github.com/charlesng35/everkeep/internal/auth"
	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/internal/services"
	"github.com/charlesng35/everkeep/pkg/logger"
)

const (
	defaultAuditRetentionDays = 90
	defaultSessionSpec        = "@hourly"
	defaultAuditSpec          = "@daily"
	defaultInvitationSpec     = "@daily"

	// Consumed invitations are kept for a grace period so a replayed token
	// keeps reporting "already accepted" instead of vanishing into 404.
	acceptedInvitationGrace = 30 * 24 * time.Hour
)

// Cleaner coordinates background maintenance: purging expired sessions,
// enforcing audit retention, and sweeping dead invitation rows.
type Cleaner struct {
	db        *gorm.DB
	sessions  *iauth.SessionService
	audit     *services.AuditService
	cron      *cron.Cron
	now       func() time.Time
	log       *zap.Logger
	retention int

	sessionSchedule    string
	auditSchedule      string
	invitationSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained.
func WithAuditRetentionDays(days int) Option {
	return func(cleaner *Cleaner) {
		if days > 0 {
			cleaner.retention = days
		}
	}
}

// WithSessionSchedule overrides the cron specification for session cleanup.
func WithSessionSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sessionSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention.
func WithAuditSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.auditSchedule = spec
		}
	}
}

// WithInvitationSchedule overrides the cron specification for the invitation sweep.
func WithInvitationSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.invitationSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults. A nil dependency
// skips the corresponding job.
func NewCleaner(db *gorm.DB, sessions *iauth.SessionService, audit *services.AuditService, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		db:                 db,
		sessions:           sessions,
		audit:              audit,
		now:                time.Now,
		retention:          defaultAuditRetentionDays,
		sessionSchedule:    defaultSessionSpec,
		auditSchedule:      defaultAuditSpec,
		invitationSchedule: defaultInvitationSpec,
		log:                logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner
}

// Start registers the cleanup jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if c.sessions != nil {
		if _, err := c.cron.AddFunc(c.sessionSchedule, func() {
			if _, err := c.sessions.CleanupExpired(context.Background()); err != nil {
				c.log.Warn("session cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.cron.AddFunc(c.auditSchedule, func() {
			if _, err := c.audit.CleanupOlderThan(context.Background(), c.retention); err != nil {
				c.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	if c.db != nil {
		if _, err := c.cron.AddFunc(c.invitationSchedule, func() {
			if _, err := CleanupInvitations(context.Background(), c.db, c.now()); err != nil {
				c.log.Warn("invitation cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return err
		}
	}

	c.cron.Start()
	return nil
}

// Stop halts the scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all configured cleanup routines sequentially. Used in
// tests and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if c.sessions != nil {
		if _, err := c.sessions.CleanupExpired(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.audit != nil && c.retention > 0 {
		if _, err := c.audit.CleanupOlderThan(ctx, c.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if c.db != nil {
		if _, err := CleanupInvitations(ctx, c.db, c.now()); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// CleanupInvitations deletes invitation rows that can no longer be redeemed:
// expired tokens, and consumed tokens past the grace period.
func CleanupInvitations(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	if db == nil {
		return 0, nil
	}

	result := db.WithContext(ctx).
		Where("expires_at < ?", now).
		Or("accepted_at IS NOT NULL AND accepted_at < ?", now.Add(-acceptedInvitationGrace)).
		Delete(&models.Invitation{})
	return result.RowsAffected, result.Error
}
