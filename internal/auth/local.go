package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/pkg/crypto"
)

var (
	// ErrInvalidCredentials is returned when the supplied email/password pair is invalid.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrAccountLocked signals that the user has exceeded the permitted failed attempts.
	ErrAccountLocked = errors.New("auth: account locked")
	// ErrAccountDisabled signals that the user has been deactivated.
	ErrAccountDisabled = errors.New("auth: account disabled")
)

// CredentialsConfig defines tunable behaviour for local password authentication.
type CredentialsConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput contains metadata required to authenticate a local user.
type AuthenticateInput struct {
	Email     string
	Password  string
	IPAddress string
}

// CredentialsService implements email/password authentication with account
// lockout controls.
type CredentialsService struct {
	db        *gorm.DB
	clock     func() time.Time
	threshold int
	duration  time.Duration
}

// NewCredentialsService builds a credentials checker with sane defaults.
func NewCredentialsService(db *gorm.DB, cfg CredentialsConfig) (*CredentialsService, error) {
	if db == nil {
		return nil, errors.New("credentials service: db is required")
	}

	threshold := cfg.LockoutThreshold
	if threshold <= 0 {
		threshold = 5
	}

	duration := cfg.LockoutDuration
	if duration <= 0 {
		duration = 15 * time.Minute
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &CredentialsService{
		db:        db,
		clock:     clock,
		threshold: threshold,
		duration:  duration,
	}, nil
}

// Authenticate verifies the supplied credentials and returns the associated
// user when successful.
func (s *CredentialsService) Authenticate(input AuthenticateInput) (*models.User, error) {
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := s.db.Where("LOWER(email) = LOWER(?)", email).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("credentials service: query user: %w", err)
	}

	now := s.clock()

	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if user.LockedUntil != nil && user.LockedUntil.After(now) {
		return nil, ErrAccountLocked
	}

	// Reset lock state once the lockout window has elapsed.
	if user.LockedUntil != nil && !user.LockedUntil.After(now) {
		if err := s.db.Model(&user).Updates(map[string]any{
			"locked_until":    nil,
			"failed_attempts": 0,
		}).Error; err != nil {
			return nil, fmt.Errorf("credentials service: reset lock state: %w", err)
		}
		user.LockedUntil = nil
		user.FailedAttempts = 0
	}

	if !crypto.VerifyPassword(user.Password, input.Password) {
		if err := s.recordFailure(&user, now); err != nil {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	updates := map[string]any{
		"failed_attempts": 0,
		"locked_until":    nil,
		"last_login_at":   now,
		"last_login_ip":   strings.TrimSpace(input.IPAddress),
	}
	if err := s.db.Model(&user).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("credentials service: record login: %w", err)
	}

	user.FailedAttempts = 0
	user.LockedUntil = nil
	user.LastLoginAt = &now

	return &user, nil
}

func (s *CredentialsService) recordFailure(user *models.User, now time.Time) error {
	attempts := user.FailedAttempts + 1
	updates := map[string]any{"failed_attempts": attempts}

	if attempts >= s.threshold {
		lockedUntil := now.Add(s.duration)
		updates["locked_until"] = lockedUntil
	}

	if err := s.db.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("credentials service: record failed attempt: %w", err)
	}
	return nil
}
