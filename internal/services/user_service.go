package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/pkg/crypto"
)

var (
	// ErrUserNotFound indicates no user matches the lookup.
	ErrUserNotFound = errors.New("user: not found")
	// ErrEmailTaken signals an attempt to register an email that already has an account.
	ErrEmailTaken = errors.New("user: email already registered")
	// ErrWeakPassword is returned when the supplied password fails policy.
	ErrWeakPassword = errors.New("user: password must be at least 8 characters")
)

// CreateUserInput captures the details required to register an account.
type CreateUserInput struct {
	Email    string
	Password string
	FullName string
	Role     string
}

// UserService manages account records.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Create registers a new account with a bcrypt-hashed password. The profile
// row is created together with the identity; role defaults to planner.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, errors.New("user service: email is required")
	}
	if len(input.Password) < 8 {
		return nil, ErrWeakPassword
	}

	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.RolePlanner
	}
	if role != models.RolePlanner && role != models.RoleExecutor {
		return nil, fmt.Errorf("user service: unknown role %q", role)
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Password: hashed,
		FullName: strings.TrimSpace(input.FullName),
		Role:     role,
		IsActive: true,
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("user service: create user: %w", err)
	}

	return user, nil
}

// FindByEmail returns the user with the given email, or nil when absent.
// Lookup is case-insensitive; emails are stored lowercased.
func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("LOWER(email) = LOWER(?)", email).
		Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("user service: find by email: %w", err)
	}
	return &user, nil
}

// GetByID returns the user with the given identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}
