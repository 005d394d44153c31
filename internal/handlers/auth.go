package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/everkeep/internal/auth"
	"github.com/charlesng35/everkeep/internal/middleware"
	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/internal/services"
	appErrors "github.com/charlesng35/everkeep/pkg/errors"
	"github.com/charlesng35/everkeep/pkg/metrics"
	"github.com/charlesng35/everkeep/pkg/response"
)

// AuthHandler serves signup, login, token refresh, and session management.
type AuthHandler struct {
	credentials  *iauth.CredentialsService
	sessions     *iauth.SessionService
	users        *services.UserService
	invitations  *services.InvitationService
	continuation *services.ContinuationSigner
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(
	credentials *iauth.CredentialsService,
	sessions *iauth.SessionService,
	users *services.UserService,
	invitations *services.InvitationService,
	continuation *services.ContinuationSigner,
) *AuthHandler {
	return &AuthHandler{
		credentials:  credentials,
		sessions:     sessions,
		users:        users,
		invitations:  invitations,
		continuation: continuation,
	}
}

type signupRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"omitempty,max=200"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	// InviteState resumes a deferred invitation acceptance after sign-in.
	InviteState string `json:"invite_state" validate:"omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type userDTO struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FullName    string     `json:"full_name,omitempty"`
	Role        string     `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

type sessionResponse struct {
	User         userDTO `json:"user"`
	AccessToken  string  `json:"access_token"`
	RefreshToken string  `json:"refresh_token"`
	// Invitation carries the outcome of a completed continuation, when one
	// was supplied at login.
	Invitation      *models.Executor `json:"invitation,omitempty"`
	InvitationError string           `json:"invitation_error,omitempty"`
}

func toUserDTO(user *models.User) userDTO {
	return userDTO{
		ID:          user.ID,
		Email:       user.Email,
		FullName:    user.FullName,
		Role:        user.Role,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

// POST /api/auth/signup
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, err := h.users.Create(ctx, services.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
		Role:     models.RolePlanner,
	})
	if err != nil {
		if errors.Is(err, services.ErrEmailTaken) {
			response.Error(c, appErrors.New("EMAIL_TAKEN", "an account already exists for this email", http.StatusConflict))
			return
		}
		if errors.Is(err, services.ErrWeakPassword) {
			response.Error(c, appErrors.NewBadRequest("password must be at least 8 characters"))
			return
		}
		response.Error(c, err)
		return
	}

	h.respondWithSession(c, http.StatusCreated, user, nil, "")
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, err := h.credentials.Authenticate(iauth.AuthenticateInput{
		Email:     req.Email,
		Password:  req.Password,
		IPAddress: c.ClientIP(),
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		switch {
		case errors.Is(err, iauth.ErrAccountLocked):
			response.Error(c, appErrors.New("ACCOUNT_LOCKED", "account temporarily locked after repeated failures", http.StatusForbidden))
		case errors.Is(err, iauth.ErrAccountDisabled):
			response.Error(c, appErrors.New("ACCOUNT_DISABLED", "account is disabled", http.StatusForbidden))
		default:
			response.Error(c, appErrors.ErrInvalidCredentials)
		}
		return
	}
	metrics.AuthAttempts.WithLabelValues("success").Inc()

	// A deferred invitation rides along with login. Sign-in succeeds even
	// when the continuation fails; the outcome is reported alongside.
	var executor *models.Executor
	invitationError := ""
	if req.InviteState != "" && h.invitations != nil && h.continuation != nil {
		executor, err = h.invitations.CompleteContinuation(ctx, h.continuation, req.InviteState, user)
		if err != nil {
			invitationError = continuationErrorMessage(err)
		}
	}

	h.respondWithSession(c, http.StatusOK, user, executor, invitationError)
}

// POST /api/auth/refresh
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if !bindAndValidate(c, &req) {
		return
	}

	pair, session, err := h.sessions.RefreshSession(req.RefreshToken)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), session.UserID)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, sessionResponse{
		User:         toUserDTO(user),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// POST /api/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	sessionID := c.GetString(middleware.CtxSessionIDKey)
	if sessionID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	if err := h.sessions.RevokeSession(sessionID); err != nil && !errors.Is(err, iauth.ErrSessionNotFound) {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "logged out"})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			response.Error(c, appErrors.ErrUnauthorized)
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"user": toUserDTO(user)})
}

func (h *AuthHandler) respondWithSession(c *gin.Context, status int, user *models.User, executor *models.Executor, invitationError string) {
	pair, _, err := h.sessions.CreateSession(user, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, status, sessionResponse{
		User:            toUserDTO(user),
		AccessToken:     pair.AccessToken,
		RefreshToken:    pair.RefreshToken,
		Invitation:      executor,
		InvitationError: invitationError,
	})
}

func continuationErrorMessage(err error) string {
	switch {
	case errors.Is(err, services.ErrInvalidContinuation):
		return "invitation state is invalid or has expired"
	case errors.Is(err, services.ErrInvitationNotFound):
		return "invitation no longer exists"
	case errors.Is(err, services.ErrInvitationExpired):
		return "invitation has expired"
	case errors.Is(err, services.ErrInvitationAlreadyAccepted):
		return "invitation was already accepted"
	case errors.Is(err, services.ErrEmailMismatch):
		return "invitation was issued to a different email address"
	default:
		return "invitation could not be completed"
	}
}
