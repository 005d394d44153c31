package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/everkeep/internal/auth"
	"github.com/charlesng35/everkeep/internal/middleware"
	"github.com/charlesng35/everkeep/internal/services"
	appErrors "github.com/charlesng35/everkeep/pkg/errors"
	"github.com/charlesng35/everkeep/pkg/response"
)

// InvitationHandler serves the public invitation surface: token inspection,
// new-account acceptance, and the deferred-entry continuation, plus the
// authenticated accept endpoint.
type InvitationHandler struct {
	invitations  *services.InvitationService
	users        *services.UserService
	sessions     *iauth.SessionService
	continuation *services.ContinuationSigner
}

// NewInvitationHandler constructs an InvitationHandler.
func NewInvitationHandler(
	invitations *services.InvitationService,
	users *services.UserService,
	sessions *iauth.SessionService,
	continuation *services.ContinuationSigner,
) *InvitationHandler {
	return &InvitationHandler{
		invitations:  invitations,
		users:        users,
		sessions:     sessions,
		continuation: continuation,
	}
}

type invitationInfoResponse struct {
	PlannerName  string    `json:"planner_name"`
	ExecutorName string    `json:"executor_name"`
	Email        string    `json:"email"`
	ExpiresAt    time.Time `json:"expires_at"`
	HasAccount   bool      `json:"has_account"`
}

type acceptRequest struct {
	Token string `json:"token" validate:"required"`
}

type acceptNewRequest struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=128"`
	FullName string `json:"full_name" validate:"omitempty,max=200"`
}

type continuationRequest struct {
	Token string `json:"token" validate:"required"`
}

// GET /api/invitations/info?token=...
//
// Drives the acceptance landing page: who invited whom, and whether the
// invited email already has an account (which branch to offer).
func (h *InvitationHandler) Info(c *gin.Context) {
	token := c.Query("token")

	ctx := requestContext(c)

	invitation, err := h.invitations.Verify(ctx, token)
	if err != nil {
		response.Error(c, invitationError(err))
		return
	}

	info := invitationInfoResponse{
		Email:     invitation.Executor.Email,
		ExpiresAt: invitation.ExpiresAt,
	}
	info.ExecutorName = invitation.Executor.Name

	if planner, err := h.users.GetByID(ctx, invitation.Executor.PlannerID); err == nil {
		info.PlannerName = planner.FullName
	}
	if existing, err := h.users.FindByEmail(ctx, invitation.Executor.Email); err == nil && existing != nil {
		info.HasAccount = true
	}

	response.Success(c, http.StatusOK, info)
}

// POST /api/invitations/accept  (authenticated)
func (h *InvitationHandler) Accept(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req acceptRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, err := h.users.GetByID(ctx, userID)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	executor, err := h.invitations.AcceptAsExistingUser(ctx, req.Token, user)
	if err != nil {
		response.Error(c, invitationError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{"executor": executor})
}

// POST /api/invitations/accept-new  (public)
//
// The new-account branch: creates the executor account and signs it in, so a
// fresh invitee lands in an authenticated session.
func (h *InvitationHandler) AcceptNew(c *gin.Context) {
	var req acceptNewRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)

	user, executor, err := h.invitations.AcceptAsNewUser(ctx, req.Token, req.Password, req.FullName)
	if err != nil {
		if errors.Is(err, services.ErrAccountExists) {
			response.Error(c, appErrors.New("ACCOUNT_EXISTS", "an account already exists for this email; sign in to accept", http.StatusConflict))
			return
		}
		if errors.Is(err, services.ErrWeakPassword) {
			response.Error(c, appErrors.NewBadRequest("password must be at least 8 characters"))
			return
		}
		response.Error(c, invitationError(err))
		return
	}

	pair, _, err := h.sessions.CreateSession(user, iauth.SessionMetadata{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"user":          toUserDTO(user),
		"executor":      executor,
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
	})
}

// POST /api/invitations/continuation  (public)
//
// Exchanges a raw invitation token for a short-lived signed state the client
// carries through sign-in. The invitation stays pending until the state is
// completed.
func (h *InvitationHandler) Continuation(c *gin.Context) {
	var req continuationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	state, err := h.invitations.IssueContinuation(requestContext(c), h.continuation, req.Token)
	if err != nil {
		response.Error(c, invitationError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"invite_state": state,
		"expires_in":   int((15 * time.Minute).Seconds()),
	})
}

// invitationError maps invitation outcomes onto the API error taxonomy.
func invitationError(err error) error {
	switch {
	case errors.Is(err, services.ErrInvitationNotFound):
		return appErrors.New("INVITATION_NOT_FOUND", "invitation not found", http.StatusNotFound)
	case errors.Is(err, services.ErrInvitationExpired):
		return appErrors.ErrExpired
	case errors.Is(err, services.ErrInvitationAlreadyAccepted):
		return appErrors.ErrAlreadyProcessed
	case errors.Is(err, services.ErrEmailMismatch):
		return appErrors.ErrEmailMismatch
	case errors.Is(err, services.ErrInvalidContinuation):
		return appErrors.NewBadRequest("invitation state is invalid or has expired")
	default:
		return err
	}
}
