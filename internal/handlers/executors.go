package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/everkeep/internal/middleware"
	"github.com/charlesng35/everkeep/internal/services"
	appErrors "github.com/charlesng35/everkeep/pkg/errors"
	"github.com/charlesng35/everkeep/pkg/response"
)

// ExecutorHandler serves the planner-side executor management surface.
type ExecutorHandler struct {
	executors   *services.ExecutorService
	invitations *services.InvitationService
}

// NewExecutorHandler constructs an ExecutorHandler.
func NewExecutorHandler(executors *services.ExecutorService, invitations *services.InvitationService) *ExecutorHandler {
	return &ExecutorHandler{executors: executors, invitations: invitations}
}

type inviteExecutorRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email" validate:"required,email"`
	Relationship string `json:"relationship" validate:"omitempty,max=100"`
}

// POST /api/executors
//
// Creates the pending relationship and emails the invitation. The raw token
// is returned once so the planner can share the link out of band.
func (h *ExecutorHandler) Invite(c *gin.Context) {
	plannerID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req inviteExecutorRequest
	if !bindAndValidate(c, &req) {
		return
	}

	result, err := h.invitations.Issue(requestContext(c), services.IssueInput{
		PlannerID:    plannerID,
		Name:         req.Name,
		Email:        req.Email,
		Relationship: req.Relationship,
	})
	if err != nil {
		if errors.Is(err, services.ErrExecutorAlreadyInvited) {
			response.Error(c, appErrors.New("EXECUTOR_EXISTS", "a non-revoked executor already exists for this email", http.StatusConflict))
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{
		"executor": result.Executor,
		"link":     result.Link,
	})
}

// POST /api/executors/:id/reissue
func (h *ExecutorHandler) Reissue(c *gin.Context) {
	plannerID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	result, err := h.invitations.Reissue(requestContext(c), plannerID, c.Param("id"))
	if err != nil {
		response.Error(c, invitationError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"executor": result.Executor,
		"link":     result.Link,
	})
}

// GET /api/executors
func (h *ExecutorHandler) List(c *gin.Context) {
	plannerID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	executors, err := h.executors.ListForPlanner(requestContext(c), plannerID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"executors": executors})
}

// POST /api/executors/:id/revoke
func (h *ExecutorHandler) Revoke(c *gin.Context) {
	plannerID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	executor, err := h.executors.Revoke(requestContext(c), plannerID, c.Param("id"))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrExecutorNotFound):
			response.Error(c, appErrors.ErrNotFound)
		case errors.Is(err, services.ErrExecutorRevoked):
			response.Error(c, appErrors.ErrAlreadyProcessed)
		default:
			response.Error(c, err)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"executor": executor})
}
