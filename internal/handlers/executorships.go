package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/everkeep/internal/middleware"
	"github.com/charlesng35/everkeep/internal/models"
	"github.com/charlesng35/everkeep/internal/services"
	appErrors "github.com/charlesng35/everkeep/pkg/errors"
	"github.com/charlesng35/everkeep/pkg/response"
)

// ExecutorshipHandler serves the executor-side surface: the relationships
// where the signed-in user is the executor, death-certificate submission, and
// the gated view of the planner's estate.
type ExecutorshipHandler struct {
	users        *services.UserService
	executors    *services.ExecutorService
	verification *services.VerificationService
	estate       *services.EstateService
	gate         *services.AccessGate
	maxUpload    int64
}

// NewExecutorshipHandler constructs an ExecutorshipHandler.
func NewExecutorshipHandler(
	users *services.UserService,
	executors *services.ExecutorService,
	verification *services.VerificationService,
	estate *services.EstateService,
	gate *services.AccessGate,
	maxUpload int64,
) *ExecutorshipHandler {
	if maxUpload <= 0 {
		maxUpload = services.DefaultMaxCertificateBytes
	}
	return &ExecutorshipHandler{
		users:        users,
		executors:    executors,
		verification: verification,
		estate:       estate,
		gate:         gate,
		maxUpload:    maxUpload,
	}
}

// GET /api/executorships
func (h *ExecutorshipHandler) List(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	executorships, err := h.executors.ListForUser(requestContext(c), user)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"executorships": executorships})
}

// GET /api/executorships/:plannerID/status
//
// Reports the dashboard lock state: locked until the death trigger fires,
// unlocked after.
func (h *ExecutorshipHandler) Status(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	ctx := requestContext(c)

	executor, err := h.executors.ActiveForUser(ctx, user, c.Param("plannerID"))
	if err != nil {
		if errors.Is(err, services.ErrExecutorNotFound) {
			response.Error(c, appErrors.ErrNotFound)
			return
		}
		response.Error(c, err)
		return
	}

	unlocked := h.gate.CanAccessPlannerData(ctx, executor)
	state := "locked"
	if unlocked {
		state = "unlocked"
	}

	response.Success(c, http.StatusOK, gin.H{
		"executor": executor,
		"state":    state,
	})
}

// POST /api/executorships/:plannerID/death-certificate
//
// Multipart upload, field name "certificate". The request body is capped one
// byte above the limit so an oversized upload fails fast.
func (h *ExecutorshipHandler) SubmitDeathCertificate(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+4096)

	fileHeader, err := c.FormFile("certificate")
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("certificate file is required"))
		return
	}
	if fileHeader.Size > h.maxUpload {
		response.Error(c, appErrors.New("CERTIFICATE_TOO_LARGE", "certificate exceeds the upload size limit", http.StatusRequestEntityTooLarge))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.NewBadRequest("certificate file could not be read"))
		return
	}
	defer file.Close()

	result, err := h.verification.SubmitDeathCertificate(requestContext(c), user, c.Param("plannerID"), services.CertificateUpload{
		FileName:    fileHeader.Filename,
		ContentType: fileHeader.Header.Get("Content-Type"),
		SizeBytes:   fileHeader.Size,
		Content:     file,
	})
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCertificateTooLarge):
			response.Error(c, appErrors.New("CERTIFICATE_TOO_LARGE", "certificate exceeds the upload size limit", http.StatusRequestEntityTooLarge))
		case errors.Is(err, services.ErrNotActiveExecutor):
			response.Error(c, appErrors.ErrForbidden)
		case errors.Is(err, services.ErrVerificationRejected):
			response.Error(c, appErrors.New("VERIFICATION_REJECTED", "submitted evidence was rejected", http.StatusUnprocessableEntity))
		default:
			response.Error(c, err)
		}
		return
	}

	response.Success(c, http.StatusOK, result)
}

// GET /api/executorships/:plannerID/estate
func (h *ExecutorshipHandler) Estate(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	ctx := requestContext(c)

	executor, err := h.executors.ActiveForUser(ctx, user, c.Param("plannerID"))
	if err != nil {
		if errors.Is(err, services.ErrExecutorNotFound) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
		response.Error(c, err)
		return
	}

	view, err := h.estate.ViewAsExecutor(ctx, executor)
	if err != nil {
		if errors.Is(err, services.ErrEstateLocked) {
			response.Error(c, appErrors.New("ESTATE_LOCKED", "estate access has not been unlocked", http.StatusForbidden))
			return
		}
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

func (h *ExecutorshipHandler) currentUser(c *gin.Context) (*models.User, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}

	user, err := h.users.GetByID(requestContext(c), userID)
	if err != nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return nil, false
	}
	return user, true
}
