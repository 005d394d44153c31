package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/everkeep/internal/middleware"
	"github.com/charlesng35/everkeep/internal/services"
	appErrors "github.com/charlesng35/everkeep/pkg/errors"
	"github.com/charlesng35/everkeep/pkg/response"
)

// AuditHandler exposes the account's own audit trail.
type AuditHandler struct {
	audit *services.AuditService
}

// NewAuditHandler constructs an AuditHandler.
func NewAuditHandler(audit *services.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// GET /api/audit
//
// Users only ever see entries recorded against their own id.
func (h *AuditHandler) List(c *gin.Context) {
	userID, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	page := parseIntQuery(c, "page", 1)
	perPage := parseIntQuery(c, "per_page", 50)

	logs, total, err := h.audit.List(requestContext(c), services.AuditListOptions{
		Page:     page,
		PageSize: perPage,
		Filters: services.AuditFilters{
			UserID: userID,
			Action: strings.TrimSpace(c.Query("action")),
			Result: strings.TrimSpace(c.Query("result")),
		},
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.SuccessWithMeta(c, http.StatusOK, gin.H{"logs": logs}, &response.Meta{
		Page:    page,
		PerPage: perPage,
		Total:   int(total),
	})
}
