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

// EstateHandler serves the planner's own estate inventory.
type EstateHandler struct {
	estate *services.EstateService
}

// NewEstateHandler constructs an EstateHandler.
func NewEstateHandler(estate *services.EstateService) *EstateHandler {
	return &EstateHandler{estate: estate}
}

func plannerID(c *gin.Context) (string, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return id, true
}

func estateError(c *gin.Context, err error) {
	if errors.Is(err, services.ErrEstateItemNotFound) {
		response.Error(c, appErrors.ErrNotFound)
		return
	}
	response.Error(c, err)
}

// GET /api/estate
func (h *EstateHandler) View(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	view, err := h.estate.View(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// POST /api/assets
func (h *EstateHandler) CreateAsset(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	var req services.AssetInput
	if !bindAndValidate(c, &req) {
		return
	}

	asset, err := h.estate.CreateAsset(requestContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"asset": asset})
}

// GET /api/assets
func (h *EstateHandler) ListAssets(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	assets, err := h.estate.ListAssets(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"assets": assets})
}

// PUT /api/assets/:id
func (h *EstateHandler) UpdateAsset(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	var req services.AssetInput
	if !bindAndValidate(c, &req) {
		return
	}

	asset, err := h.estate.UpdateAsset(requestContext(c), id, c.Param("id"), req)
	if err != nil {
		estateError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"asset": asset})
}

// DELETE /api/assets/:id
func (h *EstateHandler) DeleteAsset(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	if err := h.estate.DeleteAsset(requestContext(c), id, c.Param("id")); err != nil {
		estateError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/wishes
func (h *EstateHandler) CreateWish(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	var req services.WishInput
	if !bindAndValidate(c, &req) {
		return
	}

	wish, err := h.estate.CreateWish(requestContext(c), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusCreated, gin.H{"wish": wish})
}

// GET /api/wishes
func (h *EstateHandler) ListWishes(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	wishes, err := h.estate.ListWishes(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"wishes": wishes})
}

// PUT /api/wishes/:id
func (h *EstateHandler) UpdateWish(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	var req services.WishInput
	if !bindAndValidate(c, &req) {
		return
	}

	wish, err := h.estate.UpdateWish(requestContext(c), id, c.Param("id"), req)
	if err != nil {
		estateError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"wish": wish})
}

// DELETE /api/wishes/:id
func (h *EstateHandler) DeleteWish(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	if err := h.estate.DeleteWish(requestContext(c), id, c.Param("id")); err != nil {
		estateError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/documents
func (h *EstateHandler) ListDocuments(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	documents, err := h.estate.ListDocuments(requestContext(c), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"documents": documents})
}

// DELETE /api/documents/:id
func (h *EstateHandler) DeleteDocument(c *gin.Context) {
	id, ok := plannerID(c)
	if !ok {
		return
	}

	if err := h.estate.DeleteDocument(requestContext(c), id, c.Param("id")); err != nil {
		estateError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
