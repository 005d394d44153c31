package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
)

var (
	// ErrEstateItemNotFound indicates the item does not exist or is owned by
	// another planner.
	ErrEstateItemNotFound = errors.New("estate: item not found")
	// ErrEstateLocked indicates the executor's view of this estate has not
	// been unlocked by the death trigger.
	ErrEstateLocked = errors.New("estate: access is locked")
)

// EstateService manages a planner's estate inventory and serves the gated
// executor read view. Planners always see their own data; executors see it
// only through the access gate.
type EstateService struct {
	db   *gorm.DB
	gate *AccessGate
}

// NewEstateService constructs an EstateService.
func NewEstateService(db *gorm.DB, gate *AccessGate) (*EstateService, error) {
	if db == nil {
		return nil, errors.New("estate service: db is required")
	}
	if gate == nil {
		return nil, errors.New("estate service: access gate is required")
	}
	return &EstateService{db: db, gate: gate}, nil
}

// AssetInput carries the writable fields of an asset.
type AssetInput struct {
	Name     string  `json:"name" validate:"required,max=200"`
	Category string  `json:"category" validate:"omitempty,max=100"`
	Value    float64 `json:"value" validate:"omitempty,gte=0"`
	Location string  `json:"location" validate:"omitempty,max=500"`
	Notes    string  `json:"notes" validate:"omitempty,max=2000"`
}

// CreateAsset records a new asset on the planner's estate.
func (s *EstateService) CreateAsset(ctx context.Context, plannerID string, input AssetInput) (*models.Asset, error) {
	ctx = ensureContext(ctx)

	asset := &models.Asset{
		PlannerID: plannerID,
		Name:      input.Name,
		Category:  input.Category,
		Value:     input.Value,
		Location:  input.Location,
		Notes:     input.Notes,
	}
	if err := s.db.WithContext(ctx).Create(asset).Error; err != nil {
		return nil, fmt.Errorf("estate service: create asset: %w", err)
	}
	return asset, nil
}

// UpdateAsset replaces the writable fields of an asset the planner owns.
func (s *EstateService) UpdateAsset(ctx context.Context, plannerID, assetID string, input AssetInput) (*models.Asset, error) {
	ctx = ensureContext(ctx)

	var asset models.Asset
	if err := s.ownedItem(ctx, plannerID, assetID, &asset); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&asset).Updates(map[string]any{
		"name":     input.Name,
		"category": input.Category,
		"value":    input.Value,
		"location": input.Location,
		"notes":    input.Notes,
	}).Error; err != nil {
		return nil, fmt.Errorf("estate service: update asset: %w", err)
	}
	return &asset, nil
}

// DeleteAsset removes an asset the planner owns.
func (s *EstateService) DeleteAsset(ctx context.Context, plannerID, assetID string) error {
	return s.deleteOwned(ctx, plannerID, assetID, &models.Asset{})
}

// ListAssets returns the planner's assets, newest first.
func (s *EstateService) ListAssets(ctx context.Context, plannerID string) ([]models.Asset, error) {
	ctx = ensureContext(ctx)

	var assets []models.Asset
	if err := s.db.WithContext(ctx).
		Where("planner_id = ?", plannerID).
		Order("created_at DESC").
		Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("estate service: list assets: %w", err)
	}
	return assets, nil
}

// WishInput carries the writable fields of a wish.
type WishInput struct {
	Category string `json:"category" validate:"required,oneof=medical legal funeral"`
	Title    string `json:"title" validate:"required,max=200"`
	Content  string `json:"content" validate:"omitempty,max=10000"`
}

// CreateWish records a new wish on the planner's estate.
func (s *EstateService) CreateWish(ctx context.Context, plannerID string, input WishInput) (*models.Wish, error) {
	ctx = ensureContext(ctx)

	wish := &models.Wish{
		PlannerID: plannerID,
		Category:  input.Category,
		Title:     input.Title,
		Content:   input.Content,
	}
	if err := s.db.WithContext(ctx).Create(wish).Error; err != nil {
		return nil, fmt.Errorf("estate service: create wish: %w", err)
	}
	return wish, nil
}

// UpdateWish replaces the writable fields of a wish the planner owns.
func (s *EstateService) UpdateWish(ctx context.Context, plannerID, wishID string, input WishInput) (*models.Wish, error) {
	ctx = ensureContext(ctx)

	var wish models.Wish
	if err := s.ownedItem(ctx, plannerID, wishID, &wish); err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&wish).Updates(map[string]any{
		"category": input.Category,
		"title":    input.Title,
		"content":  input.Content,
	}).Error; err != nil {
		return nil, fmt.Errorf("estate service: update wish: %w", err)
	}
	return &wish, nil
}

// DeleteWish removes a wish the planner owns.
func (s *EstateService) DeleteWish(ctx context.Context, plannerID, wishID string) error {
	return s.deleteOwned(ctx, plannerID, wishID, &models.Wish{})
}

// ListWishes returns the planner's wishes, newest first.
func (s *EstateService) ListWishes(ctx context.Context, plannerID string) ([]models.Wish, error) {
	ctx = ensureContext(ctx)

	var wishes []models.Wish
	if err := s.db.WithContext(ctx).
		Where("planner_id = ?", plannerID).
		Order("created_at DESC").
		Find(&wishes).Error; err != nil {
		return nil, fmt.Errorf("estate service: list wishes: %w", err)
	}
	return wishes, nil
}

// ListDocuments returns the planner's document inventory, newest first.
func (s *EstateService) ListDocuments(ctx context.Context, plannerID string) ([]models.Document, error) {
	ctx = ensureContext(ctx)

	var documents []models.Document
	if err := s.db.WithContext(ctx).
		Where("planner_id = ?", plannerID).
		Order("created_at DESC").
		Find(&documents).Error; err != nil {
		return nil, fmt.Errorf("estate service: list documents: %w", err)
	}
	return documents, nil
}

// GetDocument returns a single document the planner owns.
func (s *EstateService) GetDocument(ctx context.Context, plannerID, documentID string) (*models.Document, error) {
	ctx = ensureContext(ctx)

	var document models.Document
	if err := s.ownedItem(ctx, plannerID, documentID, &document); err != nil {
		return nil, err
	}
	return &document, nil
}

// DeleteDocument removes a document record the planner owns. The blob is left
// for the maintenance sweep.
func (s *EstateService) DeleteDocument(ctx context.Context, plannerID, documentID string) error {
	return s.deleteOwned(ctx, plannerID, documentID, &models.Document{})
}

// EstateView is the full read snapshot of one planner's estate.
type EstateView struct {
	Assets    []models.Asset    `json:"assets"`
	Wishes    []models.Wish     `json:"wishes"`
	Documents []models.Document `json:"documents"`
}

// View assembles the whole estate for the planner who owns it.
func (s *EstateService) View(ctx context.Context, plannerID string) (*EstateView, error) {
	ctx = ensureContext(ctx)

	assets, err := s.ListAssets(ctx, plannerID)
	if err != nil {
		return nil, err
	}
	wishes, err := s.ListWishes(ctx, plannerID)
	if err != nil {
		return nil, err
	}
	documents, err := s.ListDocuments(ctx, plannerID)
	if err != nil {
		return nil, err
	}

	return &EstateView{Assets: assets, Wishes: wishes, Documents: documents}, nil
}

// ViewAsExecutor serves the executor read view, but only when the access gate
// grants it. A locked estate returns ErrEstateLocked with no data.
func (s *EstateService) ViewAsExecutor(ctx context.Context, executor *models.Executor) (*EstateView, error) {
	ctx = ensureContext(ctx)

	if executor == nil {
		return nil, ErrEstateLocked
	}
	if !s.gate.CanAccessPlannerData(ctx, executor) {
		return nil, ErrEstateLocked
	}
	return s.View(ctx, executor.PlannerID)
}

func (s *EstateService) ownedItem(ctx context.Context, plannerID, itemID string, dest any) error {
	err := s.db.WithContext(ctx).
		Where("id = ? AND planner_id = ?", itemID, plannerID).
		Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrEstateItemNotFound
	}
	if err != nil {
		return fmt.Errorf("estate service: find item: %w", err)
	}
	return nil
}

func (s *EstateService) deleteOwned(ctx context.Context, plannerID, itemID string, model any) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Where("id = ? AND planner_id = ?", itemID, plannerID).
		Delete(model)
	if result.Error != nil {
		return fmt.Errorf("estate service: delete item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrEstateItemNotFound
	}
	return nil
}
