package models

// Wish categories.
const (
	WishCategoryMedical = "medical"
	WishCategoryLegal   = "legal"
	WishCategoryFuneral = "funeral"
)

// Wish captures a planner's legal, medical, or funeral directive.
type Wish struct {
	BaseModel

	PlannerID string `gorm:"type:uuid;not null;index" json:"planner_id"`
	Planner   *User  `gorm:"foreignKey:PlannerID" json:"planner,omitempty"`
	Category  string `gorm:"not null;index" json:"category"`
	Title     string `gorm:"not null" json:"title"`
	Content   string `json:"content"`
}
