package models

// Document categories.
const (
	DocumentCategoryLegal     = "legal"
	DocumentCategoryFinancial = "financial"
	DocumentCategoryMedical   = "medical"
	DocumentCategoryPersonal  = "personal"
)

// Document records metadata for a file stored in the blob store, owned by a
// planner. The death certificate uploaded during verification becomes a
// legal-category document on the planner's estate.
type Document struct {
	BaseModel

	PlannerID   string `gorm:"type:uuid;not null;index:idx_documents_planner_path,unique" json:"planner_id"`
	Planner     *User  `gorm:"foreignKey:PlannerID" json:"planner,omitempty"`
	Category    string `gorm:"not null;index" json:"category"`
	Name        string `gorm:"not null" json:"name"`
	StoragePath string `gorm:"not null;index:idx_documents_planner_path,unique" json:"-"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}
