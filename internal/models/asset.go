package models

// Asset is a planner-owned inventory entry: accounts, property, valuables.
type Asset struct {
	BaseModel

	PlannerID string  `gorm:"type:uuid;not null;index" json:"planner_id"`
	Planner   *User   `gorm:"foreignKey:PlannerID" json:"planner,omitempty"`
	Name      string  `gorm:"not null" json:"name"`
	Category  string  `gorm:"index" json:"category"`
	Value     float64 `json:"value"`
	Location  string  `json:"location"`
	Notes     string  `json:"notes"`
}
