package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/everkeep/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Session{},
		&models.Executor{},
		&models.Invitation{},
		&models.TriggerEvent{},
		&models.Asset{},
		&models.Document{},
		&models.Wish{},
		&models.AuditLog{},
	)
}
