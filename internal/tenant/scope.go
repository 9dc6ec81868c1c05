package tenant

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ForTenant returns a GORM scope that filters by app_id.
func ForTenant(appID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("app_id = ?", appID)
	}
}

// ForUser narrows ForTenant to one user's rows.
func ForUser(appID string, userID uuid.UUID) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Scopes(ForTenant(appID)).Where("user_id = ?", userID)
	}
}
