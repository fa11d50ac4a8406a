package repository

import (
	"github.com/google/uuid"
	"github.com/nsvirk/tickcollector/internal/models"
	"gorm.io/gorm"
)

// LifecycleRepository appends to the audit log. It is the only writer of
// the lifecycle_events table -- the Lifecycle Manager is its sole caller.
type LifecycleRepository struct {
	DB *gorm.DB
}

// NewLifecycleRepository creates a new LifecycleRepository.
func NewLifecycleRepository(db *gorm.DB) *LifecycleRepository {
	return &LifecycleRepository{DB: db}
}

// Append writes one lifecycle event, assigning it an id if unset.
func (r *LifecycleRepository) Append(event models.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	return r.DB.Create(&event).Error
}
