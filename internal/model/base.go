package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Base carries identity, audit stamps and the soft-delete flag shared by
// every entity. It is embedded, never used as a table on its own.
type Base struct {
	ID        uuid.UUID  `gorm:"type:char(36);primaryKey" json:"id"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
	IsActive  bool       `gorm:"not null;index" json:"is_active"`
	CreatedBy *uuid.UUID `gorm:"type:char(36)" json:"created_by,omitempty"`
	UpdatedBy *uuid.UUID `gorm:"type:char(36)" json:"updated_by,omitempty"`
}

// BeforeCreate assigns an id when the caller did not and marks the row active.
func (b *Base) BeforeCreate(tx *gorm.DB) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	b.IsActive = true
	return nil
}

// Stamp records the creator of a new row.
func (b *Base) Stamp(actor uuid.UUID) {
	if actor == uuid.Nil {
		return
	}
	b.CreatedBy = &actor
	b.UpdatedBy = &actor
}

// Touch records a mutation by actor.
func (b *Base) Touch(actor uuid.UUID) {
	b.UpdatedAt = time.Now()
	if actor != uuid.Nil {
		b.UpdatedBy = &actor
	}
}

// Deactivate soft-deletes the row. Nothing is ever physically removed.
func (b *Base) Deactivate(actor uuid.UUID) {
	b.IsActive = false
	b.Touch(actor)
}
