package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AdminUser is the single administrator role
type AdminUser struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Email        string    `json:"email" gorm:"uniqueIndex;not null;size:255"`
	PasswordHash string    `json:"-" gorm:"size:255;not null"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// BeforeCreate assigns an ID when the caller did not
func (a *AdminUser) BeforeCreate(_ *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}

// AdminResponse is the safe version of AdminUser for API responses
type AdminResponse struct {
	ID    uuid.UUID `json:"id"`
	Email string    `json:"email"`
}

func (a *AdminUser) ToResponse() AdminResponse {
	return AdminResponse{ID: a.ID, Email: a.Email}
}
