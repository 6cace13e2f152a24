package models

import (
	"time"
)

// RefreshToken is an issued refresh JWT, kept so it can be rotated and revoked.
type RefreshToken struct {
	BaseModel
	UserID    uint      `gorm:"index;not null" json:"userId"`
	Token     string    `gorm:"type:text;not null" json:"-"`
	ExpiresAt time.Time `json:"expiresAt"`
	IsRevoked bool      `gorm:"not null" json:"isRevoked"`

	User User `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}
