package models

import "time"

// Session records an issued token so it can be revoked and expire when idle.
// Only the SQL session store persists it.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36"` // token jti
	UserID    uint      `gorm:"not null;index"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time
}
