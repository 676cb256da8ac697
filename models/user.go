package models

import "time"

// User is an account identified by its lower-cased email address.
type User struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Email       string    `json:"email" gorm:"uniqueIndex;size:255;not null"`
	Password    string    `json:"-" gorm:"not null"` // bcrypt hash, never serialized
	Name        string    `json:"name" gorm:"size:255"`
	IsActive    bool      `json:"-" gorm:"not null;default:true"`
	IsStaff     bool      `json:"-" gorm:"not null;default:false"`
	IsSuperuser bool      `json:"-" gorm:"not null;default:false"`
	CreatedAt   time.Time `json:"-"`
	UpdatedAt   time.Time `json:"-"`
}
