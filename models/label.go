package models

import "time"

// Tag is a user-owned label attached to recipes.
type Tag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"-" gorm:"not null;index"`
	User      *User     `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"-"`
}

func (t Tag) String() string { return t.Name }

func (t Tag) LabelID() uint { return t.ID }

// Ingredient has the same shape and lifecycle as Tag.
type Ingredient struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	UserID    uint      `json:"-" gorm:"not null;index"`
	User      *User     `json:"-" gorm:"constraint:OnDelete:CASCADE"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	CreatedAt time.Time `json:"-"`
}

func (i Ingredient) String() string { return i.Name }

func (i Ingredient) LabelID() uint { return i.ID }

// Label is satisfied by the label types a user can attach to a recipe.
type Label interface {
	Tag | Ingredient
	LabelID() uint
	String() string
}

func NewTag(ownerID uint, name string) Tag {
	return Tag{UserID: ownerID, Name: name}
}

func NewIngredient(ownerID uint, name string) Ingredient {
	return Ingredient{UserID: ownerID, Name: name}
}
