package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Recipe struct {
	ID          uint            `gorm:"primaryKey"`
	UserID      uint            `gorm:"not null;index"`
	User        *User           `gorm:"constraint:OnDelete:CASCADE"`
	Title       string          `gorm:"size:255;not null"`
	TimeMinutes int             `gorm:"not null"`
	Price       decimal.Decimal `gorm:"type:decimal(5,2);not null"`
	Link        string          `gorm:"size:255"`
	Image       string          `gorm:"size:255"` // path relative to the media root
	Tags        []Tag           `gorm:"many2many:recipe_tags;"`
	Ingredients []Ingredient    `gorm:"many2many:recipe_ingredients;"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (r Recipe) String() string { return r.Title }

func (r Recipe) TagIDs() []uint {
	ids := make([]uint, 0, len(r.Tags))
	for _, t := range r.Tags {
		ids = append(ids, t.ID)
	}
	return ids
}

func (r Recipe) IngredientIDs() []uint {
	ids := make([]uint, 0, len(r.Ingredients))
	for _, i := range r.Ingredients {
		ids = append(ids, i.ID)
	}
	return ids
}
