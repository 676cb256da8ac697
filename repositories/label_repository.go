package repositories

import (
	"context"
	"fmt"

	"recipe-api/models"

	"gorm.io/gorm"
)

// LabelRepository stores one kind of user-owned label (tags or ingredients).
type LabelRepository[T models.Label] interface {
	// ListByOwner returns the owner's labels ordered by name descending. With
	// assignedOnly, only labels attached to at least one of the owner's recipes
	// are returned, each once.
	ListByOwner(ctx context.Context, ownerID uint, assignedOnly bool) ([]T, error)
	Create(ctx context.Context, label *T) error
	// FindOwnedByIDs returns the labels among ids that belong to ownerID.
	FindOwnedByIDs(ctx context.Context, ownerID uint, ids []uint) ([]T, error)
}

type labelRepository[T models.Label] struct {
	db         *gorm.DB
	table      string
	joinTable  string
	joinColumn string
}

func NewTagRepository(db *gorm.DB) LabelRepository[models.Tag] {
	return &labelRepository[models.Tag]{db: db, table: "tags", joinTable: "recipe_tags", joinColumn: "tag_id"}
}

func NewIngredientRepository(db *gorm.DB) LabelRepository[models.Ingredient] {
	return &labelRepository[models.Ingredient]{db: db, table: "ingredients", joinTable: "recipe_ingredients", joinColumn: "ingredient_id"}
}

func (r *labelRepository[T]) ListByOwner(ctx context.Context, ownerID uint, assignedOnly bool) ([]T, error) {
	db := r.db.WithContext(ctx)
	query := db.Model(new(T)).Where(r.table+".user_id = ?", ownerID)

	if assignedOnly {
		attached := db.Table(r.joinTable).
			Select(r.joinTable+"."+r.joinColumn).
			Joins("JOIN recipes ON recipes.id = "+r.joinTable+".recipe_id").
			Where("recipes.user_id = ?", ownerID)
		query = query.Where(r.table+".id IN (?)", attached)
	}

	labels := []T{}
	if err := query.Order(r.table + ".name DESC").Order(r.table + ".id DESC").Find(&labels).Error; err != nil {
		return nil, fmt.Errorf("failed to list %s for user %d: %w", r.table, ownerID, err)
	}
	return labels, nil
}

func (r *labelRepository[T]) Create(ctx context.Context, label *T) error {
	if err := r.db.WithContext(ctx).Create(label).Error; err != nil {
		return fmt.Errorf("failed to create %s: %w", r.table, err)
	}
	return nil
}

func (r *labelRepository[T]) FindOwnedByIDs(ctx context.Context, ownerID uint, ids []uint) ([]T, error) {
	labels := []T{}
	if len(ids) == 0 {
		return labels, nil
	}
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND id IN ?", ownerID, ids).
		Order("id").
		Find(&labels).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load %s %v for user %d: %w", r.table, ids, ownerID, err)
	}
	return labels, nil
}
