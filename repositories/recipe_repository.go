package repositories

import (
	"context"
	"fmt"

	"recipe-api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecipeFilter narrows a recipe listing. Within each dimension ids are OR-ed,
// and the two dimensions are AND-ed. Empty slices do not filter.
type RecipeFilter struct {
	TagIDs        []uint
	IngredientIDs []uint
}

// RecipeChanges says which relation sets an update replaces.
type RecipeChanges struct {
	ReplaceTags        bool
	ReplaceIngredients bool
}

type RecipeRepository interface {
	ListByOwner(ctx context.Context, ownerID uint, filter RecipeFilter) ([]models.Recipe, error)
	FindOwned(ctx context.Context, ownerID, id uint) (*models.Recipe, error)
	FindOwnedByImage(ctx context.Context, ownerID uint, image string) (*models.Recipe, error)
	Create(ctx context.Context, recipe *models.Recipe) error
	Update(ctx context.Context, recipe *models.Recipe, changes RecipeChanges) error
	UpdateImage(ctx context.Context, recipe *models.Recipe, image string) error
	Delete(ctx context.Context, recipe *models.Recipe) error
}

type recipeRepository struct {
	db *gorm.DB
}

func NewRecipeRepository(db *gorm.DB) RecipeRepository {
	return &recipeRepository{db: db}
}

func (r *recipeRepository) ListByOwner(ctx context.Context, ownerID uint, filter RecipeFilter) ([]models.Recipe, error) {
	db := r.db.WithContext(ctx)
	query := db.Model(&models.Recipe{}).Where("recipes.user_id = ?", ownerID)

	if len(filter.TagIDs) > 0 {
		withTags := db.Table("recipe_tags").Select("recipe_id").Where("tag_id IN ?", filter.TagIDs)
		query = query.Where("recipes.id IN (?)", withTags)
	}
	if len(filter.IngredientIDs) > 0 {
		withIngredients := db.Table("recipe_ingredients").Select("recipe_id").Where("ingredient_id IN ?", filter.IngredientIDs)
		query = query.Where("recipes.id IN (?)", withIngredients)
	}

	recipes := []models.Recipe{}
	err := query.
		Preload("Tags", orderByID).
		Preload("Ingredients", orderByID).
		Order("recipes.id DESC").
		Find(&recipes).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recipes for user %d: %w", ownerID, err)
	}
	return recipes, nil
}

func (r *recipeRepository) FindOwned(ctx context.Context, ownerID, id uint) (*models.Recipe, error) {
	var recipe models.Recipe
	err := r.db.WithContext(ctx).
		Preload("Tags", orderByID).
		Preload("Ingredients", orderByID).
		Where("user_id = ?", ownerID).
		First(&recipe, id).Error
	if err != nil {
		return nil, notFound(err, "recipe %d not found", id)
	}
	return &recipe, nil
}

func (r *recipeRepository) FindOwnedByImage(ctx context.Context, ownerID uint, image string) (*models.Recipe, error) {
	var recipe models.Recipe
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND image = ?", ownerID, image).
		First(&recipe).Error
	if err != nil {
		return nil, notFound(err, "image %s not found", image)
	}
	return &recipe, nil
}

func (r *recipeRepository) Create(ctx context.Context, recipe *models.Recipe) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(recipe).Error; err != nil {
			return err
		}
		if len(recipe.Tags) > 0 {
			if err := tx.Model(recipe).Association("Tags").Replace(recipe.Tags); err != nil {
				return err
			}
		}
		if len(recipe.Ingredients) > 0 {
			if err := tx.Model(recipe).Association("Ingredients").Replace(recipe.Ingredients); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to create recipe: %w", err)
	}
	return nil
}

func (r *recipeRepository) Update(ctx context.Context, recipe *models.Recipe, changes RecipeChanges) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(recipe).Error; err != nil {
			return err
		}
		if changes.ReplaceTags {
			if err := replaceAssociation(tx, recipe, "Tags", recipe.Tags); err != nil {
				return err
			}
		}
		if changes.ReplaceIngredients {
			if err := replaceAssociation(tx, recipe, "Ingredients", recipe.Ingredients); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update recipe id %d: %w", recipe.ID, err)
	}
	return nil
}

func (r *recipeRepository) UpdateImage(ctx context.Context, recipe *models.Recipe, image string) error {
	err := r.db.WithContext(ctx).Model(recipe).Update("image", image).Error
	if err != nil {
		return fmt.Errorf("failed to set image of recipe id %d: %w", recipe.ID, err)
	}
	return nil
}

// Delete removes the recipe together with its join rows.
func (r *recipeRepository) Delete(ctx context.Context, recipe *models.Recipe) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(recipe).Association("Tags").Clear(); err != nil {
			return err
		}
		if err := tx.Model(recipe).Association("Ingredients").Clear(); err != nil {
			return err
		}
		return tx.Delete(recipe).Error
	})
	if err != nil {
		return fmt.Errorf("failed to delete recipe id %d: %w", recipe.ID, err)
	}
	return nil
}

func replaceAssociation[T models.Label](tx *gorm.DB, recipe *models.Recipe, name string, values []T) error {
	if len(values) == 0 {
		return tx.Model(recipe).Association(name).Clear()
	}
	return tx.Model(recipe).Association(name).Replace(values)
}

func orderByID(db *gorm.DB) *gorm.DB {
	return db.Order("id")
}
