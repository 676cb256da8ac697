package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"
	"strings"
	"unicode/utf8"

	"recipe-api/apperr"
	"recipe-api/models"
	"recipe-api/repositories"
	"recipe-api/storage"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Prices are stored as decimal(5,2).
var maxPrice = decimal.RequireFromString("1000")

type RecipeService interface {
	List(ctx context.Context, owner *models.User, filter repositories.RecipeFilter) ([]models.Recipe, error)
	Get(ctx context.Context, owner *models.User, id uint) (*models.Recipe, error)
	Create(ctx context.Context, owner *models.User, input *RecipeInput) (*models.Recipe, error)
	Update(ctx context.Context, owner *models.User, id uint, input *RecipeInput, partial bool) (*models.Recipe, error)
	Delete(ctx context.Context, owner *models.User, id uint) error
	UploadImage(ctx context.Context, owner *models.User, id uint, filename string, r io.Reader) (*models.Recipe, error)
	OpenImage(ctx context.Context, owner *models.User, relPath string) (afero.File, error)
	ImageURL(relPath string) string
}

// RecipeInput is the body of recipe create and update requests. Nil fields
// were not supplied.
type RecipeInput struct {
	Title       *string          `json:"title"`
	TimeMinutes *int             `json:"time_minutes"`
	Price       *decimal.Decimal `json:"price"`
	Link        *string          `json:"link"`
	Tags        *[]uint          `json:"tags"`
	Ingredients *[]uint          `json:"ingredients"`
}

// UnmarshalJSON reports an unparsable price as a price field error instead of
// the decimal decoder's message.
func (in *RecipeInput) UnmarshalJSON(data []byte) error {
	type plain RecipeInput
	aux := struct {
		*plain
		Price json.RawMessage `json:"price"`
	}{plain: (*plain)(in)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	in.Price = nil
	if len(aux.Price) == 0 || bytes.Equal(aux.Price, []byte("null")) {
		return nil
	}
	var price decimal.Decimal
	if err := price.UnmarshalJSON(aux.Price); err != nil {
		return apperr.Field("price", "A valid number is required.")
	}
	in.Price = &price
	return nil
}

// RecipeResponse is the list representation of a recipe.
type RecipeResponse struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Tags        []uint `json:"tags"`
	Ingredients []uint `json:"ingredients"`
	TimeMinutes int    `json:"time_minutes"`
	Price       string `json:"price"`
	Link        string `json:"link"`
	Image       string `json:"image"`
}

// RecipeDetailResponse nests the attached labels.
type RecipeDetailResponse struct {
	ID          uint            `json:"id"`
	Title       string          `json:"title"`
	Tags        []LabelResponse `json:"tags"`
	Ingredients []LabelResponse `json:"ingredients"`
	TimeMinutes int             `json:"time_minutes"`
	Price       string          `json:"price"`
	Link        string          `json:"link"`
	Image       string          `json:"image"`
}

type RecipeImageResponse struct {
	ID    uint   `json:"id"`
	Image string `json:"image"`
}

func NewRecipeResponse(recipe *models.Recipe, imageURL string) RecipeResponse {
	return RecipeResponse{
		ID:          recipe.ID,
		Title:       recipe.Title,
		Tags:        recipe.TagIDs(),
		Ingredients: recipe.IngredientIDs(),
		TimeMinutes: recipe.TimeMinutes,
		Price:       recipe.Price.StringFixed(2),
		Link:        recipe.Link,
		Image:       imageURL,
	}
}

func NewRecipeDetailResponse(recipe *models.Recipe, imageURL string) RecipeDetailResponse {
	return RecipeDetailResponse{
		ID:          recipe.ID,
		Title:       recipe.Title,
		Tags:        NewLabelResponses(recipe.Tags),
		Ingredients: NewLabelResponses(recipe.Ingredients),
		TimeMinutes: recipe.TimeMinutes,
		Price:       recipe.Price.StringFixed(2),
		Link:        recipe.Link,
		Image:       imageURL,
	}
}

// ParseIDList parses a comma separated list of positive ids such as "1,2,3".
// An empty string yields no ids.
func ParseIDList(field, raw string) ([]uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || id == 0 {
			return nil, apperr.Field(field, fmt.Sprintf("Enter a comma separated list of ids, got %q.", raw))
		}
		ids = append(ids, uint(id))
	}
	return ids, nil
}

type recipeService struct {
	repo        repositories.RecipeRepository
	tags        LabelService[models.Tag]
	ingredients LabelService[models.Ingredient]
	images      storage.ImageStore
	logger      *zap.Logger
}

var _ RecipeService = (*recipeService)(nil)

func NewRecipeService(
	repo repositories.RecipeRepository,
	tags LabelService[models.Tag],
	ingredients LabelService[models.Ingredient],
	images storage.ImageStore,
	logger *zap.Logger,
) RecipeService {
	return &recipeService{repo: repo, tags: tags, ingredients: ingredients, images: images, logger: logger}
}

func (s *recipeService) List(ctx context.Context, owner *models.User, filter repositories.RecipeFilter) ([]models.Recipe, error) {
	return s.repo.ListByOwner(ctx, owner.ID, filter)
}

func (s *recipeService) Get(ctx context.Context, owner *models.User, id uint) (*models.Recipe, error) {
	return s.repo.FindOwned(ctx, owner.ID, id)
}

func (s *recipeService) Create(ctx context.Context, owner *models.User, input *RecipeInput) (*models.Recipe, error) {
	if err := validateRecipeInput(input, false); err != nil {
		return nil, err
	}

	recipe := &models.Recipe{UserID: owner.ID}
	if _, err := s.apply(ctx, owner, recipe, input); err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, recipe); err != nil {
		return nil, err
	}
	return s.repo.FindOwned(ctx, owner.ID, recipe.ID)
}

func (s *recipeService) Update(ctx context.Context, owner *models.User, id uint, input *RecipeInput, partial bool) (*models.Recipe, error) {
	recipe, err := s.repo.FindOwned(ctx, owner.ID, id)
	if err != nil {
		return nil, err
	}
	if err := validateRecipeInput(input, partial); err != nil {
		return nil, err
	}

	changes, err := s.apply(ctx, owner, recipe, input)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, recipe, changes); err != nil {
		return nil, err
	}
	return s.repo.FindOwned(ctx, owner.ID, recipe.ID)
}

// apply copies the supplied fields of input onto recipe, resolving label ids
// against the owner's labels.
func (s *recipeService) apply(ctx context.Context, owner *models.User, recipe *models.Recipe, input *RecipeInput) (repositories.RecipeChanges, error) {
	var changes repositories.RecipeChanges

	if input.Title != nil {
		recipe.Title = strings.TrimSpace(*input.Title)
	}
	if input.TimeMinutes != nil {
		recipe.TimeMinutes = *input.TimeMinutes
	}
	if input.Price != nil {
		recipe.Price = *input.Price
	}
	if input.Link != nil {
		recipe.Link = strings.TrimSpace(*input.Link)
	}

	fields := map[string][]string{}
	if input.Tags != nil {
		tags, err := s.tags.ResolveOwned(ctx, owner, "tags", *input.Tags)
		if err != nil {
			if !mergeFields(fields, err) {
				return changes, err
			}
		}
		recipe.Tags = tags
		changes.ReplaceTags = true
	}
	if input.Ingredients != nil {
		ingredients, err := s.ingredients.ResolveOwned(ctx, owner, "ingredients", *input.Ingredients)
		if err != nil {
			if !mergeFields(fields, err) {
				return changes, err
			}
		}
		recipe.Ingredients = ingredients
		changes.ReplaceIngredients = true
	}
	if len(fields) > 0 {
		return changes, apperr.Validation(fields)
	}
	return changes, nil
}

// mergeFields copies the field errors of a validation error into fields.
// It reports false for any other error.
func mergeFields(fields map[string][]string, err error) bool {
	var ae *apperr.AppError
	if !errors.As(err, &ae) || ae.Kind != apperr.KindValidation {
		return false
	}
	for k, v := range ae.Fields {
		fields[k] = append(fields[k], v...)
	}
	return true
}

func validateRecipeInput(input *RecipeInput, partial bool) error {
	fields := map[string][]string{}
	add := func(field, msg string) { fields[field] = append(fields[field], msg) }

	if !partial {
		if input.Title == nil {
			add("title", "This field is required.")
		}
		if input.TimeMinutes == nil {
			add("time_minutes", "This field is required.")
		}
		if input.Price == nil {
			add("price", "This field is required.")
		}
	}

	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		switch {
		case title == "":
			add("title", "This field may not be blank.")
		case utf8.RuneCountInString(title) > maxNameLength:
			add("title", fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength))
		}
	}
	if input.TimeMinutes != nil && *input.TimeMinutes < 0 {
		add("time_minutes", "Ensure this value is greater than or equal to 0.")
	}
	if input.Price != nil {
		price := *input.Price
		switch {
		case price.IsNegative():
			add("price", "Ensure this value is greater than or equal to 0.")
		case !price.Equal(price.Truncate(2)):
			add("price", "Ensure that there are no more than 2 decimal places.")
		case price.GreaterThanOrEqual(maxPrice):
			add("price", "Ensure that there are no more than 5 digits in total.")
		}
	}
	if input.Link != nil && utf8.RuneCountInString(*input.Link) > maxNameLength {
		add("link", fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength))
	}

	if len(fields) > 0 {
		return apperr.Validation(fields)
	}
	return nil
}

func (s *recipeService) Delete(ctx context.Context, owner *models.User, id uint) error {
	recipe, err := s.repo.FindOwned(ctx, owner.ID, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, recipe); err != nil {
		return err
	}
	s.removeImage(recipe.Image)
	return nil
}

// UploadImage stores a new image for the recipe and drops the previous one.
// The recipe is left untouched when the payload is rejected.
func (s *recipeService) UploadImage(ctx context.Context, owner *models.User, id uint, filename string, r io.Reader) (*models.Recipe, error) {
	recipe, err := s.repo.FindOwned(ctx, owner.ID, id)
	if err != nil {
		return nil, err
	}

	rel, err := s.images.SaveRecipeImage(filename, r)
	if err != nil {
		if errors.Is(err, storage.ErrNotImage) {
			return nil, apperr.Field("image", "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
		}
		return nil, err
	}

	previous := recipe.Image
	if err := s.repo.UpdateImage(ctx, recipe, rel); err != nil {
		s.removeImage(rel)
		return nil, err
	}
	recipe.Image = rel
	if previous != rel {
		s.removeImage(previous)
	}
	return recipe, nil
}

func (s *recipeService) removeImage(rel string) {
	if rel == "" {
		return
	}
	if err := s.images.Remove(rel); err != nil {
		s.logger.Warn("Failed to remove recipe image", zap.String("path", rel), zap.Error(err))
	}
}

// OpenImage opens a stored image that one of the owner's recipes references.
func (s *recipeService) OpenImage(ctx context.Context, owner *models.User, relPath string) (afero.File, error) {
	if relPath == "" || path.Clean(relPath) != relPath || strings.HasPrefix(relPath, "/") || strings.Contains(relPath, "..") {
		return nil, apperr.ErrNotFound
	}
	if _, err := s.repo.FindOwnedByImage(ctx, owner.ID, relPath); err != nil {
		return nil, err
	}
	f, err := s.images.Open(relPath)
	if err != nil {
		return nil, apperr.NotFoundf(err, "image %s not found", relPath)
	}
	return f, nil
}

func (s *recipeService) ImageURL(relPath string) string {
	return s.images.URL(relPath)
}

