package services

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"testing"

	"recipe-api/apperr"
	"recipe-api/models"
	"recipe-api/repositories"
	"recipe-api/storage"
	"recipe-api/testutil"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recipeFixture struct {
	db          *gorm.DB
	fs          afero.Fs
	svc         RecipeService
	tags        LabelService[models.Tag]
	ingredients LabelService[models.Ingredient]
	user        *models.User
	other       *models.User
}

func setupRecipeService(t *testing.T) *recipeFixture {
	t.Helper()
	db := testutil.NewDB(t)
	fs := afero.NewMemMapFs()
	tags := NewTagService(repositories.NewTagRepository(db))
	ingredients := NewIngredientService(repositories.NewIngredientRepository(db))
	images := storage.NewImageStore(fs, "/media", "/media", 1<<20)

	return &recipeFixture{
		db:          db,
		fs:          fs,
		svc:         NewRecipeService(repositories.NewRecipeRepository(db), tags, ingredients, images, zap.NewNop()),
		tags:        tags,
		ingredients: ingredients,
		user:        createUser(t, db, "user@example.com"),
		other:       createUser(t, db, "other@example.com"),
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func recipeInput(title string, minutes int, price string) *RecipeInput {
	p := decimal.RequireFromString(price)
	return &RecipeInput{Title: &title, TimeMinutes: &minutes, Price: &p}
}

func idsPtr(ids ...uint) *[]uint { return &ids }

func TestCreateRecipe(t *testing.T) {
	f := setupRecipeService(t)
	ctx := context.Background()

	vegan, err := f.tags.Create(ctx, f.user, "Vegan")
	require.NoError(t, err)
	salt, err := f.ingredients.Create(ctx, f.user, "Salt")
	require.NoError(t, err)

	input := recipeInput("Chocolate cheesecake", 5, "5.00")
	input.Link = strPtr("https://example.com/cake")
	input.Tags = idsPtr(vegan.ID)
	input.Ingredients = idsPtr(salt.ID)

	recipe, err := f.svc.Create(ctx, f.user, input)
	require.NoError(t, err)
	assert.Equal(t, "Chocolate cheesecake", recipe.Title)
	assert.Equal(t, "5.00", recipe.Price.StringFixed(2))
	assert.Equal(t, []uint{vegan.ID}, recipe.TagIDs())
	assert.Equal(t, []uint{salt.ID}, recipe.IngredientIDs())

	detail := NewRecipeDetailResponse(recipe, "")
	assert.Equal(t, []LabelResponse{{ID: vegan.ID, Name: "Vegan"}}, detail.Tags)
}

func TestCreateRecipeValidation(t *testing.T) {
	f := setupRecipeService(t)
	ctx := context.Background()

	theirs, err := f.tags.Create(ctx, f.other, "Theirs")
	require.NoError(t, err)

	tests := []struct {
		name  string
		input *RecipeInput
		field string
	}{
		{"missing fields", &RecipeInput{}, "title"},
		{"blank title", recipeInput("  ", 5, "1.00"), "title"},
		{"negative minutes", recipeInput("Soup", -1, "1.00"), "time_minutes"},
		{"negative price", recipeInput("Soup", 5, "-1"), "price"},
		{"too many decimals", recipeInput("Soup", 5, "1.234"), "price"},
		{"price too large", recipeInput("Soup", 5, "1000"), "price"},
		{"foreign tag", func() *RecipeInput {
			in := recipeInput("Soup", 5, "1.00")
			in.Tags = idsPtr(theirs.ID)
			return in
		}(), "tags"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.user, tt.input)
			var ae *apperr.AppError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, apperr.KindValidation, ae.Kind)
			assert.Contains(t, ae.Fields, tt.field)
		})
	}

	recipes, err := f.svc.List(ctx, f.user, repositories.RecipeFilter{})
	require.NoError(t, err)
	assert.Empty(t, recipes)
}

func TestListRecipesScopedAndFiltered(t *testing.T) {
	f := setupRecipeService(t)
	ctx := context.Background()

	t1, _ := f.tags.Create(ctx, f.user, "Vegan")
	t2, _ := f.tags.Create(ctx, f.user, "Vegetarian")

	in1 := recipeInput("Thai curry", 20, "7.00")
	in1.Tags = idsPtr(t1.ID, t2.ID)
	r1, err := f.svc.Create(ctx, f.user, in1)
	require.NoError(t, err)

	in2 := recipeInput("Aubergine", 25, "3.00")
	in2.Tags = idsPtr(t2.ID)
	r2, err := f.svc.Create(ctx, f.user, in2)
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.user, recipeInput("Fish and chips", 30, "9.00"))
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.other, recipeInput("Not mine", 1, "1.00"))
	require.NoError(t, err)

	all, err := f.svc.List(ctx, f.user, repositories.RecipeFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	filtered, err := f.svc.List(ctx, f.user, repositories.RecipeFilter{TagIDs: []uint{t1.ID, t2.ID}})
	require.NoError(t, err)
	require.Len(t, filtered, 2)
	assert.Equal(t, r2.ID, filtered[0].ID)
	assert.Equal(t, r1.ID, filtered[1].ID)
}

func TestGetRecipeForeignIsNotFound(t *testing.T) {
	f := setupRecipeService(t)
	ctx := context.Background()

	recipe, err := f.svc.Create(ctx, f.other, recipeInput("Theirs", 1, "1.00"))
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, f.user, recipe.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	err = f.svc.Delete(ctx, f.user, recipe.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateRecipe(t *testing.T) {
	f := setupRecipeService(t)
	ctx := context.Background()

	breakfast, _ := f.tags.Create(ctx, f.user, "Breakfast")
	lunch, _ := f.tags.Create(ctx, f.user, "Lunch")

	in := recipeInput("Porridge", 10, "2.50")
	in.Link = strPtr("https://example.com/porridge")
	in.Tags = idsPtr(breakfast.ID)
	recipe, err := f.svc.Create(ctx, f.user, in)
	require.NoError(t, err)

	t.Run("partial keeps omitted fields", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, recipe.ID, &RecipeInput{Title: strPtr("Oats")}, true)
		require.NoError(t, err)
		assert.Equal(t, "Oats", updated.Title)
		assert.Equal(t, 10, updated.TimeMinutes)
		assert.Equal(t, "https://example.com/porridge", updated.Link)
		assert.Equal(t, []uint{breakfast.ID}, updated.TagIDs())
	})

	t.Run("tags replace wholesale", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, recipe.ID, &RecipeInput{Tags: idsPtr(lunch.ID)}, true)
		require.NoError(t, err)
		assert.Equal(t, []uint{lunch.ID}, updated.TagIDs())
	})

	t.Run("empty list clears", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, recipe.ID, &RecipeInput{Tags: idsPtr()}, true)
		require.NoError(t, err)
		assert.Empty(t, updated.Tags)
	})

	t.Run("full update requires core fields", func(t *testing.T) {
		_, err := f.svc.Update(ctx, f.user, recipe.ID, &RecipeInput{Title: strPtr("x")}, false)
		var ae *apperr.AppError
		require.ErrorAs(t, err, &ae)
		assert.Contains(t, ae.Fields, "time_minutes")
		assert.Contains(t, ae.Fields, "price")
	})

	t.Run("full update keeps omitted optional fields", func(t *testing.T) {
		updated, err := f.svc.Update(ctx, f.user, recipe.ID, recipeInput("Granola", 5, "4.00"), false)
		require.NoError(t, err)
		assert.Equal(t, "Granola", updated.Title)
		assert.Equal(t, "4.00", updated.Price.StringFixed(2))
		assert.Equal(t, "https://example.com/porridge", updated.Link)
	})
}

func TestUploadImage(t *testing.T) {
	f := setupRecipeService(t)
	ctx := context.Background()

	recipe, err := f.svc.Create(ctx, f.user, recipeInput("Pie", 5, "1.00"))
	require.NoError(t, err)

	first, err := f.svc.UploadImage(ctx, f.user, recipe.ID, "pie.png", bytes.NewReader(pngBytes(t)))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Image, "uploads/recipe/"))
	assert.True(t, strings.HasSuffix(first.Image, ".png"))
	assert.Equal(t, "/media/"+first.Image, f.svc.ImageURL(first.Image))

	t.Run("non-image keeps the current image", func(t *testing.T) {
		_, err := f.svc.UploadImage(ctx, f.user, recipe.ID, "notes.txt", strings.NewReader("not an image"))
		var ae *apperr.AppError
		require.ErrorAs(t, err, &ae)
		assert.Contains(t, ae.Fields, "image")
		assert.Equal(t, 400, apperr.HTTPStatus(err))

		current, err := f.svc.Get(ctx, f.user, recipe.ID)
		require.NoError(t, err)
		assert.Equal(t, first.Image, current.Image)
	})

	t.Run("replacing removes the previous file", func(t *testing.T) {
		second, err := f.svc.UploadImage(ctx, f.user, recipe.ID, "pie2.png", bytes.NewReader(pngBytes(t)))
		require.NoError(t, err)
		assert.NotEqual(t, first.Image, second.Image)

		exists, err := afero.Exists(f.fs, "/media/"+first.Image)
		require.NoError(t, err)
		assert.False(t, exists)

		file, err := f.svc.OpenImage(ctx, f.user, second.Image)
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, pngBytes(t), data)

		_, err = f.svc.OpenImage(ctx, f.other, second.Image)
		assert.ErrorIs(t, err, apperr.ErrNotFound)

		require.NoError(t, f.svc.Delete(ctx, f.user, recipe.ID))
		exists, err = afero.Exists(f.fs, "/media/"+second.Image)
		require.NoError(t, err)
		assert.False(t, exists)
	})
}

func TestOpenImageRejectsTraversal(t *testing.T) {
	f := setupRecipeService(t)
	_, err := f.svc.OpenImage(context.Background(), f.user, "uploads/recipe/../../secret")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestParseIDList(t *testing.T) {
	ids, err := ParseIDList("tags", "1, 2,3")
	require.NoError(t, err)
	assert.Equal(t, []uint{1, 2, 3}, ids)

	ids, err = ParseIDList("tags", "")
	require.NoError(t, err)
	assert.Nil(t, ids)

	for _, raw := range []string{"a", "1,,2", "0", "-1"} {
		_, err := ParseIDList("tags", raw)
		assert.Equal(t, apperr.KindValidation, apperr.KindOf(err), raw)
	}
}
