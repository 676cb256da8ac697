package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"recipe-api/apperr"
	"recipe-api/models"
	"recipe-api/repositories"
)

const maxNameLength = 255

// LabelService manages one kind of user-owned label.
type LabelService[T models.Label] interface {
	List(ctx context.Context, owner *models.User, assignedOnly bool) ([]T, error)
	Create(ctx context.Context, owner *models.User, name string) (*T, error)
	// ResolveOwned loads the labels for ids. Every id must exist and belong to owner.
	ResolveOwned(ctx context.Context, owner *models.User, field string, ids []uint) ([]T, error)
}

type LabelInput struct {
	Name string `json:"name"`
}

type LabelResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

func NewLabelResponse[T models.Label](label T) LabelResponse {
	return LabelResponse{ID: label.LabelID(), Name: label.String()}
}

func NewLabelResponses[T models.Label](labels []T) []LabelResponse {
	out := make([]LabelResponse, 0, len(labels))
	for _, l := range labels {
		out = append(out, NewLabelResponse(l))
	}
	return out
}

type labelService[T models.Label] struct {
	repo     repositories.LabelRepository[T]
	newLabel func(ownerID uint, name string) T
}

func NewTagService(repo repositories.LabelRepository[models.Tag]) LabelService[models.Tag] {
	return &labelService[models.Tag]{repo: repo, newLabel: models.NewTag}
}

func NewIngredientService(repo repositories.LabelRepository[models.Ingredient]) LabelService[models.Ingredient] {
	return &labelService[models.Ingredient]{repo: repo, newLabel: models.NewIngredient}
}

func (s *labelService[T]) List(ctx context.Context, owner *models.User, assignedOnly bool) ([]T, error) {
	return s.repo.ListByOwner(ctx, owner.ID, assignedOnly)
}

func (s *labelService[T]) Create(ctx context.Context, owner *models.User, name string) (*T, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Field("name", "This field may not be blank.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return nil, apperr.Field("name", fmt.Sprintf("Ensure this field has no more than %d characters.", maxNameLength))
	}

	label := s.newLabel(owner.ID, name)
	if err := s.repo.Create(ctx, &label); err != nil {
		return nil, err
	}
	return &label, nil
}

func (s *labelService[T]) ResolveOwned(ctx context.Context, owner *models.User, field string, ids []uint) ([]T, error) {
	ids = uniqueIDs(ids)
	labels, err := s.repo.FindOwnedByIDs(ctx, owner.ID, ids)
	if err != nil {
		return nil, err
	}
	if len(labels) == len(ids) {
		return labels, nil
	}

	found := make(map[uint]struct{}, len(labels))
	for _, l := range labels {
		found[l.LabelID()] = struct{}{}
	}
	var msgs []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			msgs = append(msgs, fmt.Sprintf("Invalid pk %q - object does not exist.", fmt.Sprint(id)))
		}
	}
	return nil, apperr.Validation(map[string][]string{field: msgs})
}

func uniqueIDs(ids []uint) []uint {
	seen := make(map[uint]struct{}, len(ids))
	out := make([]uint, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
