package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", Field("name", "This field is required."), http.StatusBadRequest},
		{"conflict", Conflict("email", "taken"), http.StatusBadRequest},
		{"bad credentials", ErrInvalidCredentials, http.StatusBadRequest},
		{"unauthenticated", ErrUnauthenticated, http.StatusUnauthorized},
		{"wrapped not found", fmt.Errorf("loading recipe: %w", ErrNotFound), http.StatusNotFound},
		{"plain error", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := NotFoundf(errors.New("record not found"), "recipe %d not found", 7)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrUnauthenticated))
	assert.Equal(t, codes.NotFound, GRPCCode(err))
}

func TestToBodyHidesInternalErrors(t *testing.T) {
	body := ToBody(errors.New("pq: connection refused"))
	assert.Equal(t, "An internal error occurred", body.Message)
	assert.Nil(t, body.Errors)

	body = ToBody(Field("tags", "Invalid pk \"9\" - object does not exist."))
	assert.Equal(t, []string{"Invalid pk \"9\" - object does not exist."}, body.Errors["tags"])
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Email    string  `json:"email" binding:"required,email"`
		Password string  `json:"password" binding:"required,min=5"`
		Name     *string `json:"name" binding:"omitempty,max=3"`
	}

	long := "abcdef"
	err := ValidateStruct(input{Email: "nope", Password: "abc", Name: &long})
	require.Error(t, err)

	var ae *AppError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, KindValidation, ae.Kind)
	assert.Contains(t, ae.Fields, "email")
	assert.Contains(t, ae.Fields, "password")
	assert.Contains(t, ae.Fields, "name")

	assert.NoError(t, ValidateStruct(input{Email: "a@b.com", Password: "pw1234"}))
}
