package services

import (
	"context"
	"errors"

	"recipe-api/apperr"
	"recipe-api/auth"
	"recipe-api/models"
	"recipe-api/repositories"
)

// The UserService interface defines the methods that user services need to implement
type UserService interface {
	CreateUser(ctx context.Context, input *CreateUserInput) (*models.User, error)
	CreateSuperuser(ctx context.Context, email, password string) (*models.User, error)
	EnsureSuperuser(ctx context.Context, email, password string) (*models.User, bool, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
	UpdateProfile(ctx context.Context, user *models.User, input *UpdateProfileInput, partial bool) (*models.User, error)
}

const minPasswordLength = 5

// --- Structs for Input/Output ---
type CreateUserInput struct {
	Email    string `json:"email" binding:"required,email,max=255"`
	Password string `json:"password" binding:"required,min=5"`
	Name     string `json:"name" binding:"max=255"`
}

// UpdateProfileInput uses pointers to tell omitted fields from empty ones.
type UpdateProfileInput struct {
	Email    *string `json:"email" binding:"omitempty,email,max=255"`
	Password *string `json:"password" binding:"omitempty,min=5"`
	Name     *string `json:"name" binding:"omitempty,max=255"`
}

type UserResponse struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

func NewUserResponse(user *models.User) UserResponse {
	return UserResponse{ID: user.ID, Email: user.Email, Name: user.Name}
}

type userService struct {
	repo repositories.UserRepository
}

var (
	_ UserService    = (*userService)(nil)
	_ auth.UserStore = (UserService)(nil)
)

// NewUserService creates a new UserService instance
func NewUserService(repo repositories.UserRepository) UserService {
	return &userService{repo: repo}
}

// CreateUser registers a regular account. The whole email is lower-cased.
func (s *userService) CreateUser(ctx context.Context, input *CreateUserInput) (*models.User, error) {
	return s.create(ctx, input, false)
}

func (s *userService) CreateSuperuser(ctx context.Context, email, password string) (*models.User, error) {
	return s.create(ctx, &CreateUserInput{Email: email, Password: password}, true)
}

// EnsureSuperuser creates the superuser unless the email is already registered.
// The boolean reports whether an account was created.
func (s *userService) EnsureSuperuser(ctx context.Context, email, password string) (*models.User, bool, error) {
	existing, err := s.repo.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, apperr.ErrNotFound) {
		return nil, false, err
	}
	user, err := s.CreateSuperuser(ctx, email, password)
	if err != nil {
		return nil, false, err
	}
	return user, true, nil
}

func (s *userService) create(ctx context.Context, input *CreateUserInput, superuser bool) (*models.User, error) {
	normalized := *input
	normalized.Email = auth.NormalizeEmail(input.Email)
	if err := apperr.ValidateStruct(&normalized); err != nil {
		return nil, err
	}

	taken, err := s.repo.ExistsByEmail(ctx, normalized.Email)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Conflict("email", repositories.EmailTakenMessage)
	}

	hashed, err := auth.HashPassword(normalized.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		Email:       normalized.Email,
		Password:    hashed,
		Name:        normalized.Name,
		IsActive:    true,
		IsStaff:     superuser,
		IsSuperuser: superuser,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *userService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := s.repo.FindByEmail(ctx, auth.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return nil, apperr.ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.IsActive || !auth.CheckPassword(user.Password, password) {
		return nil, apperr.ErrInvalidCredentials
	}
	return user, nil
}

func (s *userService) GetByID(ctx context.Context, id uint) (*models.User, error) {
	return s.repo.FindByID(ctx, id)
}

// UpdateProfile applies the supplied fields. A full update (partial=false)
// requires email and password.
func (s *userService) UpdateProfile(ctx context.Context, user *models.User, input *UpdateProfileInput, partial bool) (*models.User, error) {
	if input.Email != nil {
		normalized := auth.NormalizeEmail(*input.Email)
		input.Email = &normalized
	}
	if err := apperr.ValidateStruct(input); err != nil {
		return nil, err
	}
	if !partial {
		missing := map[string][]string{}
		if input.Email == nil {
			missing["email"] = []string{"This field is required."}
		}
		if input.Password == nil {
			missing["password"] = []string{"This field is required."}
		}
		if len(missing) > 0 {
			return nil, apperr.Validation(missing)
		}
	}

	updated := *user

	if input.Email != nil && *input.Email != user.Email {
		if *input.Email == "" {
			return nil, apperr.Field("email", "This field may not be blank.")
		}
		taken, err := s.repo.ExistsByEmail(ctx, *input.Email)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperr.Conflict("email", repositories.EmailTakenMessage)
		}
		updated.Email = *input.Email
	}

	if input.Name != nil {
		updated.Name = *input.Name
	}

	if input.Password != nil {
		if len(*input.Password) < minPasswordLength {
			return nil, apperr.Field("password", "Ensure this field has at least 5 characters.")
		}
		hashed, err := auth.HashPassword(*input.Password)
		if err != nil {
			return nil, err
		}
		updated.Password = hashed
	}

	if err := s.repo.Update(ctx, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}
