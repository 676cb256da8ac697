package repositories

import (
	"context"
	"errors"
	"fmt"

	"recipe-api/apperr"
	"recipe-api/models"

	"gorm.io/gorm"
)

// EmailTakenMessage is reported on the email field when the address is already registered.
const EmailTakenMessage = "user with this email already exists."

// UserRepository interface defines User-related database operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByID(ctx context.Context, id uint) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	Update(ctx context.Context, user *models.User) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository instance
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return translateWrite(err, "failed to create user")
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, notFound(err, "user %d not found", id)
	}
	return &user, nil
}

// FindByEmail expects an already normalized email.
func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, notFound(err, "user %s not found", email)
	}
	return &user, nil
}

func (r *userRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check email %s: %w", email, err)
	}
	return count > 0, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		return translateWrite(err, "failed to update user id %d", user.ID)
	}
	return nil
}

// translateWrite reports a unique email violation as a conflict. Two registrations
// racing past ExistsByEmail end up here.
func translateWrite(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		conflict := apperr.Conflict("email", EmailTakenMessage)
		conflict.Err = err
		return conflict
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// notFound maps gorm.ErrRecordNotFound to apperr.ErrNotFound and wraps everything else.
func notFound(err error, format string, args ...any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFoundf(err, format, args...)
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}
