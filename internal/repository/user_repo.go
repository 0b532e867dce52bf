package repository

import (
	"context"

	"gorm.io/gorm"

	"fanhub/internal/model"
	"fanhub/pkg/utils"
)

// UserRepository user repository interface
type UserRepository interface {
	// Get user by ID
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// userRepository user repository implementation
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

// GetByID gets a user by ID. Balances are only changed through the ledger.
func (r *userRepository) GetByID(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error
	if err != nil {
		if isNotFound(err) {
			return nil, utils.Errorf(utils.CodeNotFound, "user %d not found", id)
		}
		return nil, err
	}
	return &user, nil
}
