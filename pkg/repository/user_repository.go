package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/jgirmay/circle_realtime/pkg/models"
)

// UserRepositoryImpl implements UserRepository
type UserRepositoryImpl struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &UserRepositoryImpl{db: db}
}

// GetByID retrieves a user, returning ErrNotFound when missing
func (r *UserRepositoryImpl) GetByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate("get user", err)
	}
	return &user, nil
}

// GetByIDs retrieves users keyed by ID; missing IDs are absent from the map
func (r *UserRepositoryImpl) GetByIDs(ctx context.Context, ids []string) (map[string]*models.User, error) {
	result := make(map[string]*models.User, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []*models.User
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, translate("get users", err)
	}
	for _, u := range users {
		result[u.ID] = u
	}
	return result, nil
}
