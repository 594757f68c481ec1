package mysql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	userDomain "deferral-backend/internal/domain/user"

	"gorm.io/gorm"
)

// UserRepository is the gorm-backed user directory.
type UserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) *UserRepository { return &UserRepository{db: db} }

func (r *UserRepository) Create(ctx context.Context, u *userDomain.User) error {
	return r.db.WithContext(ctx).Create(u).Error
}

func (r *UserRepository) FindByID(ctx context.Context, userID string) (*userDomain.User, error) {
	var out userDomain.User
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&out)
	if res.Error != nil {
		return nil, userNotFound(res.Error, userID)
	}
	return &out, nil
}

func (r *UserRepository) FindByIDs(ctx context.Context, userIDs []string) (map[string]userDomain.User, error) {
	out := make(map[string]userDomain.User, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}
	var users []userDomain.User
	if err := r.db.WithContext(ctx).Where("user_id IN ?", userIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	for _, u := range users {
		out[u.UserID] = u
	}
	return out, nil
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*userDomain.User, error) {
	var out userDomain.User
	res := r.db.WithContext(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&out)
	if res.Error != nil {
		return nil, userNotFound(res.Error, email)
	}
	return &out, nil
}

func userNotFound(err error, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", userDomain.ErrNotFound, key)
	}
	return err
}
