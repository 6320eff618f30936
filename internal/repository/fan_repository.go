package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/d60-Lab/critichord/internal/model"
)

// FanRepository 粉丝表只读访问；写入随 FollowRepository 的事务完成
type FanRepository interface {
	ListFans(ctx context.Context, userID string, offset, limit int) ([]*model.Fan, error)
	FanUsers(ctx context.Context, userID string) ([]*model.User, error)
}

type fanRepository struct{ db *gorm.DB }

func NewFanRepository(db *gorm.DB) FanRepository { return &fanRepository{db: db} }

func (r *fanRepository) ListFans(ctx context.Context, userID string, offset, limit int) ([]*model.Fan, error) {
	var res []*model.Fan
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *fanRepository) FanUsers(ctx context.Context, userID string) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Joins("JOIN fans ON fans.fan_id = users.id").
		Where("fans.user_id = ?", userID).
		Order("fans.created_at DESC, users.id").
		Find(&users).Error
	return users, err
}
