package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/critichord/internal/model"
)

type UserRepository interface {
	Get(ctx context.Context, id string) (*model.User, error)
	// GetByAnyID 按认证 ID 或后端 ID 查找用户
	GetByAnyID(ctx context.Context, id string) (*model.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]*model.User, error)
	// UpsertProfile 只写资料字段，不触碰计数；后端 ID 已被他人占用时返回 ErrConflict
	UpsertProfile(ctx context.Context, u *model.User) error
}

type userRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository { return &userRepository{db: db} }

func (r *userRepository) Get(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByAnyID(ctx context.Context, id string) (*model.User, error) {
	var u model.User
	err := r.db.WithContext(ctx).
		Where("id = ? OR backend_id = ?", id, id).
		// 认证 ID 精确命中优先
		Order(clause.OrderBy{Expression: clause.Expr{SQL: "CASE WHEN id = ? THEN 0 ELSE 1 END, id", Vars: []interface{}{id}}}).
		First(&u).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

func (r *userRepository) GetByIDs(ctx context.Context, ids []string) ([]*model.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var users []*model.User
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error
	return users, err
}

func (r *userRepository) UpsertProfile(ctx context.Context, u *model.User) error {
	now := time.Now()
	row := &model.User{
		ID:        u.ID,
		BackendID: u.BackendID,
		Username:  u.Username,
		AvatarURL: u.AvatarURL,
		PushToken: u.PushToken,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if row.BackendID != "" {
			// 后端 ID 不能与他人的后端 ID 或认证 ID 重合
			var taken int64
			if err := tx.Model(&model.User{}).
				Where("id <> ? AND (backend_id = ? OR id = ?)", row.ID, row.BackendID, row.BackendID).
				Count(&taken).Error; err != nil {
				return err
			}
			if taken > 0 {
				return ErrConflict
			}
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"backend_id", "username", "avatar_url", "push_token", "updated_at"}),
		}).Create(row).Error
	})
}
