package repository

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/critichord/internal/model"
)

type FollowRepository interface {
	// Follow 在单个事务内建立关注边并维护双方计数；边已存在时 changed=false 且计数不变
	Follow(ctx context.Context, followerID, followeeID string) (changed bool, err error)
	// Unfollow 删除关注边并扣减计数（不低于 0）；边不存在时 changed=false
	Unfollow(ctx context.Context, followerID, followeeID string) (changed bool, err error)
	Exists(ctx context.Context, followerID, followeeID string) (bool, error)
	ListFollowings(ctx context.Context, followerID string, offset, limit int) ([]*model.Follow, error)
	FollowingIDs(ctx context.Context, followerID string) ([]string, error)
	FollowingUsers(ctx context.Context, followerID string) ([]*model.User, error)
}

type followRepository struct {
	db *gorm.DB
}

func NewFollowRepository(db *gorm.DB) FollowRepository { return &followRepository{db: db} }

func (r *followRepository) Follow(ctx context.Context, followerID, followeeID string) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUsers(tx, followerID, followeeID); err != nil {
			return err
		}
		now := time.Now()
		f := &model.Follow{ID: uuid.New().String(), FollowerID: followerID, FolloweeID: followeeID, CreatedAt: now}
		// 边是否存在以事务内的插入结果为准，重复关注不会重复计数
		res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(f)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		fan := &model.Fan{ID: uuid.New().String(), UserID: followeeID, FanID: followerID, CreatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(fan).Error; err != nil {
			return err
		}
		if err := adjustCounts(tx, followerID, followeeID, +1); err != nil {
			return err
		}
		return insertOutbox(tx, model.EventFollow, followerID, followeeID)
	})
	return changed, err
}

func (r *followRepository) Unfollow(ctx context.Context, followerID, followeeID string) (bool, error) {
	var changed bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockUsers(tx, followerID, followeeID); err != nil {
			return err
		}
		res := tx.Where("follower_id = ? AND followee_id = ?", followerID, followeeID).Delete(&model.Follow{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		if err := tx.Where("user_id = ? AND fan_id = ?", followeeID, followerID).Delete(&model.Fan{}).Error; err != nil {
			return err
		}
		if err := adjustCounts(tx, followerID, followeeID, -1); err != nil {
			return err
		}
		return insertOutbox(tx, model.EventUnfollow, followerID, followeeID)
	})
	return changed, err
}

func (r *followRepository) Exists(ctx context.Context, followerID, followeeID string) (bool, error) {
	var cnt int64
	if err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ? AND followee_id = ?", followerID, followeeID).
		Count(&cnt).Error; err != nil {
		return false, err
	}
	return cnt > 0, nil
}

func (r *followRepository) ListFollowings(ctx context.Context, followerID string, offset, limit int) ([]*model.Follow, error) {
	var res []*model.Follow
	err := r.db.WithContext(ctx).
		Where("follower_id = ?", followerID).
		Order("created_at DESC, id").
		Offset(offset).Limit(limit).
		Find(&res).Error
	return res, err
}

func (r *followRepository) FollowingIDs(ctx context.Context, followerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Follow{}).
		Where("follower_id = ?", followerID).
		Order("created_at DESC, id").
		Pluck("followee_id", &ids).Error
	return ids, err
}

func (r *followRepository) FollowingUsers(ctx context.Context, followerID string) ([]*model.User, error) {
	var users []*model.User
	err := r.db.WithContext(ctx).
		Model(&model.User{}).
		Joins("JOIN follows ON follows.followee_id = users.id").
		Where("follows.follower_id = ?", followerID).
		Order("follows.created_at DESC, users.id").
		Find(&users).Error
	return users, err
}

// lockUsers 按 ID 顺序锁定双方用户行，避免并发事务死锁；任一方不存在返回 ErrNotFound
func lockUsers(tx *gorm.DB, a, b string) error {
	ids := []string{a, b}
	sort.Strings(ids)
	var users []model.User
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("id IN ?", ids).
		Order("id").
		Find(&users).Error; err != nil {
		return err
	}
	if len(users) != 2 {
		return ErrNotFound
	}
	return nil
}

// adjustCounts 调整关注数 / 粉丝数，扣减时不低于 0
func adjustCounts(tx *gorm.DB, followerID, followeeID string, delta int) error {
	if err := tx.Model(&model.User{}).
		Where("id = ?", followerID).
		UpdateColumn("following_count", counterExpr("following_count", delta)).Error; err != nil {
		return err
	}
	return tx.Model(&model.User{}).
		Where("id = ?", followeeID).
		UpdateColumn("follower_count", counterExpr("follower_count", delta)).Error
}

func counterExpr(column string, delta int) clause.Expr {
	if delta >= 0 {
		return gorm.Expr(column+" + ?", delta)
	}
	return gorm.Expr("CASE WHEN "+column+" > ? THEN "+column+" - ? ELSE 0 END", -delta-1, -delta)
}
