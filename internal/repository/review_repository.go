package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/d60-Lab/critichord/internal/model"
)

type ReviewRepository interface {
	Create(ctx context.Context, rv *model.Review) error
	Get(ctx context.Context, id string) (*model.Review, error)
	Update(ctx context.Context, id string, fields map[string]any) error
	// ListByAuthorIDs 返回作者字段（任一身份）命中 ids 的书评
	ListByAuthorIDs(ctx context.Context, ids []string) ([]*model.Review, error)
	// ToggleLike 在单个事务内切换点赞并维护点赞数；新点赞且非作者本人时写入 outbox
	ToggleLike(ctx context.Context, reviewID, userID string) (liked bool, err error)
}

type reviewRepository struct{ db *gorm.DB }

func NewReviewRepository(db *gorm.DB) ReviewRepository { return &reviewRepository{db: db} }

func (r *reviewRepository) Create(ctx context.Context, rv *model.Review) error {
	return r.db.WithContext(ctx).Create(rv).Error
}

func (r *reviewRepository) Get(ctx context.Context, id string) (*model.Review, error) {
	var rv model.Review
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&rv).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rv, nil
}

func (r *reviewRepository) Update(ctx context.Context, id string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&model.Review{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *reviewRepository) ListByAuthorIDs(ctx context.Context, ids []string) ([]*model.Review, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var res []*model.Review
	err := r.db.WithContext(ctx).
		// 后端 ID 只认领没有认证 ID 的旧书评
		Where("author_uid IN ? OR (COALESCE(author_uid, '') = '' AND author_backend_id IN ?)", ids, ids).
		Order("id").
		Find(&res).Error
	return res, err
}

func (r *reviewRepository) ToggleLike(ctx context.Context, reviewID, userID string) (bool, error) {
	var liked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rv model.Review
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", reviewID).
			First(&rv).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		res := tx.Where("review_id = ? AND user_id = ?", reviewID, userID).Delete(&model.ReviewLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return tx.Model(&model.Review{}).Where("id = ?", reviewID).
				UpdateColumn("likes", counterExpr("likes", -1)).Error
		}
		like := &model.ReviewLike{ID: uuid.New().String(), ReviewID: reviewID, UserID: userID}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(like).Error; err != nil {
			return err
		}
		liked = true
		if err := tx.Model(&model.Review{}).Where("id = ?", reviewID).
			UpdateColumn("likes", counterExpr("likes", +1)).Error; err != nil {
			return err
		}
		if author, ok := rv.Author().ID(); ok && author != userID {
			return insertOutbox(tx, model.EventReviewLiked, userID, reviewID)
		}
		return nil
	})
	return liked, err
}
