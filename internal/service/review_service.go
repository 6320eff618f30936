package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
)

const (
	minScore = 0
	maxScore = 10
)

type ReviewService interface {
	Create(ctx context.Context, authorID, albumID, content string, score int) (*model.Review, error)
	// Update 只有作者本人可以修改内容和评分
	Update(ctx context.Context, authorID, reviewID, content string, score int) (*model.Review, error)
	SetFavorite(ctx context.Context, authorID, reviewID string, favorite bool) error
	ToggleLike(ctx context.Context, userID, reviewID string) (liked bool, err error)
	ListByAuthor(ctx context.Context, userID string) ([]*model.Review, error)
}

type reviewService struct {
	reviews repository.ReviewRepository
	users   repository.UserRepository
	now     func() time.Time
}

func NewReviewService(reviews repository.ReviewRepository, users repository.UserRepository) ReviewService {
	return &reviewService{reviews: reviews, users: users, now: time.Now}
}

func (s *reviewService) stamp() string {
	return strconv.FormatInt(s.now().UnixMilli(), 10)
}

func (s *reviewService) Create(ctx context.Context, authorID, albumID, content string, score int) (*model.Review, error) {
	authorID, albumID = strings.TrimSpace(authorID), strings.TrimSpace(albumID)
	if authorID == "" || albumID == "" {
		return nil, fmt.Errorf("%w: author and album are required", ErrInvalidOperation)
	}
	if err := validateScore(score); err != nil {
		return nil, err
	}
	author, err := s.users.Get(ctx, authorID)
	if err != nil {
		return nil, storeErr("create review", err)
	}
	ts := s.stamp()
	rv := &model.Review{
		ID:              uuid.New().String(),
		AlbumID:         albumID,
		AuthorUID:       author.ID,
		AuthorBackendID: author.BackendID,
		Content:         content,
		Score:           score,
		CreatedAt:       ts,
		UpdatedAt:       ts,
	}
	if err := s.reviews.Create(ctx, rv); err != nil {
		return nil, storeErr("create review", err)
	}
	return rv, nil
}

func (s *reviewService) Update(ctx context.Context, authorID, reviewID, content string, score int) (*model.Review, error) {
	if err := validateScore(score); err != nil {
		return nil, err
	}
	rv, err := s.authored(ctx, authorID, reviewID)
	if err != nil {
		return nil, err
	}
	ts := s.stamp()
	if err := s.reviews.Update(ctx, rv.ID, map[string]any{"content": content, "score": score, "updated_at": ts}); err != nil {
		return nil, storeErr("update review", err)
	}
	rv.Content, rv.Score, rv.UpdatedAt = content, score, ts
	return rv, nil
}

func (s *reviewService) SetFavorite(ctx context.Context, authorID, reviewID string, favorite bool) error {
	rv, err := s.authored(ctx, authorID, reviewID)
	if err != nil {
		return err
	}
	if err := s.reviews.Update(ctx, rv.ID, map[string]any{"favorite": favorite}); err != nil {
		return storeErr("set favorite", err)
	}
	return nil
}

func (s *reviewService) ToggleLike(ctx context.Context, userID, reviewID string) (bool, error) {
	userID, reviewID = strings.TrimSpace(userID), strings.TrimSpace(reviewID)
	if userID == "" || reviewID == "" {
		return false, ErrInvalidUserID
	}
	liked, err := s.reviews.ToggleLike(ctx, reviewID, userID)
	if err != nil {
		return false, storeErr("toggle like", err)
	}
	return liked, nil
}

func (s *reviewService) ListByAuthor(ctx context.Context, userID string) ([]*model.Review, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	ids := []string{userID}
	if u, err := s.users.Get(ctx, userID); err == nil {
		ids = u.IDs()
	}
	revs, err := s.reviews.ListByAuthorIDs(ctx, ids)
	if err != nil {
		return nil, storeErr("list reviews", err)
	}
	sortByCreatedDesc(revs)
	return revs, nil
}

// authored 读取书评并校验调用方是作者
// 书评带认证 ID 时只认认证 ID；仅旧书评按后端 ID 匹配
func (s *reviewService) authored(ctx context.Context, authorID, reviewID string) (*model.Review, error) {
	authorID = strings.TrimSpace(authorID)
	if authorID == "" || strings.TrimSpace(reviewID) == "" {
		return nil, ErrInvalidUserID
	}
	rv, err := s.reviews.Get(ctx, reviewID)
	if err != nil {
		return nil, storeErr("load review", err)
	}
	if uid := strings.TrimSpace(rv.AuthorUID); uid != "" {
		if uid == authorID {
			return rv, nil
		}
		return nil, ErrForbidden
	}
	legacy := strings.TrimSpace(rv.AuthorBackendID)
	if legacy == "" {
		return nil, ErrForbidden
	}
	if legacy == authorID {
		return rv, nil
	}
	if u, err := s.users.Get(ctx, authorID); err == nil && u.BackendID == legacy {
		return rv, nil
	}
	return nil, ErrForbidden
}

func validateScore(score int) error {
	if score < minScore || score > maxScore {
		return fmt.Errorf("%w: score must be between %d and %d", ErrInvalidOperation, minScore, maxScore)
	}
	return nil
}
