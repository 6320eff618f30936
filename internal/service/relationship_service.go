package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/d60-Lab/critichord/internal/cache"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/monitoring"
	"github.com/d60-Lab/critichord/internal/notify"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/pkg/logger"
)

// FollowSnapshot 关注/粉丝列表的完整快照；Err 非空表示本次加载失败
type FollowSnapshot struct {
	Users []*model.User
	Err   error
}

// RelationshipService 关系链服务
type RelationshipService interface {
	Follow(ctx context.Context, fromUserID, toUserID string) error
	Unfollow(ctx context.Context, fromUserID, toUserID string) error
	IsFollowing(ctx context.Context, fromUserID, toUserID string) (bool, error)
	ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error)
	ListFans(ctx context.Context, userID string, page, pageSize int) ([]string, error)
	// ListenFollowing 持续推送 userID 关注的用户快照，ctx 取消后释放订阅并关闭通道
	ListenFollowing(ctx context.Context, userID string) (<-chan FollowSnapshot, error)
	ListenFollowers(ctx context.Context, userID string) (<-chan FollowSnapshot, error)
}

type relationshipService struct {
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	notifier   notify.Notifier
	users      cache.UserLookup
}

// NewRelationshipService users 可为 nil（不做缓存失效）
func NewRelationshipService(followRepo repository.FollowRepository, fanRepo repository.FanRepository, notifier notify.Notifier, users cache.UserLookup) RelationshipService {
	return &relationshipService{followRepo: followRepo, fanRepo: fanRepo, notifier: notifier, users: users}
}

func (s *relationshipService) Follow(ctx context.Context, fromUserID, toUserID string) error {
	return s.mutate(ctx, "follow", fromUserID, toUserID, s.followRepo.Follow)
}

func (s *relationshipService) Unfollow(ctx context.Context, fromUserID, toUserID string) error {
	return s.mutate(ctx, "unfollow", fromUserID, toUserID, s.followRepo.Unfollow)
}

func (s *relationshipService) mutate(ctx context.Context, op, from, to string, apply func(context.Context, string, string) (bool, error)) error {
	from, to, err := validatePair(from, to)
	if err != nil {
		monitoring.RelationOps.WithLabelValues(op, "invalid").Inc()
		return err
	}
	changed, err := apply(ctx, from, to)
	if err != nil {
		err = storeErr(op, err)
		if errors.Is(err, ErrNotFound) {
			monitoring.RelationOps.WithLabelValues(op, "not_found").Inc()
		} else {
			monitoring.RelationOps.WithLabelValues(op, "error").Inc()
			logger.Error("relation update failed", zap.String("op", op), zap.String("from", from), zap.String("to", to), zap.Error(err))
		}
		return err
	}
	if !changed {
		monitoring.RelationOps.WithLabelValues(op, "noop").Inc()
		return nil
	}
	monitoring.RelationOps.WithLabelValues(op, "changed").Inc()
	s.afterCommit(ctx, from, to)
	return nil
}

// afterCommit 失效双方用户缓存并通知两侧列表的订阅者；失败只记录日志
func (s *relationshipService) afterCommit(ctx context.Context, from, to string) {
	if s.users != nil {
		s.users.Invalidate(ctx, from, to)
	}
	for _, topic := range []string{notify.FollowingTopic(from), notify.FollowersTopic(to)} {
		if err := s.notifier.Publish(ctx, topic); err != nil {
			logger.Warn("publish relation change failed", zap.String("topic", topic), zap.Error(err))
		}
	}
}

func (s *relationshipService) IsFollowing(ctx context.Context, fromUserID, toUserID string) (bool, error) {
	from, to := strings.TrimSpace(fromUserID), strings.TrimSpace(toUserID)
	if from == "" || to == "" {
		return false, ErrInvalidUserID
	}
	ok, err := s.followRepo.Exists(ctx, from, to)
	if err != nil {
		return false, storeErr("is following", err)
	}
	return ok, nil
}

func (s *relationshipService) ListFollowing(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	offset, limit := pageBounds(page, pageSize)
	items, err := s.followRepo.ListFollowings(ctx, userID, offset, limit)
	if err != nil {
		return nil, storeErr("list following", err)
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FolloweeID
	}
	return res, nil
}

func (s *relationshipService) ListFans(ctx context.Context, userID string, page, pageSize int) ([]string, error) {
	offset, limit := pageBounds(page, pageSize)
	items, err := s.fanRepo.ListFans(ctx, userID, offset, limit)
	if err != nil {
		return nil, storeErr("list fans", err)
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.FanID
	}
	return res, nil
}

func (s *relationshipService) ListenFollowing(ctx context.Context, userID string) (<-chan FollowSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return s.listen(ctx, "following", notify.FollowingTopic(userID), func(ctx context.Context) ([]*model.User, error) {
		return s.followRepo.FollowingUsers(ctx, userID)
	})
}

func (s *relationshipService) ListenFollowers(ctx context.Context, userID string) (<-chan FollowSnapshot, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	return s.listen(ctx, "followers", notify.FollowersTopic(userID), func(ctx context.Context) ([]*model.User, error) {
		return s.fanRepo.FanUsers(ctx, userID)
	})
}

// listen 先订阅再加载首个快照，之后每收到一次变更信号重新加载完整列表。
// 订阅在 goroutine 退出时关闭，通道随后关闭。
func (s *relationshipService) listen(ctx context.Context, kind, topic string, load func(context.Context) ([]*model.User, error)) (<-chan FollowSnapshot, error) {
	sub, err := s.notifier.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w: %w", kind, ErrStoreUnavailable, err)
	}
	gauge := monitoring.ActiveListeners.WithLabelValues(kind)
	gauge.Inc()

	out := make(chan FollowSnapshot, 1)
	go func() {
		defer close(out)
		defer gauge.Dec()
		defer sub.Close()

		emit := func() bool {
			users, err := load(ctx)
			snap := FollowSnapshot{Users: users}
			if err != nil {
				if ctx.Err() != nil {
					return false
				}
				snap = FollowSnapshot{Err: storeErr("load "+kind, err)}
			}
			select {
			case out <- snap:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C():
				if !ok || !emit() {
					return
				}
			}
		}
	}()
	return out, nil
}

func validatePair(from, to string) (string, string, error) {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" || to == "" {
		return from, to, ErrInvalidUserID
	}
	if from == to {
		return from, to, ErrFollowSelf
	}
	return from, to, nil
}

func pageBounds(page, pageSize int) (offset, limit int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 10
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return (page - 1) * pageSize, pageSize
}
