package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/monitoring"
	"github.com/d60-Lab/critichord/internal/push"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/pkg/logger"
)

type RelayOptions struct {
	Workers      int
	ClaimLimit   int
	PollInterval time.Duration
	MaxRetry     int
}

// OutboxRelay 从 outbox 领取事件并转换为推送消息
type OutboxRelay struct {
	outbox     repository.OutboxRepository
	users      repository.UserRepository
	reviews    repository.ReviewRepository
	dispatcher push.Dispatcher
	opts       RelayOptions
}

func NewOutboxRelay(outbox repository.OutboxRepository, users repository.UserRepository, reviews repository.ReviewRepository, dispatcher push.Dispatcher, opts RelayOptions) *OutboxRelay {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.ClaimLimit <= 0 {
		opts.ClaimLimit = 64
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.MaxRetry <= 0 {
		opts.MaxRetry = 5
	}
	return &OutboxRelay{outbox: outbox, users: users, reviews: reviews, dispatcher: dispatcher, opts: opts}
}

// Start 启动若干 worker 轮询处理 outbox；返回停止函数，等待 worker 退出或 ctx 超时。
func (r *OutboxRelay) Start() func(context.Context) error {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < r.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(stop)
		}()
	}
	return func(ctx context.Context) error {
		close(stop)
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (r *OutboxRelay) loop(stop <-chan struct{}) {
	ticker := time.NewTicker(r.opts.PollInterval)
	defer ticker.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := r.processOnce(ctx); err != nil && ctx.Err() == nil {
				logger.Warn("outbox claim failed", zap.Error(err))
			}
		}
	}
}

// processOnce 领取一批事件并逐条投递，返回处理条数
func (r *OutboxRelay) processOnce(ctx context.Context) (int, error) {
	batch, err := r.outbox.Claim(ctx, r.opts.ClaimLimit)
	if err != nil {
		return 0, err
	}
	for _, ev := range batch {
		if err := r.handle(ctx, ev); err != nil {
			monitoring.OutboxDispatched.WithLabelValues(ev.EventType, "failed").Inc()
			logger.Warn("outbox dispatch failed", zap.String("id", ev.ID), zap.String("event", ev.EventType), zap.Error(err))
			if mErr := r.outbox.MarkFailed(ctx, ev.ID, r.opts.MaxRetry); mErr != nil {
				logger.Error("outbox mark failed", zap.String("id", ev.ID), zap.Error(mErr))
			}
			continue
		}
		monitoring.OutboxDispatched.WithLabelValues(ev.EventType, "done").Inc()
		if mErr := r.outbox.MarkDone(ctx, ev.ID); mErr != nil {
			logger.Error("outbox mark done", zap.String("id", ev.ID), zap.Error(mErr))
		}
	}
	return len(batch), nil
}

func (r *OutboxRelay) handle(ctx context.Context, ev *model.Outbox) error {
	msg, ok, err := r.message(ctx, ev)
	if err != nil || !ok {
		return err
	}
	return r.dispatcher.Dispatch(ctx, msg)
}

// message 构造推送；ok=false 表示无需推送（接收方无 token、记录已删除等）
func (r *OutboxRelay) message(ctx context.Context, ev *model.Outbox) (push.Message, bool, error) {
	switch ev.EventType {
	case model.EventFollow:
		recipient, err := r.recipient(ctx, ev.SubjectID)
		if recipient == nil || err != nil {
			return push.Message{}, false, err
		}
		return push.Message{
			Token: recipient.PushToken,
			Title: "New follower",
			Body:  r.actorName(ctx, ev.ActorID) + " started following you",
			Data:  map[string]string{"type": ev.EventType, "user_id": ev.ActorID},
		}, true, nil
	case model.EventReviewLiked:
		rv, err := r.reviews.Get(ctx, ev.SubjectID)
		if errors.Is(err, repository.ErrNotFound) {
			return push.Message{}, false, nil
		}
		if err != nil {
			return push.Message{}, false, err
		}
		authorID, ok := rv.Author().ID()
		if !ok {
			return push.Message{}, false, nil
		}
		recipient, err := r.recipient(ctx, authorID)
		if recipient == nil || err != nil {
			return push.Message{}, false, err
		}
		return push.Message{
			Token: recipient.PushToken,
			Title: "New like",
			Body:  r.actorName(ctx, ev.ActorID) + " liked your review",
			Data:  map[string]string{"type": ev.EventType, "review_id": rv.ID, "user_id": ev.ActorID},
		}, true, nil
	default:
		return push.Message{}, false, nil
	}
}

// recipient 返回有推送 token 的接收方；不存在或无 token 时返回 nil
func (r *OutboxRelay) recipient(ctx context.Context, id string) (*model.User, error) {
	u, err := r.users.GetByAnyID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if u.PushToken == "" {
		return nil, nil
	}
	return u, nil
}

func (r *OutboxRelay) actorName(ctx context.Context, id string) string {
	if u, err := r.users.Get(ctx, id); err == nil && u.Username != "" {
		return u.Username
	}
	return "Someone"
}
