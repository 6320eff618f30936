package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/critichord/internal/cache"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/monitoring"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/pkg/logger"
)

// FeedSnapshot 实时关注流的一次完整结果；Err 非空时 Items 为空
type FeedSnapshot struct {
	Items []model.FeedItem
	Err   error
}

// FeedService 关注流聚合
type FeedService interface {
	// BuildFeed 汇总 followingIDs 发表的书评，按时间倒序返回
	BuildFeed(ctx context.Context, followingIDs []string) ([]model.FeedItem, error)
	// BuildFeedForUsers 与 BuildFeed 相同，但关注用户记录已由调用方提供
	BuildFeedForUsers(ctx context.Context, following []*model.User) ([]model.FeedItem, error)
	FeedForUser(ctx context.Context, userID string) ([]model.FeedItem, error)
	// WatchFeed 关注集合每次变化时整体重建关注流
	WatchFeed(ctx context.Context, userID string) (<-chan FeedSnapshot, error)
}

type FeedOptions struct {
	MaxConcurrency int
	FetchTimeout   time.Duration
}

type feedService struct {
	users     repository.UserRepository
	reviews   repository.ReviewRepository
	follows   repository.FollowRepository
	lookup    cache.UserLookup
	relations RelationshipService
	opts      FeedOptions
	tracer    trace.Tracer
}

func NewFeedService(users repository.UserRepository, reviews repository.ReviewRepository, follows repository.FollowRepository, lookup cache.UserLookup, relations RelationshipService, opts FeedOptions) FeedService {
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 8
	}
	if lookup == nil {
		lookup = cache.DirectLookup{Repo: users}
	}
	return &feedService{
		users:     users,
		reviews:   reviews,
		follows:   follows,
		lookup:    lookup,
		relations: relations,
		opts:      opts,
		tracer:    otel.Tracer("github.com/d60-Lab/critichord/internal/service"),
	}
}

func (s *feedService) BuildFeed(ctx context.Context, followingIDs []string) ([]model.FeedItem, error) {
	ids := normalizeIDs(followingIDs)
	if len(ids) == 0 {
		return []model.FeedItem{}, nil
	}
	ctx, span := s.tracer.Start(ctx, "feed.BuildFeed", trace.WithAttributes(attribute.Int("feed.followed", len(ids))))
	defer span.End()

	known, err := s.users.GetByIDs(ctx, ids)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("load followed users: %w: %w", ErrFeedSource, err)
	}
	return s.aggregate(ctx, ids, known)
}

func (s *feedService) BuildFeedForUsers(ctx context.Context, following []*model.User) ([]model.FeedItem, error) {
	ids := make([]string, 0, len(following))
	for _, u := range following {
		if u != nil {
			ids = append(ids, u.ID)
		}
	}
	ids = normalizeIDs(ids)
	if len(ids) == 0 {
		return []model.FeedItem{}, nil
	}
	ctx, span := s.tracer.Start(ctx, "feed.BuildFeedForUsers", trace.WithAttributes(attribute.Int("feed.followed", len(ids))))
	defer span.End()
	return s.aggregate(ctx, ids, following)
}

func (s *feedService) FeedForUser(ctx context.Context, userID string) ([]model.FeedItem, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	ids, err := s.follows.FollowingIDs(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load following set: %w: %w", ErrFeedSource, err)
	}
	return s.BuildFeed(ctx, ids)
}

func (s *feedService) WatchFeed(ctx context.Context, userID string) (<-chan FeedSnapshot, error) {
	snaps, err := s.relations.ListenFollowing(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make(chan FeedSnapshot, 1)
	go func() {
		defer close(out)
		for snap := range snaps {
			var fs FeedSnapshot
			if snap.Err != nil {
				fs.Err = fmt.Errorf("%w: %w", ErrFeedSource, snap.Err)
			} else {
				items, err := s.BuildFeedForUsers(ctx, snap.Users)
				if err != nil {
					fs.Err = err
				} else {
					fs.Items = items
				}
			}
			select {
			case out <- fs:
			case <-ctx.Done():
				// 排空上游直到其关闭，保证订阅被释放
				for range snaps {
				}
				return
			}
		}
	}()
	return out, nil
}

// aggregate 并发拉取每个关注用户的书评；单个用户拉取失败视为零条并记录日志
func (s *feedService) aggregate(ctx context.Context, ids []string, known []*model.User) ([]model.FeedItem, error) {
	start := time.Now()
	defer func() { monitoring.FeedBuildDuration.Observe(time.Since(start).Seconds()) }()

	byID := indexUsers(known)
	perUser := make([][]*model.Review, len(ids))

	var g errgroup.Group
	g.SetLimit(s.opts.MaxConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			authorIDs := []string{id}
			if u := byID[id]; u != nil && u.ID == id {
				authorIDs = u.IDs()
			}
			fctx := ctx
			if s.opts.FetchTimeout > 0 {
				var cancel context.CancelFunc
				fctx, cancel = context.WithTimeout(ctx, s.opts.FetchTimeout)
				defer cancel()
			}
			revs, err := s.reviews.ListByAuthorIDs(fctx, authorIDs)
			if err != nil {
				monitoring.FeedFetchFailures.WithLabelValues("reviews").Inc()
				logger.Warn("feed: fetch reviews failed, skipping user", zap.String("user", id), zap.Error(err))
				return nil
			}
			perUser[i] = revs
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	merged := mergeReviews(perUser)
	sortByCreatedDesc(merged)
	return s.resolveAuthors(ctx, merged, byID), nil
}

// resolveAuthors 优先使用已知的关注用户；其余作者每轮最多查询一次
func (s *feedService) resolveAuthors(ctx context.Context, reviews []*model.Review, known map[string]*model.User) []model.FeedItem {
	fetched := make(map[string]*model.User)
	items := make([]model.FeedItem, 0, len(reviews))
	for _, rv := range reviews {
		id, ok := rv.Author().ID()
		if !ok {
			monitoring.FeedFetchFailures.WithLabelValues("author_unresolved").Inc()
			logger.Debug("feed: review has no author reference", zap.String("review", rv.ID))
			continue
		}
		author := known[id]
		if author == nil {
			var seen bool
			if author, seen = fetched[id]; !seen {
				u, err := s.lookup.Lookup(ctx, id)
				if err != nil {
					monitoring.FeedFetchFailures.WithLabelValues("author").Inc()
					logger.Warn("feed: resolve author failed", zap.String("author", id), zap.Error(err))
				}
				fetched[id] = u
				author = u
			}
		}
		if author == nil {
			continue
		}
		items = append(items, model.FeedItem{Review: rv, Author: author})
	}
	return items
}

// indexUsers 以认证 ID 和后端 ID 建索引；认证 ID 优先占位
func indexUsers(users []*model.User) map[string]*model.User {
	byID := make(map[string]*model.User, len(users)*2)
	for _, u := range users {
		if u != nil {
			byID[u.ID] = u
		}
	}
	for _, u := range users {
		if u == nil || u.BackendID == "" {
			continue
		}
		if _, taken := byID[u.BackendID]; !taken {
			byID[u.BackendID] = u
		}
	}
	return byID
}

func mergeReviews(perUser [][]*model.Review) []*model.Review {
	seen := make(map[string]struct{})
	var merged []*model.Review
	for _, revs := range perUser {
		for _, rv := range revs {
			if _, dup := seen[rv.ID]; dup {
				continue
			}
			seen[rv.ID] = struct{}{}
			merged = append(merged, rv)
		}
	}
	return merged
}

// sortByCreatedDesc 稳定排序：时间戳大的在前，无法解析的时间戳排在最后
func sortByCreatedDesc(reviews []*model.Review) {
	type keyed struct {
		rv *model.Review
		ts float64
		ok bool
	}
	ks := make([]keyed, len(reviews))
	for i, rv := range reviews {
		ts, ok := rv.SortKey()
		ks[i] = keyed{rv: rv, ts: ts, ok: ok}
	}
	sort.SliceStable(ks, func(i, j int) bool {
		if ks[i].ok != ks[j].ok {
			return ks[i].ok
		}
		return ks[i].ts > ks[j].ts
	})
	for i := range ks {
		reviews[i] = ks[i].rv
	}
}

func normalizeIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
