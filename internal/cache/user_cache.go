package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/pkg/logger"
)

// UserLookup resolves a user by either identity field.
type UserLookup interface {
	Lookup(ctx context.Context, id string) (*model.User, error)
	Invalidate(ctx context.Context, ids ...string)
}

// UserCache is a cache-aside lookup in front of the user table. Redis errors
// degrade to direct reads; they are never returned to the caller.
type UserCache struct {
	repo  repository.UserRepository
	cache *redis.Client
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

func NewUserCache(repo repository.UserRepository, cache *redis.Client, ttl time.Duration) *UserCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &UserCache{repo: repo, cache: cache, ttl: ttl}
}

func userKey(id string) string { return fmt.Sprintf("user:%s", id) }

func (c *UserCache) Lookup(ctx context.Context, id string) (*model.User, error) {
	if data, err := c.cache.Get(ctx, userKey(id)).Bytes(); err == nil {
		var u model.User
		if uErr := json.Unmarshal(data, &cachedUser{&u}); uErr == nil {
			c.hits.Add(1)
			return &u, nil
		}
	} else if err != redis.Nil {
		logger.Warn("user cache get failed", zap.String("id", id), zap.Error(err))
	}

	c.misses.Add(1)
	u, err := c.repo.GetByAnyID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(cachedUser{u}); err == nil {
		pipe := c.cache.Pipeline()
		// 同时以两种身份缓存，后端 ID 引用也能命中
		for _, key := range u.IDs() {
			pipe.Set(ctx, userKey(key), payload, c.ttl)
		}
		if id != u.ID && id != u.BackendID {
			pipe.Set(ctx, userKey(id), payload, c.ttl)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			logger.Warn("user cache set failed", zap.String("id", id), zap.Error(err))
		}
	}
	return u, nil
}

// Invalidate drops cached records for ids and, when known, their alternate identity.
func (c *UserCache) Invalidate(ctx context.Context, ids ...string) {
	if len(ids) == 0 {
		return
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, userKey(id))
	}
	if vals, err := c.cache.MGet(ctx, keys...).Result(); err == nil {
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var u model.User
			if json.Unmarshal([]byte(str), &cachedUser{&u}) == nil {
				for _, alt := range u.IDs() {
					keys = append(keys, userKey(alt))
				}
			}
		}
	}
	if err := c.cache.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("user cache invalidate failed", zap.Strings("ids", ids), zap.Error(err))
	}
}

// Counters reports cache hits and misses since start.
func (c *UserCache) Counters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// cachedUser keeps the push token, which model.User hides from JSON responses.
type cachedUser struct{ *model.User }

func (c cachedUser) MarshalJSON() ([]byte, error) {
	type plain model.User
	return json.Marshal(struct {
		*plain
		PushToken string `json:"push_token,omitempty"`
	}{(*plain)(c.User), c.PushToken})
}

func (c *cachedUser) UnmarshalJSON(data []byte) error {
	type plain model.User
	aux := struct {
		*plain
		PushToken string `json:"push_token,omitempty"`
	}{plain: (*plain)(c.User)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	c.PushToken = aux.PushToken
	return nil
}

// DirectLookup bypasses caching; used when redis is disabled.
type DirectLookup struct{ Repo repository.UserRepository }

func (d DirectLookup) Lookup(ctx context.Context, id string) (*model.User, error) {
	return d.Repo.GetByAnyID(ctx, id)
}

func (DirectLookup) Invalidate(context.Context, ...string) {}
