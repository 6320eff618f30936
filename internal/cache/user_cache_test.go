package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
)

type fakeUsers struct {
	repository.UserRepository

	mu    sync.Mutex
	users []*model.User
	calls int
}

func (f *fakeUsers) GetByAnyID(_ context.Context, id string) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, u := range f.users {
		if u.ID == id || u.BackendID == id {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func newCache(t *testing.T, users ...*model.User) (*UserCache, *fakeUsers, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	repo := &fakeUsers{users: users}
	return NewUserCache(repo, client, time.Minute), repo, mr
}

func TestUserCache_LookupCachesBothIdentities(t *testing.T) {
	c, repo, mr := newCache(t, &model.User{ID: "bob", BackendID: "42", Username: "Bob", PushToken: "tok"})
	ctx := context.Background()

	u, err := c.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.ID)
	assert.True(t, mr.Exists("user:bob"))
	assert.True(t, mr.Exists("user:42"))

	u, err = c.Lookup(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", u.Username)
	assert.Equal(t, "tok", u.PushToken)
	assert.Equal(t, 1, repo.calls)

	hits, misses := c.Counters()
	assert.EqualValues(t, 1, hits)
	assert.EqualValues(t, 1, misses)
}

func TestUserCache_NotFoundIsNotCached(t *testing.T) {
	c, repo, _ := newCache(t)
	ctx := context.Background()

	_, err := c.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = c.Lookup(ctx, "ghost")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Equal(t, 2, repo.calls)
}

func TestUserCache_InvalidateDropsAlternateIdentity(t *testing.T) {
	c, repo, mr := newCache(t, &model.User{ID: "bob", BackendID: "42", FollowerCount: 1})
	ctx := context.Background()

	_, err := c.Lookup(ctx, "42")
	require.NoError(t, err)
	c.Invalidate(ctx, "bob")
	assert.False(t, mr.Exists("user:bob"))
	assert.False(t, mr.Exists("user:42"))

	repo.mu.Lock()
	repo.users[0].FollowerCount = 2
	repo.mu.Unlock()
	u, err := c.Lookup(ctx, "42")
	require.NoError(t, err)
	assert.EqualValues(t, 2, u.FollowerCount)
}

func TestUserCache_RedisDownFallsBack(t *testing.T) {
	c, repo, mr := newCache(t, &model.User{ID: "bob"})
	mr.Close()

	u, err := c.Lookup(context.Background(), "bob")
	require.NoError(t, err)
	assert.Equal(t, "bob", u.ID)
	assert.Equal(t, 1, repo.calls)
	c.Invalidate(context.Background(), "bob")
}
