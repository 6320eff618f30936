package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/d60-Lab/critichord/config"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
	"github.com/d60-Lab/critichord/pkg/database"
)

var errBoom = errors.New("boom")

func newTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()
	db, err := database.Open(config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		MaxIdleConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(tb, err)
	require.NoError(tb, database.Migrate(db))
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUsers(tb testing.TB, db *gorm.DB, users ...model.User) {
	tb.Helper()
	require.NoError(tb, db.Create(&users).Error)
}

func loadUser(tb testing.TB, db *gorm.DB, id string) model.User {
	tb.Helper()
	var u model.User
	require.NoError(tb, db.Where("id = ?", id).First(&u).Error)
	return u
}

func recv[T any](tb testing.TB, ch <-chan T) T {
	tb.Helper()
	select {
	case v, ok := <-ch:
		require.True(tb, ok, "channel closed")
		return v
	case <-time.After(2 * time.Second):
		tb.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

// fakeUsers 只实现关注流用到的方法
type fakeUsers struct {
	repository.UserRepository

	users    []*model.User
	err      error
	getCalls atomic.Int32
}

func (f *fakeUsers) GetByIDs(_ context.Context, ids []string) ([]*model.User, error) {
	f.getCalls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	var out []*model.User
	for _, u := range f.users {
		for _, id := range ids {
			if u.ID == id {
				out = append(out, u)
			}
		}
	}
	return out, nil
}

func (f *fakeUsers) Get(_ context.Context, id string) (*model.User, error) {
	for _, u := range f.users {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (f *fakeUsers) GetByAnyID(ctx context.Context, id string) (*model.User, error) {
	for _, u := range f.users {
		if u.ID == id || u.BackendID == id {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

// fakeReviews 按作者 ID 返回预置书评，可对指定作者注入失败
type fakeReviews struct {
	repository.ReviewRepository

	byAuthor map[string][]*model.Review
	fail     map[string]bool
	delay    time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (f *fakeReviews) ListByAuthorIDs(ctx context.Context, ids []string) ([]*model.Review, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	var out []*model.Review
	for _, id := range ids {
		if f.fail[id] {
			return nil, errBoom
		}
		out = append(out, f.byAuthor[id]...)
	}
	return out, nil
}

type fakeFollows struct {
	repository.FollowRepository

	ids []string
	err error
}

func (f *fakeFollows) FollowingIDs(context.Context, string) ([]string, error) {
	return f.ids, f.err
}

// countingLookup 记录每个 ID 的查询次数
type countingLookup struct {
	mu    sync.Mutex
	users map[string]*model.User
	calls map[string]int
}

func newCountingLookup(users ...*model.User) *countingLookup {
	l := &countingLookup{users: make(map[string]*model.User), calls: make(map[string]int)}
	for _, u := range users {
		for _, id := range u.IDs() {
			l.users[id] = u
		}
	}
	return l
}

func (l *countingLookup) Lookup(_ context.Context, id string) (*model.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls[id]++
	if u, ok := l.users[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func (l *countingLookup) Invalidate(context.Context, ...string) {}

func (l *countingLookup) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, c := range l.calls {
		n += c
	}
	return n
}

// fakeRelations 手动驱动 ListenFollowing 的快照流
type fakeRelations struct {
	RelationshipService

	snaps chan FollowSnapshot
}

func (f *fakeRelations) ListenFollowing(context.Context, string) (<-chan FollowSnapshot, error) {
	return f.snaps, nil
}
