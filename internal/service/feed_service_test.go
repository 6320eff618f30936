package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
)

func reviewIDs(items []model.FeedItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Review.ID
	}
	return out
}

func newFeed(users *fakeUsers, reviews *fakeReviews, lookup *countingLookup, opts FeedOptions) FeedService {
	return NewFeedService(users, reviews, &fakeFollows{}, lookup, nil, opts)
}

func TestBuildFeed_EmptyFollowingSetTouchesNoStore(t *testing.T) {
	users := &fakeUsers{}
	reviews := &fakeReviews{}
	lookup := newCountingLookup()
	svc := newFeed(users, reviews, lookup, FeedOptions{})

	for _, ids := range [][]string{nil, {}, {"", "  "}} {
		items, err := svc.BuildFeed(context.Background(), ids)
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	}
	assert.Zero(t, users.getCalls.Load())
	assert.Zero(t, reviews.calls.Load())
	assert.Zero(t, lookup.total())
}

func TestBuildFeed_SortsNewestFirstMalformedLast(t *testing.T) {
	bob := &model.User{ID: "bob"}
	carol := &model.User{ID: "carol"}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{
		"bob": {
			{ID: "b-bad", AuthorUID: "bob", CreatedAt: "not-a-time"},
			{ID: "b-100", AuthorUID: "bob", CreatedAt: "100"},
			{ID: "b-300", AuthorUID: "bob", CreatedAt: "300"},
		},
		"carol": {
			{ID: "c-empty", AuthorUID: "carol", CreatedAt: ""},
			{ID: "c-200", AuthorUID: "carol", CreatedAt: "200"},
			{ID: "c-300", AuthorUID: "carol", CreatedAt: "300"},
			{ID: "c-inf", AuthorUID: "carol", CreatedAt: "infinity"},
		},
	}}
	svc := newFeed(&fakeUsers{users: []*model.User{bob, carol}}, reviews, newCountingLookup(), FeedOptions{MaxConcurrency: 2})

	items, err := svc.BuildFeed(context.Background(), []string{"bob", "carol"})
	require.NoError(t, err)
	// 相同时间戳与无法解析的时间戳保持输入顺序（按关注顺序合并）
	assert.Equal(t, []string{"b-300", "c-300", "c-200", "b-100", "b-bad", "c-empty", "c-inf"}, reviewIDs(items))
	for _, it := range items {
		id, _ := it.Review.Author().ID()
		assert.Equal(t, id, it.Author.ID)
	}
}

func TestBuildFeed_FailedFetchDegradesToOtherUsers(t *testing.T) {
	bob := &model.User{ID: "bob"}
	carol := &model.User{ID: "carol"}
	reviews := &fakeReviews{
		byAuthor: map[string][]*model.Review{
			"bob":   {{ID: "b1", AuthorUID: "bob", CreatedAt: "1"}},
			"carol": {{ID: "c1", AuthorUID: "carol", CreatedAt: "2"}},
		},
		fail: map[string]bool{"carol": true},
	}
	svc := newFeed(&fakeUsers{users: []*model.User{bob, carol}}, reviews, newCountingLookup(), FeedOptions{})

	items, err := svc.BuildFeed(context.Background(), []string{"bob", "carol"})
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, reviewIDs(items))
}

func TestBuildFeed_SlowFetchTimesOut(t *testing.T) {
	bob := &model.User{ID: "bob"}
	reviews := &fakeReviews{
		byAuthor: map[string][]*model.Review{"bob": {{ID: "b1", AuthorUID: "bob", CreatedAt: "1"}}},
		delay:    time.Second,
	}
	svc := newFeed(&fakeUsers{users: []*model.User{bob}}, reviews, newCountingLookup(), FeedOptions{FetchTimeout: 20 * time.Millisecond})

	items, err := svc.BuildFeed(context.Background(), []string{"bob"})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBuildFeed_SourceFailureIsWholesale(t *testing.T) {
	svc := newFeed(&fakeUsers{err: errBoom}, &fakeReviews{}, newCountingLookup(), FeedOptions{})

	_, err := svc.BuildFeed(context.Background(), []string{"bob"})
	assert.ErrorIs(t, err, ErrFeedSource)
	assert.ErrorIs(t, err, errBoom)
}

func TestBuildFeed_ResolvesEachUnknownAuthorOnce(t *testing.T) {
	bob := &model.User{ID: "bob", BackendID: "42", Username: "Bob"}
	// 关注集合里是后端 ID，GetByIDs 按认证 ID 查不到，只能逐个解析作者
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{
		"42": {
			{ID: "r1", AuthorBackendID: "42", CreatedAt: "3"},
			{ID: "r2", AuthorBackendID: "42", CreatedAt: "2"},
			{ID: "r3", AuthorBackendID: "42", CreatedAt: "1"},
		},
		"99": {
			{ID: "r4", AuthorBackendID: "99", CreatedAt: "0"},
			{ID: "r5", AuthorBackendID: "99", CreatedAt: "-1"},
		},
	}}
	lookup := newCountingLookup(bob)
	svc := newFeed(&fakeUsers{}, reviews, lookup, FeedOptions{})

	items, err := svc.BuildFeed(context.Background(), []string{"42", "99"})
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, reviewIDs(items))
	for _, it := range items {
		assert.Equal(t, "Bob", it.Author.Username)
	}
	assert.Equal(t, 1, lookup.calls["42"])
	assert.Equal(t, 1, lookup.calls["99"], "failed lookups are not retried within a pass")
	assert.Equal(t, 2, lookup.total())
}

func TestBuildFeed_BackendIDResolvesToFollowedUser(t *testing.T) {
	bob := &model.User{ID: "bob", BackendID: "42", Username: "Bob"}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{
		"42":  {{ID: "legacy", AuthorBackendID: "42", CreatedAt: "1"}},
		"bob": {{ID: "modern", AuthorUID: "bob", CreatedAt: "2"}},
	}}
	lookup := newCountingLookup()
	svc := newFeed(&fakeUsers{users: []*model.User{bob}}, reviews, lookup, FeedOptions{})

	items, err := svc.BuildFeed(context.Background(), []string{"bob"})
	require.NoError(t, err)
	require.Equal(t, []string{"modern", "legacy"}, reviewIDs(items))
	assert.Same(t, bob, items[1].Author)
	assert.Zero(t, lookup.total())
}

func TestBuildFeed_DropsReviewsWithoutAuthor(t *testing.T) {
	bob := &model.User{ID: "bob"}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{
		"bob": {
			{ID: "orphan", CreatedAt: "5"},
			{ID: "ok", AuthorUID: "bob", CreatedAt: "4"},
		},
	}}
	svc := newFeed(&fakeUsers{users: []*model.User{bob}}, reviews, newCountingLookup(), FeedOptions{})

	items, err := svc.BuildFeed(context.Background(), []string{"bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"ok"}, reviewIDs(items))
}

func TestBuildFeed_DedupesFollowedIDsAndReviews(t *testing.T) {
	bob := &model.User{ID: "bob"}
	carol := &model.User{ID: "carol"}
	shared := &model.Review{ID: "shared", AuthorUID: "bob", CreatedAt: "9"}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{
		"bob":   {shared},
		"carol": {shared, {ID: "c1", AuthorUID: "carol", CreatedAt: "1"}},
	}}
	svc := newFeed(&fakeUsers{users: []*model.User{bob, carol}}, reviews, newCountingLookup(), FeedOptions{})

	items, err := svc.BuildFeed(context.Background(), []string{"bob", " bob ", "carol", "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared", "c1"}, reviewIDs(items))
	assert.EqualValues(t, 2, reviews.calls.Load())
}

func TestBuildFeed_RespectsConcurrencyLimit(t *testing.T) {
	var users []*model.User
	var ids []string
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		users = append(users, &model.User{ID: id})
		ids = append(ids, id)
	}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{}, delay: 10 * time.Millisecond}
	svc := newFeed(&fakeUsers{users: users}, reviews, newCountingLookup(), FeedOptions{MaxConcurrency: 3})

	_, err := svc.BuildFeed(context.Background(), ids)
	require.NoError(t, err)
	assert.EqualValues(t, 8, reviews.calls.Load())
	assert.LessOrEqual(t, reviews.maxSeen.Load(), int32(3))
	assert.Greater(t, reviews.maxSeen.Load(), int32(1))
}

func TestBuildFeed_CancelledContext(t *testing.T) {
	bob := &model.User{ID: "bob"}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{"bob": {{ID: "b1", AuthorUID: "bob", CreatedAt: "1"}}}}
	svc := newFeed(&fakeUsers{users: []*model.User{bob}}, reviews, newCountingLookup(), FeedOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := svc.BuildFeed(ctx, []string{"bob"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFeedForUser(t *testing.T) {
	bob := &model.User{ID: "bob"}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{"bob": {{ID: "b1", AuthorUID: "bob", CreatedAt: "1"}}}}
	users := &fakeUsers{users: []*model.User{bob}}

	svc := NewFeedService(users, reviews, &fakeFollows{ids: []string{"bob"}}, newCountingLookup(), nil, FeedOptions{})
	items, err := svc.FeedForUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1"}, reviewIDs(items))

	svc = NewFeedService(users, reviews, &fakeFollows{err: errBoom}, newCountingLookup(), nil, FeedOptions{})
	_, err = svc.FeedForUser(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrFeedSource)

	_, err = svc.FeedForUser(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestWatchFeed(t *testing.T) {
	bob := &model.User{ID: "bob"}
	carol := &model.User{ID: "carol"}
	reviews := &fakeReviews{byAuthor: map[string][]*model.Review{
		"bob":   {{ID: "b1", AuthorUID: "bob", CreatedAt: "1"}},
		"carol": {{ID: "c1", AuthorUID: "carol", CreatedAt: "2"}},
	}}
	rel := &fakeRelations{snaps: make(chan FollowSnapshot)}
	svc := NewFeedService(&fakeUsers{users: []*model.User{bob, carol}}, reviews, &fakeFollows{}, newCountingLookup(), rel, FeedOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := svc.WatchFeed(ctx, "alice")
	require.NoError(t, err)

	rel.snaps <- FollowSnapshot{Users: []*model.User{bob}}
	snap := recv(t, feed)
	require.NoError(t, snap.Err)
	assert.Equal(t, []string{"b1"}, reviewIDs(snap.Items))

	rel.snaps <- FollowSnapshot{Err: errBoom}
	snap = recv(t, feed)
	assert.ErrorIs(t, snap.Err, ErrFeedSource)
	assert.Empty(t, snap.Items, "an error snapshot never carries a stale feed")

	rel.snaps <- FollowSnapshot{Users: []*model.User{bob, carol}}
	snap = recv(t, feed)
	require.NoError(t, snap.Err)
	assert.Equal(t, []string{"c1", "b1"}, reviewIDs(snap.Items))

	close(rel.snaps)
	_, ok := <-feed
	assert.False(t, ok)
}

func TestWatchFeed_EndToEnd(t *testing.T) {
	relSvc, db, _ := newRelationFixture(t, model.User{ID: "alice"}, model.User{ID: "bob", BackendID: "42"})
	require.NoError(t, db.Create(&model.Review{ID: "r1", AuthorBackendID: "42", CreatedAt: "10"}).Error)
	feedSvc := NewFeedService(repository.NewUserRepository(db), repository.NewReviewRepository(db), repository.NewFollowRepository(db), nil, relSvc, FeedOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	feed, err := feedSvc.WatchFeed(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, recv(t, feed).Items)

	require.NoError(t, relSvc.Follow(context.Background(), "alice", "bob"))
	snap := recv(t, feed)
	require.NoError(t, snap.Err)
	require.Len(t, snap.Items, 1)
	assert.Equal(t, "bob", snap.Items[0].Author.ID)

	items, err := feedSvc.FeedForUser(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, []string{"r1"}, reviewIDs(items))
}
