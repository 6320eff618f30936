package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/critichord/internal/model"
)

func TestListByAuthorIDs_MatchesEitherIdentity(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	for _, rv := range []*model.Review{
		{ID: "r1", AuthorUID: "bob", CreatedAt: "1"},
		{ID: "r2", AuthorBackendID: "42", CreatedAt: "2"},
		{ID: "r3", AuthorUID: "carol", CreatedAt: "3"},
	} {
		require.NoError(t, repo.Create(ctx, rv))
	}

	got, err := repo.ListByAuthorIDs(ctx, []string{"bob", "42"})
	require.NoError(t, err)
	ids := make([]string, len(got))
	for i, rv := range got {
		ids[i] = rv.ID
	}
	assert.Equal(t, []string{"r1", "r2"}, ids)

	got, err = repo.ListByAuthorIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListByAuthorIDs_BackendIDOnlyClaimsLegacyReviews(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	for _, rv := range []*model.Review{
		{ID: "bob-new", AuthorUID: "bob", AuthorBackendID: "42", CreatedAt: "2"},
		{ID: "legacy", AuthorBackendID: "42", CreatedAt: "1"},
	} {
		require.NoError(t, repo.Create(ctx, rv))
	}

	// alice 持有后端 ID 42 也只能拿到没有认证 ID 的旧书评
	got, err := repo.ListByAuthorIDs(ctx, []string{"alice", "42"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "legacy", got[0].ID)
}

func TestReviewUpdate(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Review{ID: "r1", AuthorUID: "bob", Content: "old"}))

	require.NoError(t, repo.Update(ctx, "r1", map[string]any{"content": "new", "favorite": true}))
	rv, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "new", rv.Content)
	assert.True(t, rv.Favorite)

	assert.ErrorIs(t, repo.Update(ctx, "missing", map[string]any{"content": "x"}), ErrNotFound)
	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggleLike(t *testing.T) {
	db := newTestDB(t)
	repo := NewReviewRepository(db)
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, &model.Review{ID: "r1", AuthorUID: "bob"}))

	liked, err := repo.ToggleLike(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.True(t, liked)
	rv, err := repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.EqualValues(t, 1, rv.Likes)

	var events []model.Outbox
	require.NoError(t, db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, model.EventReviewLiked, events[0].EventType)
	assert.Equal(t, "r1", events[0].SubjectID)

	liked, err = repo.ToggleLike(ctx, "r1", "alice")
	require.NoError(t, err)
	assert.False(t, liked)
	rv, err = repo.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Zero(t, rv.Likes)

	// 作者给自己点赞不产生通知
	_, err = repo.ToggleLike(ctx, "r1", "bob")
	require.NoError(t, err)
	var outbox int64
	require.NoError(t, db.Model(&model.Outbox{}).Count(&outbox).Error)
	assert.EqualValues(t, 1, outbox)

	_, err = repo.ToggleLike(ctx, "missing", "alice")
	assert.ErrorIs(t, err, ErrNotFound)
}
