package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
)

type recordingLookup struct {
	countingLookup
	invalidated []string
}

func (l *recordingLookup) Invalidate(_ context.Context, ids ...string) {
	l.invalidated = append(l.invalidated, ids...)
}

func TestUserService(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, model.User{ID: "alice", Username: "a", FollowerCount: 4})
	lookup := &recordingLookup{}
	svc := NewUserService(repository.NewUserRepository(db), lookup)
	ctx := context.Background()

	u, err := svc.UpsertProfile(ctx, "alice", Profile{Username: " Alice ", BackendID: "7", PushToken: "tok"})
	require.NoError(t, err)
	assert.Equal(t, "Alice", u.Username)
	assert.Equal(t, "7", u.BackendID)
	assert.EqualValues(t, 4, u.FollowerCount, "profile writes never touch counters")
	assert.Equal(t, []string{"alice"}, lookup.invalidated)

	_, err = svc.Get(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.Get(ctx, " ")
	assert.ErrorIs(t, err, ErrInvalidUserID)
	_, err = svc.UpsertProfile(ctx, "", Profile{})
	assert.ErrorIs(t, err, ErrInvalidUserID)
}

func TestUserService_BackendIDTaken(t *testing.T) {
	db := newTestDB(t)
	seedUsers(t, db, model.User{ID: "bob", BackendID: "42"}, model.User{ID: "alice"})
	lookup := &recordingLookup{}
	svc := NewUserService(repository.NewUserRepository(db), lookup)

	_, err := svc.UpsertProfile(context.Background(), "alice", Profile{BackendID: " 42 "})
	assert.ErrorIs(t, err, ErrBackendIDTaken)
	assert.ErrorIs(t, err, ErrInvalidOperation)
	assert.Empty(t, lookup.invalidated)
}
