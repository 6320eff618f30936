package service

import (
	"context"
	"errors"
	"strings"

	"github.com/d60-Lab/critichord/internal/cache"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/repository"
)

// Profile 用户可自行修改的资料字段
type Profile struct {
	BackendID string
	Username  string
	AvatarURL string
	PushToken string
}

type UserService interface {
	Get(ctx context.Context, id string) (*model.User, error)
	UpsertProfile(ctx context.Context, id string, p Profile) (*model.User, error)
}

type userService struct {
	users repository.UserRepository
	cache cache.UserLookup
}

func NewUserService(users repository.UserRepository, lookup cache.UserLookup) UserService {
	return &userService{users: users, cache: lookup}
}

func (s *userService) Get(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidUserID
	}
	u, err := s.users.Get(ctx, id)
	if err != nil {
		return nil, storeErr("get user", err)
	}
	return u, nil
}

func (s *userService) UpsertProfile(ctx context.Context, id string, p Profile) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrInvalidUserID
	}
	err := s.users.UpsertProfile(ctx, &model.User{
		ID:        id,
		BackendID: strings.TrimSpace(p.BackendID),
		Username:  strings.TrimSpace(p.Username),
		AvatarURL: p.AvatarURL,
		PushToken: p.PushToken,
	})
	if errors.Is(err, repository.ErrConflict) {
		return nil, ErrBackendIDTaken
	}
	if err != nil {
		return nil, storeErr("upsert profile", err)
	}
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
	return s.Get(ctx, id)
}
