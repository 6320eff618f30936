package service

import (
	"errors"
	"fmt"

	"github.com/d60-Lab/critichord/internal/repository"
)

var (
	// ErrInvalidOperation 请求在访问存储前即被拒绝
	ErrInvalidOperation = errors.New("invalid operation")
	ErrFollowSelf       = fmt.Errorf("%w: cannot follow self", ErrInvalidOperation)
	ErrInvalidUserID    = fmt.Errorf("%w: user id is required", ErrInvalidOperation)
	ErrBackendIDTaken   = fmt.Errorf("%w: backend id is already claimed", ErrInvalidOperation)

	ErrNotFound  = errors.New("not found")
	ErrForbidden = errors.New("forbidden")
	// ErrStoreUnavailable 存储失败（网络、冲突等），调用方可自行重试
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrFeedSource 关注集合本身无法获取，关注流整体失败
	ErrFeedSource = errors.New("feed source unavailable")
)

// storeErr 把仓储错误归类为 ErrNotFound 或 ErrStoreUnavailable
func storeErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
