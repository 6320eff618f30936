package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/critichord/internal/service"
	"github.com/d60-Lab/critichord/pkg/response"
)

// Handler HTTP 处理器集合
type Handler struct {
	relService    service.RelationshipService
	feedService   service.FeedService
	reviewService service.ReviewService
	userService   service.UserService
}

func NewHandler(rel service.RelationshipService, feed service.FeedService, reviews service.ReviewService, users service.UserService) *Handler {
	return &Handler{relService: rel, feedService: feed, reviewService: reviews, userService: users}
}

// fail 按服务层错误类型映射 HTTP 状态码
func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOperation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrForbidden):
		response.Forbidden(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
