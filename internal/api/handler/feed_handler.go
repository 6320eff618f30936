package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/critichord/internal/middleware"
	"github.com/d60-Lab/critichord/pkg/response"
)

// Feed 调用方关注的用户发表的书评，按时间倒序
// @Summary 关注流
// @Tags 关注流
// @Produce json
// @Security BearerAuth
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 500 {object} response.Response
// @Router /api/v1/feed [get]
func (h *Handler) Feed(c *gin.Context) {
	items, err := h.feedService.FeedForUser(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"items": items})
}
