package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/critichord/internal/middleware"
	"github.com/d60-Lab/critichord/internal/service"
	"github.com/d60-Lab/critichord/pkg/response"
)

type profileRequest struct {
	BackendID string `json:"backend_id" binding:"max=64"`
	Username  string `json:"username" binding:"required,max=64"`
	AvatarURL string `json:"avatar_url" binding:"omitempty,url,max=512"`
	PushToken string `json:"push_token" binding:"max=512"`
}

// GetUser 用户资料（含粉丝数 / 关注数）
// @Summary 用户资料
// @Tags 用户
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=model.User}
// @Failure 404 {object} response.Response
// @Router /api/v1/users/{user_id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	u, err := h.userService.Get(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, u)
}

// UpsertProfile 创建或更新调用方资料
// @Summary 更新资料
// @Tags 用户
// @Accept json
// @Security BearerAuth
// @Param request body profileRequest true "资料"
// @Success 200 {object} response.Response{data=model.User}
// @Router /api/v1/users/me [put]
func (h *Handler) UpsertProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.userService.UpsertProfile(c.Request.Context(), middleware.UserID(c), service.Profile{
		BackendID: req.BackendID,
		Username:  req.Username,
		AvatarURL: req.AvatarURL,
		PushToken: req.PushToken,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, u)
}
