package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/critichord/internal/middleware"
	"github.com/d60-Lab/critichord/pkg/response"
)

type createReviewRequest struct {
	AlbumID string `json:"album_id" binding:"required"`
	Content string `json:"content" binding:"required,max=5000"`
	Score   *int   `json:"score" binding:"required"`
}

type updateReviewRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
	Score   *int   `json:"score" binding:"required"`
}

type favoriteRequest struct {
	Favorite bool `json:"favorite"`
}

// CreateReview 发表书评
// @Summary 发表书评
// @Tags 书评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body createReviewRequest true "书评内容"
// @Success 200 {object} response.Response{data=model.Review}
// @Failure 400 {object} response.Response
// @Router /api/v1/reviews [post]
func (h *Handler) CreateReview(c *gin.Context) {
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rv, err := h.reviewService.Create(c.Request.Context(), middleware.UserID(c), req.AlbumID, req.Content, *req.Score)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rv)
}

// UpdateReview 修改书评（仅作者）
// @Summary 修改书评
// @Tags 书评
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param review_id path string true "书评ID"
// @Param request body updateReviewRequest true "书评内容"
// @Success 200 {object} response.Response{data=model.Review}
// @Failure 403 {object} response.Response
// @Router /api/v1/reviews/{review_id} [put]
func (h *Handler) UpdateReview(c *gin.Context) {
	var req updateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	rv, err := h.reviewService.Update(c.Request.Context(), middleware.UserID(c), c.Param("review_id"), req.Content, *req.Score)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, rv)
}

// ToggleLike 点赞 / 取消点赞
// @Summary 点赞切换
// @Tags 书评
// @Security BearerAuth
// @Param review_id path string true "书评ID"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Failure 404 {object} response.Response
// @Router /api/v1/reviews/{review_id}/like [post]
func (h *Handler) ToggleLike(c *gin.Context) {
	liked, err := h.reviewService.ToggleLike(c.Request.Context(), middleware.UserID(c), c.Param("review_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"liked": liked})
}

// SetFavorite 标记精选（仅作者）
// @Summary 标记精选
// @Tags 书评
// @Accept json
// @Security BearerAuth
// @Param review_id path string true "书评ID"
// @Param request body favoriteRequest true "是否精选"
// @Success 200 {object} response.Response
// @Router /api/v1/reviews/{review_id}/favorite [post]
func (h *Handler) SetFavorite(c *gin.Context) {
	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	if err := h.reviewService.SetFavorite(c.Request.Context(), middleware.UserID(c), c.Param("review_id"), req.Favorite); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, nil)
}

// ListUserReviews 某用户发表的书评
// @Summary 用户书评列表
// @Tags 书评
// @Param user_id path string true "用户ID"
// @Success 200 {object} response.Response{data=map[string]interface{}}
// @Router /api/v1/users/{user_id}/reviews [get]
func (h *Handler) ListUserReviews(c *gin.Context) {
	list, err := h.reviewService.ListByAuthor(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, gin.H{"list": list})
}
