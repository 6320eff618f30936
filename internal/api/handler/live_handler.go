package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/d60-Lab/critichord/internal/middleware"
	"github.com/d60-Lab/critichord/internal/model"
	"github.com/d60-Lab/critichord/internal/service"
	"github.com/d60-Lab/critichord/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type liveFrame struct {
	Users []*model.User    `json:"users,omitempty"`
	Items []model.FeedItem `json:"items,omitempty"`
	Error string           `json:"error,omitempty"`
}

// LiveFollowing 以 websocket 推送关注列表快照
// @Summary 实时关注列表（websocket）
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Router /api/v1/relations/{user_id}/live/following [get]
func (h *Handler) LiveFollowing(c *gin.Context) {
	h.liveUsers(c, h.relService.ListenFollowing)
}

// LiveFans 以 websocket 推送粉丝列表快照
// @Summary 实时粉丝列表（websocket）
// @Tags 关系链
// @Param user_id path string true "用户ID"
// @Router /api/v1/relations/{user_id}/live/fans [get]
func (h *Handler) LiveFans(c *gin.Context) {
	h.liveUsers(c, h.relService.ListenFollowers)
}

// LiveFeed 以 websocket 推送调用方的关注流，关注集合变化时整体重建
// @Summary 实时关注流（websocket）
// @Tags 关注流
// @Security BearerAuth
// @Router /api/v1/feed/live [get]
func (h *Handler) LiveFeed(c *gin.Context) {
	conn, ctx, cancel, ok := h.upgrade(c)
	if !ok {
		return
	}
	defer cancel()
	defer conn.Close()

	snaps, err := h.feedService.WatchFeed(ctx, middleware.UserID(c))
	if err != nil {
		writeFrame(conn, liveFrame{Error: err.Error()})
		return
	}
	pump(ctx, conn, snaps, func(s service.FeedSnapshot) liveFrame {
		if s.Err != nil {
			return liveFrame{Error: s.Err.Error()}
		}
		return liveFrame{Items: s.Items}
	})
}

func (h *Handler) liveUsers(c *gin.Context, listen func(context.Context, string) (<-chan service.FollowSnapshot, error)) {
	conn, ctx, cancel, ok := h.upgrade(c)
	if !ok {
		return
	}
	defer cancel()
	defer conn.Close()

	snaps, err := listen(ctx, c.Param("user_id"))
	if err != nil {
		writeFrame(conn, liveFrame{Error: err.Error()})
		return
	}
	pump(ctx, conn, snaps, func(s service.FollowSnapshot) liveFrame {
		if s.Err != nil {
			return liveFrame{Error: s.Err.Error()}
		}
		return liveFrame{Users: s.Users}
	})
}

// upgrade 升级连接并启动读循环；客户端断开时取消返回的 ctx，从而释放订阅
func (h *Handler) upgrade(c *gin.Context) (*websocket.Conn, context.Context, context.CancelFunc, bool) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", zap.Error(err))
		return nil, nil, nil, false
	}
	ctx, cancel := context.WithCancel(c.Request.Context())
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
	return conn, ctx, cancel, true
}

func pump[T any](ctx context.Context, conn *websocket.Conn, snaps <-chan T, frame func(T) liveFrame) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-snaps:
			if !ok {
				return
			}
			if err := writeFrame(conn, frame(s)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeFrame(conn *websocket.Conn, f liveFrame) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(f)
}
