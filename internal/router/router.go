package router

import (
	"net/http"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/d60-Lab/critichord/config"
	_ "github.com/d60-Lab/critichord/docs"
	"github.com/d60-Lab/critichord/internal/api/handler"
	"github.com/d60-Lab/critichord/internal/middleware"
)

// Setup 注册全部路由
func Setup(cfg *config.Config, h *handler.Handler) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logger(), middleware.Metrics())
	if cfg.Tracing.Enabled {
		r.Use(otelgin.Middleware(cfg.Tracing.ServiceName))
	}

	r.GET("/healthz", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := r.Group("/api/v1")
	auth := middleware.Auth(cfg.JWT.Secret, cfg.JWT.Issuer)
	limit := middleware.RateLimit(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	// websocket 路由不走 gzip
	live := api.Group("", auth)
	{
		live.GET("/relations/:user_id/live/following", h.LiveFollowing)
		live.GET("/relations/:user_id/live/fans", h.LiveFans)
		live.GET("/feed/live", h.LiveFeed)
	}

	v1 := api.Group("", gzip.Gzip(gzip.DefaultCompression), auth)
	{
		rel := v1.Group("/relations")
		rel.POST("/follow", limit, h.Follow)
		rel.POST("/unfollow", limit, h.Unfollow)
		rel.GET("/:user_id/following", h.ListFollowing)
		rel.GET("/:user_id/following/:target_id", h.IsFollowing)
		rel.GET("/:user_id/fans", h.ListFans)

		v1.GET("/feed", h.Feed)

		v1.PUT("/users/me", h.UpsertProfile)
		v1.GET("/users/:user_id", h.GetUser)
		v1.GET("/users/:user_id/reviews", h.ListUserReviews)

		rv := v1.Group("/reviews")
		rv.POST("", limit, h.CreateReview)
		rv.PUT("/:review_id", limit, h.UpdateReview)
		rv.POST("/:review_id/like", limit, h.ToggleLike)
		rv.POST("/:review_id/favorite", limit, h.SetFavorite)
	}
	return r
}
