package server

import (
	"time"

	httpHandler "post-planner/interfaces/http"
	"post-planner/interfaces/middleware"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries the cross-cutting settings of the HTTP surface.
type RouterConfig struct {
	AllowOrigins []string
	SecretKey    string
	AuthLimiter  middleware.RateLimiter
}

func InitiateRouter(
	cfg RouterConfig,
	postHandler httpHandler.IPostHandler,
	authHandler httpHandler.IAuthHandler,
	healthHandler httpHandler.IHealthHandler,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(cors.New(corsConfig(cfg.AllowOrigins)))

	router.GET("/healthz", healthHandler.Healthz)

	auth := router.Group("/auth")
	if cfg.AuthLimiter != nil {
		auth.Use(middleware.RateLimit(cfg.AuthLimiter))
	}
	auth.GET("/callback", authHandler.Callback)

	guarded := auth.Group("")
	guarded.Use(middleware.Auth(cfg.SecretKey))
	guarded.POST("/apps", authHandler.RegisterApp)
	guarded.GET("/authorize", authHandler.Authorize)
	guarded.GET("/me", authHandler.Me)
	guarded.POST("/logout", authHandler.Logout)

	posts := router.Group("/posts")
	posts.Use(middleware.Auth(cfg.SecretKey))
	posts.POST("", postHandler.Create)
	posts.GET("", postHandler.List)
	posts.GET("/on-this-day", postHandler.OnThisDay)
	posts.GET("/stream", postHandler.Stream)
	posts.PATCH("/:id", postHandler.Update)
	posts.DELETE("/:id", postHandler.Delete)

	return router
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
		return cfg
	}
	cfg.AllowOrigins = origins
	return cfg
}
