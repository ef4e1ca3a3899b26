package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobMatch/internal/api/middleware"
	"jobMatch/internal/auth"
	"jobMatch/internal/database"
	"jobMatch/internal/matching"
)

// RouteDeps 汇总注册路由所需的依赖。
type RouteDeps struct {
	DB             *gorm.DB
	Redis          redis.UniversalClient
	Auth           *auth.AuthService
	Matching       MatchingService
	CVFiles        matching.CVFileStore
	Scanner        VirusScanner
	Queue          TaskEnqueuer
	Logger         *slog.Logger
	AllowedOrigins []string
	LoginRatePerHr int
}

// RegisterRoutes 注册 /v1 下的业务路由。
func RegisterRoutes(router *gin.Engine, deps RouteDeps) {
	authHandler := NewAuthHandler(deps.DB, deps.Auth, deps.Redis, deps.Logger, deps.LoginRatePerHr)
	matchingHandler := NewMatchingHandler(deps.Matching, deps.Queue, deps.Logger)
	cvHandler := NewCVHandler(deps.DB, deps.CVFiles, deps.Scanner, deps.Queue, deps.Logger)
	wsHandler := NewWsHandler(deps.Redis, deps.Auth, deps.Logger, deps.AllowedOrigins)
	authMiddleware := middleware.AuthMiddleware(deps.Auth)

	v1 := router.Group("/v1")
	{
		v1.GET("/ws", wsHandler.HandleConnection)

		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/register", authHandler.Register)
			authGroup.POST("/login", authHandler.Login)
			authGroup.POST("/refresh", authHandler.Refresh)
			authGroup.POST("/logout", authMiddleware, authHandler.Logout)
		}

		cvGroup := v1.Group("/cv")
		cvGroup.Use(authMiddleware)
		{
			cvGroup.POST("", cvHandler.UploadCV)
			cvGroup.GET("/status", cvHandler.GetStatus)
		}

		matchingGroup := v1.Group("/matching")
		matchingGroup.Use(authMiddleware)
		{
			matchingGroup.GET("/skills", matchingHandler.GetSkills)
			matchingGroup.GET("/job-matches", matchingHandler.GetJobMatches)
			matchingGroup.POST("/job-matches/refresh", matchingHandler.RefreshJobMatches)
		}

		adminGroup := v1.Group("/admin")
		adminGroup.Use(authMiddleware, middleware.RequireRole(database.RoleAdmin))
		{
			adminGroup.GET("/matching/job-matches/:userId", matchingHandler.GetUserJobMatches)
		}
	}
}
