package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"jobMatch/internal/api/middleware"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

// requestLogger 优先使用中间件注入的请求级 logger。
func requestLogger(c *gin.Context, fallback *slog.Logger) *slog.Logger {
	return middleware.LoggerFromContextOr(c, fallback)
}
