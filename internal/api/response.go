package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"jobMatch/internal/api/middleware"
)

// errorResponse 是所有错误响应的统一结构，correlation_id 便于按日志排查。
type errorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, errorResponse{Error: msg, CorrelationID: middleware.GetCorrelationID(c)})
}

func AbortUnauthorized(c *gin.Context) {
	c.Abort()
	Unauthorized(c)
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }
