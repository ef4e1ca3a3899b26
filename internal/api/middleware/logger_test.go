package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestSlogLoggerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	router := gin.New()
	router.Use(CorrelationIDMiddleware(), SlogLoggerMiddleware(logger))
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/v1/matching/job-matches", func(c *gin.Context) {
		c.Set("userID", uint(42))
		LoggerFromContextOr(c, nil).Info("scoring offers")
		c.Status(http.StatusInternalServerError)
	})

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	if buf.Len() != 0 {
		t.Fatalf("health checks must not be logged, got %q", buf.String())
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/matching/job-matches", nil)
	req.Header.Set(HeaderCorrelationID, "req-1")
	router.ServeHTTP(httptest.NewRecorder(), req)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected handler line and completion line, got %q", buf.String())
	}
	if !strings.Contains(lines[0], "correlation_id=req-1") || !strings.Contains(lines[0], "path=/v1/matching/job-matches") {
		t.Fatalf("handler log must carry request attributes: %q", lines[0])
	}
	for _, want := range []string{"level=ERROR", "status=500", "user_id=42"} {
		if !strings.Contains(lines[1], want) {
			t.Fatalf("completion line missing %q: %q", want, lines[1])
		}
	}
}
