package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		role string
		want int
	}{
		{name: "admin allowed", role: "admin", want: http.StatusOK},
		{name: "candidate forbidden", role: "candidate", want: http.StatusForbidden},
		{name: "missing role forbidden", role: "", want: http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/admin", func(c *gin.Context) {
				if tt.role != "" {
					c.Set("role", tt.role)
				}
				c.Next()
			}, RequireRole("admin"), func(c *gin.Context) {
				c.Status(http.StatusOK)
			})

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/admin", nil))
			if w.Code != tt.want {
				t.Fatalf("expected %d got %d body=%s", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestCorrelationIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(CorrelationIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		c.String(http.StatusOK, GetCorrelationID(c))
	})

	tests := []struct {
		name     string
		incoming string
		keep     bool
	}{
		{name: "propagates valid id", incoming: "abc-123", keep: true},
		{name: "generates when missing", incoming: ""},
		{name: "rejects newline", incoming: "abc\nlevel=ERROR"},
		{name: "rejects overlong", incoming: strings.Repeat("a", maxCorrelationIDLen+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.incoming != "" {
				req.Header.Set(HeaderCorrelationID, tt.incoming)
			}
			router.ServeHTTP(w, req)

			got := w.Body.String()
			if got == "" || w.Header().Get(HeaderCorrelationID) != got {
				t.Fatalf("body %q and header %q must carry the same id", got, w.Header().Get(HeaderCorrelationID))
			}
			if (got == tt.incoming) != tt.keep {
				t.Fatalf("incoming %q, got %q, keep=%v", tt.incoming, got, tt.keep)
			}
		})
	}
}
