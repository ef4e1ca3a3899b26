package api

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"jobMatch/internal/auth"
)

func newTestAuthService(t *testing.T) *auth.AuthService {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})

	svc, err := auth.NewAuthService(privPEM, pubPEM, time.Minute, time.Hour)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	return svc
}

func TestOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		host    string
		want    bool
	}{
		{name: "no origin header", host: "api.example.com", want: true},
		{name: "same host", origin: "https://api.example.com", host: "api.example.com", want: true},
		{name: "cross host without allow list", origin: "https://evil.example.com", host: "api.example.com", want: false},
		{name: "allow listed", allowed: []string{"https://app.example.com"}, origin: "https://app.example.com", host: "api.example.com", want: true},
		{name: "not allow listed", allowed: []string{"https://app.example.com"}, origin: "https://api.example.com", host: "api.example.com", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/ws", nil)
			req.Host = tt.host
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := originAllowed(tt.allowed, req); got != tt.want {
				t.Fatalf("expected %v got %v", tt.want, got)
			}
		})
	}
}

func TestWsHandler_RejectsBadAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	authService := newTestAuthService(t)
	pair, err := authService.GenerateTokenPair(7, "candidate")
	if err != nil {
		t.Fatalf("generate token pair: %v", err)
	}

	router := gin.New()
	router.GET("/v1/ws", NewWsHandler(nil, authService, discardLogger(), nil).HandleConnection)
	srv := httptest.NewServer(router)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/ws"

	tests := []struct {
		name    string
		message string
	}{
		{name: "not json", message: "hello"},
		{name: "wrong type", message: `{"type":"subscribe","token":"x"}`},
		{name: "invalid token", message: `{"type":"auth","token":"not-a-jwt"}`},
		{name: "refresh token", message: `{"type":"auth","token":"` + pair.RefreshToken + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			if err != nil {
				t.Fatalf("dial: %v", err)
			}
			defer conn.Close()

			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.message)); err != nil {
				t.Fatalf("write: %v", err)
			}
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			_, _, err = conn.ReadMessage()

			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) || closeErr.Code != websocket.ClosePolicyViolation {
				t.Fatalf("expected policy violation close, got %v", err)
			}
		})
	}
}
