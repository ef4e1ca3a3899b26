package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"jobMatch/internal/auth"
	"jobMatch/internal/tasks"
)

const (
	wsAuthTimeout  = 10 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteWait    = 5 * time.Second
)

// WsHandler 负责 WebSocket 鉴权，并把 Worker 发布的匹配重算通知转发给浏览器。
//
// 协议：连接建立后客户端须在 wsAuthTimeout 内发送 {"type":"auth","token":"<access token>"}，
// 之后服务端只下发 tasks.NotifyChannel(userID) 上的消息。
type WsHandler struct {
	redisClient redis.UniversalClient
	authService *auth.AuthService
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewWsHandler 构造 WebSocket 处理器。allowedOrigins 为空时只接受同源请求。
func NewWsHandler(redisClient redis.UniversalClient, authService *auth.AuthService, logger *slog.Logger, allowedOrigins []string) *WsHandler {
	return &WsHandler{
		redisClient: redisClient,
		authService: authService,
		logger:      logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowedOrigins, r)
			},
		},
	}
}

func originAllowed(allowed []string, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if len(allowed) == 0 {
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
	return slices.Contains(allowed, origin)
}

type wsAuthMessage struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

// wsSession 对应一条已升级的连接。
type wsSession struct {
	conn   *websocket.Conn
	log    *slog.Logger
	cancel context.CancelFunc
	errCh  chan error
}

// fail 只保留第一个错误，随后取消整个会话。
func (s *wsSession) fail(err error) {
	select {
	case s.errCh <- err:
	default:
	}
	s.cancel()
}

func (s *wsSession) close(code int, text string) {
	_ = s.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(wsWriteWait))
}

// HandleConnection 升级连接，完成鉴权后转发该用户的匹配通知。
func (h *WsHandler) HandleConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("upgrade websocket failed", slog.Any("error", err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	session := &wsSession{
		conn:   conn,
		log:    h.logger.With(slog.String("client_ip", c.ClientIP())),
		cancel: cancel,
		errCh:  make(chan error, 1),
	}

	userID, err := h.authenticate(session)
	if err != nil {
		session.log.Warn("websocket authentication failed", slog.Any("error", err))
		return
	}
	session.log = session.log.With(slog.Uint64("user_id", uint64(userID)))
	session.log.Info("websocket authenticated")

	go session.drain(ctx)
	go h.forward(ctx, session, userID)

	<-ctx.Done()
	select {
	case err := <-session.errCh:
		session.log.Info("websocket connection closed", slog.Any("error", err))
	default:
		session.log.Info("websocket connection closed")
	}
}

// authenticate 读取第一条消息并校验访问令牌。
func (h *WsHandler) authenticate(s *wsSession) (uint, error) {
	_ = s.conn.SetReadDeadline(time.Now().Add(wsAuthTimeout))
	defer func() { _ = s.conn.SetReadDeadline(time.Time{}) }()

	_, message, err := s.conn.ReadMessage()
	if err != nil {
		s.close(websocket.ClosePolicyViolation, "auth timeout")
		return 0, fmt.Errorf("read auth message: %w", err)
	}

	var msg wsAuthMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		s.close(websocket.ClosePolicyViolation, "invalid auth payload")
		return 0, fmt.Errorf("decode auth payload: %w", err)
	}
	if msg.Type != "auth" || msg.Token == "" {
		s.close(websocket.ClosePolicyViolation, "auth required")
		return 0, errors.New("invalid auth message")
	}

	claims, err := h.authService.ValidateAccessToken(msg.Token)
	if errors.Is(err, auth.ErrWrongTokenType) {
		s.close(websocket.ClosePolicyViolation, "access token required")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	if err != nil {
		s.close(websocket.ClosePolicyViolation, "unauthorized")
		return 0, fmt.Errorf("validate token: %w", err)
	}
	return claims.UserID, nil
}

// drain 持续读取以感知断开，鉴权后的客户端消息一律忽略。
func (s *wsSession) drain(ctx context.Context) {
	for ctx.Err() == nil {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			s.fail(fmt.Errorf("read message: %w", err))
			return
		}
	}
}

func (h *WsHandler) forward(ctx context.Context, s *wsSession, userID uint) {
	channel := tasks.NotifyChannel(userID)
	pubsub := h.redisClient.Subscribe(ctx, channel)
	defer pubsub.Close()

	s.log.Info("subscribed to redis channel", slog.String("channel", channel))

	ch := pubsub.Channel()
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				s.fail(errors.New("pubsub channel closed"))
				return
			}
			if !json.Valid([]byte(msg.Payload)) {
				s.log.Warn("dropping malformed notification", slog.String("channel", channel))
				continue
			}
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, []byte(msg.Payload)); err != nil {
				s.fail(fmt.Errorf("write message: %w", err))
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				s.fail(fmt.Errorf("write ping: %w", err))
				return
			}
		}
	}
}
