package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobMatch/internal/auth"
	"jobMatch/internal/database"
)

const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

// AuthHandler 处理注册、登录、刷新与退出。
type AuthHandler struct {
	db          *gorm.DB
	authService *auth.AuthService
	redis       redis.UniversalClient
	limiter     *loginLimiter
	logger      *slog.Logger
}

// NewAuthHandler 构造认证处理器。
func NewAuthHandler(db *gorm.DB, authService *auth.AuthService, redisClient redis.UniversalClient, logger *slog.Logger, loginRateLimitPerHour int) *AuthHandler {
	return &AuthHandler{
		db:          db,
		authService: authService,
		redis:       redisClient,
		limiter:     newLoginLimiter(redisClient, loginRateLimitPerHour),
		logger:      logger,
	}
}

type registerRequest struct {
	Username string `json:"username" binding:"required,min=3,max=64"`
	Password string `json:"password" binding:"required,min=8,max=72"`
	// Role 只允许 candidate 或 recruiter，管理员通过 cmd/admin 创建。
	Role string `json:"role" binding:"omitempty,oneof=candidate recruiter"`
}

// Register 创建新用户账号。
func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.String("username", req.Username))

	var existing database.User
	if err := h.db.WithContext(ctx).Where("username = ?", req.Username).First(&existing).Error; err == nil {
		logger.Info("register conflict: user already exists")
		Conflict(c, "username already taken")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		logger.Error("register lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	hashed, err := h.authService.HashPassword(req.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		BadRequest(c, err.Error())
		return
	}
	if err != nil {
		logger.Error("hash password failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	role := req.Role
	if role == "" {
		role = database.RoleCandidate
	}
	user := database.User{
		Username:     req.Username,
		PasswordHash: hashed,
		Role:         role,
	}
	if err := h.db.WithContext(ctx).Create(&user).Error; err != nil {
		logger.Error("create user failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)), slog.String("role", role))
	c.JSON(http.StatusCreated, gin.H{"id": user.ID, "role": role})
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Role         string `json:"role"`
}

// Login 校验口令并返回 Token。
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger).With(slog.String("username", req.Username))

	if err := h.limiter.check(ctx, c.ClientIP(), req.Username); err != nil {
		logger.Info("login throttled", slog.Any("reason", err))
		Error(c, http.StatusTooManyRequests, err.Error())
		return
	}

	var user database.User
	if err := h.db.WithContext(ctx).Where("username = ?", req.Username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Info("login failed: user not found")
			h.recordLoginFailure(ctx, req.Username, logger)
			Unauthorized(c)
			return
		}
		logger.Error("login query failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if !h.authService.CheckPasswordHash(req.Password, user.PasswordHash) {
		logger.Info("login failed: password mismatch", slog.Uint64("user_id", uint64(user.ID)))
		h.recordLoginFailure(ctx, req.Username, logger)
		Unauthorized(c)
		return
	}

	if err := h.limiter.reset(ctx, req.Username); err != nil {
		logger.Warn("reset login failures failed", slog.Any("error", err))
	}
	h.upgradePasswordHash(ctx, &user, req.Password, logger)

	tokenPair, err := h.authService.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		logger.Error("generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	h.replyWithTokenPair(c, tokenPair, user.Role)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// Refresh 校验刷新令牌并颁发新的 TokenPair，旧令牌随即作废。
func (h *AuthHandler) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Unauthorized(c)
		return
	}

	ctx := c.Request.Context()
	logger := requestLogger(c, h.logger)

	claims, key, ok := h.validateRefreshToken(c, req.RefreshToken, logger)
	if !ok {
		return
	}

	// 角色以数据库为准，令牌颁发后可能已被调整。
	var user database.User
	if err := h.db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
		logger.Info("refresh user not found", slog.Any("error", err))
		Unauthorized(c)
		return
	}

	tokenPair, err := h.authService.GenerateTokenPair(user.ID, user.Role)
	if err != nil {
		logger.Error("refresh generate token pair failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	if err := h.revokeRefreshToken(ctx, key, claims.ExpiresAt); err != nil {
		logger.Error("refresh revoke old token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}

	h.replyWithTokenPair(c, tokenPair, user.Role)
}

// Logout 将刷新令牌加入黑名单。
func (h *AuthHandler) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "refresh token missing")
		return
	}

	logger := requestLogger(c, h.logger)
	claims, key, ok := h.validateRefreshToken(c, req.RefreshToken, logger)
	if !ok {
		return
	}
	if err := h.revokeRefreshToken(c.Request.Context(), key, claims.ExpiresAt); err != nil {
		logger.Error("logout revoke token failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	c.Status(http.StatusOK)
}

// validateRefreshToken 校验类型、jti 与黑名单，失败时已写入响应。
func (h *AuthHandler) validateRefreshToken(c *gin.Context, token string, logger *slog.Logger) (*auth.TokenClaims, string, bool) {
	claims, err := h.authService.ValidateRefreshToken(token)
	if err != nil {
		logger.Info("refresh token rejected", slog.Any("error", err))
		Unauthorized(c)
		return nil, "", false
	}

	key := refreshTokenBlacklistKeyPrefix + claims.ID
	if err := h.redis.Get(c.Request.Context(), key).Err(); err == nil {
		logger.Info("refresh token revoked", slog.String("jti", claims.ID))
		Unauthorized(c)
		return nil, "", false
	} else if !errors.Is(err, redis.Nil) {
		logger.Error("refresh token blacklist lookup failed", slog.Any("error", err))
		Internal(c, "internal error")
		return nil, "", false
	}
	return claims, key, true
}

func (h *AuthHandler) replyWithTokenPair(c *gin.Context, tokenPair auth.TokenPair, role string) {
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  tokenPair.AccessToken,
		RefreshToken: tokenPair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int(h.authService.AccessTokenTTL().Seconds()),
		Role:         role,
	})
}

func (h *AuthHandler) revokeRefreshToken(ctx context.Context, key string, expiresAt *jwt.NumericDate) error {
	var ttl time.Duration
	if expiresAt == nil {
		ttl = h.authService.RefreshTokenTTL()
	} else {
		ttl = time.Until(expiresAt.Time)
	}
	if ttl <= 0 {
		ttl = time.Second
	}
	return h.redis.Set(ctx, key, "revoked", ttl).Err()
}

func (h *AuthHandler) recordLoginFailure(ctx context.Context, username string, logger *slog.Logger) {
	if err := h.limiter.recordFailure(ctx, username); err != nil {
		logger.Warn("record login failure failed", slog.Any("error", err))
	}
}

// upgradePasswordHash 在旧哈希 cost 偏低时用本次登录的明文重新生成哈希，失败只记日志。
func (h *AuthHandler) upgradePasswordHash(ctx context.Context, user *database.User, password string, logger *slog.Logger) {
	if !auth.NeedsRehash(user.PasswordHash) {
		return
	}
	hashed, err := h.authService.HashPassword(password)
	if err != nil {
		logger.Warn("rehash password failed", slog.Any("error", err))
		return
	}
	if err := h.db.WithContext(ctx).Model(user).Update("password_hash", hashed).Error; err != nil {
		logger.Warn("store upgraded password hash failed", slog.Any("error", err))
	}
}
