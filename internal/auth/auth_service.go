package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// 令牌类型，同时写入 aud，访问令牌不能冒充刷新令牌。
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

const (
	tokenIssuer = "jobmatch"
	clockSkew   = 5 * time.Second
)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrWrongTokenType = errors.New("wrong token type")
)

// AuthService 签发与校验求职者、招聘方、管理员的 JWT，并代理密码哈希。
type AuthService struct {
	signer   *rsa.PrivateKey
	verifier *rsa.PublicKey
	ttl      map[string]time.Duration
	now      func() time.Time
}

// TokenPair 是登录与刷新接口返回的令牌组合。
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenClaims 中 UserID 由 sub 解析得到，不单独序列化。
type TokenClaims struct {
	UserID    uint   `json:"-"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// NewAuthService 解析 PEM 密钥对。
func NewAuthService(privateKeyPEM, publicKeyPEM []byte, accessTTL, refreshTTL time.Duration) (*AuthService, error) {
	signer, verifier, err := parseKeyPair(privateKeyPEM, publicKeyPEM)
	if err != nil {
		return nil, err
	}
	if refreshTTL <= 0 {
		return nil, errors.New("refresh token ttl must be positive")
	}
	return &AuthService{
		signer:   signer,
		verifier: verifier,
		ttl: map[string]time.Duration{
			TokenTypeAccess:  accessTTL,
			TokenTypeRefresh: refreshTTL,
		},
		now: time.Now,
	}, nil
}

func parseKeyPair(privateKeyPEM, publicKeyPEM []byte) (*rsa.PrivateKey, *rsa.PublicKey, error) {
	if len(privateKeyPEM) == 0 || len(publicKeyPEM) == 0 {
		return nil, nil, errors.New("jwt key pair pem is required")
	}
	signer, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse rsa private key: %w", err)
	}
	verifier, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
	if err != nil {
		return nil, nil, fmt.Errorf("parse rsa public key: %w", err)
	}
	if !signer.PublicKey.Equal(verifier) {
		return nil, nil, errors.New("jwt public key does not match private key")
	}
	return signer, verifier, nil
}

func (s *AuthService) HashPassword(password string) (string, error) {
	return HashPassword(password)
}

func (s *AuthService) CheckPasswordHash(password, hash string) bool {
	return CheckPasswordHash(password, hash)
}

// GenerateTokenPair 为用户签发一对令牌，刷新令牌带 jti 以便登出后拉黑。
func (s *AuthService) GenerateTokenPair(userID uint, role string) (TokenPair, error) {
	if userID == 0 || role == "" {
		return TokenPair{}, errors.New("token subject requires user id and role")
	}
	now := s.now()
	access, err := s.issue(userID, role, TokenTypeAccess, "", now)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.issue(userID, role, TokenTypeRefresh, uuid.NewString(), now)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *AuthService) issue(userID uint, role, tokenType, jti string, now time.Time) (string, error) {
	claims := TokenClaims{
		Role:      role,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   strconv.FormatUint(uint64(userID), 10),
			Audience:  jwt.ClaimStrings{tokenType},
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl[tokenType])),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.signer)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", tokenType, err)
	}
	return signed, nil
}

// ValidateAccessToken 供 HTTP 中间件与 WebSocket 鉴权使用。
func (s *AuthService) ValidateAccessToken(tokenString string) (*TokenClaims, error) {
	return s.validate(tokenString, TokenTypeAccess)
}

// ValidateRefreshToken 额外要求 jti，黑名单按 jti 记录。
func (s *AuthService) ValidateRefreshToken(tokenString string) (*TokenClaims, error) {
	claims, err := s.validate(tokenString, TokenTypeRefresh)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("%w: refresh token without jti", ErrInvalidToken)
	}
	return claims, nil
}

func (s *AuthService) validate(tokenString, tokenType string) (*TokenClaims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	claims := &TokenClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return s.verifier, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(clockSkew),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	// aud 与 token_type 必须一致。
	if claims.TokenType != tokenType || !audienceContains(claims.Audience, tokenType) {
		return nil, fmt.Errorf("%w: got %q want %q", ErrWrongTokenType, claims.TokenType, tokenType)
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 0)
	if err != nil || userID == 0 {
		return nil, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, claims.Subject)
	}
	if claims.Role == "" {
		return nil, fmt.Errorf("%w: missing role", ErrInvalidToken)
	}
	claims.UserID = uint(userID)
	return claims, nil
}

func audienceContains(aud jwt.ClaimStrings, want string) bool {
	for _, a := range aud {
		if a == want {
			return true
		}
	}
	return false
}

// AccessTokenTTL 用于响应里的 expires_in。
func (s *AuthService) AccessTokenTTL() time.Duration {
	return s.ttl[TokenTypeAccess]
}

// RefreshTokenTTL 是刷新令牌黑名单条目的兜底 TTL。
func (s *AuthService) RefreshTokenTTL() time.Duration {
	return s.ttl[TokenTypeRefresh]
}
