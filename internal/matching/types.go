package matching

import (
	"context"
	"errors"
	"io"
	"time"

	"jobMatch/internal/database"
)

var (
	// ErrNotFound 表示引用的用户不存在。
	ErrNotFound = errors.New("matching: not found")
	// ErrInvalidState 表示前置条件不满足，例如没有 CV 或 CV 无法读取。
	ErrInvalidState = errors.New("matching: invalid state")
	// ErrBackendUnavailable 表示评分后端调用失败，仅在包内使用，总会被兜底值替换。
	ErrBackendUnavailable = errors.New("matching: scoring backend unavailable")
)

// TextExtractor 将 CV 原始字节转换为纯文本。
type TextExtractor interface {
	Extract(data []byte) (string, error)
}

// ScoringBackend 是外部评分能力，三种意图共用同一个传输通道。
type ScoringBackend interface {
	Score(ctx context.Context, cvText, offerText string) (float64, error)
	Explain(ctx context.Context, cvText, offerText string) ([]string, error)
	ExtractSkills(ctx context.Context, cvText string) (Skills, error)
}

// ResultStore 持久化匹配结果。
type ResultStore interface {
	Insert(ctx context.Context, result *database.MatchResult) error
	DeleteAllForUser(ctx context.Context, userID uint) error
	FindForUser(ctx context.Context, userID uint) ([]database.MatchResult, error)
	FindForUserCreatedAfter(ctx context.Context, userID uint, ts time.Time) ([]database.MatchResult, error)
	// ReplaceForUser 在单个事务内删除旧结果并写入新结果。
	ReplaceForUser(ctx context.Context, userID uint, results []database.MatchResult) error
}

// JobOfferCatalog 提供参与匹配的职位。
type JobOfferCatalog interface {
	ActiveOffers(ctx context.Context) ([]database.JobOffer, error)
}

// UserProfileStore 读取用户及其 CV 字段。未找到时返回 ErrNotFound。
type UserProfileStore interface {
	GetByID(ctx context.Context, id uint) (*database.User, error)
}

// CVFileSource 按文件名读取存放在数据库之外的 CV。
type CVFileSource interface {
	ReadCV(ctx context.Context, filename string) ([]byte, error)
}

// CVFileStore 在 CVFileSource 之上增加写入与删除，供 CV 上传使用。
type CVFileStore interface {
	CVFileSource
	PutCV(ctx context.Context, filename string, r io.Reader, size int64, contentType string) error
	DeleteCV(ctx context.Context, filename string) error
}

// Locker 串行化同一用户的重算。
type Locker interface {
	Lock(ctx context.Context, userID uint) (unlock func(), err error)
}

// Skills 是从 CV 中提取出的结构化技能摘要。
type Skills struct {
	TechnicalSkills []string `json:"technical_skills"`
	SoftSkills      []string `json:"soft_skills"`
	Experience      string   `json:"experience"`
	Education       string   `json:"education"`
	Certifications  []string `json:"certifications"`
}

// OfferSummary 是返回给调用方的职位摘要。
type OfferSummary struct {
	ID              uint     `json:"id"`
	Title           string   `json:"title"`
	CompanyName     string   `json:"company_name"`
	CompanyLogoURL  string   `json:"company_logo_url"`
	Location        string   `json:"location"`
	ContractType    string   `json:"contract_type"`
	TechnicalSkills []string `json:"technical_skills"`
	SoftSkills      []string `json:"soft_skills"`
}

// RankedMatch 是排序后的单条匹配结果。
type RankedMatch struct {
	Offer        OfferSummary `json:"job_offer"`
	MatchScore   float64      `json:"match_score"`
	Explanations []string     `json:"explanations"`
}
