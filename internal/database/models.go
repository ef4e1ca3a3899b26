package database

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// 角色常量。
const (
	RoleCandidate = "candidate"
	RoleRecruiter = "recruiter"
	RoleAdmin     = "admin"
)

// User 表示系统中的账号信息，以及匹配所需的 CV 字段。
type User struct {
	gorm.Model
	Username      string `gorm:"uniqueIndex;size:64"`
	PasswordHash  string `gorm:"size:255"`
	Role          string `gorm:"size:32"`
	CVData        []byte
	CVFilename    *string `gorm:"size:255"`
	CVContentType *string `gorm:"size:128"`
	// CVUploadDate 为毫秒时间戳。
	CVUploadDate *int64
}

// HasCV 判断用户是否存在可用的 CV 来源。
func (u *User) HasCV() bool {
	if len(u.CVData) > 0 {
		return true
	}
	return u.CVFilename != nil && *u.CVFilename != ""
}

// Entreprise 表示发布职位的公司。
type Entreprise struct {
	gorm.Model
	Name    string `gorm:"size:255"`
	LogoURL string `gorm:"size:512"`
}

// JobOffer 表示一条职位信息。
type JobOffer struct {
	gorm.Model
	Title             string `gorm:"size:255"`
	Description       string `gorm:"type:text"`
	EntrepriseID      *uint  `gorm:"index"`
	Entreprise        *Entreprise
	Location          string `gorm:"size:255"`
	ContractType      string `gorm:"size:32"`
	TechnicalSkills   datatypes.JSONSlice[string]
	SoftSkills        datatypes.JSONSlice[string]
	Education         string `gorm:"size:255"`
	DesiredExperience string `gorm:"size:255"`
	Certifications    datatypes.JSONSlice[string]
	IsActive          bool  `gorm:"index"`
	RecruiterID       *uint `gorm:"index"`
}

// MatchResult 表示一次 (用户, 职位) 匹配结果。
// 结果只会被整体删除后重新插入，不做原地更新。
type MatchResult struct {
	ID           uint `gorm:"primarykey"`
	UserID       uint `gorm:"uniqueIndex:idx_match_user_offer;index"`
	JobOfferID   uint `gorm:"uniqueIndex:idx_match_user_offer"`
	JobOffer     *JobOffer
	MatchScore   float64 `gorm:"index"`
	Explanations datatypes.JSONSlice[string]
	CreatedAt    time.Time `gorm:"index"`
	UpdatedAt    time.Time
}
