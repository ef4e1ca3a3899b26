package matching

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"jobMatch/internal/database"
)

// GormResultStore 基于 GORM 的 ResultStore 实现。
type GormResultStore struct {
	db *gorm.DB
}

// NewGormResultStore 返回 GormResultStore 实例。
func NewGormResultStore(db *gorm.DB) *GormResultStore {
	return &GormResultStore{db: db}
}

func (s *GormResultStore) Insert(ctx context.Context, result *database.MatchResult) error {
	if err := s.db.WithContext(ctx).Omit("JobOffer").Create(result).Error; err != nil {
		return fmt.Errorf("insert match result: %w", err)
	}
	return nil
}

// DeleteAllForUser 删除用户的全部结果，没有记录时不报错。
func (s *GormResultStore) DeleteAllForUser(ctx context.Context, userID uint) error {
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&database.MatchResult{}).Error; err != nil {
		return fmt.Errorf("delete match results for user %d: %w", userID, err)
	}
	return nil
}

func (s *GormResultStore) FindForUser(ctx context.Context, userID uint) ([]database.MatchResult, error) {
	var results []database.MatchResult
	err := s.withOffers(ctx).
		Where("user_id = ?", userID).
		Order("job_offer_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("find match results for user %d: %w", userID, err)
	}
	return results, nil
}

func (s *GormResultStore) FindForUserCreatedAfter(ctx context.Context, userID uint, ts time.Time) ([]database.MatchResult, error) {
	var results []database.MatchResult
	err := s.withOffers(ctx).
		Where("user_id = ? AND created_at > ?", userID, ts.UTC()).
		Order("job_offer_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, fmt.Errorf("find recent match results for user %d: %w", userID, err)
	}
	return results, nil
}

func (s *GormResultStore) ReplaceForUser(ctx context.Context, userID uint, results []database.MatchResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&database.MatchResult{}).Error; err != nil {
			return fmt.Errorf("delete match results for user %d: %w", userID, err)
		}
		if len(results) == 0 {
			return nil
		}
		if err := tx.Omit("JobOffer").Create(&results).Error; err != nil {
			return fmt.Errorf("insert match results for user %d: %w", userID, err)
		}
		return nil
	})
}

func (s *GormResultStore) withOffers(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("JobOffer").Preload("JobOffer.Entreprise")
}

// GormOfferCatalog 从数据库读取激活的职位。
type GormOfferCatalog struct {
	db *gorm.DB
}

func NewGormOfferCatalog(db *gorm.DB) *GormOfferCatalog {
	return &GormOfferCatalog{db: db}
}

func (c *GormOfferCatalog) ActiveOffers(ctx context.Context) ([]database.JobOffer, error) {
	var offers []database.JobOffer
	err := c.db.WithContext(ctx).
		Preload("Entreprise").
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&offers).Error
	if err != nil {
		return nil, fmt.Errorf("list active job offers: %w", err)
	}
	return offers, nil
}

// GormUserStore 读取用户的 CV 字段。
type GormUserStore struct {
	db *gorm.DB
}

func NewGormUserStore(db *gorm.DB) *GormUserStore {
	return &GormUserStore{db: db}
}

func (s *GormUserStore) GetByID(ctx context.Context, id uint) (*database.User, error) {
	var user database.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return nil, fmt.Errorf("load user %d: %w", id, err)
	}
	return &user, nil
}

// HasCV 只查询判断 CV 是否存在所需的列，不加载 CV 内容。
func (s *GormUserStore) HasCV(ctx context.Context, id uint) (bool, error) {
	var row struct {
		CVFilename *string
		HasBlob    bool
	}
	err := s.db.WithContext(ctx).
		Model(&database.User{}).
		Select("cv_filename, COALESCE(length(cv_data), 0) > 0 AS has_blob").
		Where("id = ?", id).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: user %d", ErrNotFound, id)
		}
		return false, fmt.Errorf("load user %d: %w", id, err)
	}
	return row.HasBlob || (row.CVFilename != nil && *row.CVFilename != ""), nil
}
