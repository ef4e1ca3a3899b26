package matching

import (
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"jobMatch/internal/config"
	"jobMatch/internal/ollama"
	"jobMatch/internal/storage"
)

// NewCVFileStore 按 matching.cv_source 选择 CV 的存放位置。
func NewCVFileStore(cfg *config.Config) (CVFileStore, error) {
	switch cfg.Matching.CVSource {
	case config.CVSourceLocal:
		return NewDirCVSource(cfg.Matching.UploadDir), nil
	case config.CVSourceMinIO:
		client, err := storage.NewClient(cfg.MinIO)
		if err != nil {
			return nil, fmt.Errorf("init storage client: %w", err)
		}
		return NewObjectCVSource(client), nil
	default:
		return nil, fmt.Errorf("unknown cv source %q", cfg.Matching.CVSource)
	}
}

// OptionsFromConfig 将配置转换为 Service 选项。
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		CacheDuration:    cfg.Matching.CacheDuration(),
		CallTimeout:      cfg.Ollama.Timeout,
		ScoreConcurrency: cfg.Matching.ScoreConcurrency,
		AtomicRecompute:  cfg.Matching.AtomicRecompute,
	}
}

// NewServiceFromConfig 组装 API 与 Worker 共用的匹配服务。redisClient 为空时只使用进程内锁。
func NewServiceFromConfig(cfg *config.Config, db *gorm.DB, cvFiles CVFileSource, redisClient redis.UniversalClient, logger *slog.Logger) *Service {
	deps := Deps{
		Users:     NewGormUserStore(db),
		Offers:    NewGormOfferCatalog(db),
		Results:   NewGormResultStore(db),
		Extractor: PlainTextExtractor{},
		Backend:   NewLLMBackend(ollama.NewClient(cfg.Ollama)),
		CVFiles:   cvFiles,
		Logger:    logger,
	}
	if redisClient != nil {
		deps.Locker = NewRedisLocker(redisClient, cfg.Matching.LockTTL)
	}
	return NewService(deps, OptionsFromConfig(cfg))
}
