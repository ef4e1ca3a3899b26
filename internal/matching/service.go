package matching

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"jobMatch/internal/database"
	"jobMatch/internal/metrics"
)

// 评分意图，用于日志与指标。
const (
	intentScore   = "score"
	intentExplain = "explain"
	intentSkills  = "skills"
)

// Options 控制缓存与重算行为。
type Options struct {
	// CacheDuration 为结果可复用的时长，超过后会重算。
	CacheDuration time.Duration
	// CallTimeout 为每次评分调用的超时，超时按失败处理并使用兜底值。
	CallTimeout time.Duration
	// ScoreConcurrency 为并发评分的职位数，1 表示逐个评分。
	ScoreConcurrency int
	// AtomicRecompute 为 true 时先完成全部评分，再在单个事务内替换旧结果。
	// 为 false 时先单独提交删除，再逐条独立写入。
	AtomicRecompute bool
}

// Deps 汇总 Service 的协作者。Locker 可以为空。
type Deps struct {
	Users     UserProfileStore
	Offers    JobOfferCatalog
	Results   ResultStore
	Extractor TextExtractor
	Backend   ScoringBackend
	CVFiles   CVFileSource
	Locker    Locker
	Logger    *slog.Logger
}

// Service 负责缓存判断、评分编排与结果排序。
type Service struct {
	users     UserProfileStore
	offers    JobOfferCatalog
	results   ResultStore
	extractor TextExtractor
	backend   ScoringBackend
	cvFiles   CVFileSource
	locker    Locker
	userLocks *userMutex
	logger    *slog.Logger
	opts      Options

	now       func() time.Time
	randFloat func() float64
}

// NewService 构造匹配服务。
func NewService(deps Deps, opts Options) *Service {
	if opts.ScoreConcurrency <= 0 {
		opts.ScoreConcurrency = 1
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 30 * time.Second
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:     deps.Users,
		offers:    deps.Offers,
		results:   deps.Results,
		extractor: deps.Extractor,
		backend:   deps.Backend,
		cvFiles:   deps.CVFiles,
		locker:    deps.Locker,
		userLocks: newUserMutex(),
		logger:    logger,
		opts:      opts,
		now:       time.Now,
		randFloat: rand.Float64,
	}
}

// GetMatches 返回用户的排序匹配结果。缓存未过期且 CV 未更新时直接复用已存结果，
// 否则重新评分全部激活职位。
func (s *Service) GetMatches(ctx context.Context, userID uint) ([]RankedMatch, error) {
	log := s.logger.With(slog.Uint64("user_id", uint64(userID)))

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasCV() {
		return nil, fmt.Errorf("%w: user %d has no CV", ErrInvalidState, userID)
	}

	// 非原子模式下重算逐条写入，必须持锁后再读缓存。
	if s.opts.AtomicRecompute {
		if ranked, ok, err := s.cached(ctx, user, log); err != nil || ok {
			return ranked, err
		}
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 等锁期间其他请求可能已经完成重算。
	if ranked, ok, err := s.cached(ctx, user, log); err != nil || ok {
		return ranked, err
	}

	log.Info("no fresh match results, recomputing")
	return s.recompute(ctx, user, false, log)
}

// ForceRecompute 忽略缓存，删除旧结果并重新评分全部激活职位。
func (s *Service) ForceRecompute(ctx context.Context, userID uint) ([]RankedMatch, error) {
	log := s.logger.With(slog.Uint64("user_id", uint64(userID)))

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.HasCV() {
		return nil, fmt.Errorf("%w: user %d has no CV", ErrInvalidState, userID)
	}

	unlock, err := s.lockUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log.Info("forced match recompute")
	return s.recompute(ctx, user, true, log)
}

// ExtractSkills 从用户 CV 中提取结构化技能；后端失败时返回固定摘要。
func (s *Service) ExtractSkills(ctx context.Context, userID uint) (Skills, error) {
	log := s.logger.With(slog.Uint64("user_id", uint64(userID)))

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return Skills{}, err
	}
	cvText, err := s.cvText(ctx, user)
	if err != nil {
		return Skills{}, err
	}

	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	skills, err := s.backend.ExtractSkills(callCtx, cvText)
	cancel()
	if err != nil {
		metrics.ObserveScoringCall(intentSkills, metrics.OutcomeFallback, time.Since(start))
		log.Warn("skills extraction failed, using placeholder", slog.Any("error", err))
		return placeholderSkills(), nil
	}
	metrics.ObserveScoringCall(intentSkills, metrics.OutcomeOK, time.Since(start))
	return skills, nil
}

// cached 返回仍然有效的缓存结果。ok 为 false 表示需要重算。
func (s *Service) cached(ctx context.Context, user *database.User, log *slog.Logger) (_ []RankedMatch, ok bool, _ error) {
	threshold := s.now().UTC().Add(-s.opts.CacheDuration)
	existing, err := s.results.FindForUserCreatedAfter(ctx, user.ID, threshold)
	if err != nil {
		return nil, false, err
	}
	if len(existing) == 0 {
		metrics.IncCacheLookup(metrics.CacheMiss)
		return nil, false, nil
	}
	if cvUpdatedAfter(user, existing) {
		metrics.IncCacheLookup(metrics.CacheStale)
		log.Info("cv uploaded after cached results, cache is stale")
		return nil, false, nil
	}

	metrics.IncCacheLookup(metrics.CacheHit)
	log.Debug("using cached match results", slog.Int("count", len(existing)))
	return rankResults(existing), true, nil
}

// cvUpdatedAfter 判断 CV 上传时间（毫秒，按秒截断，UTC）是否晚于最新一条结果。
// 截断到秒后，与最新结果同一秒内的上传不会让缓存失效，只能等缓存过期；
// 上传接口会额外排队一次后台重算来覆盖这一秒的窗口。
func cvUpdatedAfter(user *database.User, results []database.MatchResult) bool {
	if user.CVUploadDate == nil || len(results) == 0 {
		return false
	}
	latest := results[0].CreatedAt
	for _, r := range results[1:] {
		if r.CreatedAt.After(latest) {
			latest = r.CreatedAt
		}
	}
	uploaded := time.Unix(*user.CVUploadDate/1000, 0).UTC()
	return uploaded.After(latest)
}

type scoredOffer struct {
	offer        *database.JobOffer
	score        float64
	explanations []string
}

// recompute 调用方必须持有该用户的锁。
func (s *Service) recompute(ctx context.Context, user *database.User, force bool, log *slog.Logger) ([]RankedMatch, error) {
	// 强制重算无论职位是否为空都会清掉旧结果。
	if force && !s.opts.AtomicRecompute {
		if err := s.results.DeleteAllForUser(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	cvText, err := s.cvText(ctx, user)
	if err != nil {
		return nil, err
	}

	offers, err := s.offers.ActiveOffers(ctx)
	if err != nil {
		return nil, err
	}
	if len(offers) == 0 {
		log.Info("no active job offers")
		if force && s.opts.AtomicRecompute {
			if err := s.results.ReplaceForUser(ctx, user.ID, nil); err != nil {
				return nil, err
			}
		}
		return []RankedMatch{}, nil
	}
	log.Info("scoring active job offers", slog.Int("offers", len(offers)))
	metrics.ObserveRecomputeOffers(len(offers))

	if !force && !s.opts.AtomicRecompute {
		if err := s.results.DeleteAllForUser(ctx, user.ID); err != nil {
			return nil, err
		}
	}

	createdAt := s.now().UTC()
	scored := make([]scoredOffer, len(offers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.ScoreConcurrency)
	for i := range offers {
		i := i
		offer := &offers[i]
		g.Go(func() error {
			// 已有写入失败时不再继续评分。
			if err := gctx.Err(); err != nil {
				return err
			}
			offerText := BuildOfferText(offer)
			scored[i] = scoredOffer{
				offer:        offer,
				score:        s.score(gctx, cvText, offerText, log),
				explanations: s.explain(gctx, cvText, offer, offerText, log),
			}
			if s.opts.AtomicRecompute {
				return nil
			}
			row := newResultRow(user.ID, scored[i], createdAt)
			return s.results.Insert(gctx, &row)
		})
	}
	if err := g.Wait(); err != nil {
		log.Error("match recompute aborted", slog.Any("error", err))
		return nil, err
	}

	if s.opts.AtomicRecompute {
		rows := make([]database.MatchResult, 0, len(scored))
		for _, so := range scored {
			rows = append(rows, newResultRow(user.ID, so, createdAt))
		}
		if err := s.results.ReplaceForUser(ctx, user.ID, rows); err != nil {
			return nil, err
		}
	}

	ranked := make([]RankedMatch, 0, len(scored))
	for _, so := range scored {
		ranked = append(ranked, RankedMatch{
			Offer:        summarizeOffer(so.offer.ID, so.offer),
			MatchScore:   so.score,
			Explanations: so.explanations,
		})
	}
	sortByScore(ranked)
	return ranked, nil
}

func newResultRow(userID uint, so scoredOffer, createdAt time.Time) database.MatchResult {
	return database.MatchResult{
		UserID:       userID,
		JobOfferID:   so.offer.ID,
		MatchScore:   so.score,
		Explanations: so.explanations,
		CreatedAt:    createdAt,
		UpdatedAt:    createdAt,
	}
}

// score 调用后端评分，任何失败都替换为 [30,100) 的随机分。
func (s *Service) score(ctx context.Context, cvText, offerText string, log *slog.Logger) float64 {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	value, err := s.backend.Score(callCtx, cvText, offerText)
	if err != nil {
		metrics.ObserveScoringCall(intentScore, metrics.OutcomeFallback, time.Since(start))
		log.Warn("score call failed, using fallback score", slog.Any("error", err))
		return fallbackScore(s.randFloat())
	}
	metrics.ObserveScoringCall(intentScore, metrics.OutcomeOK, time.Since(start))
	return value
}

// explain 调用后端生成解释，失败或没有有效条目时使用职位字段生成的模板句。
func (s *Service) explain(ctx context.Context, cvText string, offer *database.JobOffer, offerText string, log *slog.Logger) []string {
	start := time.Now()
	callCtx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
	defer cancel()

	explanations, err := s.backend.Explain(callCtx, cvText, offerText)
	if err != nil || len(explanations) == 0 {
		metrics.ObserveScoringCall(intentExplain, metrics.OutcomeFallback, time.Since(start))
		log.Warn("explain call failed, using fallback explanations",
			slog.Uint64("job_offer_id", uint64(offer.ID)),
			slog.Any("error", err),
		)
		return fallbackExplanations(offer)
	}
	metrics.ObserveScoringCall(intentExplain, metrics.OutcomeOK, time.Since(start))
	return explanations
}

// cvText 读取 CV 字节（优先数据库，其次文件）并提取一次文本。
func (s *Service) cvText(ctx context.Context, user *database.User) (string, error) {
	var data []byte
	switch {
	case len(user.CVData) > 0:
		data = user.CVData
	case user.CVFilename != nil && *user.CVFilename != "":
		if s.cvFiles == nil {
			return "", fmt.Errorf("%w: no CV file source configured", ErrInvalidState)
		}
		raw, err := s.cvFiles.ReadCV(ctx, *user.CVFilename)
		if err != nil {
			s.logger.Error("read cv file failed",
				slog.Uint64("user_id", uint64(user.ID)),
				slog.Any("error", err),
			)
			return "", fmt.Errorf("%w: unable to read CV file: %w", ErrInvalidState, err)
		}
		data = raw
	default:
		return "", fmt.Errorf("%w: user %d has no CV", ErrInvalidState, user.ID)
	}

	text, err := s.extractor.Extract(data)
	if err != nil {
		return "", fmt.Errorf("%w: extract CV text: %w", ErrInvalidState, err)
	}
	return text, nil
}

// lockUser 先取进程内锁，再取可选的分布式锁。
func (s *Service) lockUser(ctx context.Context, userID uint) (func(), error) {
	release, err := s.userLocks.lock(ctx, userID)
	if err != nil {
		return nil, err
	}
	if s.locker == nil {
		return release, nil
	}
	unlock, err := s.locker.Lock(ctx, userID)
	if err != nil {
		release()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, fmt.Errorf("lock user %d: %w", userID, err)
	}
	return func() {
		unlock()
		release()
	}, nil
}
