package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"jobMatch/internal/matching"
	"jobMatch/internal/tasks"
)

const noMatchesMessage = "no matching job offers found"

// MatchingService 是匹配接口依赖的服务能力，由 matching.Service 实现。
type MatchingService interface {
	GetMatches(ctx context.Context, userID uint) ([]matching.RankedMatch, error)
	ForceRecompute(ctx context.Context, userID uint) ([]matching.RankedMatch, error)
	ExtractSkills(ctx context.Context, userID uint) (matching.Skills, error)
}

// TaskEnqueuer 是 asynq.Client 的子集。
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// MatchingHandler 暴露技能提取与职位匹配接口。
type MatchingHandler struct {
	service MatchingService
	queue   TaskEnqueuer
	logger  *slog.Logger
}

// NewMatchingHandler 构造匹配处理器。queue 为空时不支持异步重算。
func NewMatchingHandler(service MatchingService, queue TaskEnqueuer, logger *slog.Logger) *MatchingHandler {
	return &MatchingHandler{service: service, queue: queue, logger: logger}
}

type matchesResponse struct {
	Matches []matching.RankedMatch `json:"matches"`
	Message string                 `json:"message,omitempty"`
}

// GetSkills 返回当前用户 CV 的技能摘要。
func (h *MatchingHandler) GetSkills(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	skills, err := h.service.ExtractSkills(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, userID, "extract skills", err)
		return
	}
	c.JSON(http.StatusOK, skills)
}

// GetJobMatches 返回当前用户的排序匹配结果，缓存有效时不会重新评分。
func (h *MatchingHandler) GetJobMatches(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	matches, err := h.service.GetMatches(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, userID, "get matches", err)
		return
	}
	writeMatches(c, matches)
}

// RefreshJobMatches 忽略缓存重新评分。?async=true 时改为投递后台任务并立即返回 202。
func (h *MatchingHandler) RefreshJobMatches(c *gin.Context) {
	userID, ok := userIDFromContext(c)
	if !ok {
		AbortUnauthorized(c)
		return
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		h.enqueueRecompute(c, userID)
		return
	}

	matches, err := h.service.ForceRecompute(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, userID, "force recompute", err)
		return
	}
	writeMatches(c, matches)
}

// GetUserJobMatches 供管理员查看任意用户的匹配结果。
func (h *MatchingHandler) GetUserJobMatches(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("userId"), 10, 64)
	if err != nil || id == 0 {
		BadRequest(c, "invalid user id")
		return
	}
	userID := uint(id)

	matches, err := h.service.GetMatches(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, userID, "admin get matches", err)
		return
	}
	writeMatches(c, matches)
}

func (h *MatchingHandler) enqueueRecompute(c *gin.Context, userID uint) {
	log := requestLogger(c, h.logger).With(slog.Uint64("user_id", uint64(userID)))
	if h.queue == nil {
		Error(c, http.StatusServiceUnavailable, "background recompute is not available")
		return
	}

	task, err := tasks.NewMatchRecomputeTask(userID)
	if err != nil {
		log.Error("build recompute task failed", slog.Any("error", err))
		Internal(c, "internal error")
		return
	}
	info, err := h.queue.EnqueueContext(c.Request.Context(), task)
	if err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			log.Info("recompute already queued")
			c.JSON(http.StatusAccepted, gin.H{"message": "recompute already queued"})
			return
		}
		log.Error("enqueue recompute task failed", slog.Any("error", err))
		Internal(c, "failed to queue recompute")
		return
	}

	log.Info("recompute task queued", slog.String("task_id", info.ID), slog.String("reason", "requested"))
	c.JSON(http.StatusAccepted, gin.H{
		"message": "recompute request accepted",
		"task_id": info.ID,
	})
}

func writeMatches(c *gin.Context, matches []matching.RankedMatch) {
	resp := matchesResponse{Matches: matches}
	if len(matches) == 0 {
		resp.Matches = []matching.RankedMatch{}
		resp.Message = noMatchesMessage
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MatchingHandler) respondError(c *gin.Context, userID uint, op string, err error) {
	log := requestLogger(c, h.logger).With(
		slog.Uint64("user_id", uint64(userID)),
		slog.String("op", op),
	)
	switch {
	case errors.Is(err, matching.ErrNotFound):
		log.Info("user not found")
		NotFound(c, "user not found")
	case errors.Is(err, matching.ErrInvalidState):
		log.Info("no usable cv", slog.Any("error", err))
		BadRequest(c, "no usable CV for this user")
	default:
		log.Error("matching request failed", slog.Any("error", err))
		Internal(c, "internal error")
	}
}
