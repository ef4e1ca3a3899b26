package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	"jobMatch/internal/errcode"
	"jobMatch/internal/matching"
	"jobMatch/internal/tasks"
)

// Recomputer 是重算任务所需的匹配能力。
type Recomputer interface {
	ForceRecompute(ctx context.Context, userID uint) ([]matching.RankedMatch, error)
}

// RecomputeTaskHandler 负责消费匹配重算任务，并把结果通知给用户。
type RecomputeTaskHandler struct {
	service  Recomputer
	notifier publisher
	logger   *slog.Logger
}

// NewRecomputeTaskHandler 创建任务处理器。
func NewRecomputeTaskHandler(service Recomputer, notifier publisher, logger *slog.Logger) *RecomputeTaskHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &RecomputeTaskHandler{
		service:  service,
		notifier: notifier,
		logger:   logger,
	}
}

// ProcessTask 实现 asynq.Handler。
func (h *RecomputeTaskHandler) ProcessTask(ctx context.Context, t *asynq.Task) (retErr error) {
	var payload tasks.MatchRecomputePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		h.logger.Error("unmarshal task payload failed", slog.Any("error", err))
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}

	// 入队方用 task ID 关联自己的 correlation ID。
	taskID, _ := asynq.GetTaskID(ctx)
	log := h.logger.With(
		slog.String("task_id", taskID),
		slog.Uint64("user_id", uint64(payload.UserID)),
	)
	log.Info("starting match recompute task")

	notify := MatchingNotifyMessage{
		Type:   notifyTypeMatching,
		UserID: payload.UserID,
		TaskID: taskID,
	}

	matches, err := h.service.ForceRecompute(ctx, payload.UserID)
	switch {
	case errors.Is(err, matching.ErrNotFound):
		// 用户已被删除，没有人可以通知。
		log.Warn("user not found, skipping task")
		return nil
	case errors.Is(err, matching.ErrInvalidState):
		log.Warn("user has no usable cv, skipping task", slog.Any("error", err))
		notify.Status = statusError
		notify.ErrorCode = errcode.InvalidState
		notify.ErrorMessage = "no usable CV"
		h.publish(ctx, payload.UserID, notify, log)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	case err != nil:
		log.Error("match recompute failed", slog.Any("error", err))
		if isFinalAsynqAttempt(ctx) {
			notify.Status = statusError
			notify.ErrorCode = errcode.SystemError
			notify.ErrorMessage = strings.TrimSpace(err.Error())
			h.publish(ctx, payload.UserID, notify, log)
		}
		return err
	}

	notify.Status = statusCompleted
	notify.ErrorCode = errcode.OK
	notify.MatchCount = len(matches)
	if err := publishNotify(ctx, h.notifier, payload.UserID, notify); err != nil {
		// 结果已落库，通知失败不重跑整个评分。
		log.Error("publish redis notification failed", slog.Any("error", err))
	}

	log.Info("match recompute task completed", slog.Int("matches", len(matches)))
	return nil
}

func (h *RecomputeTaskHandler) publish(ctx context.Context, userID uint, msg MatchingNotifyMessage, log *slog.Logger) {
	if err := publishNotify(ctx, h.notifier, userID, msg); err != nil {
		log.Error("publish matching error notification failed", slog.Any("error", err))
	}
}

func isFinalAsynqAttempt(ctx context.Context) bool {
	retryCount, ok1 := asynq.GetRetryCount(ctx)
	maxRetry, ok2 := asynq.GetMaxRetry(ctx)
	if !ok1 || !ok2 {
		return false
	}
	return retryCount >= maxRetry
}
