package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// 任务类型常量，确保队列生产者与消费者一致。
const (
	TypeMatchRecompute = "matching:recompute"
)

// 同一用户的重算在该窗口内只会排队一次。
const recomputeUniqueTTL = time.Minute

// MatchRecomputePayload 描述一次后台匹配重算。
// asynq 按 (队列, 类型, 载荷) 去重，因此载荷只包含用户 ID；
// 请求方的 correlation ID 与入队返回的 task ID 一起记录在日志里。
type MatchRecomputePayload struct {
	UserID uint `json:"user_id"`
}

// NewMatchRecomputeTask 构造匹配重算任务。
// 窗口内同一用户重复入队会返回 asynq.ErrDuplicateTask。
func NewMatchRecomputeTask(userID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(MatchRecomputePayload{UserID: userID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(
		TypeMatchRecompute,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Unique(recomputeUniqueTTL),
	), nil
}

// NotifyChannel 返回用户通知使用的 Redis Pub/Sub 频道。
func NotifyChannel(userID uint) string {
	return fmt.Sprintf("user_notify:%d", userID)
}
