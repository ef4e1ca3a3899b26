package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"jobMatch/internal/tasks"
)

// 统一的 WebSocket 消息协议（通过 Redis Pub/Sub 转发给前端）。
// 注意：这里的字段名与前端解析保持一致。
type MatchingNotifyMessage struct {
	Type         string `json:"type"`
	Status       string `json:"status"`
	UserID       uint   `json:"user_id"`
	MatchCount   int    `json:"match_count"`
	TaskID       string `json:"task_id"`
	ErrorCode    int    `json:"error_code"`
	ErrorMessage string `json:"error_message"`
}

const (
	notifyTypeMatching = "matching"
	statusCompleted    = "completed"
	statusError        = "error"
)

type publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

func publishNotify(ctx context.Context, client publisher, userID uint, msg MatchingNotifyMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification payload: %w", err)
	}
	channel := tasks.NotifyChannel(userID)
	if err := client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish redis notification to %q: %w", channel, err)
	}
	return nil
}
