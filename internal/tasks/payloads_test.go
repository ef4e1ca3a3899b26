package tasks

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewMatchRecomputeTask(t *testing.T) {
	task, err := NewMatchRecomputeTask(12)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if task.Type() != TypeMatchRecompute {
		t.Fatalf("unexpected type %q", task.Type())
	}

	var payload MatchRecomputePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload.UserID != 12 {
		t.Fatalf("unexpected payload %+v", payload)
	}
}

// asynq 的唯一键由队列、类型与载荷决定，同一用户的任务必须完全相同。
func TestNewMatchRecomputeTask_SameUserSharesUniqueKey(t *testing.T) {
	first, err := NewMatchRecomputeTask(7)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	second, err := NewMatchRecomputeTask(7)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	other, err := NewMatchRecomputeTask(8)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}

	if first.Type() != second.Type() || !bytes.Equal(first.Payload(), second.Payload()) {
		t.Fatalf("tasks for the same user must dedupe: %s vs %s", first.Payload(), second.Payload())
	}
	if bytes.Equal(first.Payload(), other.Payload()) {
		t.Fatal("tasks for different users must not dedupe")
	}
}

func TestNotifyChannel(t *testing.T) {
	if got := NotifyChannel(5); got != "user_notify:5" {
		t.Fatalf("unexpected channel %q", got)
	}
}
