package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"jobMatch/internal/errcode"
	"jobMatch/internal/matching"
	"jobMatch/internal/tasks"
)

type fakeRecomputer struct {
	matches []matching.RankedMatch
	err     error
	calls   []uint
}

func (f *fakeRecomputer) ForceRecompute(_ context.Context, userID uint) ([]matching.RankedMatch, error) {
	f.calls = append(f.calls, userID)
	return f.matches, f.err
}

type published struct {
	channel string
	msg     MatchingNotifyMessage
}

type fakePublisher struct {
	messages []published
}

func (p *fakePublisher) Publish(ctx context.Context, channel string, message any) *redis.IntCmd {
	var msg MatchingNotifyMessage
	_ = json.Unmarshal(message.([]byte), &msg)
	p.messages = append(p.messages, published{channel: channel, msg: msg})
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(1)
	return cmd
}

func newRecomputeTask(t *testing.T, userID uint) *asynq.Task {
	t.Helper()
	task, err := tasks.NewMatchRecomputeTask(userID)
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	return task
}

func newTestHandler(svc *fakeRecomputer, pub *fakePublisher) *RecomputeTaskHandler {
	return NewRecomputeTaskHandler(svc, pub, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRecomputeTask_Completed(t *testing.T) {
	svc := &fakeRecomputer{matches: make([]matching.RankedMatch, 3)}
	pub := &fakePublisher{}

	if err := newTestHandler(svc, pub).ProcessTask(context.Background(), newRecomputeTask(t, 7)); err != nil {
		t.Fatalf("process task: %v", err)
	}

	if len(svc.calls) != 1 || svc.calls[0] != 7 {
		t.Fatalf("expected one recompute for user 7 got %v", svc.calls)
	}
	if len(pub.messages) != 1 {
		t.Fatalf("expected one notification got %d", len(pub.messages))
	}
	got := pub.messages[0]
	if got.channel != "user_notify:7" {
		t.Fatalf("unexpected channel %q", got.channel)
	}
	if got.msg.Status != statusCompleted || got.msg.MatchCount != 3 || got.msg.UserID != 7 {
		t.Fatalf("unexpected notification %+v", got.msg)
	}
}

func TestRecomputeTask_UserGone(t *testing.T) {
	svc := &fakeRecomputer{err: fmt.Errorf("%w: user 7", matching.ErrNotFound)}
	pub := &fakePublisher{}

	if err := newTestHandler(svc, pub).ProcessTask(context.Background(), newRecomputeTask(t, 7)); err != nil {
		t.Fatalf("expected missing user to be skipped, got %v", err)
	}
	if len(pub.messages) != 0 {
		t.Fatalf("expected no notification got %d", len(pub.messages))
	}
}

func TestRecomputeTask_NoCVSkipsRetry(t *testing.T) {
	svc := &fakeRecomputer{err: fmt.Errorf("%w: user 7 has no CV", matching.ErrInvalidState)}
	pub := &fakePublisher{}

	err := newTestHandler(svc, pub).ProcessTask(context.Background(), newRecomputeTask(t, 7))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry got %v", err)
	}
	if len(pub.messages) != 1 || pub.messages[0].msg.ErrorCode != errcode.InvalidState {
		t.Fatalf("expected invalid state notification got %+v", pub.messages)
	}
}

func TestRecomputeTask_TransientErrorRetries(t *testing.T) {
	svc := &fakeRecomputer{err: errors.New("insert match result: connection reset")}
	pub := &fakePublisher{}

	err := newTestHandler(svc, pub).ProcessTask(context.Background(), newRecomputeTask(t, 7))
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected retryable error got %v", err)
	}
	// 不是最后一次重试，不通知用户。
	if len(pub.messages) != 0 {
		t.Fatalf("expected no notification before the final attempt got %d", len(pub.messages))
	}
}

func TestRecomputeTask_BadPayload(t *testing.T) {
	svc := &fakeRecomputer{}
	task := asynq.NewTask(tasks.TypeMatchRecompute, []byte("{"))

	err := newTestHandler(svc, &fakePublisher{}).ProcessTask(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry got %v", err)
	}
	if len(svc.calls) != 0 {
		t.Fatal("service must not be called for an undecodable payload")
	}
}
