package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestAsynqMetricsMiddleware_CountsOutcome(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome string
	}{
		{name: "success", outcome: taskOutcomeOK},
		{name: "transient", err: errors.New("connection reset"), outcome: taskOutcomeRetry},
		{name: "skip retry", err: fmt.Errorf("user has no cv: %w", asynq.SkipRetry), outcome: taskOutcomeSkipped},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			taskType := "test:" + tt.name
			handler := AsynqMetricsMiddleware()(asynq.HandlerFunc(func(context.Context, *asynq.Task) error {
				return tt.err
			}))

			err := handler.ProcessTask(context.Background(), asynq.NewTask(taskType, nil))
			if !errors.Is(err, tt.err) {
				t.Fatalf("middleware must pass the error through, got %v", err)
			}
			if got := testutil.ToFloat64(tasksTotal.WithLabelValues(taskType, tt.outcome)); got != 1 {
				t.Fatalf("expected one %s task got %v", tt.outcome, got)
			}
			if got := testutil.ToFloat64(taskInProgress.WithLabelValues(taskType)); got != 0 {
				t.Fatalf("in-progress gauge must return to zero, got %v", got)
			}
		})
	}
}
