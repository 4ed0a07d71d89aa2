package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/aescanero/dago-sandbox-router/internal/policy"
	"github.com/aescanero/dago-sandbox-router/internal/task"
)

func TestProcessorDispositions(t *testing.T) {
	tests := []struct {
		name    string
		role    policy.Role
		typ     string
		key     string
		attempt int
		want    Disposition
		wantErr bool
	}{
		{"baseline completes untagged", policy.Baseline(), "ok", "", 0, Complete, false},
		{"business failure completes", policy.Baseline(), "poor", "", 0, Complete, false},
		{"error with attempts left retries", policy.Baseline(), "flaky", "", 0, Retry, true},
		{"error on last attempt dead-letters", policy.Baseline(), "flaky", "", 2, DeadLetter, true},
		{"unknown type dead-letters", policy.Baseline(), "nope", "", 0, DeadLetter, true},
		{"baseline requeues claimed", policy.Baseline(), "ok", "canary1", 0, Requeue, false},
		{"sandbox requeues untagged", policy.Sandbox("canary1"), "ok", "", 0, Requeue, false},
		{"sandbox completes claimed", policy.Sandbox("canary1"), "ok", "canary1", 0, Complete, false},
		{"skip ignores exhausted attempts", policy.Baseline(), "flaky", "canary1", 5, Requeue, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _, _ := newTestProcessor(t, tt.role, "canary1")
			tk := newTask(t, tt.typ, tt.key)
			tk.Attempt = tt.attempt

			got, result, err := p.Process(context.Background(), tk)
			if got != tt.want {
				t.Errorf("Process() disposition = %s, want %s", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Errorf("Process() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got == Complete {
				if result == nil || result.WorkerID != "test-worker" || result.Role != tt.role.String() {
					t.Errorf("Result = %+v", result)
				}
			} else if result != nil {
				t.Errorf("non-complete disposition carries result %+v", result)
			}
		})
	}
}

func TestProcessorInvalidTaskIsPermanent(t *testing.T) {
	p, registry, _ := newTestProcessor(t, policy.Baseline())
	registry.Register("invalid", task.HandlerFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		return nil, task.ErrInvalidTask
	}))

	got, _, err := p.Process(context.Background(), newTask(t, "invalid", ""))
	if got != DeadLetter || !errors.Is(err, task.ErrInvalidTask) {
		t.Errorf("Process() = %s, %v", got, err)
	}
}

func TestProcessorMetrics(t *testing.T) {
	p, _, collector := newTestProcessor(t, policy.Sandbox("canary1"), "canary1")
	ctx := context.Background()

	_, _, _ = p.Process(ctx, newTask(t, "ok", "canary1"))
	_, _, _ = p.Process(ctx, newTask(t, "ok", ""))
	_, _, _ = p.Process(ctx, newTask(t, "ok", "canary2"))

	n, err := testutil.GatherAndCount(collector.Registry(), "sandbox_router_tasks_total")
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("tasks_total series = %d, want 2 (succeeded, skipped)", n)
	}
}

func TestDispositionString(t *testing.T) {
	for d, want := range map[Disposition]string{Complete: "complete", Retry: "retry", DeadLetter: "dead_letter", Requeue: "requeue", Disposition(9): "unknown"} {
		if got := d.String(); got != want {
			t.Errorf("String() = %q, want %q", got, want)
		}
	}
}
