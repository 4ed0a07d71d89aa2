package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/aescanero/dago-sandbox-router/internal/config"
	"github.com/aescanero/dago-sandbox-router/internal/gate"
	"github.com/aescanero/dago-sandbox-router/internal/metrics"
	"github.com/aescanero/dago-sandbox-router/internal/policy"
	"github.com/aescanero/dago-sandbox-router/internal/rules"
	"github.com/aescanero/dago-sandbox-router/internal/task"
)

var errFlaky = errors.New("flaky dependency")

type staticKeys struct {
	keys rules.KeySet
}

func (s staticKeys) CurrentKeys() rules.KeySet {
	return s.keys
}

// testRegistry handles "ok", "poor" (business failure), "flaky" (error)
// and counts executions.
type testRegistry struct {
	*task.Registry
	mu   sync.Mutex
	runs map[string]int
}

func newTestRegistry() *testRegistry {
	r := &testRegistry{Registry: task.NewRegistry(), runs: make(map[string]int)}
	record := func(t *task.Task) {
		r.mu.Lock()
		r.runs[t.ID]++
		r.mu.Unlock()
	}

	r.Register("ok", task.HandlerFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		record(t)
		return &task.Result{TaskID: t.ID, Type: t.Type, Success: true, Message: "done"}, nil
	}))
	r.Register("poor", task.HandlerFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		record(t)
		return &task.Result{TaskID: t.ID, Type: t.Type, Success: false, Message: "Insufficient funds"}, nil
	}))
	r.Register("flaky", task.HandlerFunc(func(ctx context.Context, t *task.Task) (*task.Result, error) {
		record(t)
		return nil, errFlaky
	}))
	return r
}

func (r *testRegistry) count(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runs[id]
}

func newTestProcessor(t *testing.T, role policy.Role, active ...string) (*Processor, *testRegistry, *metrics.Collector) {
	t.Helper()
	registry := newTestRegistry()
	collector := metrics.New(nil)
	logger := zaptest.NewLogger(t)
	g := gate.New(role, staticKeys{keys: rules.NewKeySet(active...)}, registry, logger, collector)
	return NewProcessor("test-worker", g, 2, collector, logger), registry, collector
}

func newTask(t *testing.T, taskType, routingKey string) *task.Task {
	t.Helper()
	tk, err := task.New(taskType, map[string]string{"n": "1"})
	if err != nil {
		t.Fatal(err)
	}
	if routingKey != "" {
		if err := tk.SetRoutingKey(routingKey); err != nil {
			t.Fatal(err)
		}
	}
	return tk
}

func testConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()
	base := map[string]string{
		"WORKER_ID":    "test-worker",
		"SKIP_BACKOFF": "0s",
		"MAX_RETRIES":  "2",
	}
	for k, v := range vars {
		base[k] = v
	}
	cfg, err := config.FromMap(base)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}
