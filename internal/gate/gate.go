package gate

import (
	"context"

	"go.uber.org/zap"

	"github.com/aescanero/dago-sandbox-router/internal/metrics"
	"github.com/aescanero/dago-sandbox-router/internal/policy"
	"github.com/aescanero/dago-sandbox-router/internal/rules"
	"github.com/aescanero/dago-sandbox-router/internal/task"
)

// KeySource provides the currently active routing keys.
type KeySource interface {
	CurrentKeys() rules.KeySet
}

// Outcome is the result of passing a task through the gate.
type Outcome struct {
	Decision policy.Decision
	Result   *task.Result
}

// Skipped reports whether the task was left for another worker.
func (o Outcome) Skipped() bool {
	return o.Decision.Action == policy.Skip
}

// Gate wraps a task handler with the routing decision.
type Gate struct {
	role    policy.Role
	keys    KeySource
	next    task.Handler
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates a gate for the given role.
func New(role policy.Role, keys KeySource, next task.Handler, logger *zap.Logger, collector *metrics.Collector) *Gate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{
		role:    role,
		keys:    keys,
		next:    next,
		logger:  logger,
		metrics: collector,
	}
}

// Role returns the role the gate decides for.
func (g *Gate) Role() policy.Role {
	return g.role
}

// Decide returns the routing decision for t without running it.
func (g *Gate) Decide(t *task.Task) (decision policy.Decision, key string, hasKey bool) {
	key, hasKey = t.RoutingKey()

	var active policy.KeySet
	if g.keys != nil {
		active = g.keys.CurrentKeys()
	}

	return policy.Decide(g.role, key, hasKey, active), key, hasKey
}

// Handle decides and, when the decision is Proceed, runs the wrapped handler.
func (g *Gate) Handle(ctx context.Context, t *task.Task) (Outcome, error) {
	decision, key, hasKey := g.Decide(t)
	g.metrics.ObserveDecision(g.role.String(), decision.Action.String(), string(decision.Reason))

	if !decision.Proceeds() {
		g.logger.Info("Skipping task",
			zap.String("role", g.role.String()),
			zap.String("routing_key", key),
			zap.Bool("has_routing_key", hasKey),
			zap.String("reason", string(decision.Reason)),
			zap.String("task_id", t.ID),
			zap.String("task_type", t.Type))
		return Outcome{Decision: decision}, nil
	}

	g.logger.Debug("Executing task",
		zap.String("role", g.role.String()),
		zap.String("routing_key", key),
		zap.String("reason", string(decision.Reason)),
		zap.String("task_id", t.ID))

	result, err := g.next.Handle(ctx, t)
	return Outcome{Decision: decision, Result: result}, err
}
