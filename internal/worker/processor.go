package worker

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/aescanero/dago-sandbox-router/internal/gate"
	"github.com/aescanero/dago-sandbox-router/internal/metrics"
	"github.com/aescanero/dago-sandbox-router/internal/task"
)

// Disposition tells a transport what to do with a delivered task.
type Disposition int

const (
	// Complete means the task ran; publish the result and acknowledge.
	Complete Disposition = iota

	// Retry means the task failed and has attempts left.
	Retry

	// DeadLetter means the task failed for good.
	DeadLetter

	// Requeue means the task belongs to another worker. It is handed back
	// to the queue without consuming an attempt.
	Requeue
)

// String returns the disposition name.
func (d Disposition) String() string {
	switch d {
	case Complete:
		return "complete"
	case Retry:
		return "retry"
	case DeadLetter:
		return "dead_letter"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// Processor runs tasks through the gate and classifies the outcome.
type Processor struct {
	workerID   string
	gate       *gate.Gate
	maxRetries int
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewProcessor creates a new processor
func NewProcessor(workerID string, g *gate.Gate, maxRetries int, collector *metrics.Collector, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		workerID:   workerID,
		gate:       g,
		maxRetries: maxRetries,
		metrics:    collector,
		logger:     logger,
	}
}

// Process passes t through the gate. The returned error is the handler
// error, if any, for Retry and DeadLetter dispositions.
func (p *Processor) Process(ctx context.Context, t *task.Task) (Disposition, *task.Result, error) {
	outcome, err := p.gate.Handle(ctx, t)

	if outcome.Skipped() {
		p.metrics.ObserveTask(t.Type, metrics.TaskSkipped)
		return Requeue, nil, nil
	}

	if err != nil {
		if isPermanent(err) || t.Attempt >= p.maxRetries {
			p.logger.Error("task failed permanently",
				zap.String("task_id", t.ID),
				zap.String("task_type", t.Type),
				zap.Int("attempt", t.Attempt),
				zap.Error(err))
			p.metrics.ObserveTask(t.Type, metrics.TaskDeadLettered)
			return DeadLetter, nil, err
		}

		p.logger.Warn("task failed, will retry",
			zap.String("task_id", t.ID),
			zap.String("task_type", t.Type),
			zap.Int("attempt", t.Attempt),
			zap.Int("max_retries", p.maxRetries),
			zap.Error(err))
		p.metrics.ObserveTask(t.Type, metrics.TaskRetried)
		return Retry, nil, err
	}

	result := outcome.Result
	if result == nil {
		result = &task.Result{TaskID: t.ID, Type: t.Type, Success: true}
	}
	result.WorkerID = p.workerID
	result.Role = p.gate.Role().String()

	if result.Success {
		p.metrics.ObserveTask(t.Type, metrics.TaskSucceeded)
	} else {
		p.metrics.ObserveTask(t.Type, metrics.TaskFailed)
	}
	return Complete, result, nil
}

// isPermanent reports whether retrying cannot change the outcome.
func isPermanent(err error) bool {
	return errors.Is(err, task.ErrInvalidTask) || errors.Is(err, task.ErrUnknownType)
}
