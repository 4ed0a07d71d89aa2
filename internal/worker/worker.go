package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aescanero/dago-sandbox-router/internal/config"
	"github.com/aescanero/dago-sandbox-router/internal/task"
)

// streamField is the stream entry field that holds the task envelope.
const streamField = "data"

// claimBatch bounds the pending entries taken over per XAUTOCLAIM call.
const claimBatch = 10

// Worker consumes tasks from a Redis stream through a consumer group
type Worker struct {
	id            string
	redisClient   *redis.Client
	processor     *Processor
	logger        *zap.Logger
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	streamKey     string
	consumerGroup string
	resultStream  string
	blockTime     time.Duration
	skipBackoff   time.Duration
	claimMinIdle  time.Duration
	skipWarn      int
	lastClaim     time.Time
}

// NewWorker creates a new worker
func NewWorker(cfg *config.Config, redisClient *redis.Client, processor *Processor, logger *zap.Logger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	return &Worker{
		id:            cfg.WorkerID,
		redisClient:   redisClient,
		processor:     processor,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
		streamKey:     cfg.StreamKey,
		consumerGroup: cfg.ConsumerGroup,
		resultStream:  cfg.ResultStream,
		blockTime:     cfg.BlockTime,
		skipBackoff:   cfg.SkipBackoff,
		claimMinIdle:  cfg.ClaimMinIdle,
		skipWarn:      cfg.SkipWarnThreshold,
	}
}

// Start starts the worker
func (w *Worker) Start() error {
	w.logger.Info("starting stream worker",
		zap.String("worker_id", w.id),
		zap.String("stream_key", w.streamKey),
		zap.String("consumer_group", w.consumerGroup),
	)

	// Create consumer group if it doesn't exist
	if err := w.ensureConsumerGroup(); err != nil {
		return fmt.Errorf("failed to ensure consumer group: %w", err)
	}

	// Start processing work
	w.wg.Add(1)
	go w.processWork()

	w.logger.Info("stream worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops the worker and waits for the task in hand to finish
func (w *Worker) Stop() error {
	w.logger.Info("stopping stream worker", zap.String("worker_id", w.id))

	// Cancel context to stop work processing
	w.cancel()
	w.wg.Wait()

	w.logger.Info("stream worker stopped", zap.String("worker_id", w.id))
	return nil
}

// ensureConsumerGroup creates the consumer group if it doesn't exist
func (w *Worker) ensureConsumerGroup() error {
	// Try to create the group
	err := w.redisClient.XGroupCreateMkStream(w.ctx, w.streamKey, w.consumerGroup, "0").Err()
	if err != nil {
		// BUSYGROUP error means the group already exists, which is fine
		if strings.HasPrefix(err.Error(), "BUSYGROUP") {
			w.logger.Debug("consumer group already exists",
				zap.String("group", w.consumerGroup),
			)
			return nil
		}
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	w.logger.Info("created consumer group",
		zap.String("group", w.consumerGroup),
		zap.String("stream", w.streamKey),
	)
	return nil
}

// processWork processes work from the Redis stream
func (w *Worker) processWork() {
	defer w.wg.Done()
	w.logger.Info("starting work processing loop")

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Info("work processing loop stopped")
			return
		default:
			// Take over entries left unacknowledged by a crashed consumer
			// or a failed requeue
			if time.Since(w.lastClaim) >= w.claimMinIdle {
				w.reclaim()
				w.lastClaim = time.Now()
			}

			if !w.readOnce(w.blockTime) {
				w.sleep(time.Second)
			}
		}
	}
}

// readOnce reads and handles at most one message. It returns false when
// reading failed.
func (w *Worker) readOnce(block time.Duration) bool {
	streams, err := w.redisClient.XReadGroup(w.ctx, &redis.XReadGroupArgs{
		Group:    w.consumerGroup,
		Consumer: w.id,
		Streams:  []string{w.streamKey, ">"},
		Count:    1,
		Block:    block,
	}).Result()

	if err != nil {
		if err == redis.Nil || w.ctx.Err() != nil {
			// No messages available, or shutting down
			return true
		}
		w.logger.Error("failed to read from stream",
			zap.Error(err),
		)
		return false
	}

	// Process each message
	for _, stream := range streams {
		for _, message := range stream.Messages {
			w.handleMessage(message)
		}
	}
	return true
}

// reclaim claims pending entries idle for at least claimMinIdle, from any
// consumer in the group, and handles them as new deliveries.
func (w *Worker) reclaim() {
	start := "0-0"
	for w.ctx.Err() == nil {
		messages, next, err := w.redisClient.XAutoClaim(w.ctx, &redis.XAutoClaimArgs{
			Stream:   w.streamKey,
			Group:    w.consumerGroup,
			Consumer: w.id,
			MinIdle:  w.claimMinIdle,
			Start:    start,
			Count:    claimBatch,
		}).Result()
		if err != nil {
			if w.ctx.Err() == nil {
				w.logger.Error("failed to claim pending messages", zap.Error(err))
			}
			return
		}

		for _, message := range messages {
			w.logger.Warn("claimed pending message",
				zap.String("message_id", message.ID),
				zap.Duration("min_idle", w.claimMinIdle),
			)
			w.handleMessage(message)
		}

		if next == "0-0" || next == "" {
			return
		}
		start = next
	}
}

// handleMessage handles a single task message
func (w *Worker) handleMessage(message redis.XMessage) {
	messageID := message.ID

	// Tasks run to completion on shutdown; only the wait for new work is cancelled
	ctx := context.WithoutCancel(w.ctx)

	// Parse the task envelope
	t, err := w.parseTask(message.Values)
	if err != nil {
		w.logger.Error("failed to parse task",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
		w.publishError(ctx, nil, message.Values, err)
		w.acknowledgeMessage(ctx, messageID)
		return
	}

	w.logger.Debug("processing task",
		zap.String("message_id", messageID),
		zap.String("task_id", t.ID),
		zap.String("task_type", t.Type),
	)

	disposition, result, err := w.processor.Process(ctx, t)

	switch disposition {
	case Complete:
		if err := w.publishResult(ctx, result); err != nil {
			w.logger.Error("failed to publish result",
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
		}
		w.acknowledgeMessage(ctx, messageID)

	case Retry:
		retry := *t
		retry.Attempt++
		if err := w.requeue(ctx, messageID, &retry); err != nil {
			w.logger.Error("failed to requeue task for retry",
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
		}

	case DeadLetter:
		w.publishError(ctx, t, nil, err)
		w.acknowledgeMessage(ctx, messageID)

	case Requeue:
		skipped := *t
		skipped.Skips++
		if w.skipWarn > 0 && skipped.Skips >= w.skipWarn {
			routingKey, _ := t.RoutingKey()
			w.logger.Warn("task keeps being skipped",
				zap.String("task_id", t.ID),
				zap.String("routing_key", routingKey),
				zap.Int("skips", skipped.Skips),
			)
		}
		if err := w.requeue(ctx, messageID, &skipped); err != nil {
			w.logger.Error("failed to hand task back to the stream",
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
		}
		// Give the owning worker a chance to pick it up
		w.sleep(w.skipBackoff)
	}
}

// parseTask parses a task envelope from a Redis message
func (w *Worker) parseTask(values map[string]interface{}) (*task.Task, error) {
	dataStr, ok := values[streamField].(string)
	if !ok {
		return nil, fmt.Errorf("missing or invalid '%s' field", streamField)
	}

	return task.Decode([]byte(dataStr))
}

// requeue acknowledges the message and appends t to the stream in one transaction
func (w *Worker) requeue(ctx context.Context, messageID string, t *task.Task) error {
	data, err := t.Encode()
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	_, err = w.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.XAck(ctx, w.streamKey, w.consumerGroup, messageID)
		pipe.XAdd(ctx, &redis.XAddArgs{
			Stream: w.streamKey,
			Values: map[string]interface{}{
				streamField: string(data),
			},
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to requeue message %s: %w", messageID, err)
	}

	return nil
}

// publishResult publishes the task result
func (w *Worker) publishResult(ctx context.Context, result *task.Result) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now().UTC()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	// Publish to result stream
	_, err = w.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: w.resultStream,
		Values: map[string]interface{}{
			streamField: string(data),
		},
	}).Result()

	if err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}

	w.logger.Info("published task result",
		zap.String("task_id", result.TaskID),
		zap.Bool("success", result.Success),
	)

	return nil
}

// publishError publishes a dead-lettered task to the error stream
func (w *Worker) publishError(ctx context.Context, t *task.Task, raw map[string]interface{}, err error) {
	errorEvent := map[string]interface{}{
		"worker_id": w.id,
		"error":     err.Error(),
		"timestamp": time.Now().UTC(),
	}
	if t != nil {
		errorEvent["task"] = t
	} else {
		errorEvent["raw"] = raw
	}

	data, marshalErr := json.Marshal(errorEvent)
	if marshalErr != nil {
		w.logger.Error("failed to marshal error event", zap.Error(marshalErr))
		return
	}

	// Publish error to a separate stream
	_, publishErr := w.redisClient.XAdd(ctx, &redis.XAddArgs{
		Stream: w.resultStream + ".errors",
		Values: map[string]interface{}{
			streamField: string(data),
		},
	}).Result()

	if publishErr != nil {
		w.logger.Error("failed to publish error event", zap.Error(publishErr))
	}
}

// acknowledgeMessage acknowledges a message from the stream
func (w *Worker) acknowledgeMessage(ctx context.Context, messageID string) {
	err := w.redisClient.XAck(ctx, w.streamKey, w.consumerGroup, messageID).Err()
	if err != nil {
		w.logger.Error("failed to acknowledge message",
			zap.String("message_id", messageID),
			zap.Error(err),
		)
	}
}

// sleep waits for d or until the worker is stopped
func (w *Worker) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-w.ctx.Done():
	case <-timer.C:
	}
}
