package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/aescanero/dago-sandbox-router/internal/config"
	"github.com/aescanero/dago-sandbox-router/internal/task"
)

// Channel is the subset of *amqp.Channel used by the AMQP worker.
type Channel interface {
	Publisher
	Qos(prefetchCount, prefetchSize int, global bool) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// AMQPWorker consumes tasks from a RabbitMQ queue.
type AMQPWorker struct {
	id          string
	ch          Channel
	processor   *Processor
	producer    *AMQPProducer
	logger      *zap.Logger
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	done        chan struct{}
	queue       string
	resultQueue string
	prefetch    int
	skipBackoff time.Duration

	errMu sync.Mutex
	err   error
}

// NewAMQPWorker creates a new AMQP worker
func NewAMQPWorker(cfg *config.Config, ch Channel, processor *Processor, logger *zap.Logger) *AMQPWorker {
	ctx, cancel := context.WithCancel(context.Background())

	return &AMQPWorker{
		id:          cfg.WorkerID,
		ch:          ch,
		processor:   processor,
		producer:    NewAMQPProducer(ch, cfg.AMQPQueue),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
		done:        make(chan struct{}),
		queue:       cfg.AMQPQueue,
		resultQueue: cfg.AMQPResultQueue,
		prefetch:    cfg.AMQPPrefetch,
		skipBackoff: cfg.SkipBackoff,
	}
}

// DeadLetterQueue returns the name of the queue rejected tasks end up in.
func DeadLetterQueue(queue string) string {
	return queue + ".dlq"
}

// DeclareTopology declares the task queue, its dead-letter queue and the
// result queue.
func DeclareTopology(ch Channel, queue, resultQueue string) error {
	queues := []struct {
		name string
		args amqp.Table
	}{
		{DeadLetterQueue(queue), nil},
		{queue, amqp.Table{
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": DeadLetterQueue(queue),
		}},
		{resultQueue, nil},
	}

	for _, q := range queues {
		_, err := ch.QueueDeclare(
			q.name, // name
			true,   // durable
			false,  // delete when unused
			false,  // exclusive
			false,  // no-wait
			q.args, // arguments
		)
		if err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
	}

	return nil
}

// Start declares the topology and starts consuming
func (w *AMQPWorker) Start() error {
	w.logger.Info("starting amqp worker",
		zap.String("worker_id", w.id),
		zap.String("queue", w.queue),
		zap.Int("prefetch", w.prefetch),
	)

	if err := DeclareTopology(w.ch, w.queue, w.resultQueue); err != nil {
		return err
	}

	if err := w.ch.Qos(w.prefetch, 0, false); err != nil {
		return fmt.Errorf("failed to set qos: %w", err)
	}

	deliveries, err := w.ch.Consume(
		w.queue, // queue
		w.id,    // consumer tag
		false,   // auto-ack
		false,   // exclusive
		false,   // no-local
		false,   // no-wait
		nil,     // args
	)
	if err != nil {
		return fmt.Errorf("failed to consume from %s: %w", w.queue, err)
	}

	w.wg.Add(1)
	go w.processDeliveries(deliveries)

	w.logger.Info("amqp worker started", zap.String("worker_id", w.id))
	return nil
}

// Stop stops consuming and waits for the task in hand to finish
func (w *AMQPWorker) Stop() error {
	w.logger.Info("stopping amqp worker", zap.String("worker_id", w.id))

	w.cancel()
	w.wg.Wait()

	w.logger.Info("amqp worker stopped", zap.String("worker_id", w.id))
	return nil
}

// Err returns the error that ended consumption, if the broker closed the
// delivery channel.
func (w *AMQPWorker) Err() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

// Done is closed when the consume loop has ended.
func (w *AMQPWorker) Done() <-chan struct{} {
	return w.done
}

// processDeliveries handles deliveries until stopped or the channel closes
func (w *AMQPWorker) processDeliveries(deliveries <-chan amqp.Delivery) {
	defer w.wg.Done()
	defer close(w.done)

	for {
		select {
		case <-w.ctx.Done():
			return

		case d, ok := <-deliveries:
			if !ok {
				w.errMu.Lock()
				w.err = fmt.Errorf("delivery channel for %s closed", w.queue)
				w.errMu.Unlock()
				w.logger.Error("delivery channel closed", zap.String("queue", w.queue))
				return
			}
			w.handleDelivery(d)
		}
	}
}

// handleDelivery handles one delivery
func (w *AMQPWorker) handleDelivery(d amqp.Delivery) {
	ctx := context.WithoutCancel(w.ctx)

	t, err := task.Decode(d.Body)
	if err != nil {
		w.logger.Error("failed to parse task",
			zap.String("queue", w.queue),
			zap.String("message_id", d.MessageId),
			zap.Error(err),
		)
		// Malformed message goes to the dead-letter queue
		w.nack(d, false)
		return
	}

	headersFromTable(t, d.Headers)
	if attempt, ok := attemptFromTable(d.Headers); ok && attempt > t.Attempt {
		t.Attempt = attempt
	}

	disposition, result, err := w.processor.Process(ctx, t)

	switch disposition {
	case Complete:
		if err := w.publishResult(ctx, result); err != nil {
			w.logger.Error("failed to publish result",
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
		}
		w.ack(d)

	case Retry:
		retry := *t
		retry.Attempt++
		if err := w.producer.Enqueue(ctx, &retry); err != nil {
			w.logger.Error("failed to republish task for retry",
				zap.String("task_id", t.ID),
				zap.Error(err),
			)
			// Let the broker redeliver the original
			w.nack(d, true)
			return
		}
		w.ack(d)

	case DeadLetter:
		w.logger.Warn("dead-lettering task",
			zap.String("task_id", t.ID),
			zap.String("dead_letter_queue", DeadLetterQueue(w.queue)),
			zap.Error(err),
		)
		w.nack(d, false)

	case Requeue:
		w.nack(d, true)
		w.sleep(w.skipBackoff)
	}
}

// publishResult publishes the task result to the result queue
func (w *AMQPWorker) publishResult(ctx context.Context, result *task.Result) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now().UTC()
	}

	body, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	err = w.ch.PublishWithContext(ctx,
		"",
		w.resultQueue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    result.TaskID,
			Timestamp:    result.CompletedAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", w.resultQueue, err)
	}

	w.logger.Info("published task result",
		zap.String("task_id", result.TaskID),
		zap.Bool("success", result.Success),
	)
	return nil
}

func (w *AMQPWorker) ack(d amqp.Delivery) {
	if err := d.Ack(false); err != nil {
		w.logger.Error("failed to ack delivery", zap.Uint64("delivery_tag", d.DeliveryTag), zap.Error(err))
	}
}

func (w *AMQPWorker) nack(d amqp.Delivery, requeue bool) {
	if err := d.Nack(false, requeue); err != nil {
		w.logger.Error("failed to nack delivery",
			zap.Uint64("delivery_tag", d.DeliveryTag),
			zap.Bool("requeue", requeue),
			zap.Error(err))
	}
}

// sleep waits for d or until the worker is stopped
func (w *AMQPWorker) sleep(d time.Duration) {
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
